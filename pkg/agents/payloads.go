package agents

import "sitebuilder/pkg/catalog"

// Page is one page of the site architecture.
type Page struct {
	Title    string   `json:"title"`
	Slug     string   `json:"slug"`
	Template string   `json:"template"`
	Sections []string `json:"sections"`
	Priority string   `json:"priority"`
}

// NavItem is a navigation menu entry pointing at a page.
type NavItem struct {
	Label string `json:"label"`
	Slug  string `json:"slug"`
}

// SiteArchitecture is the planning payload.
type SiteArchitecture struct {
	Pages      []Page    `json:"pages"`
	Features   []string  `json:"features"`
	Navigation []NavItem `json:"navigation"`
	Sitemap    []string  `json:"sitemap"`
}

// HasPage reports whether slug is one of the pages.
func (a *SiteArchitecture) HasPage(slug string) bool {
	for i := range a.Pages {
		if a.Pages[i].Slug == slug {
			return true
		}
	}
	return false
}

// DesignConfig is the design payload.
type DesignConfig struct {
	Theme      string             `json:"theme"`
	Palette    catalog.Palette    `json:"palette"`
	Typography catalog.Typography `json:"typography"`
	Style      string             `json:"style"`
}

// SEO is per-page search metadata.
type SEO struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Keyword     string `json:"keyword"`
}

// ContentPage is the generated body for one architecture page.
type ContentPage struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	Body  string `json:"body"`
	SEO   SEO    `json:"seo"`
}

// ContentOutput is the content payload. Every slug exists in the architecture.
type ContentOutput struct {
	Pages []ContentPage `json:"pages"`
}

// Post is a blog seed post.
type Post struct {
	Title      string   `json:"title"`
	Slug       string   `json:"slug"`
	Excerpt    string   `json:"excerpt"`
	Body       string   `json:"body"`
	Categories []string `json:"categories"`
}

// PostsOutput is the posts payload.
type PostsOutput struct {
	Posts []Post `json:"posts"`
}

// PluginChoice is one selected plugin.
type PluginChoice struct {
	Slug     string `json:"slug"`
	Name     string `json:"name,omitempty"`
	Reason   string `json:"reason"`
	Required bool   `json:"required"`
}

// PluginSelection is the plugin-selection payload.
type PluginSelection struct {
	Plugins []PluginChoice `json:"plugins"`
}

// Step kinds of a deployment plan, in canonical order.
const (
	StepVerify     = "verify"
	StepCore       = "core"
	StepTheme      = "theme"
	StepPlugins    = "plugins"
	StepContent    = "content"
	StepNavigation = "navigation"
	StepFinalize   = "finalize"
)

// CanonicalStepKinds lists step kinds in execution order.
//
//nolint:gochecknoglobals // Fixed ordering table
var CanonicalStepKinds = []string{
	StepVerify, StepCore, StepTheme, StepPlugins, StepContent, StepNavigation, StepFinalize,
}

// PlanStep is one deployment-plan step.
type PlanStep struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Critical bool   `json:"critical"`
}

// DeploymentPlan is the deployment-plan payload.
type DeploymentPlan struct {
	Steps []PlanStep `json:"steps"`
}

// Has reports whether the plan contains a step of kind.
func (p *DeploymentPlan) Has(kind string) bool {
	for _, s := range p.Steps {
		if s.Kind == kind {
			return true
		}
	}
	return false
}
