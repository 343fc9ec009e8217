package deploy

import (
	"errors"
	"fmt"
	"regexp"
	"slices"

	"sitebuilder/pkg/contentapi"
	"sitebuilder/pkg/remote"
)

// Kind groups steps; steps run in the order of Kinds.
type Kind string

const (
	KindVerify     Kind = "verify"
	KindCore       Kind = "core"
	KindTheme      Kind = "theme"
	KindPlugin     Kind = "plugin"
	KindContent    Kind = "content"
	KindNavigation Kind = "navigation"
	KindFinalize   Kind = "finalize"
)

// Kinds lists step kinds in execution order.
//
//nolint:gochecknoglobals // Fixed ordering table
var Kinds = []Kind{KindVerify, KindCore, KindTheme, KindPlugin, KindContent, KindNavigation, KindFinalize}

// DefaultPermalink is the permalink structure when the plan sets none.
const DefaultPermalink = "/%postname%/"

// Plugin is one plugin to install and activate.
type Plugin struct {
	Slug     string `json:"slug"`
	Required bool   `json:"required"`
}

// Page is one page to publish.
type Page struct {
	Slug            string `json:"slug"`
	Title           string `json:"title"`
	Body            string `json:"body"`
	Order           int    `json:"order"`
	SEOTitle        string `json:"seo_title,omitempty"`
	MetaDescription string `json:"meta_description,omitempty"`
}

// Post is one blog post to publish.
type Post struct {
	Slug    string `json:"slug"`
	Title   string `json:"title"`
	Excerpt string `json:"excerpt,omitempty"`
	Body    string `json:"body"`
}

// MenuItem links a navigation label to a page slug.
type MenuItem struct {
	Label string `json:"label"`
	Slug  string `json:"slug"`
}

// CoreInstall holds what `wp core install` needs when the target has no WordPress yet.
//
//nolint:govet // Field grouping follows meaning, not alignment
type CoreInstall struct {
	DBName        string `json:"db_name"`
	DBUser        string `json:"db_user"`
	DBPassword    string `json:"-"`
	DBHost        string `json:"db_host,omitempty"`
	Title         string `json:"title"`
	AdminUser     string `json:"admin_user"`
	AdminPassword string `json:"-"`
	AdminEmail    string `json:"admin_email"`
}

func (c *CoreInstall) complete() bool {
	return c != nil && c.DBName != "" && c.DBUser != "" && c.AdminUser != "" && c.AdminEmail != ""
}

// Plan is what the engine applies to a target.
//
//nolint:govet // Field grouping follows meaning, not alignment
type Plan struct {
	Theme      string       `json:"theme"`
	Plugins    []Plugin     `json:"plugins"`
	Pages      []Page       `json:"pages"`
	Posts      []Post       `json:"posts,omitempty"`
	Menu       []MenuItem   `json:"menu,omitempty"`
	Navigation bool         `json:"navigation"` // Create the primary menu (optional step)
	FrontPage  string       `json:"front_page,omitempty"`
	Permalink  string       `json:"permalink,omitempty"`
	Core       *CoreInstall `json:"core,omitempty"`
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Validate checks the plan before any remote call is made.
func (p *Plan) Validate() error {
	var errs []error
	if p.Theme == "" {
		errs = append(errs, errors.New("theme is required"))
	} else if !slugPattern.MatchString(p.Theme) {
		errs = append(errs, fmt.Errorf("invalid theme slug %q", p.Theme))
	}

	seen := map[string]bool{}
	for _, pl := range p.Plugins {
		if !slugPattern.MatchString(pl.Slug) {
			errs = append(errs, fmt.Errorf("invalid plugin slug %q", pl.Slug))
		}
		if seen[pl.Slug] {
			errs = append(errs, fmt.Errorf("duplicate plugin %q", pl.Slug))
		}
		seen[pl.Slug] = true
	}

	pages := map[string]bool{}
	for _, pg := range p.Pages {
		if !slugPattern.MatchString(pg.Slug) {
			errs = append(errs, fmt.Errorf("invalid page slug %q", pg.Slug))
		}
		if pages[pg.Slug] {
			errs = append(errs, fmt.Errorf("duplicate page %q", pg.Slug))
		}
		pages[pg.Slug] = true
	}
	if len(p.Pages) == 0 {
		errs = append(errs, errors.New("at least one page is required"))
	}
	if p.FrontPage != "" && !pages[p.FrontPage] {
		errs = append(errs, fmt.Errorf("front page %q is not a plan page", p.FrontPage))
	}
	for _, m := range p.Menu {
		if !pages[m.Slug] {
			errs = append(errs, fmt.Errorf("menu item %q points at unknown page %q", m.Label, m.Slug))
		}
	}
	return errors.Join(errs...)
}

// sortedPages returns pages by Order, keeping plan order for ties.
func (p *Plan) sortedPages() []Page {
	pages := slices.Clone(p.Pages)
	slices.SortStableFunc(pages, func(a, b Page) int { return a.Order - b.Order })
	return pages
}

func (p *Plan) permalink() string {
	if p.Permalink == "" {
		return DefaultPermalink
	}
	return p.Permalink
}

// Target is where a site is deployed.
type Target struct {
	URL string                 `json:"url"`
	SSH remote.Target          `json:"ssh"`
	API contentapi.Credentials `json:"api"`
}

// hasAPI reports whether content can go through the REST API.
func (t Target) hasAPI() bool {
	return t.URL != "" && (t.API.Token != "" || t.API.Username != "")
}

// Request is one deployment.
type Request struct {
	SiteID string `json:"site_id"`
	RunID  string `json:"run_id,omitempty"` // Generated when empty
	Target Target `json:"target"`
	Plan   Plan   `json:"plan"`
}

// stepSpec is one step before it runs.
type stepSpec struct {
	name     string
	kind     Kind
	optional bool
	plugin   *Plugin
}

// steps expands the plan into the canonical step list, one step per plugin. Every step is
// critical except optional plugins and navigation.
func (p *Plan) steps() []stepSpec {
	specs := []stepSpec{
		{name: string(KindVerify), kind: KindVerify},
		{name: string(KindCore), kind: KindCore},
		{name: string(KindTheme), kind: KindTheme},
	}
	// Required plugins first so that an abort happens before any optional install.
	for _, required := range []bool{true, false} {
		for i := range p.Plugins {
			pl := p.Plugins[i]
			if pl.Required != required {
				continue
			}
			specs = append(specs, stepSpec{
				name:     "plugin:" + pl.Slug,
				kind:     KindPlugin,
				optional: !pl.Required,
				plugin:   &pl,
			})
		}
	}
	specs = append(specs, stepSpec{name: string(KindContent), kind: KindContent})
	if p.Navigation {
		specs = append(specs, stepSpec{name: string(KindNavigation), kind: KindNavigation, optional: true})
	}
	return append(specs, stepSpec{name: string(KindFinalize), kind: KindFinalize})
}
