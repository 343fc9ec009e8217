// Package templates renders the agent prompts from embedded markdown templates.
package templates

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

//go:embed *.tpl.md
var templateFS embed.FS

// PageRef is the slug/title pair handed to agents that depend on the page list.
type PageRef struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

// TemplateData holds the values available to every prompt template.
type TemplateData struct {
	Extra          map[string]any
	Task           string
	BusinessName   string
	BusinessType   string
	Description    string
	Industry       string
	TargetAudience string
	SuggestedTheme string
	Pages          []PageRef
}

// PromptTemplate names an embedded template.
type PromptTemplate string

const (
	// SystemTemplate is the shared system instruction for every agent.
	SystemTemplate PromptTemplate = "system.tpl.md"
	// PlanningTemplate asks for the site architecture.
	PlanningTemplate PromptTemplate = "planning.tpl.md"
	// DesignTemplate asks for theme and styling.
	DesignTemplate PromptTemplate = "design.tpl.md"
	// ContentTemplate asks for page bodies and SEO metadata.
	ContentTemplate PromptTemplate = "content.tpl.md"
	// PostsTemplate asks for blog seed posts.
	PostsTemplate PromptTemplate = "posts.tpl.md"
	// PluginsTemplate asks for plugin recommendations.
	PluginsTemplate PromptTemplate = "plugins.tpl.md"
	// DeploymentPlanTemplate asks for the ordered deployment steps.
	DeploymentPlanTemplate PromptTemplate = "deployment_plan.tpl.md"
)

// Renderer holds the parsed templates. It is safe for concurrent use.
type Renderer struct {
	templates map[PromptTemplate]*template.Template
}

// NewRenderer parses every embedded template.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		templates: make(map[PromptTemplate]*template.Template),
	}

	templateNames := []PromptTemplate{
		SystemTemplate,
		PlanningTemplate,
		DesignTemplate,
		ContentTemplate,
		PostsTemplate,
		PluginsTemplate,
		DeploymentPlanTemplate,
	}

	for _, name := range templateNames {
		content, err := templateFS.ReadFile(string(name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}

		tmpl, err := template.New(string(name)).Funcs(template.FuncMap{
			"contains": strings.Contains,
			"oneline":  OneLine,
			"json": func(v any) (string, error) {
				b, err := json.Marshal(v)
				return string(b), err
			},
		}).Option("missingkey=zero").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}

		r.templates[name] = tmpl
	}

	return r, nil
}

// Render renders the specified template with the given data.
func (r *Renderer) Render(templateName PromptTemplate, data *TemplateData) (string, error) {
	tmpl, exists := r.templates[templateName]
	if !exists {
		return "", fmt.Errorf("template %s not found", templateName)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", templateName, err)
	}

	return buf.String(), nil
}

// GetAvailableTemplates returns a list of all available templates.
func (r *Renderer) GetAvailableTemplates() []PromptTemplate {
	templates := make([]PromptTemplate, 0, len(r.templates))
	for name := range r.templates {
		templates = append(templates, name)
	}
	return templates
}

// OneLine collapses whitespace runs (including newlines) so a value fits a "key: value" line.
func OneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
