package genclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"sitebuilder/pkg/faults"
	"sitebuilder/pkg/logx"
)

// Task names recognised by Mock. Agents put "### TASK: <name>" on its own prompt line.
const (
	TaskPlanning       = "planning"
	TaskDesign         = "design"
	TaskContent        = "content"
	TaskPosts          = "posts"
	TaskPlugins        = "plugin_selection"
	TaskDeploymentPlan = "deployment_plan"
)

// Mock is a deterministic generator for tests and offline runs. It answers in the same
// envelope the live providers are asked for, wrapped in a fenced block like a chatty model would.
type Mock struct {
	logger *logx.Logger
}

// NewMock creates the mock generator.
func NewMock() *Mock {
	return &Mock{logger: logx.NewLogger("genclient/mock")}
}

type mockPage struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

type mockPrompt struct {
	task   string
	fields map[string]string
	pages  []mockPage
}

// Generate builds a canned response for the task named in prompt.
func (m *Mock) Generate(ctx context.Context, prompt, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", faults.Network(err, "mock generation cancelled")
	}

	p := parseMockPrompt(prompt)
	m.logger.Debug("📝 mock response for task %q (%s)", p.task, p.field("business_name", "unnamed"))

	var (
		confidence float64
		result     any
	)
	switch p.task {
	case TaskPlanning:
		confidence, result = 0.87, mockPlanning(p)
	case TaskDesign:
		confidence, result = 0.82, mockDesign(p)
	case TaskContent:
		confidence, result = 0.85, mockContent(p)
	case TaskPosts:
		confidence, result = 0.80, mockPosts(p)
	case TaskPlugins:
		confidence, result = 0.90, mockPlugins(p)
	case TaskDeploymentPlan:
		confidence, result = 0.92, mockDeploymentPlan()
	default:
		confidence, result = 0.85, map[string]any{"summary": "generic mock result"}
	}

	envelope := map[string]any{
		"confidence":  confidence,
		"assumptions": []string{"mock generator output"},
		"result":      result,
	}
	body, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return "", faults.Internal(err, "marshal mock response")
	}
	return "Here is the requested output.\n\n```json\n" + string(body) + "\n```\n", nil
}

func parseMockPrompt(prompt string) mockPrompt {
	p := mockPrompt{fields: make(map[string]string)}

	scanner := bufio.NewScanner(strings.NewReader(prompt))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if task, ok := strings.CutPrefix(line, TaskMarker); ok {
			p.task = strings.TrimSpace(task)
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.ContainsAny(key, " \t") {
			continue
		}
		key = strings.ToLower(key)
		if _, seen := p.fields[key]; !seen {
			p.fields[key] = strings.TrimSpace(value)
		}
	}

	if raw := p.fields["pages"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &p.pages) // Unparseable lists fall back to defaults
	}
	return p
}

func (p mockPrompt) field(key, fallback string) string {
	if v := p.fields[key]; v != "" {
		return v
	}
	return fallback
}

func (p mockPrompt) hasPage(slug string) bool {
	for _, page := range p.pages {
		if page.Slug == slug {
			return true
		}
	}
	return false
}

func mockPlanning(p mockPrompt) map[string]any {
	type page struct {
		title, slug, template, priority string
		sections                        []string
	}
	pages := []page{
		{"Home", "home", "front-page", "high", []string{"hero", "services", "testimonials"}},
		{"About Us", "about", "default", "high", []string{"history", "team"}},
		{"Services", "services", "default", "high", []string{"service_list"}},
		{"Gallery", "gallery", "default", "medium", []string{"photos"}},
		{"Contact", "contact", "default", "high", []string{"form", "map"}},
		{"Blog", "blog", "default", "medium", []string{"posts"}},
	}
	if p.field("industry", "") == "food_service" {
		pages = slices.Insert(pages, 3, page{"Menu", "menu", "default", "high", []string{"menu_items"}})
	}

	out := make([]map[string]any, 0, len(pages))
	sitemap := make([]string, 0, len(pages))
	for _, pg := range pages {
		out = append(out, map[string]any{
			"title":    pg.title,
			"slug":     pg.slug,
			"template": pg.template,
			"sections": pg.sections,
			"priority": pg.priority,
		})
		sitemap = append(sitemap, pg.slug)
	}

	return map[string]any{
		"pages":    out,
		"features": []string{"contact_form", "seo", "blog"},
		"navigation": []map[string]string{
			{"label": "Home", "slug": "home"},
			{"label": "About", "slug": "about"},
			{"label": "Services", "slug": "services"},
			{"label": "Contact", "slug": "contact"},
		},
		"sitemap": sitemap,
	}
}

func mockDesign(p mockPrompt) map[string]any {
	return map[string]any{
		"theme": p.field("suggested_theme", "astra"),
		"palette": map[string]string{
			"primary":    "#1f3a5f",
			"secondary":  "#f4a261",
			"accent":     "#e76f51",
			"background": "#ffffff",
			"text":       "#222222",
		},
		"typography": map[string]string{"heading": "Montserrat", "body": "Open Sans"},
		"style":      "modern",
	}
}

func mockContent(p mockPrompt) map[string]any {
	name := p.field("business_name", "Our Business")
	pages := make([]map[string]any, 0, len(p.pages))
	for _, page := range p.pages {
		pages = append(pages, map[string]any{
			"slug":  page.Slug,
			"title": page.Title,
			"body":  fmt.Sprintf("<h1>%s</h1><p>%s welcomes you.</p>", page.Title, name),
			"seo": map[string]string{
				"title":       fmt.Sprintf("%s | %s", page.Title, name),
				"description": fmt.Sprintf("%s at %s.", page.Title, name),
				"keyword":     page.Slug,
			},
		})
	}
	return map[string]any{"pages": pages}
}

func mockPosts(p mockPrompt) map[string]any {
	posts := []map[string]any{}
	if p.hasPage("blog") {
		name := p.field("business_name", "Our Business")
		for _, seed := range []struct{ title, slug, category string }{
			{"Welcome", "welcome", "News"},
			{"Our Story", "our-story", "News"},
			{"Quality Matters", "quality-matters", "Updates"},
		} {
			posts = append(posts, map[string]any{
				"title":      seed.title,
				"slug":       seed.slug,
				"excerpt":    seed.title,
				"body":       fmt.Sprintf("<p>%s from %s.</p>", seed.title, name),
				"categories": []string{seed.category},
			})
		}
	}
	return map[string]any{"posts": posts}
}

func mockPlugins(p mockPrompt) map[string]any {
	plugins := []map[string]any{
		{"slug": "wordpress-seo", "name": "Yoast SEO", "reason": "search visibility", "required": true},
		{"slug": "wpforms-lite", "name": "WPForms Lite", "reason": "contact form", "required": true},
	}
	if p.hasPage("gallery") {
		plugins = append(plugins, map[string]any{
			"slug": "instagram-feed", "name": "Smash Balloon Instagram Feed", "reason": "gallery feed", "required": false,
		})
	}
	return map[string]any{"plugins": plugins}
}

func mockDeploymentPlan() map[string]any {
	steps := []map[string]any{
		{"name": "Verify target", "kind": "verify", "critical": true},
		{"name": "Install WordPress core", "kind": "core", "critical": true},
		{"name": "Install theme", "kind": "theme", "critical": true},
		{"name": "Install plugins", "kind": "plugins", "critical": true},
		{"name": "Publish content", "kind": "content", "critical": true},
		{"name": "Build navigation", "kind": "navigation", "critical": false},
		{"name": "Finalize", "kind": "finalize", "critical": true},
	}
	return map[string]any{"steps": steps}
}
