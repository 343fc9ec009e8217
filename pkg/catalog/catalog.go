// Package catalog holds the static site-building knowledge: industry inference, the theme for
// each industry and the plugin baseline every site gets.
package catalog

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultData []byte

// Palette is a theme color set.
type Palette struct {
	Primary    string `yaml:"primary" json:"primary"`
	Secondary  string `yaml:"secondary" json:"secondary"`
	Accent     string `yaml:"accent" json:"accent"`
	Background string `yaml:"background" json:"background"`
	Text       string `yaml:"text" json:"text"`
}

// Typography names the heading and body fonts.
type Typography struct {
	Heading string `yaml:"heading" json:"heading"`
	Body    string `yaml:"body" json:"body"`
}

// Theme is a WordPress theme suggestion with its default styling.
type Theme struct {
	Slug       string     `yaml:"slug"`
	Name       string     `yaml:"name"`
	Palette    Palette    `yaml:"palette"`
	Typography Typography `yaml:"typography"`
	Style      string     `yaml:"style"`
}

// Plugin is a WordPress.org plugin recommendation.
type Plugin struct {
	Slug     string `yaml:"slug" json:"slug"`
	Name     string `yaml:"name" json:"name"`
	Reason   string `yaml:"reason" json:"reason"`
	Required bool   `yaml:"required" json:"required"`
}

// Catalog is the parsed catalog document.
type Catalog struct {
	DefaultIndustry string              `yaml:"default_industry"`
	Industries      map[string]string   `yaml:"industries"`
	Themes          map[string]Theme    `yaml:"themes"`
	DefaultPlugins  []Plugin            `yaml:"default_plugins"`
	IndustryPlugins map[string][]Plugin `yaml:"industry_plugins"`
}

//nolint:gochecknoglobals // Parsed once from the embedded document
var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded catalog. It panics if the embedded document is invalid,
// which the package tests guard against.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(defaultData)
		if err != nil {
			panic(fmt.Sprintf("embedded catalog: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Load parses and validates a catalog document.
func Load(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if c.DefaultIndustry == "" {
		return fmt.Errorf("catalog: default_industry is required")
	}
	if _, ok := c.Themes[c.DefaultIndustry]; !ok {
		return fmt.Errorf("catalog: no theme for default industry %q", c.DefaultIndustry)
	}
	seen := make(map[string]bool, len(c.DefaultPlugins))
	for _, p := range c.DefaultPlugins {
		if p.Slug == "" {
			return fmt.Errorf("catalog: default plugin without slug")
		}
		if seen[p.Slug] {
			return fmt.Errorf("catalog: duplicate default plugin %q", p.Slug)
		}
		seen[p.Slug] = true
	}
	return nil
}

// InferIndustry maps a free-form business type to an industry. The whole type is tried first,
// then each word in order; unknown types get the default industry.
func (c *Catalog) InferIndustry(businessType string) string {
	normalized := strings.ToLower(strings.TrimSpace(businessType))
	if industry, ok := c.Industries[normalized]; ok {
		return industry
	}
	words := strings.FieldsFunc(normalized, func(r rune) bool { return !unicode.IsLetter(r) })
	for _, word := range words {
		if industry, ok := c.Industries[word]; ok {
			return industry
		}
	}
	return c.DefaultIndustry
}

// ThemeFor returns the theme for industry, falling back to the default industry's theme.
func (c *Catalog) ThemeFor(industry string) Theme {
	if theme, ok := c.Themes[industry]; ok {
		return theme
	}
	return c.Themes[c.DefaultIndustry]
}

// PluginsFor returns the baseline plugins plus industry extras, in that order.
func (c *Catalog) PluginsFor(industry string) []Plugin {
	extra := c.IndustryPlugins[industry]
	plugins := make([]Plugin, 0, len(c.DefaultPlugins)+len(extra))
	plugins = append(plugins, c.DefaultPlugins...)
	return append(plugins, extra...)
}
