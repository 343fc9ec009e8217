package agents

import (
	"context"
	"fmt"

	"sitebuilder/pkg/faults"
	"sitebuilder/pkg/genclient"
	"sitebuilder/pkg/templates"
)

// DefaultPlanningThreshold is the planning confidence floor.
const DefaultPlanningThreshold = 0.75

// RequiredPages must appear in every architecture.
//
//nolint:gochecknoglobals // Fixed table
var RequiredPages = []string{"home", "contact"}

// PlanningAgent produces the SiteArchitecture.
type PlanningAgent struct {
	caller
}

// NewPlanningAgent creates the planning agent.
func NewPlanningAgent(gen genclient.Client, opts ...Option) *PlanningAgent {
	return &PlanningAgent{caller: newCaller(NamePlanning, DefaultPlanningThreshold, gen, opts)}
}

// Execute plans the site. Deps are not used.
func (a *PlanningAgent) Execute(ctx context.Context, in Input, _ Deps) Output {
	return a.run(ctx, in, func(ctx context.Context) (result, error) {
		data, assumptions := a.baseData(in)

		env, err := a.generate(ctx, templates.PlanningTemplate, data, planningSchema())
		if err != nil {
			return result{}, err
		}

		var arch SiteArchitecture
		if err := decodeResult(env, &arch); err != nil {
			return result{}, err
		}
		notes, err := normalizeArchitecture(&arch)
		if err != nil {
			return result{}, err
		}

		return result{
			payload:     arch,
			confidence:  env.Confidence,
			assumptions: mergeAssumptions(mergeAssumptions(assumptions, env.Assumptions...), notes...),
		}, nil
	})
}

// normalizeArchitecture enforces the architecture invariants: non-empty pages, unique slugs,
// required pages present. Navigation and sitemap entries naming unknown pages are dropped.
func normalizeArchitecture(arch *SiteArchitecture) ([]string, error) {
	if len(arch.Pages) == 0 {
		return nil, faults.Malformed(nil, "architecture has no pages")
	}

	slugs := make(map[string]bool, len(arch.Pages))
	for i := range arch.Pages {
		slug := arch.Pages[i].Slug
		if slugs[slug] {
			return nil, faults.Malformed(nil, fmt.Sprintf("duplicate page slug %q", slug))
		}
		slugs[slug] = true
	}
	for _, required := range RequiredPages {
		if !slugs[required] {
			return nil, faults.Malformed(nil, fmt.Sprintf("architecture is missing the %q page", required))
		}
	}

	var notes []string
	nav := arch.Navigation[:0]
	for _, item := range arch.Navigation {
		if !slugs[item.Slug] {
			notes = append(notes, fmt.Sprintf("dropped navigation entry %q: no such page", item.Slug))
			continue
		}
		nav = append(nav, item)
	}
	arch.Navigation = nav

	sitemap := arch.Sitemap[:0]
	for _, slug := range arch.Sitemap {
		if !slugs[slug] {
			notes = append(notes, fmt.Sprintf("dropped sitemap entry %q: no such page", slug))
			continue
		}
		sitemap = append(sitemap, slug)
	}
	arch.Sitemap = sitemap
	if len(arch.Sitemap) == 0 {
		for i := range arch.Pages {
			arch.Sitemap = append(arch.Sitemap, arch.Pages[i].Slug)
		}
	}
	return notes, nil
}
