package agents

import (
	"context"

	"sitebuilder/pkg/genclient"
	"sitebuilder/pkg/templates"
)

// DefaultPluginSelectionThreshold is the plugin-selection confidence floor.
const DefaultPluginSelectionThreshold = 0.70

// PluginSelectionAgent picks plugins and merges them with the catalog baseline.
type PluginSelectionAgent struct {
	caller
}

// NewPluginSelectionAgent creates the plugin-selection agent.
func NewPluginSelectionAgent(gen genclient.Client, opts ...Option) *PluginSelectionAgent {
	return &PluginSelectionAgent{caller: newCaller(NamePluginSelection, DefaultPluginSelectionThreshold, gen, opts)}
}

// Execute selects plugins. Catalog plugins come first; a generator pick that duplicates one
// can only raise its required flag.
func (a *PluginSelectionAgent) Execute(ctx context.Context, in Input, deps Deps) Output {
	return a.run(ctx, in, func(ctx context.Context) (result, error) {
		if deps.Architecture == nil {
			return result{}, missingDep(NamePlanning)
		}

		data, assumptions := a.baseData(in)
		data.Pages = pageRefs(deps.Architecture.Pages)
		if len(deps.Architecture.Features) > 0 {
			data.Extra = map[string]any{"Features": deps.Architecture.Features}
		}

		env, err := a.generate(ctx, templates.PluginsTemplate, data, pluginsSchema())
		if err != nil {
			return result{}, err
		}

		var picked PluginSelection
		if err := decodeResult(env, &picked); err != nil {
			return result{}, err
		}

		var merged PluginSelection
		index := make(map[string]int)
		for _, p := range a.catalog.PluginsFor(data.Industry) {
			index[p.Slug] = len(merged.Plugins)
			merged.Plugins = append(merged.Plugins, PluginChoice{
				Slug: p.Slug, Name: p.Name, Reason: p.Reason, Required: p.Required,
			})
		}
		for _, p := range picked.Plugins {
			if i, ok := index[p.Slug]; ok {
				merged.Plugins[i].Required = merged.Plugins[i].Required || p.Required
				continue
			}
			index[p.Slug] = len(merged.Plugins)
			merged.Plugins = append(merged.Plugins, p)
		}

		return result{
			payload:     merged,
			confidence:  env.Confidence,
			assumptions: mergeAssumptions(assumptions, env.Assumptions...),
		}, nil
	})
}
