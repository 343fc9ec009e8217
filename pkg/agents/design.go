package agents

import (
	"context"
	"fmt"

	"sitebuilder/pkg/genclient"
	"sitebuilder/pkg/templates"
)

// DefaultDesignThreshold is the design confidence floor.
const DefaultDesignThreshold = 0.60

// DesignAgent chooses theme, palette and typography.
type DesignAgent struct {
	caller
}

// NewDesignAgent creates the design agent.
func NewDesignAgent(gen genclient.Client, opts ...Option) *DesignAgent {
	return &DesignAgent{caller: newCaller(NameDesign, DefaultDesignThreshold, gen, opts)}
}

// Execute picks the design. Gaps in the generator's answer are filled from the catalog theme.
func (a *DesignAgent) Execute(ctx context.Context, in Input, _ Deps) Output {
	return a.run(ctx, in, func(ctx context.Context) (result, error) {
		data, assumptions := a.baseData(in)
		suggested := a.catalog.ThemeFor(data.Industry)
		data.SuggestedTheme = suggested.Slug

		env, err := a.generate(ctx, templates.DesignTemplate, data, designSchema())
		if err != nil {
			return result{}, err
		}

		var design DesignConfig
		if err := decodeResult(env, &design); err != nil {
			return result{}, err
		}

		if design.Theme == "" {
			design.Theme = suggested.Slug
			assumptions = append(assumptions, fmt.Sprintf("theme defaulted to %s", suggested.Slug))
		}
		if design.Palette.Background == "" {
			design.Palette.Background = suggested.Palette.Background
		}
		if design.Palette.Text == "" {
			design.Palette.Text = suggested.Palette.Text
		}
		if design.Typography.Heading == "" {
			design.Typography.Heading = suggested.Typography.Heading
		}
		if design.Typography.Body == "" {
			design.Typography.Body = suggested.Typography.Body
		}
		if design.Style == "" {
			design.Style = suggested.Style
		}

		return result{
			payload:     design,
			confidence:  env.Confidence,
			assumptions: mergeAssumptions(assumptions, env.Assumptions...),
		}, nil
	})
}
