package agents

import (
	"context"
	"fmt"

	"sitebuilder/pkg/config"
	"sitebuilder/pkg/faults"
	"sitebuilder/pkg/genclient"
	"sitebuilder/pkg/templates"
)

// DefaultContentThreshold is the content confidence floor.
const DefaultContentThreshold = 0.75

// ContentAgent writes page bodies for the architecture's pages.
type ContentAgent struct {
	caller
}

// NewContentAgent creates the content agent.
func NewContentAgent(gen genclient.Client, opts ...Option) *ContentAgent {
	a := &ContentAgent{caller: newCaller(NameContent, DefaultContentThreshold, gen, opts)}
	if a.batchSize <= 0 {
		a.batchSize = config.DefaultContentBatch
	}
	return a
}

// Execute writes content in batches of pages. The reported confidence is the lowest batch
// confidence; any failed batch fails the agent.
func (a *ContentAgent) Execute(ctx context.Context, in Input, deps Deps) Output {
	return a.run(ctx, in, func(ctx context.Context) (result, error) {
		if deps.Architecture == nil {
			return result{}, missingDep(NamePlanning)
		}
		arch := deps.Architecture
		if len(arch.Pages) == 0 {
			return result{}, faults.Malformed(nil, "architecture has no pages")
		}

		var (
			content     ContentOutput
			assumptions []string
			confidence  = 1.0
			written     = make(map[string]bool, len(arch.Pages))
		)

		for start := 0; start < len(arch.Pages); start += a.batchSize {
			end := min(start+a.batchSize, len(arch.Pages))
			batch := arch.Pages[start:end]

			data, notes := a.baseData(in)
			data.Pages = pageRefs(batch)
			assumptions = mergeAssumptions(assumptions, notes...)

			env, err := a.generate(ctx, templates.ContentTemplate, data, contentSchema())
			if err != nil {
				return result{}, fmt.Errorf("pages %d-%d: %w", start+1, end, err)
			}

			var part ContentOutput
			if err := decodeResult(env, &part); err != nil {
				return result{}, err
			}
			for _, page := range part.Pages {
				if !arch.HasPage(page.Slug) {
					return result{}, faults.Malformed(nil,
						fmt.Sprintf("content for unknown page %q", page.Slug))
				}
				if written[page.Slug] {
					return result{}, faults.Malformed(nil,
						fmt.Sprintf("duplicate content for page %q", page.Slug))
				}
				written[page.Slug] = true
				content.Pages = append(content.Pages, page)
			}

			confidence = min(confidence, env.Confidence)
			assumptions = mergeAssumptions(assumptions, env.Assumptions...)
		}

		for i := range arch.Pages {
			if !written[arch.Pages[i].Slug] {
				assumptions = append(assumptions,
					fmt.Sprintf("no content generated for page %q", arch.Pages[i].Slug))
			}
		}

		return result{payload: content, confidence: confidence, assumptions: assumptions}, nil
	})
}
