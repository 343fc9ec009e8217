package agents

import (
	"context"
	"fmt"

	"sitebuilder/pkg/faults"
	"sitebuilder/pkg/genclient"
	"sitebuilder/pkg/templates"
)

// DefaultPostsThreshold is the posts confidence floor.
const DefaultPostsThreshold = 0.70

// PostsAgent writes blog seed posts.
type PostsAgent struct {
	caller
}

// NewPostsAgent creates the posts agent.
func NewPostsAgent(gen genclient.Client, opts ...Option) *PostsAgent {
	return &PostsAgent{caller: newCaller(NamePosts, DefaultPostsThreshold, gen, opts)}
}

// Execute writes posts for the architecture. An empty list is valid.
func (a *PostsAgent) Execute(ctx context.Context, in Input, deps Deps) Output {
	return a.run(ctx, in, func(ctx context.Context) (result, error) {
		if deps.Architecture == nil {
			return result{}, missingDep(NamePlanning)
		}

		data, assumptions := a.baseData(in)
		data.Pages = pageRefs(deps.Architecture.Pages)

		env, err := a.generate(ctx, templates.PostsTemplate, data, postsSchema())
		if err != nil {
			return result{}, err
		}

		var posts PostsOutput
		if err := decodeResult(env, &posts); err != nil {
			return result{}, err
		}
		seen := make(map[string]bool, len(posts.Posts))
		for _, p := range posts.Posts {
			if seen[p.Slug] {
				return result{}, faults.Malformed(nil, fmt.Sprintf("duplicate post slug %q", p.Slug))
			}
			seen[p.Slug] = true
		}
		if posts.Posts == nil {
			posts.Posts = []Post{}
		}

		return result{
			payload:     posts,
			confidence:  env.Confidence,
			assumptions: mergeAssumptions(assumptions, env.Assumptions...),
		}, nil
	})
}
