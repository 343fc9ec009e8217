package agents

import (
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"sitebuilder/pkg/faults"
)

const (
	slugPattern  = `^[a-z0-9]+(-[a-z0-9]+)*$`
	colorPattern = `^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`
)

func nonEmptyString() *openapi3.Schema {
	return openapi3.NewStringSchema().WithMinLength(1)
}

func slugSchema() *openapi3.Schema {
	s := nonEmptyString()
	s.Pattern = slugPattern
	return s
}

func colorSchema() *openapi3.Schema {
	s := openapi3.NewStringSchema()
	s.Pattern = colorPattern
	return s
}

func stringList() *openapi3.Schema {
	return openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())
}

func envelopeSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("confidence", openapi3.NewFloat64Schema().WithMin(0).WithMax(1)).
		WithProperty("assumptions", stringList()).
		WithProperty("result", openapi3.NewObjectSchema()).
		WithRequired([]string{"confidence", "result"})
}

func planningSchema() *openapi3.Schema {
	page := openapi3.NewObjectSchema().
		WithProperty("title", nonEmptyString()).
		WithProperty("slug", slugSchema()).
		WithProperty("template", openapi3.NewStringSchema()).
		WithProperty("sections", stringList()).
		WithProperty("priority", openapi3.NewStringSchema().WithEnum("high", "medium", "low")).
		WithRequired([]string{"title", "slug"})

	nav := openapi3.NewObjectSchema().
		WithProperty("label", nonEmptyString()).
		WithProperty("slug", slugSchema()).
		WithRequired([]string{"label", "slug"})

	return openapi3.NewObjectSchema().
		WithProperty("pages", openapi3.NewArraySchema().WithItems(page).WithMinItems(1)).
		WithProperty("features", stringList()).
		WithProperty("navigation", openapi3.NewArraySchema().WithItems(nav)).
		WithProperty("sitemap", openapi3.NewArraySchema().WithItems(slugSchema())).
		WithRequired([]string{"pages"})
}

func designSchema() *openapi3.Schema {
	palette := openapi3.NewObjectSchema().
		WithProperty("primary", colorSchema()).
		WithProperty("secondary", colorSchema()).
		WithProperty("accent", colorSchema()).
		WithProperty("background", colorSchema()).
		WithProperty("text", colorSchema()).
		WithRequired([]string{"primary", "secondary", "accent"})

	typography := openapi3.NewObjectSchema().
		WithProperty("heading", openapi3.NewStringSchema()).
		WithProperty("body", openapi3.NewStringSchema())

	return openapi3.NewObjectSchema().
		WithProperty("theme", openapi3.NewStringSchema()).
		WithProperty("palette", palette).
		WithProperty("typography", typography).
		WithProperty("style", openapi3.NewStringSchema()).
		WithRequired([]string{"palette"})
}

func contentSchema() *openapi3.Schema {
	seo := openapi3.NewObjectSchema().
		WithProperty("title", nonEmptyString()).
		WithProperty("description", openapi3.NewStringSchema()).
		WithProperty("keyword", openapi3.NewStringSchema()).
		WithRequired([]string{"title", "description"})

	page := openapi3.NewObjectSchema().
		WithProperty("slug", slugSchema()).
		WithProperty("title", openapi3.NewStringSchema()).
		WithProperty("body", nonEmptyString()).
		WithProperty("seo", seo).
		WithRequired([]string{"slug", "body", "seo"})

	return openapi3.NewObjectSchema().
		WithProperty("pages", openapi3.NewArraySchema().WithItems(page)).
		WithRequired([]string{"pages"})
}

func postsSchema() *openapi3.Schema {
	post := openapi3.NewObjectSchema().
		WithProperty("title", nonEmptyString()).
		WithProperty("slug", slugSchema()).
		WithProperty("excerpt", openapi3.NewStringSchema()).
		WithProperty("body", nonEmptyString()).
		WithProperty("categories", stringList()).
		WithRequired([]string{"title", "slug", "body"})

	return openapi3.NewObjectSchema().
		WithProperty("posts", openapi3.NewArraySchema().WithItems(post)).
		WithRequired([]string{"posts"})
}

func pluginsSchema() *openapi3.Schema {
	plugin := openapi3.NewObjectSchema().
		WithProperty("slug", slugSchema()).
		WithProperty("name", openapi3.NewStringSchema()).
		WithProperty("reason", openapi3.NewStringSchema()).
		WithProperty("required", openapi3.NewBoolSchema()).
		WithRequired([]string{"slug"})

	return openapi3.NewObjectSchema().
		WithProperty("plugins", openapi3.NewArraySchema().WithItems(plugin)).
		WithRequired([]string{"plugins"})
}

func deploymentPlanSchema() *openapi3.Schema {
	kinds := make([]any, len(CanonicalStepKinds))
	for i, k := range CanonicalStepKinds {
		kinds[i] = k
	}

	step := openapi3.NewObjectSchema().
		WithProperty("name", openapi3.NewStringSchema()).
		WithProperty("kind", openapi3.NewStringSchema().WithEnum(kinds...)).
		WithProperty("critical", openapi3.NewBoolSchema()).
		WithRequired([]string{"kind"})

	return openapi3.NewObjectSchema().
		WithProperty("steps", openapi3.NewArraySchema().WithItems(step).WithMinItems(1)).
		WithRequired([]string{"steps"})
}

// validateJSON checks raw against schema. Violations are malformed-response faults.
func validateJSON(schema *openapi3.Schema, raw json.RawMessage, what string) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return faults.Malformed(err, fmt.Sprintf("%s is not valid JSON", what))
	}
	if err := schema.VisitJSON(doc); err != nil {
		return faults.Malformed(err, fmt.Sprintf("%s does not match its schema", what))
	}
	return nil
}
