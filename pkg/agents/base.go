package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	"sitebuilder/pkg/catalog"
	"sitebuilder/pkg/faults"
	"sitebuilder/pkg/genclient"
	"sitebuilder/pkg/logx"
	"sitebuilder/pkg/templates"
)

// Option configures an agent.
type Option func(*options)

type options struct {
	threshold *float64
	catalog   *catalog.Catalog
	renderer  *templates.Renderer
	batchSize int
}

// WithThreshold overrides the agent's default confidence threshold.
func WithThreshold(t float64) Option {
	return func(o *options) { o.threshold = &t }
}

// WithCatalog replaces the embedded catalog.
func WithCatalog(c *catalog.Catalog) Option {
	return func(o *options) { o.catalog = c }
}

// WithRenderer replaces the embedded prompt templates.
func WithRenderer(r *templates.Renderer) Option {
	return func(o *options) { o.renderer = r }
}

// WithBatchSize sets how many pages the content agent writes per generator call.
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

//nolint:gochecknoglobals // Parsed once from embedded templates
var (
	rendererOnce sync.Once
	rendererInst *templates.Renderer
)

func defaultRenderer() *templates.Renderer {
	rendererOnce.Do(func() {
		r, err := templates.NewRenderer()
		if err != nil {
			panic(fmt.Sprintf("embedded prompt templates: %v", err))
		}
		rendererInst = r
	})
	return rendererInst
}

// caller holds what every agent shares: identity, threshold, generator and prompts.
type caller struct {
	name      string
	threshold float64
	gen       genclient.Client
	renderer  *templates.Renderer
	catalog   *catalog.Catalog
	batchSize int
	logger    *logx.Logger
}

func newCaller(name string, threshold float64, gen genclient.Client, opts []Option) caller {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.threshold != nil {
		threshold = *o.threshold
	}
	if o.renderer == nil {
		o.renderer = defaultRenderer()
	}
	if o.catalog == nil {
		o.catalog = catalog.Default()
	}
	return caller{
		name:      name,
		threshold: threshold,
		gen:       gen,
		renderer:  o.renderer,
		catalog:   o.catalog,
		batchSize: o.batchSize,
		logger:    logx.NewLogger("agent/" + name),
	}
}

// Name returns the agent name.
func (c *caller) Name() string { return c.name }

// Threshold returns the confidence floor.
func (c *caller) Threshold() float64 { return c.threshold }

type envelope struct {
	Confidence  float64         `json:"confidence"`
	Assumptions []string        `json:"assumptions"`
	Result      json.RawMessage `json:"result"`
}

// result is what an agent body hands back to run.
type result struct {
	payload     any
	confidence  float64
	assumptions []string
}

// run validates in, executes body and converts any failure (including a panic) into a failed Output.
func (c *caller) run(ctx context.Context, in Input, body func(ctx context.Context) (result, error)) (out Output) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in agent: %v\n%s", r, debug.Stack())
			out = failed(c.name, faults.Internal(fmt.Errorf("%v", r), "agent panicked"))
		}
	}()

	if err := in.Validate(); err != nil {
		return failed(c.name, err)
	}

	ctx = genclient.WithAgent(logx.WithComponent(ctx, "agent/"+c.name), c.name)
	logx.DebugFlow(ctx, "agents", c.name, "started", in.BusinessName)

	res, err := body(ctx)
	if err != nil {
		c.logger.Warn("%s failed for %q: %v", c.name, in.BusinessName, err)
		return failed(c.name, err)
	}

	payload, err := json.Marshal(res.payload)
	if err != nil {
		return failed(c.name, faults.Internal(err, "marshal payload"))
	}

	out = Output{
		Agent:       c.name,
		Success:     true,
		Confidence:  res.confidence,
		Payload:     payload,
		Assumptions: res.assumptions,
	}
	if res.confidence < c.threshold {
		out.LowConfidence = true
		c.logger.Warn("⚠️ %s confidence %.2f below threshold %.2f for %q",
			c.name, res.confidence, c.threshold, in.BusinessName)
	} else {
		c.logger.Info("✅ %s completed with confidence %.2f", c.name, res.confidence)
	}
	return out
}

// generate renders tmpl, calls the generator and returns the validated envelope.
func (c *caller) generate(ctx context.Context, tmpl templates.PromptTemplate, data *templates.TemplateData,
	schema *openapi3.Schema) (envelope, error) {
	data.Task = c.name
	prompt, err := c.renderer.Render(tmpl, data)
	if err != nil {
		return envelope{}, faults.Internal(err, "render prompt")
	}
	system, err := c.renderer.Render(templates.SystemTemplate, data)
	if err != nil {
		return envelope{}, faults.Internal(err, "render system prompt")
	}

	text, err := c.gen.Generate(ctx, prompt, system)
	if err != nil {
		return envelope{}, fmt.Errorf("generate %s: %w", c.name, err)
	}

	raw, err := genclient.Extract(text)
	if err != nil {
		return envelope{}, err
	}
	if err := validateJSON(envelopeSchema(), raw, "response envelope"); err != nil {
		return envelope{}, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, faults.Malformed(err, "decode response envelope")
	}
	if err := validateJSON(schema, env.Result, c.name+" result"); err != nil {
		return envelope{}, err
	}
	return env, nil
}

// decodeResult unmarshals a schema-checked result into v.
func decodeResult(env envelope, v any) error {
	if err := json.Unmarshal(env.Result, v); err != nil {
		return faults.Malformed(err, "result does not match the expected shape")
	}
	return nil
}

// baseData fills the business fields shared by every prompt and resolves the industry.
func (c *caller) baseData(in Input) (*templates.TemplateData, []string) {
	industry, assumptions := c.resolveIndustry(in)
	return &templates.TemplateData{
		BusinessName:   in.BusinessName,
		BusinessType:   in.BusinessType,
		Description:    in.Description,
		Industry:       industry,
		TargetAudience: in.TargetAudience,
	}, assumptions
}

func (c *caller) resolveIndustry(in Input) (string, []string) {
	if in.Industry != "" {
		return in.Industry, nil
	}
	industry := c.catalog.InferIndustry(in.BusinessType)
	return industry, []string{fmt.Sprintf("industry inferred as %s", industry)}
}

func pageRefs(pages []Page) []templates.PageRef {
	refs := make([]templates.PageRef, len(pages))
	for i := range pages {
		refs[i] = templates.PageRef{Slug: pages[i].Slug, Title: pages[i].Title}
	}
	return refs
}

func missingDep(name string) error {
	return faults.Internal(nil, fmt.Sprintf("missing upstream %s result", name))
}

// mergeAssumptions appends the non-duplicate entries of extra to base.
func mergeAssumptions(base []string, extra ...string) []string {
	seen := make(map[string]bool, len(base))
	for _, a := range base {
		seen[a] = true
	}
	for _, a := range extra {
		if a != "" && !seen[a] {
			seen[a] = true
			base = append(base, a)
		}
	}
	return base
}
