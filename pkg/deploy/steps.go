package deploy

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"sitebuilder/pkg/contentapi"
	"sitebuilder/pkg/faults"
)

// MenuName is the navigation menu the engine creates.
const MenuName = "Main Menu"

// MenuLocation is the theme location the menu is assigned to.
const MenuLocation = "primary"

// apply performs one step and returns its completion message.
func (r *run) apply(ctx context.Context, spec stepSpec) (string, error) {
	switch spec.kind {
	case KindVerify:
		return r.verify(ctx)
	case KindCore:
		return r.installCore(ctx)
	case KindTheme:
		return r.installTheme(ctx)
	case KindPlugin:
		return r.installPlugin(ctx, spec.plugin)
	case KindContent:
		return r.publishContent(ctx)
	case KindNavigation:
		return r.buildNavigation(ctx)
	case KindFinalize:
		return r.finalize(ctx)
	default:
		return "", faults.New(faults.TypeInternal, "unknown step kind "+string(spec.kind))
	}
}

func (r *run) verify(ctx context.Context) (string, error) {
	out, err := r.wp(ctx, argsCLIVersion())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("target reachable (%s)", firstLine(out)), nil
}

// isCommandFailure reports whether err is a non-zero exit, as opposed to a channel failure.
func isCommandFailure(err error) bool {
	return faults.Is(err, faults.TypeRemoteCommand)
}

func (r *run) installCore(ctx context.Context) (string, error) {
	_, err := r.wp(ctx, argsCoreIsInstalled())
	if err == nil {
		return "WordPress already installed", nil
	}
	if !isCommandFailure(err) {
		return "", err
	}

	core := r.req.Plan.Core
	if !core.complete() {
		return "", errors.New("WordPress is not installed and the plan has no database and admin settings")
	}

	if _, err := r.wp(ctx, argsCoreVersion()); err != nil {
		if !isCommandFailure(err) {
			return "", err
		}
		if _, err := r.wp(ctx, argsCoreDownload()); err != nil {
			return "", fmt.Errorf("download core: %w", err)
		}
		r.applied("WordPress core downloaded")
	}

	if _, err := r.wp(ctx, argsConfigPath()); err != nil {
		if !isCommandFailure(err) {
			return "", err
		}
		if _, err := r.wp(ctx, argsConfigCreate(core)); err != nil {
			return "", fmt.Errorf("create wp-config.php: %w", err)
		}
		r.applied("wp-config.php created")
	}

	if _, err := r.wp(ctx, argsCoreInstall(r.req.Target.URL, core)); err != nil {
		return "", fmt.Errorf("install core: %w", err)
	}
	r.applied("WordPress installed")
	return "WordPress installed", nil
}

func (r *run) installTheme(ctx context.Context) (string, error) {
	theme := r.req.Plan.Theme
	if _, err := r.wp(ctx, argsThemeInstall(theme)); err != nil {
		return "", err
	}
	r.applied("theme %s activated", theme)
	return fmt.Sprintf("theme %s installed and activated", theme), nil
}

func (r *run) installPlugin(ctx context.Context, p *Plugin) (string, error) {
	if _, err := r.wp(ctx, argsPluginInstall(p.Slug)); err != nil {
		return "", err
	}
	r.applied("plugin %s activated", p.Slug)
	return fmt.Sprintf("plugin %s installed and activated", p.Slug), nil
}

// item is one page or post to publish.
type item struct {
	page    bool
	slug    string
	title   string
	body    string
	excerpt string
	order   int
}

func (it item) postType() string {
	if it.page {
		return "page"
	}
	return "post"
}

func (it item) collection() contentapi.Collection {
	if it.page {
		return contentapi.Pages
	}
	return contentapi.Posts
}

func (it item) document() contentapi.Document {
	return contentapi.Document{
		Title:     it.title,
		Content:   it.body,
		Excerpt:   it.excerpt,
		Slug:      it.slug,
		Status:    "publish",
		MenuOrder: it.order,
	}
}

func (r *run) items() []item {
	plan := &r.req.Plan
	items := make([]item, 0, len(plan.Pages)+len(plan.Posts))
	for _, p := range plan.sortedPages() {
		items = append(items, item{page: true, slug: p.Slug, title: p.Title, body: p.Body, order: p.Order, excerpt: p.MetaDescription})
	}
	for _, p := range plan.Posts {
		items = append(items, item{slug: p.Slug, title: p.Title, body: p.Body, excerpt: p.Excerpt})
	}
	return items
}

// contentAPI returns a usable API client, nil to publish through wp-cli instead, or an error
// when the API rejects the credentials.
func (r *run) contentAPI(ctx context.Context) (ContentAPI, error) {
	target := r.req.Target
	if !target.hasAPI() {
		r.warn("no content API credentials, publishing through remote commands")
		return nil, nil
	}
	api, err := r.engine.content(target.URL, target.API)
	if err != nil {
		r.warn("content API unavailable (%v), publishing through remote commands", err)
		return nil, nil
	}

	switch pingErr := api.Ping(ctx); {
	case pingErr == nil:
		return api, nil
	case faults.Is(pingErr, faults.TypeAuthentication):
		return nil, fmt.Errorf("content API rejected credentials: %w", pingErr)
	default:
		r.warn("content API unreachable (%v), publishing through remote commands", pingErr)
		return nil, nil
	}
}

func (r *run) publishContent(ctx context.Context) (string, error) {
	api, err := r.contentAPI(ctx)
	if err != nil {
		return "", err
	}

	viaAPI, viaCLI := 0, 0
	for _, it := range r.items() {
		if api != nil {
			res, err := api.Upsert(ctx, it.collection(), it.document())
			switch {
			case err == nil:
				r.published(it, res.ID)
				viaAPI++
				continue
			case faults.Is(err, faults.TypeNetwork):
				r.warn("content API lost after %d item(s) (%v), publishing the rest through remote commands", viaAPI, err)
				api = nil
			default:
				return "", fmt.Errorf("publish %s %q: %w", it.postType(), it.slug, err)
			}
		}

		out, err := r.wp(ctx, argsPostCreate(it))
		if err != nil {
			return "", fmt.Errorf("publish %s %q: %w", it.postType(), it.slug, err)
		}
		id, convErr := strconv.Atoi(firstLine(out))
		if convErr != nil {
			r.warn("could not read id of %s %q from %q", it.postType(), it.slug, out)
		}
		r.published(it, id)
		viaCLI++
	}

	msg := fmt.Sprintf("published %d page(s) and %d post(s)", len(r.req.Plan.Pages), len(r.req.Plan.Posts))
	if viaCLI > 0 {
		msg += fmt.Sprintf(" (%d through remote commands)", viaCLI)
	}
	return msg, nil
}

func (r *run) published(it item, id int) {
	if it.page && id > 0 {
		r.mu.Lock()
		r.pageIDs[it.slug] = id
		r.mu.Unlock()
	}
	r.applied("%s %s published", it.postType(), it.slug)
}

// pageID returns the id of a published page, asking the target when content went out without one.
func (r *run) pageID(ctx context.Context, slug string) (int, error) {
	r.mu.Lock()
	id, ok := r.pageIDs[slug]
	r.mu.Unlock()
	if ok {
		return id, nil
	}

	out, err := r.wp(ctx, argsPageID(slug))
	if err != nil {
		return 0, err
	}
	id, err = strconv.Atoi(firstLine(out))
	if err != nil {
		return 0, fmt.Errorf("page %q not found on target", slug)
	}
	r.mu.Lock()
	r.pageIDs[slug] = id
	r.mu.Unlock()
	return id, nil
}

func (r *run) buildNavigation(ctx context.Context) (string, error) {
	entries := r.req.Plan.Menu
	if len(entries) == 0 {
		for _, p := range r.req.Plan.sortedPages() {
			entries = append(entries, MenuItem{Label: p.Title, Slug: p.Slug})
		}
	}

	out, err := r.wp(ctx, argsMenuCreate(MenuName))
	if err != nil {
		return "", fmt.Errorf("create menu: %w", err)
	}
	menuID := firstLine(out)
	r.applied("menu %q created", MenuName)

	for _, m := range entries {
		id, err := r.pageID(ctx, m.Slug)
		if err != nil {
			return "", err
		}
		if _, err := r.wp(ctx, argsMenuAddPost(menuID, id, m.Label)); err != nil {
			return "", fmt.Errorf("add %q to menu: %w", m.Label, err)
		}
	}

	if _, err := r.wp(ctx, argsMenuAssign(menuID, MenuLocation)); err != nil {
		r.warn("menu not assigned to %q: %v", MenuLocation, err)
		return fmt.Sprintf("menu with %d item(s) created, not assigned", len(entries)), nil
	}
	return fmt.Sprintf("menu with %d item(s) assigned to %s", len(entries), MenuLocation), nil
}

func (r *run) frontPage() string {
	plan := &r.req.Plan
	if plan.FrontPage != "" {
		return plan.FrontPage
	}
	for _, p := range plan.Pages {
		if p.Slug == "home" {
			return p.Slug
		}
	}
	return plan.sortedPages()[0].Slug
}

func (r *run) finalize(ctx context.Context) (string, error) {
	permalink := r.req.Plan.permalink()
	if _, err := r.wp(ctx, argsRewriteStructure(permalink)); err != nil {
		return "", fmt.Errorf("set permalink structure: %w", err)
	}
	r.applied("permalink structure %s", permalink)

	front := r.frontPage()
	id, err := r.pageID(ctx, front)
	if err != nil {
		return "", err
	}
	if _, err := r.wp(ctx, argsOptionUpdate("show_on_front", "page")); err != nil {
		return "", err
	}
	if _, err := r.wp(ctx, argsOptionUpdate("page_on_front", strconv.Itoa(id))); err != nil {
		return "", err
	}
	r.applied("front page set to %s", front)
	return fmt.Sprintf("permalinks %s, front page %s", permalink, front), nil
}
