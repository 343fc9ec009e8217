package deploy

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"sitebuilder/pkg/contentapi"
	"sitebuilder/pkg/faults"
)

// rule answers every command containing match.
type rule struct {
	match string
	out   string
	err   error
}

// fakeChannel answers wp-cli commands from rules; the first matching rule wins.
type fakeChannel struct {
	mu         sync.Mutex
	rules      []rule
	commands   []string
	nextID     int
	serialized bool
	onRun      func(cmd string)
}

func newFakeChannel(rules ...rule) *fakeChannel {
	return &fakeChannel{rules: rules, nextID: 100}
}

func (f *fakeChannel) Run(_ context.Context, cmd string) (string, error) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	hook := f.onRun
	var (
		out string
		err error
		hit bool
	)
	for _, r := range f.rules {
		if strings.Contains(cmd, r.match) {
			out, err, hit = r.out, r.err, true
			break
		}
	}
	if !hit {
		switch {
		case strings.HasPrefix(cmd, "wp cli version"):
			out = "WP-CLI 2.10.0"
		case strings.HasPrefix(cmd, "wp post create"):
			f.nextID++
			out = strconv.Itoa(f.nextID)
		case strings.HasPrefix(cmd, "wp menu create"):
			out = "7"
		case strings.HasPrefix(cmd, "wp post list"):
			out = "42"
		}
	}
	f.mu.Unlock()

	if hook != nil {
		hook(cmd)
	}
	return out, err
}

func (f *fakeChannel) Serialized() bool { return f.serialized }

func (f *fakeChannel) ran(prefix string) bool {
	return f.count(prefix) > 0
}

func (f *fakeChannel) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.commands {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func commandFailure(cmd, stderr string) error {
	return faults.RemoteCommand(cmd, stderr, 1, nil)
}

// memoryRepo records everything the engine persists.
type memoryRepo struct {
	mu      sync.Mutex
	status  map[string]SiteStatus
	reasons map[string]string
	steps   []StepRecord
	failOn  string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{status: map[string]SiteStatus{}, reasons: map[string]string{}}
}

func (m *memoryRepo) MarkDeploying(_ context.Context, siteID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "deploying" {
		return faults.New(faults.TypeInternal, "database is locked")
	}
	m.status[siteID] = SiteDeploying
	return nil
}

func (m *memoryRepo) RecordStep(_ context.Context, _, _ string, rec StepRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, rec)
	return nil
}

func (m *memoryRepo) MarkDeployed(_ context.Context, siteID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[siteID] = SiteDeployed
	return nil
}

func (m *memoryRepo) MarkFailed(_ context.Context, siteID, _, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[siteID] = SiteFailed
	m.reasons[siteID] = reason
	return nil
}

// history returns the persisted statuses of one step in order.
func (m *memoryRepo) history(name string) []StepStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StepStatus
	for _, s := range m.steps {
		if s.Name == name {
			out = append(out, s.Status)
		}
	}
	return out
}

// fakeContentAPI stores upserts; failAfter > 0 makes every upsert after that many fail with err.
type fakeContentAPI struct {
	mu        sync.Mutex
	pingErr   error
	upsertErr error
	failAfter int
	docs      []contentapi.Document
	nextID    int
}

func (f *fakeContentAPI) Ping(context.Context) error { return f.pingErr }

func (f *fakeContentAPI) Upsert(_ context.Context, _ contentapi.Collection, doc contentapi.Document) (*contentapi.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil && len(f.docs) >= f.failAfter {
		return nil, f.upsertErr
	}
	f.docs = append(f.docs, doc)
	f.nextID++
	return &contentapi.Resource{ID: f.nextID, Slug: doc.Slug, Status: doc.Status}, nil
}
