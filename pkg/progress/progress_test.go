package progress

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitebuilder/pkg/logx"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) Publish(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func TestEmitterStampsEvents(t *testing.T) {
	c := &collector{}
	em := NewEmitter(c, "run-1")

	em.Emit("planning", 10, StatusStarted, "planning %s", "Joe's Pizza")
	em.Emit("planning", 30, StatusCompleted, "100%% done")

	events := c.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, "run-1", events[0].RunID)
	assert.Equal(t, "planning Joe's Pizza", events[0].Message)
	assert.Equal(t, "100% done", events[1].Message, "escaped verbs are formatted even without args")
	assert.False(t, events[0].Time.IsZero())
}

func TestNilSinkDiscards(t *testing.T) {
	assert.NotPanics(t, func() {
		NewEmitter(nil, "run").Emit("x", 0, StatusRunning, "m")
	})
}

func TestMultiIsolatesPanics(t *testing.T) {
	restore := logx.SetOutput(&bytes.Buffer{})
	defer restore()

	c := &collector{}
	sink := Multi(Func(func(Event) { panic("boom") }), nil, c)

	sink.Publish(Event{RunID: "r", Step: "s"})
	assert.Len(t, c.snapshot(), 1)
}

func TestChannelPreservesOrderAndFlushes(t *testing.T) {
	c := &collector{}
	ch := NewChannel(c)

	for i := 0; i < 100; i++ {
		ch.Publish(Event{RunID: "r", Progress: i})
	}
	ch.Close()

	events := c.snapshot()
	require.Len(t, events, 100)
	for i, e := range events {
		assert.Equal(t, i, e.Progress)
	}

	ch.Publish(Event{RunID: "late"})
	assert.Len(t, c.snapshot(), 100)
}

func TestChannelDoesNotBlockOnSlowSink(t *testing.T) {
	release := make(chan struct{})
	c := &collector{}
	ch := NewChannel(Func(func(e Event) {
		<-release
		c.Publish(e)
	}))

	for i := 0; i < 10; i++ {
		ch.Publish(Event{Progress: i})
	}
	close(release)
	ch.Close()
	assert.Len(t, c.snapshot(), 10)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	restore := logx.SetOutput(&buf)
	defer restore()

	sink := NewLogSink("progress")
	sink.Publish(Event{RunID: "r1", Step: "planning", Progress: 10, Status: StatusStarted, Message: "go"})
	sink.Publish(Event{RunID: "r1", Step: "design", Progress: 30, Status: StatusFailed, Message: "bad"})

	out := buf.String()
	assert.Contains(t, out, "INFO: [r1] planning started (10%): go")
	assert.Contains(t, out, "WARN: [r1] design failed (30%): bad")
}
