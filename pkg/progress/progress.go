// Package progress carries ordered, fire-and-forget progress notifications from the orchestrator
// and the deployment engine to whatever broadcasts them (logs, Redis, event log files).
package progress

import (
	"fmt"
	"sync"
	"time"

	"sitebuilder/pkg/logx"
)

// Status of the step an event describes.
type Status string

const (
	StatusStarted   Status = "started"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusWarning   Status = "warning"
)

// Event is one progress notification. Progress is 0..100: the milestone of an orchestration
// run, or the share of finished steps of a deployment.
type Event struct {
	RunID    string    `json:"run_id"`
	Step     string    `json:"step"`
	Progress int       `json:"progress,omitempty"`
	Status   Status    `json:"status"`
	Message  string    `json:"message,omitempty"`
	Time     time.Time `json:"time"`
}

// Sink receives events. Publish must not block on slow consumers and never reports errors.
type Sink interface {
	Publish(e Event)
}

type discard struct{}

func (discard) Publish(Event) {}

// Discard drops every event.
func Discard() Sink { return discard{} }

// Func adapts a function to Sink.
type Func func(Event)

// Publish calls f.
func (f Func) Publish(e Event) { f(e) }

type multi []Sink

// Multi fans an event out to every sink in order. A panicking sink does not stop the others.
func Multi(sinks ...Sink) Sink {
	flat := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			flat = append(flat, s)
		}
	}
	return flat
}

func (m multi) Publish(e Event) {
	for _, s := range m {
		safePublish(s, e)
	}
}

//nolint:gochecknoglobals
var logger = logx.NewLogger("progress")

func safePublish(s Sink, e Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("progress sink panicked on %s/%s: %v", e.RunID, e.Step, r)
		}
	}()
	s.Publish(e)
}

// Emitter stamps events for one run before publishing them.
type Emitter struct {
	sink  Sink
	runID string
	now   func() time.Time
}

// NewEmitter creates an emitter for runID. A nil sink discards.
func NewEmitter(sink Sink, runID string) *Emitter {
	if sink == nil {
		sink = Discard()
	}
	return &Emitter{sink: sink, runID: runID, now: time.Now}
}

// RunID returns the run the emitter stamps.
func (em *Emitter) RunID() string { return em.runID }

// Emit publishes one event.
func (em *Emitter) Emit(step string, pct int, status Status, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	safePublish(em.sink, Event{
		RunID:    em.runID,
		Step:     step,
		Progress: pct,
		Status:   status,
		Message:  msg,
		Time:     em.now().UTC(),
	})
}

// LogSink writes events through logx.
type LogSink struct {
	logger *logx.Logger
}

// NewLogSink creates a sink logging under component.
func NewLogSink(component string) *LogSink {
	return &LogSink{logger: logx.NewLogger(component)}
}

// Publish logs e; failures log at WARN.
func (l *LogSink) Publish(e Event) {
	switch e.Status {
	case StatusFailed, StatusWarning:
		l.logger.Warn("[%s] %s %s (%d%%): %s", e.RunID, e.Step, e.Status, e.Progress, e.Message)
	default:
		l.logger.Info("[%s] %s %s (%d%%): %s", e.RunID, e.Step, e.Status, e.Progress, e.Message)
	}
}

// Channel decouples producers from a slow sink: Publish appends to an unbounded queue and one
// goroutine drains it in order. Close flushes the queue before returning.
type Channel struct {
	next   Sink
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
	done   chan struct{}
}

// NewChannel starts the draining goroutine.
func NewChannel(next Sink) *Channel {
	c := &Channel{next: next, done: make(chan struct{})}
	c.cond = sync.NewCond(&c.mu)
	go c.drain()
	return c
}

// Publish enqueues e. Events published after Close are dropped.
func (c *Channel) Publish(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.queue = append(c.queue, e)
	c.cond.Signal()
}

func (c *Channel) drain() {
	defer close(c.done)
	for {
		c.mu.Lock()
		for len(c.queue) == 0 && !c.closed {
			c.cond.Wait()
		}
		batch := c.queue
		c.queue = nil
		closed := c.closed
		c.mu.Unlock()

		for _, e := range batch {
			safePublish(c.next, e)
		}
		if closed && len(batch) == 0 {
			return
		}
	}
}

// Close stops accepting events and waits until the queue is delivered.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	c.cond.Broadcast()
	c.mu.Unlock()
	<-c.done
}
