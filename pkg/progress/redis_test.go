package progress

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisSink(t *testing.T, opts ...RedisOption) (*RedisSink, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	sink := NewRedisSinkFromClient(client, "sitebuilder:progress", opts...)
	t.Cleanup(func() { _ = sink.Close() })
	return sink, mr
}

func TestRedisSinkHistory(t *testing.T) {
	sink, mr := newRedisSink(t, WithHistoryTTL(time.Hour))

	sink.Publish(Event{RunID: "run-7", Step: "planning", Progress: 10, Status: StatusStarted})
	sink.Publish(Event{RunID: "run-7", Step: "complete", Progress: 100, Status: StatusCompleted})
	sink.Publish(Event{RunID: "other", Step: "planning", Progress: 10, Status: StatusStarted})

	events, err := sink.History(context.Background(), "run-7")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "planning", events[0].Step)
	assert.Equal(t, 100, events[1].Progress)

	ttl := mr.TTL("sitebuilder:progress:history:run-7")
	assert.Equal(t, time.Hour, ttl)
}

func TestRedisSinkHistoryEmpty(t *testing.T) {
	sink, _ := newRedisSink(t)

	events, err := sink.History(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRedisSinkSubscribe(t *testing.T) {
	sink, _ := newRedisSink(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := sink.Subscribe(ctx, "run-9")
	require.NoError(t, err)

	sink.Publish(Event{RunID: "run-9", Step: "theme", Status: StatusCompleted, Message: "astra active"})

	select {
	case e := <-events:
		assert.Equal(t, "theme", e.Step)
		assert.Equal(t, "astra active", e.Message)
	case <-ctx.Done():
		t.Fatal("no event received")
	}
}

func TestRedisSinkSurvivesOutage(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	sink := NewRedisSink(mr.Addr(), "sitebuilder:progress")
	defer sink.Close() //nolint:errcheck
	mr.Close()

	assert.NotPanics(t, func() {
		sink.Publish(Event{RunID: "r", Step: "s"})
	})
}
