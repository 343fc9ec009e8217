package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

const publishTimeout = 2 * time.Second

// RedisSink publishes events on "<topic>:<runID>" and appends them to a history list
// "<topic>:history:<runID>" so polling clients can catch up.
type RedisSink struct {
	client *backend.Client
	topic  string
	ttl    time.Duration
}

// RedisOption configures a RedisSink.
type RedisOption func(*RedisSink)

// WithHistoryTTL sets the expiration of history lists. Zero keeps them forever.
func WithHistoryTTL(ttl time.Duration) RedisOption {
	return func(s *RedisSink) { s.ttl = ttl }
}

// NewRedisSink connects to addr.
func NewRedisSink(addr, topic string, opts ...RedisOption) *RedisSink {
	return NewRedisSinkFromClient(backend.NewClient(&backend.Options{Addr: addr}), topic, opts...)
}

// NewRedisSinkFromClient wraps an existing client.
func NewRedisSinkFromClient(client *backend.Client, topic string, opts ...RedisOption) *RedisSink {
	s := &RedisSink{client: client, topic: topic}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Channel returns the pub/sub channel for runID.
func (s *RedisSink) Channel(runID string) string {
	return s.topic + ":" + runID
}

func (s *RedisSink) historyKey(runID string) string {
	return s.topic + ":history:" + runID
}

// Publish sends e. Redis errors are logged and dropped.
func (s *RedisSink) Publish(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		logger.Warn("encode progress event: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, s.historyKey(e.RunID), data)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.historyKey(e.RunID), s.ttl)
	}
	pipe.Publish(ctx, s.Channel(e.RunID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("publish progress for run %s: %v", e.RunID, err)
	}
}

// History returns every event recorded for runID, oldest first.
func (s *RedisSink) History(ctx context.Context, runID string) ([]Event, error) {
	raw, err := s.client.LRange(ctx, s.historyKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read progress history: %w", err)
	}
	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		var e Event
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode progress event: %w", err)
		}
		events = append(events, e)
	}
	return events, nil
}

// Subscribe streams events for runID until ctx ends. The returned channel is closed then.
func (s *RedisSink) Subscribe(ctx context.Context, runID string) (<-chan Event, error) {
	sub := s.client.Subscribe(ctx, s.Channel(runID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", s.Channel(runID), err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer sub.Close() //nolint:errcheck
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					logger.Warn("drop undecodable progress message: %v", err)
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close releases the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
