package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRedisChannel is the pub/sub channel used when none is configured.
const DefaultRedisChannel = "modernity:progress"

// RedisSink publishes events as JSON on a Redis pub/sub channel so that
// observers in other processes (a web UI, a chat bot) can follow a run.
// Publishing is best effort: failures are logged and never reach the flow.
type RedisSink struct {
	rdb     *redis.Client
	channel string
	timeout time.Duration
	logger  *zap.Logger
}

// RedisSinkConfig configures a RedisSink.
type RedisSinkConfig struct {
	// Options are the Redis connection options.
	Options *redis.Options
	// Channel is the base channel; events are published on "<channel>:<run_id>"
	// and on the base channel itself.
	Channel string
	// Timeout bounds each publish. Zero means 2s.
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewRedisSink connects a sink and verifies the server is reachable.
func NewRedisSink(ctx context.Context, cfg RedisSinkConfig) (*RedisSink, error) {
	if cfg.Options == nil || cfg.Options.Addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	channel := cfg.Channel
	if channel == "" {
		channel = DefaultRedisChannel
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rdb := redis.NewClient(cfg.Options)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Options.Addr, err)
	}

	return &RedisSink{rdb: rdb, channel: channel, timeout: timeout, logger: logger}, nil
}

// RunChannel returns the per-run channel name.
func (s *RedisSink) RunChannel(runID string) string {
	return s.channel + ":" + runID
}

// Channel returns the base channel name.
func (s *RedisSink) Channel() string {
	return s.channel
}

// OnProgress implements Sink.
func (s *RedisSink) OnProgress(e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		s.logger.Warn("encode progress event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	channels := []string{s.channel}
	if e.RunID != "" {
		channels = append(channels, s.RunChannel(e.RunID))
	}
	for _, ch := range channels {
		if err := s.rdb.Publish(ctx, ch, payload).Err(); err != nil {
			s.logger.Warn("publish progress event",
				zap.String("channel", ch),
				zap.Error(err))
		}
	}
}

// Close closes the Redis connection.
func (s *RedisSink) Close() error {
	return s.rdb.Close()
}
