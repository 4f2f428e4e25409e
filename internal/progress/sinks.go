package progress

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// LogSink writes every event as a structured log line.
type LogSink struct {
	Logger *zap.Logger
}

// OnProgress implements Sink.
func (s LogSink) OnProgress(e Event) {
	if s.Logger == nil {
		return
	}
	s.Logger.Info(e.Message,
		zap.String("run_id", e.RunID),
		zap.Int("percent", e.Percent),
	)
}

// Multi fans an event out to several sinks in order.
type Multi []Sink

// OnProgress implements Sink.
func (m Multi) OnProgress(e Event) {
	for _, s := range m {
		if s != nil {
			s.OnProgress(e)
		}
	}
}

// ChannelSink forwards events to a buffered channel for a UI goroutine.
type ChannelSink struct {
	events       chan Event
	sendTimeout  time.Duration
	droppedCount atomic.Uint64
	closed       atomic.Bool
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(bufferSize int) *ChannelSink {
	return &ChannelSink{
		events:      make(chan Event, bufferSize),
		sendTimeout: 100 * time.Millisecond,
	}
}

// OnProgress sends the event. If the channel is full it waits briefly
// for the receiver to drain before dropping the event.
func (s *ChannelSink) OnProgress(e Event) {
	if s.closed.Load() {
		return
	}

	select {
	case s.events <- e:
		return
	default:
	}

	timer := time.NewTimer(s.sendTimeout)
	defer timer.Stop()
	select {
	case s.events <- e:
	case <-timer.C:
		s.droppedCount.Add(1)
	}
}

// Events returns the receive side of the channel.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// DroppedCount returns how many events were dropped because nobody was reading.
func (s *ChannelSink) DroppedCount() uint64 {
	return s.droppedCount.Load()
}

// Close closes the channel. Call it once the flow has terminated;
// later events are discarded.
func (s *ChannelSink) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.events)
	}
}
