package datalogger

import (
	"errors"
	"fmt"
	"sync"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after
// being closed.
var ErrChannelSinkClosed = errors.New("datalogger: channel sink closed")

// NewCallbackSink adapts a plain function into a BatchSink so callers can
// consume readings in-process without defining structs. Plug it in with
// WithArchive.
func NewCallbackSink(name string, fn ReadingBatchFunc) BatchSink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

// NewChannelSink exposes batches via a channel; it returns the sink, the
// read-only channel, and a close function the caller should invoke during
// shutdown. After close, writes fail with ErrChannelSinkClosed and the
// channel is closed so receivers ranging over it terminate.
func NewChannelSink(name string, buffer int) (BatchSink, <-chan []QueuedReading, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan []QueuedReading, buffer)
	s := &channelSink{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch, func() { s.close() }
}

type callbackSink struct {
	name string
	fn   ReadingBatchFunc
}

func (s *callbackSink) WriteBatch(batch []QueuedReading) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	if len(batch) == 0 {
		return nil
	}
	return s.fn(batch)
}

func (s *callbackSink) Name() string { return s.name }

type channelSink struct {
	name string
	ch   chan []QueuedReading

	// sending serializes writers against close: ch is only closed while
	// holding it, after closed has been closed, so a writer either blocks
	// on an open channel or observes closed first.
	sending sync.Mutex
	closed  chan struct{}
	once    sync.Once
}

func (s *channelSink) WriteBatch(batch []QueuedReading) error {
	if len(batch) == 0 {
		return nil
	}
	out := append([]QueuedReading(nil), batch...)

	s.sending.Lock()
	defer s.sending.Unlock()

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}

	select {
	case s.ch <- out:
		return nil
	case <-s.closed:
		return ErrChannelSinkClosed
	}
}

func (s *channelSink) Name() string { return s.name }

func (s *channelSink) close() {
	s.once.Do(func() {
		// Unblock any writer stuck in its send, then wait for it to
		// leave before closing the data channel.
		close(s.closed)
		s.sending.Lock()
		close(s.ch)
		s.sending.Unlock()
	})
}
