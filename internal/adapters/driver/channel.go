package driver

import (
	"context"
	"fmt"
	"sync"
)

// Channel is the mutual-exclusion token for one timed input line. Precision
// drivers hold it for the full duration of a read and release it on every
// exit path; two sources on the same line never read concurrently, while
// different lines proceed independently.
type Channel struct {
	sem chan struct{}
}

func NewChannel() *Channel {
	return &Channel{sem: make(chan struct{}, 1)}
}

func (c *Channel) Acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) Release() {
	<-c.sem
}

// Channels hands out exactly one Channel per chip/line pair so that all
// sources configured on the same line share a token.
type Channels struct {
	mu sync.Mutex
	m  map[string]*Channel
}

func NewChannels() *Channels {
	return &Channels{m: make(map[string]*Channel)}
}

func (s *Channels) Get(chip string, line int) *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%s:%d", chip, line)
	ch, ok := s.m[key]
	if !ok {
		ch = NewChannel()
		s.m[key] = ch
	}
	return ch
}
