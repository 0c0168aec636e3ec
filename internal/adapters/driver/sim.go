package driver

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/grillbaer/data-logger/internal/ports"
)

// ErrScriptedFailure is returned by a Sim step scripted to fail.
var ErrScriptedFailure = errors.New("driver: scripted read failure")

// Step is one scripted outcome of a simulated read.
type Step struct {
	Value float64
	Fail  bool
}

// Sim is a deterministic simulated sensor for tests and demo setups. With a
// script it replays the given steps and repeats the last one forever; without
// a script it produces gaussian noise around a base value.
type Sim struct {
	mu    sync.Mutex
	steps []Step
	idx   int

	base   float64
	jitter float64
	rng    *rand.Rand

	// Delay makes a read take this long, for exercising timeouts.
	Delay time.Duration
}

func NewScriptedSim(steps ...Step) *Sim {
	return &Sim{steps: steps}
}

func NewNoisySim(base, jitter float64, seed int64) *Sim {
	return &Sim{base: base, jitter: jitter, rng: rand.New(rand.NewSource(seed))}
}

func (s *Sim) Read(ctx context.Context) (float64, error) {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.steps) > 0 {
		step := s.steps[s.idx]
		if s.idx < len(s.steps)-1 {
			s.idx++
		}
		if step.Fail {
			return 0, ErrScriptedFailure
		}
		return step.Value, nil
	}

	if s.rng != nil {
		return s.base + s.rng.NormFloat64()*s.jitter, nil
	}
	return s.base, nil
}

func (s *Sim) Name() string { return "sim" }

var _ ports.Driver = (*Sim)(nil)
