package datalogger

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoInjectedValue is returned when an Injector is polled before any
// value was pushed, or after the last push has outlived MaxAge.
var ErrNoInjectedValue = errors.New("datalogger: no injected value")

// Injector is a push-style source: external code sets values and the poll
// scheduler picks up the most recent one each cycle. Bind it to a source
// with WithDriver so pushed values flow through the same store, log and
// publish path as sensor readings.
type Injector struct {
	// MaxAge invalidates a pushed value once it is older than this.
	// Zero means pushed values never expire.
	MaxAge time.Duration

	mu    sync.Mutex
	value float64
	ts    time.Time
	has   bool

	now func() time.Time
}

func NewInjector(maxAge time.Duration) *Injector {
	return &Injector{MaxAge: maxAge, now: time.Now}
}

// Set pushes a new value.
func (i *Injector) Set(v float64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.value = v
	i.ts = i.now()
	i.has = true
}

func (i *Injector) Read(ctx context.Context) (float64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.has {
		return 0, ErrNoInjectedValue
	}
	if i.MaxAge > 0 && i.now().Sub(i.ts) > i.MaxAge {
		return 0, ErrNoInjectedValue
	}
	return i.value, nil
}

func (i *Injector) Name() string { return "injected" }

var _ Driver = (*Injector)(nil)
