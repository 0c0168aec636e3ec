// Package pipeline wires the poll schedulers to the store, the reading log
// and the fan-out consumers.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/grillbaer/data-logger/internal/adapters/observability"
	"github.com/grillbaer/data-logger/internal/domain"
	"github.com/grillbaer/data-logger/internal/ports"
)

// Pollable binds one configured source to its driver. The poller owns the
// driver exclusively; nothing else reads it.
type Pollable struct {
	Source domain.Source
	Driver ports.Driver
}

// Fanout is one bounded queue feeding a background consumer. A full queue
// drops the newest reading and bumps the named counter.
type Fanout struct {
	Name       string
	Queue      ports.ReadingQueue
	DropMetric string
}

// RunPoller polls one source on a fixed cadence until the context ends. The
// first poll happens immediately so the store is populated before the first
// tick.
func RunPoller(ctx context.Context, p Pollable, store ports.ReadingStore, fanouts []Fanout, pol ports.Policy, obs ports.Observability) {
	ticker := time.NewTicker(pol.PollInterval)
	defer ticker.Stop()

	for {
		// The ticker and the done channel can be ready at once; never
		// start a new cycle after cancellation.
		if ctx.Err() != nil {
			return
		}
		Poll(ctx, p, store, fanouts, pol, obs)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll performs one read cycle: read with timeout, classify, update the
// store and hand the reading to every fan-out queue. A failed read produces
// an error reading; it flows through the same path as a value.
func Poll(ctx context.Context, p Pollable, store ports.ReadingStore, fanouts []Fanout, pol ports.Policy, obs ports.Observability) {
	start := time.Now()
	value, err := readWithTimeout(ctx, p.Driver, pol.ReadTimeout)
	obs.ObserveLatency(observability.HistogramSensorReadSeconds, time.Since(start).Seconds())

	ts := time.Now()
	var r domain.Reading
	if err != nil {
		// Shutdown is not a sensor fault. A read aborted by the
		// scheduler's own cancellation must not leave an error reading
		// as the last recorded state.
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return
		}
		r = p.Source.ErrorReading(ts)
		obs.IncCounter(observability.MetricReadingsError, 1)
		obs.LogErrorRateLimited("read-"+p.Source.ID, "sensor read failed", err,
			ports.Field{Key: "source", Value: p.Source.ID},
			ports.Field{Key: "driver", Value: p.Driver.Name()})
	} else {
		r = p.Source.NewReading(value, ts)
		obs.IncCounter(observability.MetricReadingsOK, 1)
	}

	store.Update(p.Source.ID, r)

	for _, f := range fanouts {
		if !f.Queue.Enqueue(p.Source.ID, r) {
			obs.IncCounter(f.DropMetric, 1)
			obs.LogDebug("reading dropped, queue full",
				ports.Field{Key: "queue", Value: f.Name},
				ports.Field{Key: "source", Value: p.Source.ID})
		}
	}
}

// readWithTimeout runs the driver read in its own goroutine so a driver
// that ignores its context cannot stall the poll cycle. An abandoned read
// finishes in the background; its result is discarded. The read's deadline
// is detached from the scheduling context: an in-flight read finishes or
// times out on its own terms even while the scheduler shuts down.
func readWithTimeout(ctx context.Context, d ports.Driver, timeout time.Duration) (float64, error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	type result struct {
		value float64
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := d.Read(rctx)
		ch <- result{v, err}
	}()

	select {
	case res := <-ch:
		return res.value, res.err
	case <-rctx.Done():
		return 0, rctx.Err()
	}
}
