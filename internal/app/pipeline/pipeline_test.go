package pipeline

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grillbaer/data-logger/internal/adapters/driver"
	"github.com/grillbaer/data-logger/internal/adapters/logstore"
	"github.com/grillbaer/data-logger/internal/adapters/observability"
	"github.com/grillbaer/data-logger/internal/adapters/queue"
	"github.com/grillbaer/data-logger/internal/adapters/store"
	"github.com/grillbaer/data-logger/internal/domain"
	"github.com/grillbaer/data-logger/internal/ports"
)

func testObs() *observability.Obs {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return observability.New(log)
}

func testPolicy() ports.Policy {
	return ports.Policy{
		PollInterval: 10 * time.Millisecond,
		ReadTimeout:  50 * time.Millisecond,
		QueueCap:     64,
		MaxBatchSize: 16,
		IdleSleep:    time.Millisecond,
		DrainGrace:   time.Second,
	}
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []ports.QueuedReading
}

func (p *recordingPublisher) Start(context.Context) error { return nil }
func (p *recordingPublisher) Connected() bool             { return true }
func (p *recordingPublisher) Close(context.Context) error { return nil }

func (p *recordingPublisher) Publish(sourceID string, r domain.Reading) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, ports.QueuedReading{SourceID: sourceID, Reading: r})
}

func (p *recordingPublisher) all() []ports.QueuedReading {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ports.QueuedReading(nil), p.sent...)
}

// Two sources over three cycles: one fails its last read, the other stays
// constant. The error must land in the latest view, the log and the
// publisher; the prior good values must remain in history.
func TestTwoSourcesWithFailingRead(t *testing.T) {
	obs := testObs()
	pol := testPolicy()

	st := store.NewMemStore(24*time.Hour, 1000)
	top := domain.Source{ID: "tank-top", Unit: "°C"}
	bottom := domain.Source{ID: "tank-bottom", Unit: "°C"}
	st.Register(top)
	st.Register(bottom)

	fl, err := logstore.NewFileLog(t.TempDir(), 32*24*time.Hour)
	if err != nil {
		t.Fatalf("new file log: %v", err)
	}
	defer fl.Close()

	logQ := queue.NewMemQueue(pol.QueueCap)
	pubQ := queue.NewMemQueue(pol.QueueCap)
	fanouts := []Fanout{
		{Name: "log", Queue: logQ, DropMetric: observability.MetricLogQueueDropped},
		{Name: "publish", Queue: pubQ, DropMetric: observability.MetricPublishQueueDropped},
	}

	topPoll := Pollable{Source: top, Driver: driver.NewScriptedSim(
		driver.Step{Value: 42.0},
		driver.Step{Value: 43.5},
		driver.Step{Fail: true},
	)}
	bottomPoll := Pollable{Source: bottom, Driver: driver.NewScriptedSim(
		driver.Step{Value: 30.0},
	)}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		Poll(ctx, topPoll, st, fanouts, pol, obs)
		Poll(ctx, bottomPoll, st, fanouts, pol, obs)
	}

	latest, ok := st.Latest("tank-top")
	if !ok || latest.Status != domain.StatusError {
		t.Fatalf("expected latest error for tank-top, got %+v ok=%v", latest, ok)
	}
	hist := st.History("tank-top", time.Time{})
	if len(hist) != 3 {
		t.Fatalf("expected 3 history entries for tank-top, got %d", len(hist))
	}
	if hist[0].Value != 42.0 || hist[1].Value != 43.5 {
		t.Fatalf("prior values missing from history: %+v", hist)
	}
	if latest, ok := st.Latest("tank-bottom"); !ok || latest.Value != 30.0 {
		t.Fatalf("expected tank-bottom latest 30.0, got %+v ok=%v", latest, ok)
	}

	// drain both queues through their consumers
	pub := &recordingPublisher{}
	cctx, cancel := context.WithCancel(context.Background())
	cancel()
	RunConsumer(cctx, "log", logQ, pol, obs, LogAppender(fl, obs))
	RunConsumer(cctx, "publish", pubQ, pol, obs, PublisherFunc(pub))

	records, err := fl.LoadRecent(time.Now(), 24*time.Hour)
	if err != nil {
		t.Fatalf("load recent: %v", err)
	}
	if got := len(records["tank-top"]) + len(records["tank-bottom"]); got != 6 {
		t.Fatalf("expected 6 logged records, got %d", got)
	}

	sent := pub.all()
	if len(sent) != 6 {
		t.Fatalf("expected 6 published readings, got %d", len(sent))
	}
	okCount, errCount := 0, 0
	for _, s := range sent {
		switch s.Reading.Status {
		case domain.StatusOK:
			okCount++
		case domain.StatusError:
			errCount++
		}
	}
	if okCount != 5 || errCount != 1 {
		t.Fatalf("expected 5 ok and 1 error publishes, got %d ok %d error", okCount, errCount)
	}
}

type hungDriver struct{}

func (hungDriver) Read(ctx context.Context) (float64, error) {
	// deliberately ignores the context
	time.Sleep(500 * time.Millisecond)
	return 99, nil
}

func (hungDriver) Name() string { return "hung" }

func TestPollHungDriverTimesOut(t *testing.T) {
	obs := testObs()
	pol := testPolicy()
	pol.ReadTimeout = 20 * time.Millisecond

	st := store.NewMemStore(time.Hour, 100)
	src := domain.Source{ID: "slow"}
	st.Register(src)

	start := time.Now()
	Poll(context.Background(), Pollable{Source: src, Driver: hungDriver{}}, st, nil, pol, obs)
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("poll blocked on hung driver for %s", elapsed)
	}

	latest, ok := st.Latest("slow")
	if !ok || latest.Status != domain.StatusError {
		t.Fatalf("expected error reading after timeout, got %+v ok=%v", latest, ok)
	}
}

// A read already in flight when the scheduler context is canceled must run
// to completion against its own deadline and still be recorded.
func TestPollFinishesReadDuringShutdown(t *testing.T) {
	obs := testObs()
	pol := testPolicy()

	st := store.NewMemStore(time.Hour, 100)
	src := domain.Source{ID: "s"}
	st.Register(src)

	sim := driver.NewScriptedSim(driver.Step{Value: 5})
	sim.Delay = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	Poll(ctx, Pollable{Source: src, Driver: sim}, st, nil, pol, obs)

	latest, ok := st.Latest("s")
	if !ok || latest.Status != domain.StatusOK || latest.Value != 5 {
		t.Fatalf("expected completed read with value 5, got %+v ok=%v", latest, ok)
	}
}

type canceledDriver struct{}

func (canceledDriver) Read(context.Context) (float64, error) { return 0, context.Canceled }
func (canceledDriver) Name() string                          { return "canceled" }

// A cancellation surfacing from a read during shutdown is not a sensor
// failure and must not be recorded at all. The same error outside shutdown
// still counts as a failed read.
func TestPollShutdownCancellationIsNotASensorError(t *testing.T) {
	obs := testObs()
	pol := testPolicy()

	st := store.NewMemStore(time.Hour, 100)
	src := domain.Source{ID: "s"}
	st.Register(src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	Poll(ctx, Pollable{Source: src, Driver: canceledDriver{}}, st, nil, pol, obs)
	if _, ok := st.Latest("s"); ok {
		t.Fatal("expected no reading recorded for a read aborted by shutdown")
	}

	Poll(context.Background(), Pollable{Source: src, Driver: canceledDriver{}}, st, nil, pol, obs)
	latest, ok := st.Latest("s")
	if !ok || latest.Status != domain.StatusError {
		t.Fatalf("expected error reading outside shutdown, got %+v ok=%v", latest, ok)
	}
}

func TestPollAppliesCorrectionOffset(t *testing.T) {
	obs := testObs()
	pol := testPolicy()

	st := store.NewMemStore(time.Hour, 100)
	src := domain.Source{ID: "corr", CorrOffset: -0.5, Format: "%.2f"}
	st.Register(src)

	Poll(context.Background(), Pollable{Source: src, Driver: driver.NewScriptedSim(driver.Step{Value: 21.0})}, st, nil, pol, obs)

	latest, ok := st.Latest("corr")
	if !ok {
		t.Fatal("expected a reading")
	}
	if latest.Value != 20.5 {
		t.Fatalf("expected corrected value 20.5, got %f", latest.Value)
	}
	if latest.Formatted != "20.50" {
		t.Fatalf("expected formatted 20.50, got %s", latest.Formatted)
	}
}

func TestFanoutDropsWhenQueueFull(t *testing.T) {
	obs := testObs()
	pol := testPolicy()

	st := store.NewMemStore(time.Hour, 100)
	src := domain.Source{ID: "s"}
	st.Register(src)

	q := queue.NewMemQueue(2)
	fanouts := []Fanout{{Name: "publish", Queue: q, DropMetric: observability.MetricPublishQueueDropped}}
	p := Pollable{Source: src, Driver: driver.NewScriptedSim(driver.Step{Value: 1})}

	for i := 0; i < 5; i++ {
		Poll(context.Background(), p, st, fanouts, pol, obs)
	}

	if q.Len() != 2 {
		t.Fatalf("expected queue capped at 2, got %d", q.Len())
	}
	// the store still saw every cycle
	if hist := st.History("s", time.Time{}); len(hist) != 5 {
		t.Fatalf("expected 5 history entries, got %d", len(hist))
	}
}

func TestRunPollerStopsOnCancel(t *testing.T) {
	obs := testObs()
	pol := testPolicy()

	st := store.NewMemStore(time.Hour, 100)
	src := domain.Source{ID: "s"}
	st.Register(src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunPoller(ctx, Pollable{Source: src, Driver: driver.NewScriptedSim(driver.Step{Value: 1})}, st, nil, pol, obs)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop on cancel")
	}

	if _, ok := st.Latest("s"); !ok {
		t.Fatal("expected at least one poll before cancel")
	}
}

func TestRunConsumerDrainsOnShutdown(t *testing.T) {
	obs := testObs()
	pol := testPolicy()

	q := queue.NewMemQueue(64)
	for i := 0; i < 10; i++ {
		q.Enqueue("s", domain.Reading{Status: domain.StatusOK, Timestamp: time.Now()})
	}

	var mu sync.Mutex
	seen := 0
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	RunConsumer(ctx, "test", q, pol, obs, func(batch []ports.QueuedReading) {
		mu.Lock()
		seen += len(batch)
		mu.Unlock()
	})

	if seen != 10 {
		t.Fatalf("expected all 10 queued readings drained, got %d", seen)
	}
}
