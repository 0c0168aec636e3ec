// Package datalogger wires the poll schedulers, the reading store, the
// durable log and the fan-out consumers into one embeddable runtime.
package datalogger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grillbaer/data-logger/internal/adapters/archive"
	"github.com/grillbaer/data-logger/internal/adapters/driver"
	"github.com/grillbaer/data-logger/internal/adapters/logstore"
	"github.com/grillbaer/data-logger/internal/adapters/observability"
	"github.com/grillbaer/data-logger/internal/adapters/publish"
	"github.com/grillbaer/data-logger/internal/adapters/queue"
	"github.com/grillbaer/data-logger/internal/adapters/store"
	"github.com/grillbaer/data-logger/internal/app/config"
	"github.com/grillbaer/data-logger/internal/app/pipeline"
	"github.com/grillbaer/data-logger/internal/domain"
	"github.com/grillbaer/data-logger/internal/ports"
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	store         ports.ReadingStore
	log           ports.ReadingLog
	publisher     ports.Publisher
	archive       ports.BatchSink
	observability ports.Observability
	drivers       map[string]ports.Driver
}

// WithStore injects a custom reading store.
func WithStore(s ports.ReadingStore) RuntimeOption {
	return func(o *runtimeOverrides) { o.store = s }
}

// WithLog injects a custom durable reading log.
func WithLog(l ports.ReadingLog) RuntimeOption {
	return func(o *runtimeOverrides) { o.log = l }
}

// WithPublisher injects a custom publisher in place of the MQTT one.
func WithPublisher(p ports.Publisher) RuntimeOption {
	return func(o *runtimeOverrides) { o.publisher = p }
}

// WithArchive injects a custom archive sink.
func WithArchive(s ports.BatchSink) RuntimeOption {
	return func(o *runtimeOverrides) { o.archive = s }
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs ports.Observability) RuntimeOption {
	return func(o *runtimeOverrides) { o.observability = obs }
}

// WithDriver binds a custom driver to a source id, overriding the one its
// config block would build. Useful for tests and simulations.
func WithDriver(sourceID string, d ports.Driver) RuntimeOption {
	return func(o *runtimeOverrides) {
		if o.drivers == nil {
			o.drivers = make(map[string]ports.Driver)
		}
		o.drivers[sourceID] = d
	}
}

// Runtime polls the configured sources and fans readings out to the store,
// the durable log, the broker publisher and the optional SQL archive.
type Runtime struct {
	cfg    *config.Config
	policy ports.Policy
	obs    ports.Observability

	store     ports.ReadingStore
	log       ports.ReadingLog
	publisher ports.Publisher
	archive   ports.BatchSink

	pollables []pipeline.Pollable
	fanouts   []pipeline.Fanout
	consumers []consumer
	closers   []func(context.Context) error

	metricsSrv  *http.Server
	cancel      context.CancelFunc
	gaugeStopCh chan struct{}
	wg          sync.WaitGroup
}

type consumer struct {
	name string
	q    ports.ReadingQueue
	fn   func(batch []ports.QueuedReading)
}

// NewRuntime bootstraps the default adapters: real sensor drivers, the
// in-memory store, the daily file log, the MQTT publisher when a broker is
// configured and the SQL archive when a connection string is set. Options
// override any dependency.
func NewRuntime(cfg *config.Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	obs := overrides.observability
	if obs == nil {
		obs = observability.New(logrus.StandardLogger())
	}

	rt := &Runtime{
		cfg:    cfg,
		policy: cfg.Policy.Policy(),
		obs:    obs,
	}

	rt.store = overrides.store
	if rt.store == nil {
		rt.store = store.NewMemStore(cfg.History.Window.Std(), cfg.History.MaxSamples)
	}
	for _, s := range cfg.Sources {
		rt.store.Register(s.Source())
	}

	var err error
	rt.log = overrides.log
	if rt.log == nil {
		rt.log, err = logstore.NewFileLog(cfg.Log.Dir, cfg.Log.Retention())
		if err != nil {
			return nil, err
		}
	}

	rt.publisher = overrides.publisher
	if rt.publisher == nil {
		if cfg.MQTT.Enabled() {
			rt.publisher, err = publish.New(cfg.MQTT, obs)
			if err != nil {
				return nil, err
			}
		} else {
			rt.publisher = publish.Disabled{}
		}
	}

	rt.archive = overrides.archive
	if rt.archive == nil && cfg.Archive.Enabled() {
		sink, err := archive.Open(cfg.Archive.ConnString, cfg.Archive.Table)
		if err != nil {
			return nil, err
		}
		rt.archive = sink
		rt.closers = append(rt.closers, func(context.Context) error { return sink.Close() })
	}

	if err := rt.buildPipeline(overrides.drivers); err != nil {
		return nil, err
	}

	return rt, nil
}

func (r *Runtime) buildPipeline(driverOverrides map[string]ports.Driver) error {
	logQ := queue.NewMemQueue(r.policy.QueueCap)
	pubQ := queue.NewMemQueue(r.policy.QueueCap)
	r.fanouts = []pipeline.Fanout{
		{Name: "log", Queue: logQ, DropMetric: observability.MetricLogQueueDropped},
		{Name: "publish", Queue: pubQ, DropMetric: observability.MetricPublishQueueDropped},
	}
	r.consumers = []consumer{
		{name: "log", q: logQ, fn: pipeline.LogAppender(r.log, r.obs)},
		{name: "publish", q: pubQ, fn: pipeline.PublisherFunc(r.publisher)},
	}

	if r.archive != nil {
		archQ := queue.NewMemQueue(r.policy.QueueCap)
		r.fanouts = append(r.fanouts, pipeline.Fanout{
			Name: "archive", Queue: archQ, DropMetric: observability.MetricArchiveQueueDropped,
		})
		r.consumers = append(r.consumers, consumer{
			name: "archive", q: archQ, fn: pipeline.ArchiveWriter(r.archive, r.obs),
		})
	}

	channels := driver.NewChannels()
	for _, s := range r.cfg.Sources {
		d := driverOverrides[s.ID]
		if d == nil {
			var err error
			d, err = r.buildDriver(s, channels)
			if err != nil {
				return err
			}
		}
		r.pollables = append(r.pollables, pipeline.Pollable{Source: s.Source(), Driver: d})
	}
	return nil
}

func (r *Runtime) buildDriver(s config.SourceConfig, channels *driver.Channels) (ports.Driver, error) {
	switch s.Kind {
	case config.KindDS18B20:
		return driver.NewDS18B20(s.Address), nil
	case config.KindTSIC:
		return driver.NewTSIC(s.Chip, s.Line, channels.Get(s.Chip, s.Line)), nil
	case config.KindOPCUA:
		d, err := driver.NewOPCUA(s.Endpoint, s.NodeID)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, func(ctx context.Context) error {
			d.Close(ctx)
			return nil
		})
		return d, nil
	case config.KindSim:
		if s.Jitter > 0 {
			return driver.NewNoisySim(s.Value, s.Jitter, time.Now().UnixNano()), nil
		}
		return driver.NewScriptedSim(driver.Step{Value: s.Value}), nil
	default:
		return nil, fmt.Errorf("source %s: unknown kind %q", s.ID, s.Kind)
	}
}

// Start replays recent history, then launches the pollers, the consumers
// and the metrics endpoint. It returns immediately; call Run to block on a
// context instead.
func (r *Runtime) Start(ctx context.Context) error {
	now := time.Now()
	if removed, err := r.log.SweepExpired(now); err != nil {
		r.obs.LogError("log sweep failed", err)
	} else if removed > 0 {
		r.obs.LogInfo("expired log partitions removed",
			ports.Field{Key: "partitions", Value: removed})
	}

	if err := r.replayHistory(now); err != nil {
		r.obs.LogError("history replay failed", err)
	}

	if err := r.publisher.Start(ctx); err != nil {
		return err
	}

	ctx, r.cancel = context.WithCancel(ctx)

	for _, c := range r.consumers {
		c := c
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			pipeline.RunConsumer(ctx, c.name, c.q, r.policy, r.obs, c.fn)
		}()
	}

	for _, p := range r.pollables {
		p := p
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			pipeline.RunPoller(ctx, p, r.store, r.fanouts, r.policy, r.obs)
		}()
	}

	r.startMetrics()
	return nil
}

// replayHistory seeds the store with recent records from the durable log so
// graphs survive a restart. Replayed readings never populate the latest
// slot; only a live poll does that.
func (r *Runtime) replayHistory(now time.Time) error {
	recent, err := r.log.LoadRecent(now, r.cfg.History.Window.Std())
	if err != nil {
		return err
	}

	var total int
	for _, src := range r.store.Sources() {
		history := recent[src.ID]
		if len(history) == 0 {
			continue
		}
		for i, h := range history {
			if h.OK() {
				history[i].Formatted = src.FormatValue(h.Value)
			}
		}
		r.store.Seed(src.ID, history)
		total += len(history)
	}
	if total > 0 {
		r.obs.LogInfo("history replayed",
			ports.Field{Key: "readings", Value: total})
	}
	return nil
}

// Run starts the runtime and blocks until the context is cancelled, then
// shuts down gracefully.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.Stop(stopCtx)
}

// Stop halts polling, lets the consumers drain within the policy's grace
// and releases every held resource.
func (r *Runtime) Stop(ctx context.Context) error {
	var errs []error

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("pipeline shutdown: %w", ctx.Err()))
	}

	if r.gaugeStopCh != nil {
		close(r.gaugeStopCh)
		r.gaugeStopCh = nil
	}
	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	if err := r.publisher.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := r.log.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, closer := range r.closers {
		if err := closer(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Latest returns the freshest reading for a source, marked stale when it
// has outlived the source's staleness window.
func (r *Runtime) Latest(sourceID string) (domain.Reading, bool) {
	return r.store.Latest(sourceID)
}

// History returns readings since the given instant, oldest first.
func (r *Runtime) History(sourceID string, since time.Time) []domain.Reading {
	return r.store.History(sourceID, since)
}

// Sources lists the configured sources in configuration order.
func (r *Runtime) Sources() []domain.Source {
	return r.store.Sources()
}

func (r *Runtime) startMetrics() {
	handler, ok := r.obs.(interface{ Handler() http.Handler })
	if !ok || r.cfg.Metrics.Addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.metricsSrv = &http.Server{
		Addr:    r.cfg.Metrics.Addr,
		Handler: mux,
	}

	go func() {
		if err := r.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("metrics server exited", err)
		}
	}()

	r.gaugeStopCh = make(chan struct{})
	go r.recordGauges(r.gaugeStopCh, time.Second)
}

func (r *Runtime) recordGauges(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.obs.SetGauge(observability.GaugeStoreSamples, float64(r.store.SampleCount()))
		}
	}
}
