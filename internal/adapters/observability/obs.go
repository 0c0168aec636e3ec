// Package observability backs the pipeline's log/metric port with logrus
// and a per-instance Prometheus registry.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/grillbaer/data-logger/internal/ports"
)

// Metric names used across the pipeline.
const (
	MetricReadingsOK           = "datalogger_readings_ok_total"
	MetricReadingsError        = "datalogger_readings_error_total"
	MetricLogAppendFailures    = "datalogger_log_append_failures_total"
	MetricLogQueueDropped      = "datalogger_log_queue_dropped_total"
	MetricPublishQueueDropped  = "datalogger_publish_queue_dropped_total"
	MetricArchiveQueueDropped  = "datalogger_archive_queue_dropped_total"
	MetricPublishDisconnected  = "datalogger_publish_disconnected_dropped_total"
	MetricPublished            = "datalogger_published_total"
	MetricArchiveBatchFailures = "datalogger_archive_batch_failures_total"

	GaugeBrokerConnected = "datalogger_broker_connected"
	GaugeStoreSamples    = "datalogger_store_samples"

	HistogramSensorReadSeconds = "datalogger_sensor_read_seconds"
)

// errorLogInterval suppresses repeats of the same recurring fault so a dead
// disk or broker does not flood the log once per poll cycle.
const errorLogInterval = 30 * time.Second

type Obs struct {
	log *logrus.Logger
	reg *prometheus.Registry

	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer

	mu         sync.Mutex
	lastLogged map[string]time.Time
}

func New(log *logrus.Logger) *Obs {
	if log == nil {
		log = logrus.StandardLogger()
	}

	reg := prometheus.NewRegistry()

	counters := make(map[string]prometheus.Counter)
	for name, help := range map[string]string{
		MetricReadingsOK:           "Successful sensor reads.",
		MetricReadingsError:        "Failed sensor reads.",
		MetricLogAppendFailures:    "Reading log append failures.",
		MetricLogQueueDropped:      "Readings dropped because the log queue was full.",
		MetricPublishQueueDropped:  "Readings dropped because the publish queue was full.",
		MetricArchiveQueueDropped:  "Readings dropped because the archive queue was full.",
		MetricPublishDisconnected:  "Readings dropped while the broker was unreachable.",
		MetricPublished:            "Readings delivered to the broker.",
		MetricArchiveBatchFailures: "Archive batch insert failures.",
	} {
		c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
		reg.MustRegister(c)
		counters[name] = c
	}

	gauges := make(map[string]prometheus.Gauge)
	for name, help := range map[string]string{
		GaugeBrokerConnected: "1 while the broker connection is up.",
		GaugeStoreSamples:    "Total history samples held in memory.",
	} {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
		reg.MustRegister(g)
		gauges[name] = g
	}

	readSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    HistogramSensorReadSeconds,
		Help:    "Duration of one sensor read including timeout waits.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	reg.MustRegister(readSeconds)

	return &Obs{
		log: log,
		reg: reg,
		counters: counters,
		gauges:   gauges,
		histos: map[string]prometheus.Observer{
			HistogramSensorReadSeconds: readSeconds,
		},
		lastLogged: make(map[string]time.Time),
	}
}

// Handler serves this instance's metrics.
func (o *Obs) Handler() http.Handler {
	return promhttp.HandlerFor(o.reg, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (o *Obs) Registry() *prometheus.Registry { return o.reg }

func (o *Obs) LogDebug(msg string, fields ...ports.Field) {
	o.log.WithFields(toLogrus(fields)).Debug(msg)
}

func (o *Obs) LogInfo(msg string, fields ...ports.Field) {
	o.log.WithFields(toLogrus(fields)).Info(msg)
}

func (o *Obs) LogError(msg string, err error, fields ...ports.Field) {
	entry := o.log.WithFields(toLogrus(fields))
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(msg)
}

func (o *Obs) LogErrorRateLimited(key, msg string, err error, fields ...ports.Field) {
	o.mu.Lock()
	last, ok := o.lastLogged[key]
	now := time.Now()
	suppress := ok && now.Sub(last) < errorLogInterval
	if !suppress {
		o.lastLogged[key] = now
	}
	o.mu.Unlock()

	if suppress {
		o.LogDebug(msg, append(fields, ports.Field{Key: "suppressed", Value: true})...)
		return
	}
	o.LogError(msg, err, fields...)
}

func (o *Obs) IncCounter(name string, v float64) {
	if c, ok := o.counters[name]; ok {
		c.Add(v)
	}
}

func (o *Obs) SetGauge(name string, v float64) {
	if g, ok := o.gauges[name]; ok {
		g.Set(v)
	}
}

func (o *Obs) ObserveLatency(name string, seconds float64) {
	if h, ok := o.histos[name]; ok {
		h.Observe(seconds)
	}
}

var _ ports.Observability = (*Obs)(nil)

func toLogrus(fields []ports.Field) logrus.Fields {
	if len(fields) == 0 {
		return nil
	}
	out := make(logrus.Fields, len(fields))
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out
}
