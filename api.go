package datalogger

import (
	"context"
	"time"

	"github.com/grillbaer/data-logger/internal/app/config"
	base "github.com/grillbaer/data-logger/pkg/datalogger"
)

// Re-exported errors for convenience.
var (
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
	ErrNoInjectedValue   = base.ErrNoInjectedValue
)

// Type aliases so consumers can import github.com/grillbaer/data-logger
// directly.
type (
	Config        = config.Config
	SourceConfig  = config.SourceConfig
	Duration      = config.Duration
	Runtime       = base.Runtime
	RuntimeOption = base.RuntimeOption
	Flow          = base.Flow
	Injector      = base.Injector

	Reading          = base.Reading
	Source           = base.Source
	Status           = base.Status
	QueuedReading    = base.QueuedReading
	Driver           = base.Driver
	Publisher        = base.Publisher
	BatchSink        = base.BatchSink
	ReadingStore     = base.ReadingStore
	ReadingLog       = base.ReadingLog
	Observability    = base.Observability
	Field            = base.Field
	ReadingBatchFunc = base.ReadingBatchFunc
)

const (
	StatusOK    = base.StatusOK
	StatusError = base.StatusError
	StatusStale = base.StatusStale
	NoValueText = base.NoValueText
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// Flow builder helpers.
func Conf(path string, opts ...RuntimeOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...RuntimeOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithStore(s ReadingStore) RuntimeOption {
	return base.WithStore(s)
}

func WithLog(l ReadingLog) RuntimeOption {
	return base.WithLog(l)
}

func WithPublisher(p Publisher) RuntimeOption {
	return base.WithPublisher(p)
}

func WithArchive(s BatchSink) RuntimeOption {
	return base.WithArchive(s)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

func WithDriver(sourceID string, d Driver) RuntimeOption {
	return base.WithDriver(sourceID, d)
}

// Sink adapters.
func NewCallbackSink(name string, fn ReadingBatchFunc) BatchSink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (BatchSink, <-chan []QueuedReading, func()) {
	return base.NewChannelSink(name, buffer)
}

// Push-style sources.
func NewInjector(maxAge time.Duration) *Injector {
	return base.NewInjector(maxAge)
}

// Run is a shortcut: load the config at path and run until the context is
// cancelled.
func Run(ctx context.Context, path string, opts ...RuntimeOption) error {
	f, err := Conf(path, opts...)
	if err != nil {
		return err
	}
	return f.Run(ctx)
}
