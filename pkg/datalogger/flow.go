package datalogger

import (
	"context"
	"fmt"

	"github.com/grillbaer/data-logger/internal/app/config"
)

// Flow is a convenience builder so embedders can say Conf → overrides → Run
// without touching the underlying wiring.
type Flow struct {
	cfg  *config.Config
	opts []RuntimeOption
}

// Conf loads YAML from disk and returns a Flow builder.
func Conf(path string, opts ...RuntimeOption) (*Flow, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig bootstraps a Flow from an in-memory config.
func ConfFromConfig(cfg *config.Config, opts ...RuntimeOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	f.Options(opts...)
	return f, nil
}

// Config returns the underlying configuration so callers can tweak it
// before building the runtime.
func (f *Flow) Config() *config.Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Options appends runtime overrides to the builder.
func (f *Flow) Options(opts ...RuntimeOption) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
	return f
}

// Build wires a Runtime ready to start.
func (f *Flow) Build() (*Runtime, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	return NewRuntime(f.cfg, f.opts...)
}

// Run is a shortcut for Build + runtime.Run.
func (f *Flow) Run(ctx context.Context) error {
	rt, err := f.Build()
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}
