package datalogger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/grillbaer/data-logger/internal/app/config"
)

func TestInjectorReadBeforeSet(t *testing.T) {
	inj := NewInjector(0)
	if _, err := inj.Read(context.Background()); !errors.Is(err, ErrNoInjectedValue) {
		t.Fatalf("expected ErrNoInjectedValue, got %v", err)
	}
}

func TestInjectorReturnsLatestValue(t *testing.T) {
	inj := NewInjector(0)
	inj.Set(21.5)
	inj.Set(22.0)

	v, err := inj.Read(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v != 22.0 {
		t.Fatalf("expected latest pushed value 22.0, got %f", v)
	}
}

func TestInjectorExpiresValue(t *testing.T) {
	inj := NewInjector(time.Minute)
	clock := time.Now()
	inj.now = func() time.Time { return clock }

	inj.Set(18.0)
	if _, err := inj.Read(context.Background()); err != nil {
		t.Fatalf("fresh value should be readable: %v", err)
	}

	clock = clock.Add(2 * time.Minute)
	if _, err := inj.Read(context.Background()); !errors.Is(err, ErrNoInjectedValue) {
		t.Fatalf("expected expired value error, got %v", err)
	}
}

func TestInjectorFeedsRuntime(t *testing.T) {
	cfg := testConfig(t, config.SourceConfig{ID: "pushed", Kind: config.KindSim})

	inj := NewInjector(0)
	inj.Set(55.5)

	rt, err := NewRuntime(cfg,
		WithPublisher(&recordingPublisher{}),
		WithObservability(quietObs()),
		WithDriver("pushed", inj),
	)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	latest, ok := rt.Latest("pushed")
	if !ok || latest.Value != 55.5 {
		t.Fatalf("expected injected value 55.5, got %+v ok=%v", latest, ok)
	}
}
