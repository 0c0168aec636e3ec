package datalogger

import (
	"testing"

	"github.com/grillbaer/data-logger/internal/app/config"
)

func TestConfFromConfigNil(t *testing.T) {
	if _, err := ConfFromConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestConfMissingFile(t *testing.T) {
	if _, err := Conf("/does/not/exist.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestFlowBuild(t *testing.T) {
	cfg := testConfig(t, config.SourceConfig{ID: "a", Kind: config.KindSim, Value: 20})

	pub := &recordingPublisher{}
	f, err := ConfFromConfig(cfg, WithObservability(quietObs()))
	if err != nil {
		t.Fatalf("ConfFromConfig: %v", err)
	}
	if f.Config() != cfg {
		t.Fatal("expected builder to expose the config")
	}

	rt, err := f.Options(WithPublisher(pub)).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if rt.publisher != Publisher(pub) {
		t.Fatal("expected builder option to reach the runtime")
	}
}

func TestFlowNilReceiver(t *testing.T) {
	var f *Flow
	if f.Options() != nil {
		t.Fatal("expected nil flow to stay nil")
	}
	if _, err := f.Build(); err == nil {
		t.Fatal("expected error building nil flow")
	}
}
