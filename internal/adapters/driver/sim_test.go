package driver

import (
	"context"
	"testing"
	"time"
)

func TestScriptedSimReplaysAndHoldsLastStep(t *testing.T) {
	s := NewScriptedSim(
		Step{Value: 42.0},
		Step{Value: 43.5},
		Step{Fail: true},
	)

	ctx := context.Background()

	v, err := s.Read(ctx)
	if err != nil || v != 42.0 {
		t.Fatalf("first read = %v, %v", v, err)
	}
	v, err = s.Read(ctx)
	if err != nil || v != 43.5 {
		t.Fatalf("second read = %v, %v", v, err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.Read(ctx); err == nil {
			t.Fatalf("read %d: expected scripted failure", i+3)
		}
	}
}

func TestNoisySimIsDeterministicPerSeed(t *testing.T) {
	a := NewNoisySim(30, 2, 1)
	b := NewNoisySim(30, 2, 1)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		va, _ := a.Read(ctx)
		vb, _ := b.Read(ctx)
		if va != vb {
			t.Fatalf("same seed diverged at read %d: %v != %v", i, va, vb)
		}
	}
}

func TestSimDelayHonorsContext(t *testing.T) {
	s := NewScriptedSim(Step{Value: 1})
	s.Delay = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.Read(ctx)
	if err == nil {
		t.Fatalf("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("read did not honor the deadline")
	}
}
