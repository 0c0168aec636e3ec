package driver

import (
	"context"
	"math"
	"testing"
	"time"
)

const bitWindow = 125 * time.Microsecond

// synthPacket appends the edges of one ZACWire packet (start bit, 8 data
// bits MSB first, parity) starting at the given point in time.
func synthPacket(edges []edge, start time.Duration, b byte) ([]edge, time.Duration) {
	lowFor := func(at, low time.Duration) {
		edges = append(edges,
			edge{rising: false, at: at},
			edge{rising: true, at: at + low},
		)
	}

	at := start
	lowFor(at, bitWindow/2) // start bit
	at += bitWindow

	ones := 0
	for i := 7; i >= 0; i-- {
		if b>>i&1 == 1 {
			lowFor(at, bitWindow/4)
			ones++
		} else {
			lowFor(at, 3*bitWindow/4)
		}
		at += bitWindow
	}

	if ones%2 == 1 {
		lowFor(at, bitWindow/4) // parity 1
	} else {
		lowFor(at, 3*bitWindow/4) // parity 0
	}
	at += bitWindow

	return edges, at
}

func synthFrame(raw int) []edge {
	var edges []edge
	var at time.Duration
	edges, at = synthPacket(edges, 0, byte(raw>>8))
	edges, _ = synthPacket(edges, at+2*bitWindow, byte(raw&0xff))
	return edges
}

func TestDecodeZacwire(t *testing.T) {
	for _, tc := range []struct {
		raw  int
		want float64
	}{
		{raw: 768, want: 768.0/2047*200 - 50},  // ~25°C
		{raw: 1023, want: 1023.0/2047*200 - 50}, // ~50°C
		{raw: 512, want: 512.0/2047*200 - 50},   // ~0°C
	} {
		v, err := decodeZacwire(synthFrame(tc.raw))
		if err != nil {
			t.Fatalf("raw %d: decode: %v", tc.raw, err)
		}
		if math.Abs(v-tc.want) > 1e-9 {
			t.Fatalf("raw %d: value = %v, want %v", tc.raw, v, tc.want)
		}
	}
}

func TestDecodeZacwireParityError(t *testing.T) {
	edges := synthFrame(768)
	// Flip one data bit of the second packet by shortening its low pulse.
	edges[len(edges)-3].at -= bitWindow / 2
	if _, err := decodeZacwire(edges); err == nil {
		t.Fatalf("expected parity error")
	}
}

func TestDecodeZacwireRejectsPartialFrame(t *testing.T) {
	edges := synthFrame(768)
	if _, err := decodeZacwire(edges[:len(edges)/2]); err == nil {
		t.Fatalf("expected malformed frame error")
	}
}

func TestChannelSerializesReaders(t *testing.T) {
	ch := NewChannel()
	ctx := context.Background()

	if err := ch.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := ch.Acquire(blocked); err == nil {
		t.Fatalf("second acquire must block while token is held")
	}

	ch.Release()
	if err := ch.Acquire(ctx); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	ch.Release()
}

func TestChannelsSharedPerLine(t *testing.T) {
	set := NewChannels()
	if set.Get("gpiochip0", 26) != set.Get("gpiochip0", 26) {
		t.Fatalf("same line must share one token")
	}
	if set.Get("gpiochip0", 26) == set.Get("gpiochip0", 12) {
		t.Fatalf("different lines must not share a token")
	}
}
