package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/grillbaer/data-logger/internal/ports"
)

// TSIC reads a TSIC 206/306 temperature sensor speaking the ZACWire protocol
// on a GPIO line. The sensor transmits a frame of two parity-protected bytes
// roughly every 100ms; decoding relies on the kernel's edge timestamps, so a
// line must never be sampled by two readers at once. The shared Channel token
// enforces that.
type TSIC struct {
	Chip string
	Line int

	ch *Channel
}

func NewTSIC(chip string, line int, ch *Channel) *TSIC {
	return &TSIC{Chip: chip, Line: line, ch: ch}
}

func (t *TSIC) Read(ctx context.Context) (float64, error) {
	if err := t.ch.Acquire(ctx); err != nil {
		return 0, err
	}
	defer t.ch.Release()

	events := make(chan edge, 256)
	req, err := gpiocdev.RequestLine(t.Chip, t.Line,
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			select {
			case events <- edge{
				rising: evt.Type == gpiocdev.LineEventRisingEdge,
				at:     evt.Timestamp,
			}:
			default:
				// Overflow means the frame is unusable anyway; the
				// decoder rejects it and we wait for the next one.
			}
		}))
	if err != nil {
		return 0, fmt.Errorf("tsic %s:%d: %w", t.Chip, t.Line, err)
	}
	defer req.Close()

	for {
		edges, err := collectFrame(ctx, events)
		if err != nil {
			return 0, err
		}
		value, err := decodeZacwire(edges)
		if err == nil {
			return value, nil
		}
		// Likely joined mid-frame; retry until the deadline.
	}
}

func (t *TSIC) Name() string { return fmt.Sprintf("tsic %s:%d", t.Chip, t.Line) }

var _ ports.Driver = (*TSIC)(nil)

type edge struct {
	rising bool
	at     time.Duration
}

// interFrameGap separates two ZACWire transmissions; bit windows are in the
// order of 125µs, frames repeat every 100ms.
const interFrameGap = 5 * time.Millisecond

// collectFrame gathers edges until the line has been quiet long enough to
// consider the frame complete.
func collectFrame(ctx context.Context, events <-chan edge) ([]edge, error) {
	var edges []edge

	// Drop anything buffered from a previous partial frame.
	for {
		select {
		case <-events:
			continue
		default:
		}
		break
	}

	gap := time.NewTimer(interFrameGap)
	defer gap.Stop()

	for {
		select {
		case e := <-events:
			// A frame starts on a falling edge.
			if len(edges) == 0 && e.rising {
				continue
			}
			edges = append(edges, e)
			if !gap.Stop() {
				<-gap.C
			}
			gap.Reset(interFrameGap)
		case <-gap.C:
			if len(edges) > 0 {
				return edges, nil
			}
			gap.Reset(interFrameGap)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

var errBadFrame = errors.New("tsic: malformed zacwire frame")

// decodeZacwire turns the edge sequence of one transmission into degrees
// Celsius. A frame is two packets of ten low pulses each: start bit, eight
// data bits MSB first, even parity. The start bit is low for half the bit
// window; a data low shorter than that is a 1, longer a 0.
func decodeZacwire(edges []edge) (float64, error) {
	pulses := lowPulses(edges)
	if len(pulses) != 20 {
		return 0, errBadFrame
	}

	high, err := decodePacket(pulses[:10])
	if err != nil {
		return 0, err
	}
	low, err := decodePacket(pulses[10:])
	if err != nil {
		return 0, err
	}
	if high > 0x07 {
		return 0, errBadFrame
	}

	raw := int(high)<<8 | int(low)
	value := float64(raw)/2047*200 - 50
	if value < -50 || value > 150 {
		return 0, errBadFrame
	}
	return value, nil
}

func lowPulses(edges []edge) []time.Duration {
	var pulses []time.Duration
	for i := 0; i+1 < len(edges); i++ {
		if !edges[i].rising && edges[i+1].rising {
			pulses = append(pulses, edges[i+1].at-edges[i].at)
		}
	}
	return pulses
}

func decodePacket(pulses []time.Duration) (byte, error) {
	strobe := pulses[0]
	if strobe <= 0 {
		return 0, errBadFrame
	}

	var b byte
	ones := 0
	for i, p := range pulses[1:9] {
		if p < strobe {
			b |= 1 << (7 - i)
			ones++
		}
	}
	parity := 0
	if pulses[9] < strobe {
		parity = 1
	}
	if (ones+parity)%2 != 0 {
		return 0, fmt.Errorf("tsic: parity error: %w", errBadFrame)
	}
	return b, nil
}
