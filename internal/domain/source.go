package domain

import (
	"fmt"
	"time"
)

// NoValueText is shown in place of a value for non-ok readings.
const NoValueText = "---"

// Source describes one configured signal source. Created at configuration
// load and never mutated afterwards; the backing driver is owned exclusively
// by the poll scheduler.
type Source struct {
	ID         string
	Label      string
	Group      string
	Color      string
	Unit       string
	Format     string // fmt verb for display values, e.g. "%.1f"
	CorrOffset float64
	StaleAfter time.Duration
}

// NewReading builds an ok reading from a raw driver value, applying the
// source's correction offset and display format.
func (s Source) NewReading(value float64, ts time.Time) Reading {
	v := value + s.CorrOffset
	return Reading{
		Value:     v,
		Unit:      s.Unit,
		Timestamp: ts,
		Status:    StatusOK,
		Formatted: s.FormatValue(v),
	}
}

// ErrorReading builds a valueless reading for a failed poll.
func (s Source) ErrorReading(ts time.Time) Reading {
	return Reading{
		Unit:      s.Unit,
		Timestamp: ts,
		Status:    StatusError,
		Formatted: NoValueText,
	}
}

// FormatValue renders a value with the source's display format.
func (s Source) FormatValue(v float64) string {
	format := s.Format
	if format == "" {
		format = "%.1f"
	}
	return fmt.Sprintf(format, v)
}
