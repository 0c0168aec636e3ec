// Package logstore persists readings as JSON lines in one append-only file
// per day. Whole-day partitions make expiry a cheap file delete instead of a
// record scan, and recent partitions are replayed on startup to pre-fill the
// measurement store.
package logstore

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/grillbaer/data-logger/internal/domain"
	"github.com/grillbaer/data-logger/internal/ports"
)

const (
	filePrefix = "readings-"
	fileSuffix = ".log"
	dayLayout  = "2006-01-02"

	// DefaultRetention is the horizon after which whole partitions are
	// deleted.
	DefaultRetention = 32 * 24 * time.Hour
)

var fileNameRe = regexp.MustCompile(`^readings-(\d{4}-\d{2}-\d{2})\.log$`)

// record is the on-disk representation of one reading. Value is absent for
// non-ok records.
type record struct {
	SourceID string        `json:"source_id"`
	TS       time.Time     `json:"ts"`
	Status   domain.Status `json:"status"`
	Value    *float64      `json:"value,omitempty"`
	Unit     string        `json:"unit"`
}

// FileLog is the durable reading log. Appends are serialized by a single
// mutex (single writer, append-only) and fsynced before Append returns.
type FileLog struct {
	dir       string
	retention time.Duration

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	curDay string
}

func NewFileLog(dir string, retention time.Duration) (*FileLog, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &FileLog{dir: dir, retention: retention}, nil
}

func (l *FileLog) Append(sourceID string, r domain.Reading) error {
	rec := record{
		SourceID: sourceID,
		TS:       r.Timestamp,
		Status:   r.Status,
		Unit:     r.Unit,
	}
	if r.OK() {
		v := r.Value
		rec.Value = &v
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotateLocked(r.Timestamp); err != nil {
		return err
	}
	if _, err := l.writer.Write(append(b, '\n')); err != nil {
		return err
	}
	if err := l.writer.Flush(); err != nil {
		return err
	}
	return l.file.Sync()
}

func (l *FileLog) LoadRecent(now time.Time, window time.Duration) (map[string][]domain.Reading, error) {
	cutoff := now.Add(-window)

	parts, err := l.listPartitions()
	if err != nil {
		return nil, err
	}

	out := make(map[string][]domain.Reading)
	for _, p := range parts {
		// A partition ends one day after it begins; skip those that
		// cannot contain records inside the window.
		if p.day.Add(24 * time.Hour).Before(cutoff) {
			continue
		}
		if err := l.loadPartition(p.path, cutoff, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (l *FileLog) SweepExpired(now time.Time) (int, error) {
	// The partition holding the record exactly at the horizon boundary is
	// kept; only strictly older days are deleted.
	cutoffDay := now.Add(-l.retention).UTC().Truncate(24 * time.Hour)

	parts, err := l.listPartitions()
	if err != nil {
		return 0, err
	}

	var removed int
	var errs []error
	for _, p := range parts {
		if !p.day.Before(cutoffDay) {
			continue
		}
		if err := os.Remove(p.path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

var _ ports.ReadingLog = (*FileLog)(nil)

func (l *FileLog) rotateLocked(ts time.Time) error {
	day := ts.UTC().Format(dayLayout)
	if l.file != nil && day == l.curDay {
		return nil
	}
	if err := l.closeLocked(); err != nil {
		return err
	}

	path := filepath.Join(l.dir, filePrefix+day+fileSuffix)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	l.file = f
	l.writer = bufio.NewWriter(f)
	l.curDay = day
	return nil
}

func (l *FileLog) closeLocked() error {
	if l.file == nil {
		return nil
	}
	var errs []error
	if err := l.writer.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := l.file.Sync(); err != nil {
		errs = append(errs, err)
	}
	if err := l.file.Close(); err != nil {
		errs = append(errs, err)
	}
	l.file = nil
	l.writer = nil
	l.curDay = ""
	return errors.Join(errs...)
}

type partition struct {
	path string
	day  time.Time
}

func (l *FileLog) listPartitions() ([]partition, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var parts []partition
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := fileNameRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		day, err := time.ParseInLocation(dayLayout, m[1], time.UTC)
		if err != nil {
			continue
		}
		parts = append(parts, partition{path: filepath.Join(l.dir, e.Name()), day: day})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].day.Before(parts[j].day) })
	return parts, nil
}

func (l *FileLog) loadPartition(path string, cutoff time.Time, out map[string][]domain.Reading) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			// A torn final line from a crash is expected; anything
			// later would be unreachable anyway since appends go to
			// a fresh offset. Skip and keep reading.
			continue
		}
		if rec.TS.Before(cutoff) {
			continue
		}
		out[rec.SourceID] = append(out[rec.SourceID], readingFromRecord(rec))
	}
	return scanner.Err()
}

func readingFromRecord(rec record) domain.Reading {
	r := domain.Reading{
		Unit:      rec.Unit,
		Timestamp: rec.TS,
		Status:    rec.Status,
		Formatted: domain.NoValueText,
	}
	if rec.Value != nil {
		r.Value = *rec.Value
		// The log does not carry per-source display formats; render with
		// the default so every LoadRecent caller gets a usable text.
		r.Formatted = domain.Source{}.FormatValue(r.Value)
	}
	return r
}
