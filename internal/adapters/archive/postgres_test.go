package archive

import (
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/grillbaer/data-logger/internal/domain"
	"github.com/grillbaer/data-logger/internal/ports"
)

func TestPostgresSinkWriteBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewPostgresSink(db, "readings")
	ts := time.Now()

	batch := []ports.QueuedReading{
		{
			SourceID: "tank-top",
			Reading: domain.Reading{
				Value:     42.5,
				Unit:      "°C",
				Timestamp: ts,
				Status:    domain.StatusOK,
				Formatted: "42.5",
			},
		},
		{
			SourceID: "tank-bottom",
			Reading: domain.Reading{
				Unit:      "°C",
				Timestamp: ts,
				Status:    domain.StatusError,
				Formatted: domain.NoValueText,
			},
		},
	}

	expectedQuery := regexp.QuoteMeta("INSERT INTO readings (source_id, ts, status, value, unit) VALUES ($1,$2,$3,$4,$5),($6,$7,$8,$9,$10) ON CONFLICT (source_id, ts) DO NOTHING")
	mock.ExpectExec(expectedQuery).
		WithArgs("tank-top", ts, "ok", 42.5, "°C",
			"tank-bottom", ts, "error", nil, "°C").
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := sink.WriteBatch(batch); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSinkWriteBatchEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewPostgresSink(db, "readings")
	if err := sink.WriteBatch(nil); err != nil {
		t.Fatalf("expected nil error for empty batch, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSinkName(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer db.Close()

	sink := NewPostgresSink(db, "readings")
	if sink.Name() != "postgres" {
		t.Fatalf("expected sink name postgres, got %s", sink.Name())
	}
}
