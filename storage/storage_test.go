package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jknair0/beforeeach"

	"marine-scan-pipeline/models"
)

var (
	db   *sql.DB
	mock sqlmock.Sqlmock
)

func setUp() {
	db, mock, _ = sqlmock.New()
}

func tearDown() {
	db.Close()
}

var it = beforeeach.Create(setUp, tearDown)

func TestObjectKey(t *testing.T) {
	capturedAt := time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC)
	testCases := []struct {
		target   models.PollutionTarget
		areaID   int64
		x, y     int
		expected string
	}{
		{models.TargetOil, 12, 3, 7, "oil/12/2026-09-01/tile_3_7.png"},
		{models.TargetPlastic, 1, 0, 0, "plastic/1/2026-09-01/tile_0_0.png"},
	}
	for _, tc := range testCases {
		if got := ObjectKey(tc.target, tc.areaID, capturedAt, tc.x, tc.y); got != tc.expected {
			t.Errorf("ObjectKey = %q, want %q", got, tc.expected)
		}
	}
}

func TestMySQLStoreRoundTrip(t *testing.T) {
	it(func() {
		store := NewMySQLStore(db)
		key := "oil/12/2026-09-01/tile_3_7.png"
		payload := []byte{0x89, 0x50, 0x4e, 0x47}

		mock.ExpectExec("INSERT INTO image_blobs").
			WithArgs(key, payload).
			WillReturnResult(sqlmock.NewResult(1, 1))

		if err := store.Upload(context.Background(), key, payload); err != nil {
			t.Fatalf("Upload: unexpected error: %v", err)
		}

		mock.ExpectQuery("SELECT data FROM image_blobs").
			WithArgs(key).
			WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(payload))

		got, err := store.Download(context.Background(), key)
		if err != nil {
			t.Fatalf("Download: unexpected error: %v", err)
		}
		if string(got) != string(payload) {
			t.Errorf("Download = %v, want %v", got, payload)
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestMySQLStoreDownloadMissing(t *testing.T) {
	it(func() {
		store := NewMySQLStore(db)

		mock.ExpectQuery("SELECT data FROM image_blobs").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		if _, err := store.Download(context.Background(), "missing"); err == nil {
			t.Error("expected error for missing blob")
		}
	})
}
