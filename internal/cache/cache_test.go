package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emezpr/Sureodds/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testEntry(ts int64) *models.CacheEntry {
	return &models.CacheEntry{
		Predictions: []models.Prediction{{
			Match:             "Arsenal vs Fulham",
			League:            "Premier League",
			KickoffTime:       "2026-08-22 15:00 UTC",
			BetRecommendation: "Arsenal or Draw",
			Confidence:        85,
			MarketOption:      "Double Chance",
		}},
		Sources: []models.GroundingSource{
			{Title: "Match preview", URI: "https://example.com/preview"},
		},
		Timestamp: ts,
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	want := testEntry(time.Now().UnixMilli())

	if err := s.Put(ctx, "k", want); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() returned nil for stored entry")
	}
	if got.Timestamp != want.Timestamp {
		t.Errorf("Timestamp = %d, want %d", got.Timestamp, want.Timestamp)
	}
	if len(got.Predictions) != 1 || got.Predictions[0].Match != "Arsenal vs Fulham" {
		t.Errorf("Predictions = %+v", got.Predictions)
	}
	if len(got.Sources) != 1 || got.Sources[0].URI != "https://example.com/preview" {
		t.Errorf("Sources = %+v", got.Sources)
	}
}

func TestSQLiteGetMiss(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Errorf("Get() = %+v, want nil for absent key", got)
	}
}

func TestSQLiteOverwrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "k", testEntry(1000)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Put(ctx, "k", testEntry(2000)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Timestamp != 2000 {
		t.Errorf("Timestamp = %d, want 2000 after overwrite", got.Timestamp)
	}
}

func TestSQLiteDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "k", testEntry(1000)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil || got != nil {
		t.Errorf("Get() after delete = (%+v, %v), want (nil, nil)", got, err)
	}
	// deleting an absent key is not an error
	if err := s.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete() on absent key error = %v", err)
	}
}

func TestSQLiteCorruptEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.db.Exec(
		`INSERT INTO cache_entries (key, payload, updated_at) VALUES (?, ?, ?)`,
		"k", "{not json", time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("failed to seed corrupt payload: %v", err)
	}

	_, err = s.Get(ctx, "k")
	if !errors.Is(err, ErrCorruptEntry) {
		t.Errorf("Get() error = %v, want ErrCorruptEntry", err)
	}
}

func TestDecodeEntryValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"predictions":[],"sources":[],"timestamp":1700000000000}`, false},
		{"invalid json", `{broken`, true},
		{"missing predictions", `{"sources":[],"timestamp":1700000000000}`, true},
		{"missing timestamp", `{"predictions":[],"sources":[]}`, true},
		{"wrong shape", `{"predictions":"yes","timestamp":1}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeEntry([]byte(tt.payload))
			if tt.wantErr && !errors.Is(err, ErrCorruptEntry) {
				t.Errorf("decodeEntry() error = %v, want ErrCorruptEntry", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("decodeEntry() error = %v", err)
			}
		})
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	got, err := s.Get(ctx, "k")
	if err != nil || got != nil {
		t.Fatalf("Get() on empty store = (%+v, %v), want (nil, nil)", got, err)
	}

	if err := s.Put(ctx, "k", testEntry(1234)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err = s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || got.Timestamp != 1234 {
		t.Errorf("Get() = %+v, want entry with timestamp 1234", got)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, _ = s.Get(ctx, "k")
	if got != nil {
		t.Errorf("Get() after delete = %+v, want nil", got)
	}

	s.entries["bad"] = []byte("garbage")
	if _, err := s.Get(ctx, "bad"); !errors.Is(err, ErrCorruptEntry) {
		t.Errorf("Get() on garbage payload error = %v, want ErrCorruptEntry", err)
	}
}
