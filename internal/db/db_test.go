package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	return database
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	database := newTestDB(t)
	if err := database.MigrateUp(); err != nil {
		t.Fatalf("second MigrateUp: %v", err)
	}

	version, dirty, err := database.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("version = %d dirty = %v, want 1 clean", version, dirty)
	}
}

func TestMigrateDown(t *testing.T) {
	database := newTestDB(t)
	if err := database.MigrateDown(); err != nil {
		t.Fatalf("MigrateDown: %v", err)
	}
	version, dirty, err := database.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion: %v", err)
	}
	if version != 0 || dirty {
		t.Errorf("version = %d dirty = %v after down, want 0 clean", version, dirty)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	if _, err := database.LoadSetting(ctx, "tuning"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing key returned %v, want ErrNotFound", err)
	}

	if err := database.SaveSetting(ctx, "tuning", `{"sample_rate_hz":50}`); err != nil {
		t.Fatalf("SaveSetting: %v", err)
	}
	value, err := database.LoadSetting(ctx, "tuning")
	if err != nil {
		t.Fatalf("LoadSetting: %v", err)
	}
	if value != `{"sample_rate_hz":50}` {
		t.Errorf("value = %s", value)
	}

	// Upsert replaces.
	if err := database.SaveSetting(ctx, "tuning", `{"sample_rate_hz":100}`); err != nil {
		t.Fatalf("SaveSetting upsert: %v", err)
	}
	value, _ = database.LoadSetting(ctx, "tuning")
	if value != `{"sample_rate_hz":100}` {
		t.Errorf("value after upsert = %s", value)
	}
}

func TestSettingsStoreInterface(t *testing.T) {
	var _ SettingsStore = (*DB)(nil)
}

func TestSessionLifecycle(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	started := time.Now().UnixNano()
	id, err := database.StartSession(ctx, "phase", started, 2.1)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if id == "" {
		t.Fatal("empty session ID")
	}

	s, err := database.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if s.Algorithm != "phase" || s.StartedUnixNs != started || s.EndedUnixNs != nil {
		t.Errorf("open session = %+v", s)
	}
	if s.CircumferenceM != 2.1 {
		t.Errorf("circumference = %v", s.CircumferenceM)
	}

	ended := started + int64(10*time.Second)
	if err := database.EndSession(ctx, id, ended, 42, 88.2); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	s, _ = database.GetSession(ctx, id)
	if s.EndedUnixNs == nil || *s.EndedUnixNs != ended {
		t.Errorf("ended = %v", s.EndedUnixNs)
	}
	if s.Revolutions != 42 || s.DistanceM != 88.2 {
		t.Errorf("totals = %d revs, %v m", s.Revolutions, s.DistanceM)
	}
}

func TestEndSessionUnknownID(t *testing.T) {
	database := newTestDB(t)
	err := database.EndSession(context.Background(), "no-such-session", 1, 0, 0)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("EndSession on unknown ID returned %v, want ErrNotFound", err)
	}
}

func TestGetSessionUnknownID(t *testing.T) {
	database := newTestDB(t)
	if _, err := database.GetSession(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession returned %v, want ErrNotFound", err)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := database.StartSession(ctx, "phase", int64(i+1)*1000, 2.0)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	sessions, err := database.ListSessions(ctx, 2)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if sessions[0].SessionID != ids[2] || sessions[1].SessionID != ids[1] {
		t.Errorf("order = %s, %s", sessions[0].SessionID, sessions[1].SessionID)
	}
}

func TestRevolutionEventsBatchAndQuery(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	id, err := database.StartSession(ctx, "phase", 0, 2.0)
	if err != nil {
		t.Fatal(err)
	}

	batch := []RevolutionEventRow{
		{SessionID: id, Revolution: 1, UnixNs: 1_000_000_000, Quality: 0.95},
		{SessionID: id, Revolution: 2, UnixNs: 2_000_000_000, Quality: 0.97},
		{SessionID: id, Revolution: 3, UnixNs: 3_000_000_000, Quality: 0.92},
	}
	if err := database.InsertRevolutionEvents(ctx, batch); err != nil {
		t.Fatalf("InsertRevolutionEvents: %v", err)
	}
	// Empty batches are a no-op.
	if err := database.InsertRevolutionEvents(ctx, nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}

	events, err := database.SessionEvents(ctx, id)
	if err != nil {
		t.Fatalf("SessionEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, e := range events {
		if e.Revolution != uint64(i+1) {
			t.Errorf("event %d revolution = %d", i, e.Revolution)
		}
	}
}

func TestSessionSummary(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	id, err := database.StartSession(ctx, "phase", 0, 2.0)
	if err != nil {
		t.Fatal(err)
	}
	events := []RevolutionEventRow{
		{SessionID: id, Revolution: 1, UnixNs: 1_000_000_000, Quality: 0.9},
		{SessionID: id, Revolution: 2, UnixNs: 2_000_000_000, Quality: 1.0},
	}
	if err := database.InsertRevolutionEvents(ctx, events); err != nil {
		t.Fatal(err)
	}
	// 2 revolutions over 60 seconds.
	if err := database.EndSession(ctx, id, int64(60*time.Second), 2, 4.0); err != nil {
		t.Fatal(err)
	}

	summary, err := database.GetSessionSummary(ctx, id)
	if err != nil {
		t.Fatalf("GetSessionSummary: %v", err)
	}
	if summary.EventCount != 2 {
		t.Errorf("event count = %d", summary.EventCount)
	}
	if summary.AvgQuality != 0.95 || summary.MinQuality != 0.9 {
		t.Errorf("quality avg = %v min = %v", summary.AvgQuality, summary.MinQuality)
	}
	if summary.DurationSec != 60 {
		t.Errorf("duration = %v", summary.DurationSec)
	}
	if summary.AvgRPM != 2 {
		t.Errorf("avg rpm = %v, want 2", summary.AvgRPM)
	}
}
