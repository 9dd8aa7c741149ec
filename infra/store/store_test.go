package store

import (
	"errors"
	"testing"
	"time"

	"argus/domain/record"
)

var day = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDayMarker(t *testing.T) {
	s := openTest(t)

	ok, err := s.DayInitialized(day)
	if err != nil || ok {
		t.Fatalf("expected uninitialized day, got ok=%v err=%v", ok, err)
	}

	if err := s.InitDay(day); err != nil {
		t.Fatalf("init: %v", err)
	}
	ok, err = s.DayInitialized(day)
	if err != nil || !ok {
		t.Fatalf("expected initialized day, got ok=%v err=%v", ok, err)
	}

	// Marker is per-day.
	ok, _ = s.DayInitialized(day.AddDate(0, 0, 1))
	if ok {
		t.Fatal("next day should be uninitialized")
	}
}

func TestPutGetRoundtrip(t *testing.T) {
	s := openTest(t)

	rec := record.New("123", "NEOWM1", "RELIANCE", "BUY", 100, 2450.5, "COMPLETE", day.Add(10*time.Hour))
	rec.AudioMatchType = "MATCHED_IN_WINDOW"
	if err := s.Put(day, rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Get(day, "123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ClientID != "NEOWM1" || got.AudioMatchType != "MATCHED_IN_WINDOW" {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatal("UpdatedAt not stamped")
	}

	if _, err := s.Get(day, "999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestScanAndCountIsolatedPerDay(t *testing.T) {
	s := openTest(t)

	for _, id := range []string{"1", "2", "3"} {
		if err := s.Put(day, record.New(id, "C", "SYM", "BUY", 1, 1, "COMPLETE", day)); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	other := day.AddDate(0, 0, 1)
	if err := s.Put(other, record.New("9", "C", "SYM", "BUY", 1, 1, "COMPLETE", other)); err != nil {
		t.Fatalf("put other day: %v", err)
	}

	n, err := s.Count(day)
	if err != nil || n != 3 {
		t.Fatalf("count: n=%d err=%v", n, err)
	}

	var seen []string
	err = s.Scan(day, func(r record.Record) error {
		seen = append(seen, r.OrderID)
		return nil
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(seen) != 3 {
		t.Fatalf("scan saw %v", seen)
	}
}

func TestPutOverwriteIsIdempotentOnState(t *testing.T) {
	s := openTest(t)

	rec := record.New("42", "C", "SYM", "SELL", 10, 5, "COMPLETE", day)
	if err := s.Put(day, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(day, rec); err != nil {
		t.Fatalf("second put: %v", err)
	}
	n, _ := s.Count(day)
	if n != 1 {
		t.Fatalf("expected 1 record after overwrite, got %d", n)
	}
}
