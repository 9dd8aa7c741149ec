package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"argus/domain/record"
)

// ErrNotFound reports a missing record for an initialized day.
var ErrNotFound = errors.New("store: record not found")

// ErrDayUninitialized reports that no base rows were ever laid down
// for the business day. Merges against such a day must be deferred,
// never silently dropped.
var ErrDayUninitialized = errors.New("store: day not initialized")

const dateLayout = "2006-01-02"

/*
Store is the durable per-order record store, one key per order per
business day. Records are JSON values under a per-day key prefix; a
day-level init marker distinguishes "day never processed" from "day
processed, order unknown".
*/
type Store struct {
	db *pebble.DB
}

func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // we WANT durability
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// -------------------- Day Marker --------------------

// InitDay writes the day's init marker. Called by the stage that lays
// down base rows; idempotent.
func (s *Store) InitDay(date time.Time) error {
	return s.db.Set(dayKey(date), []byte{1}, pebble.Sync)
}

func (s *Store) DayInitialized(date time.Time) (bool, error) {
	_, closer, err := s.db.Get(dayKey(date))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	return true, nil
}

// -------------------- Records --------------------

// Put writes one record, stamping UpdatedAt.
func (s *Store) Put(date time.Time, rec record.Record) error {
	rec.UpdatedAt = time.Now().UTC()
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encode record %s: %w", rec.OrderID, err)
	}
	return s.db.Set(recKey(date, rec.OrderID), val, pebble.Sync)
}

func (s *Store) Get(date time.Time, orderID string) (record.Record, error) {
	val, closer, err := s.db.Get(recKey(date, orderID))
	if errors.Is(err, pebble.ErrNotFound) {
		return record.Record{}, ErrNotFound
	}
	if err != nil {
		return record.Record{}, err
	}
	defer closer.Close()

	var rec record.Record
	if err := json.Unmarshal(val, &rec); err != nil {
		return record.Record{}, fmt.Errorf("store: decode record %s: %w", orderID, err)
	}
	return rec, nil
}

// Scan iterates every record of the day in key order.
func (s *Store) Scan(date time.Time, fn func(record.Record) error) error {
	prefix := recPrefix(date)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: append(append([]byte{}, prefix...), 0xff),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var rec record.Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return fmt.Errorf("store: decode %s: %w", iter.Key(), err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Count returns the number of records stored for the day. Merge runs
// re-count after writing as a write-path verification.
func (s *Store) Count(date time.Time) (int, error) {
	n := 0
	err := s.Scan(date, func(record.Record) error {
		n++
		return nil
	})
	return n, err
}

// -------------------- Keys --------------------

func dayKey(date time.Time) []byte {
	return []byte("day/" + date.Format(dateLayout))
}

func recPrefix(date time.Time) []byte {
	return []byte("rec/" + date.Format(dateLayout) + "/")
}

func recKey(date time.Time, orderID string) []byte {
	return append(recPrefix(date), orderID...)
}
