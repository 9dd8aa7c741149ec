package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Event --------------------

// Event is one "record updated" notification for downstream
// consumers. Keyed by (date, orderID), so re-merging the same order
// collapses into a single pending event.
type Event struct {
	Date    string `json:"date"`
	OrderID string `json:"orderId"`
	Stage   string `json:"stage"`
}

type Entry struct {
	State       State  `json:"state"`
	Retries     uint32 `json:"retries"`
	LastAttempt int64  `json:"lastAttempt"`
	Event       Event  `json:"event"`
}

// -------------------- Outbox --------------------

type Outbox struct {
	db *pebble.DB
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // we WANT durability
	})
	if err != nil {
		return nil, err
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// -------------------- API --------------------

// Enqueue inserts (or resets) the pending event for an order. Called
// by the merge path after every applied delta.
func (o *Outbox) Enqueue(ev Event) error {
	return o.put(ev, Entry{State: StateNew, Event: ev})
}

// UpdateState advances an entry after a send, ack or failure.
func (o *Outbox) UpdateState(ev Event, state State, retries uint32) error {
	return o.put(ev, Entry{
		State:       state,
		Retries:     retries,
		LastAttempt: time.Now().UnixNano(),
		Event:       ev,
	})
}

// Delete removes ACKED entries (cleanup).
func (o *Outbox) Delete(ev Event) error {
	return o.db.Delete(keyFor(ev), pebble.Sync)
}

func (o *Outbox) Get(ev Event) (Entry, error) {
	val, closer, err := o.db.Get(keyFor(ev))
	if err != nil {
		return Entry{}, err
	}
	defer closer.Close()

	var e Entry
	if err := json.Unmarshal(val, &e); err != nil {
		return Entry{}, fmt.Errorf("outbox: decode entry: %w", err)
	}
	return e, nil
}

// IsNotFound reports whether err means the entry does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}

// -------------------- Scan --------------------

// ScanByState iterates all entries in the given state. Used by the
// broadcaster drain loop.
func (o *Outbox) ScanByState(state State, fn func(Entry) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("evt/"),
		UpperBound: []byte("evt/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return fmt.Errorf("outbox: decode %s: %w", iter.Key(), err)
		}
		if e.State != state {
			continue
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return iter.Error()
}

// -------------------- Helpers --------------------

func (o *Outbox) put(ev Event, e Entry) error {
	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("outbox: encode entry: %w", err)
	}
	return o.db.Set(keyFor(ev), val, pebble.Sync)
}

func keyFor(ev Event) []byte {
	return []byte(fmt.Sprintf("evt/%s/%s", ev.Date, ev.OrderID))
}
