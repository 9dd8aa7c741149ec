package order

import (
	"errors"
	"time"
)

// ErrRegistryEmpty signals that zero orders were loaded for the day.
// Callers decide whether that means "quiet day" or "ingestion failed";
// the registry does not infer.
var ErrRegistryEmpty = errors.New("order: registry empty")

/*
Registry holds the canonical order set for one business day.

Built once per run from externally-ingested rows, read-only afterwards.
Duplicate exchange broadcasts (same order id, different internal id)
collapse into one order carrying every internal id seen. Rows whose id
cannot be normalized are skipped, not fatal.
*/
type Registry struct {
	date     time.Time
	orders   []*Order // insertion order, one per normalized id
	byID     map[string]*Order
	byClient map[string][]*Order
	skipped  []string
}

// NewRegistry normalizes and indexes the day's order rows.
func NewRegistry(date time.Time, rows []Order) (*Registry, error) {
	r := &Registry{
		date:     date,
		byID:     make(map[string]*Order, len(rows)),
		byClient: make(map[string][]*Order),
	}

	for i := range rows {
		row := rows[i]
		id, err := NormalizeID(row.OrderID)
		if err != nil {
			r.skipped = append(r.skipped, row.OrderID)
			continue
		}

		if existing, ok := r.byID[id]; ok {
			// Duplicate broadcast of the same exchange order.
			existing.InternalIDs = append(existing.InternalIDs, row.InternalIDs...)
			continue
		}

		o := row
		o.OrderID = id
		r.orders = append(r.orders, &o)
		r.byID[id] = &o
		r.byClient[o.ClientID] = append(r.byClient[o.ClientID], &o)
	}

	if len(r.orders) == 0 {
		return r, ErrRegistryEmpty
	}
	return r, nil
}

// -------------------- Lookups --------------------

// ByOrderID resolves an id in any upstream spelling.
func (r *Registry) ByOrderID(id string) (*Order, bool) {
	norm, err := NormalizeID(id)
	if err != nil {
		return nil, false
	}
	o, ok := r.byID[norm]
	return o, ok
}

func (r *Registry) ByClient(clientID string) []*Order {
	return r.byClient[clientID]
}

func (r *Registry) ByClientAndSymbol(clientID, symbol string) []*Order {
	var out []*Order
	for _, o := range r.byClient[clientID] {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out
}

// ClientOrderCount drives the adaptive match window width.
func (r *Registry) ClientOrderCount(clientID string) int {
	return len(r.byClient[clientID])
}

// All returns every order in insertion order. Read-only.
func (r *Registry) All() []*Order {
	return r.orders
}

func (r *Registry) Len() int { return len(r.orders) }

func (r *Registry) Date() time.Time { return r.date }

// Skipped lists raw order ids that failed normalization during load.
func (r *Registry) Skipped() []string { return r.skipped }
