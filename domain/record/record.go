package record

import (
	"strings"
	"time"
)

// EmailMatchStatus values, weakest to strongest. OMS_MATCH is sticky:
// once an OMS alert has claimed the order, a later email merge cannot
// demote it.
const (
	StatusNoEmailMatch = "No Email Match"
	StatusMatched      = "Matched"
	StatusOMSMatch     = "OMS_MATCH"
)

/*
Record is the durable reconciliation state for one order on one
business day. Every evidence stream writes only its own field group;
the merge layer enforces that ownership.
*/
type Record struct {
	OrderID   string    `json:"orderId"`
	ClientID  string    `json:"clientId"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Quantity  int64     `json:"quantity"`
	Price     float64   `json:"price"`
	Status    string    `json:"status"`
	OrderTime time.Time `json:"orderTime"`

	AudioMatchType   string   `json:"audioMatchType,omitempty"`
	AudioMatchedCall string   `json:"audioMatchedCall,omitempty"`
	AudioFileRefs    []string `json:"audioFileRefs,omitempty"`
	CallExtract      string   `json:"callExtract,omitempty"`
	FallbackSeconds  float64  `json:"fallbackSeconds,omitempty"`

	EmailMatchStatus string   `json:"emailMatchStatus"`
	EmailMatchType   string   `json:"emailMatchType,omitempty"`
	EmailMatchedRef  string   `json:"emailMatchedRef,omitempty"`
	MatchConfidence  int      `json:"matchConfidence,omitempty"`
	Discrepancies    []string `json:"discrepancies,omitempty"`
	DiscrepancyClass string   `json:"discrepancyClass,omitempty"`
	ReviewRequired   bool     `json:"reviewRequired,omitempty"`

	OMSMatchID  string   `json:"omsMatchId,omitempty"`
	OMSAlertIDs []string `json:"omsAlertIds,omitempty"`

	NoSourceFound bool      `json:"noSourceFound,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// New lays down the base row for an order with no evidence attached
// yet.
func New(orderID, clientID, symbol, side string, qty int64, price float64, status string, orderTime time.Time) Record {
	return Record{
		OrderID:          orderID,
		ClientID:         clientID,
		Symbol:           symbol,
		Side:             side,
		Quantity:         qty,
		Price:            price,
		Status:           status,
		OrderTime:        orderTime,
		EmailMatchStatus: StatusNoEmailMatch,
	}
}

// HasAudioEvidence reports whether any call evidence attached.
func (r *Record) HasAudioEvidence() bool {
	return r.AudioMatchType != ""
}

// HasWrittenEvidence reports whether any email or OMS evidence
// attached.
func (r *Record) HasWrittenEvidence() bool {
	return r.EmailMatchStatus != "" && r.EmailMatchStatus != StatusNoEmailMatch
}

// terminalStatuses are order states that need no supporting evidence.
var terminalStatuses = map[string]bool{
	"CANCELLED": true,
	"CANCELED":  true,
	"REJECTED":  true,
}

// RecomputeFlags refreshes derived fields after a merge. An order that
// went to market with no call, no written instruction and no OMS alert
// is the surveillance red flag this whole pipeline exists to surface.
func (r *Record) RecomputeFlags() {
	r.NoSourceFound = !r.HasAudioEvidence() &&
		!r.HasWrittenEvidence() &&
		!terminalStatuses[strings.ToUpper(strings.TrimSpace(r.Status))]
}
