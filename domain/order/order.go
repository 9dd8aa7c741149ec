package order

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// -------------------- Core Types --------------------

type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "SELL"
	}
	return "BUY"
}

// ParseSide accepts the spellings seen in upstream order files.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "B", "BUY":
		return Buy, nil
	case "S", "SELL":
		return Sell, nil
	default:
		return Buy, fmt.Errorf("order: unknown side %q", s)
	}
}

// Order is one row of the day's canonical order book. Immutable once
// ingested; owned by the Registry.
type Order struct {
	OrderID     string // exchange-assigned, normalized decimal string
	InternalIDs []string
	ClientID    string
	Symbol      string
	Quantity    int64
	Price       float64
	Side        Side
	Status      string
	Timestamp   time.Time
}

// InternalID returns the first system-assigned id seen for this order.
func (o *Order) InternalID() string {
	if len(o.InternalIDs) == 0 {
		return ""
	}
	return o.InternalIDs[0]
}

// -------------------- ID Normalization --------------------

// NormalizeID canonicalizes an exchange order id into a plain decimal
// string. Upstream files route ids through numeric columns, so the
// same id can arrive as "1100000032408747", "1100000032408747.0" or
// "1.100000032408747e+15". Two orders are the same iff their
// normalized ids are equal; any id that cannot be canonicalized is an
// error, never a guess.
func NormalizeID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("order: empty order id")
	}
	s = strings.TrimSuffix(s, ".0")

	if isDigits(s) {
		if t := strings.TrimLeft(s, "0"); t != "" {
			return t, nil
		}
		return "0", nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", fmt.Errorf("order: unparseable order id %q", raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return "", fmt.Errorf("order: unparseable order id %q", raw)
	}
	if f != math.Trunc(f) {
		return "", fmt.Errorf("order: fractional order id %q", raw)
	}
	out := strconv.FormatFloat(f, 'f', -1, 64)
	if !isDigits(out) {
		return "", fmt.Errorf("order: unparseable order id %q", raw)
	}
	return out, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
