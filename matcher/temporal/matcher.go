package temporal

import (
	"math"
	"time"

	"go.uber.org/zap"

	"argus/domain/evidence"
	"argus/domain/match"
	"argus/domain/order"
)

// -------------------- Config --------------------

// Config sets the adaptive window widths. A call against a client who
// traded heavily that day gets a tight window so one call cannot claim
// an unrelated burst of orders.
type Config struct {
	HighFreqOrders int           // at or above this many orders/day
	HighFreqWidth  time.Duration //   -> this width
	NormalOrders   int
	NormalWidth    time.Duration
	LowFreqWidth   time.Duration
}

func DefaultConfig() Config {
	return Config{
		HighFreqOrders: 8,
		HighFreqWidth:  2 * time.Minute,
		NormalOrders:   4,
		NormalWidth:    5 * time.Minute,
		LowFreqWidth:   10 * time.Minute,
	}
}

const (
	confidenceInWindow = 90
	confidenceFallback = 40
)

// -------------------- Matcher --------------------

// Matcher binds call evidence to orders by time window. Read-only over
// the registry and the evidence set; safe to run alongside the
// semantic matcher.
type Matcher struct {
	cfg Config
	log *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Matcher {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Matcher{cfg: cfg, log: log}
}

// Match produces one result per (call, order) pair. A call with no
// order inside its window degrades to the closest same-day order as a
// lower-confidence fallback; a fallback is never promoted to a primary
// match. Calls are not deduplicated against each other: a client may
// call more than once about one trade.
func (m *Matcher) Match(reg *order.Registry, calls []evidence.Call) []match.Result {
	var results []match.Result
	for i := range calls {
		results = append(results, m.matchCall(reg, &calls[i])...)
	}
	return results
}

func (m *Matcher) matchCall(reg *order.Registry, call *evidence.Call) []match.Result {
	orders := m.candidateOrders(reg, call)
	if len(orders) == 0 {
		m.log.Debug("call has no candidate orders",
			zap.String("file", call.FileRef),
			zap.String("client", call.ClientID))
		return []match.Result{noMatch(call)}
	}

	var inWindow []*order.Order
	for _, o := range orders {
		width := m.width(reg.ClientOrderCount(o.ClientID))
		if overlaps(call, o.Timestamp, width) {
			inWindow = append(inWindow, o)
		}
	}

	if len(inWindow) > 0 {
		out := make([]match.Result, 0, len(inWindow))
		for _, o := range inWindow {
			out = append(out, match.Result{
				EvidenceRef:       call.FileRef,
				Source:            match.SourceAudio,
				ClientID:          o.ClientID,
				CandidateOrderIDs: []string{o.OrderID},
				Type:              match.MatchedInWindow,
				Confidence:        confidenceInWindow,
				FileRef:           call.FileRef,
				Detail:            call.Extract,
			})
		}
		return out
	}

	// Daily fallback: closest order by absolute distance to either
	// window edge. Ties all match.
	minDiff := math.MaxFloat64
	for _, o := range orders {
		if d := distance(call, o.Timestamp); d < minDiff {
			minDiff = d
		}
	}
	var out []match.Result
	for _, o := range orders {
		if distance(call, o.Timestamp) != minDiff {
			continue
		}
		out = append(out, match.Result{
			EvidenceRef:       call.FileRef,
			Source:            match.SourceAudio,
			ClientID:          o.ClientID,
			CandidateOrderIDs: []string{o.OrderID},
			Type:              match.MatchedDailyFallback,
			Confidence:        confidenceFallback,
			FileRef:           call.FileRef,
			Detail:            call.Extract,
			FallbackSeconds:   minDiff,
		})
	}
	return out
}

// candidateOrders fans the call out over every client code its phone
// number resolves to.
func (m *Matcher) candidateOrders(reg *order.Registry, call *evidence.Call) []*order.Order {
	seen := make(map[string]bool)
	var out []*order.Order

	clients := call.AllClientIDs
	if call.ClientID != "" {
		clients = append([]string{call.ClientID}, clients...)
	}
	for _, client := range clients {
		for _, o := range reg.ByClient(client) {
			if !seen[o.OrderID] {
				seen[o.OrderID] = true
				out = append(out, o)
			}
		}
	}
	return out
}

func (m *Matcher) width(orderCount int) time.Duration {
	switch {
	case orderCount >= m.cfg.HighFreqOrders:
		return m.cfg.HighFreqWidth
	case orderCount >= m.cfg.NormalOrders:
		return m.cfg.NormalWidth
	default:
		return m.cfg.LowFreqWidth
	}
}

// overlaps reports whether the order timestamp falls inside the call
// window widened by w on both sides. Boundaries are inclusive.
func overlaps(call *evidence.Call, t time.Time, w time.Duration) bool {
	start := call.WindowStart.Add(-w)
	end := call.WindowEnd.Add(w)
	return !t.Before(start) && !t.After(end)
}

func distance(call *evidence.Call, t time.Time) float64 {
	ds := math.Abs(t.Sub(call.WindowStart).Seconds())
	de := math.Abs(t.Sub(call.WindowEnd).Seconds())
	return math.Min(ds, de)
}

func noMatch(call *evidence.Call) match.Result {
	return match.Result{
		EvidenceRef: call.FileRef,
		Source:      match.SourceAudio,
		ClientID:    call.ClientID,
		Type:        match.NoMatch,
		FileRef:     call.FileRef,
	}
}
