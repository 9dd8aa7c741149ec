package semantic

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"argus/domain/evidence"
	"argus/domain/match"
	"argus/domain/order"
	"argus/oracle"
)

// -------------------- Config --------------------

type Config struct {
	// PerfectThreshold is the minimum oracle confidence for a single
	// exact-quantity order to be called PERFECT_MATCH.
	PerfectThreshold int

	// Variants extends client-code prefix normalization.
	Variants evidence.PrefixVariants

	Retry oracle.RetryPolicy
}

func DefaultConfig() Config {
	return Config{
		PerfectThreshold: 90,
		Variants:         evidence.DefaultPrefixVariants(),
		Retry:            oracle.DefaultRetryPolicy(),
	}
}

// -------------------- Matcher --------------------

/*
Matcher binds written-instruction evidence (email groups, OMS alerts)
to orders.

Candidate filtering and match-type classification are deterministic;
only the scoring step goes to the oracle. When the oracle fails, the
matcher degrades to an exact client+symbol match at confidence zero
flagged for review, so a run never dies on the network boundary.
*/
type Matcher struct {
	cfg    Config
	client oracle.Client
	log    *zap.Logger
}

func New(client oracle.Client, cfg Config, log *zap.Logger) *Matcher {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PerfectThreshold == 0 {
		cfg.PerfectThreshold = 90
	}
	return &Matcher{cfg: cfg, client: client, log: log}
}

// MatchGroups processes instruction groups in input order, producing
// one result per group. The caller feeds merged, deduplicated groups
// (evidence.MergeGroups), so position is stable within a run.
func (m *Matcher) MatchGroups(ctx context.Context, reg *order.Registry, groups []evidence.InstructionGroup) []match.Result {
	out := make([]match.Result, 0, len(groups))
	for i := range groups {
		out = append(out, m.matchGroup(ctx, reg, &groups[i]))
	}
	return out
}

func (m *Matcher) matchGroup(ctx context.Context, reg *order.Registry, g *evidence.InstructionGroup) match.Result {
	base := match.Result{
		EvidenceRef: g.GroupKey(),
		Source:      match.SourceEmail,
		ClientID:    g.ClientID,
		Detail:      g.Content,
	}

	clientID, clientOrders := m.resolveClient(reg, g.ClientID)
	if len(clientOrders) == 0 {
		base.Type = match.NoMatch
		base.Discrepancies = []string{fmt.Sprintf("No orders found for client %s", g.ClientID)}
		return base
	}
	base.ClientID = clientID

	candidates := filterBySymbol(clientOrders, g.Symbol)

	req := buildRequest(g, candidates)
	if m.client == nil {
		return m.fallback(base, g, candidates, "oracle unavailable")
	}

	outcome := oracle.Invoke(ctx, m.client, req, m.cfg.Retry)
	if outcome.Kind != oracle.OK {
		m.log.Warn("oracle degraded to deterministic fallback",
			zap.String("group", g.GroupKey()),
			zap.String("kind", outcome.Kind.String()),
			zap.Int("attempts", outcome.Attempts),
			zap.Error(outcome.Err))
		return m.fallback(base, g, candidates, "oracle "+outcome.Kind.String())
	}

	res := m.classify(base, g, reg, outcome.Response)
	m.classifyDiscrepancies(ctx, &res)
	return res
}

// resolveClient walks the candidate spellings of a client code and
// returns the first one the registry knows.
func (m *Matcher) resolveClient(reg *order.Registry, code string) (string, []*order.Order) {
	for _, candidate := range evidence.CandidateClientCodes(code, m.cfg.Variants) {
		if orders := reg.ByClient(candidate); len(orders) > 0 {
			return candidate, orders
		}
	}
	return code, nil
}

// classify applies the rule-based match typing around the oracle's
// verdict. Order ids coming back from the oracle are re-normalized and
// checked against the registry; unknown ids are flagged and dropped,
// never guessed at.
func (m *Matcher) classify(base match.Result, g *evidence.InstructionGroup, reg *order.Registry, resp oracle.Response) match.Result {
	base.Confidence = match.ClampConfidence(resp.Confidence)
	base.Discrepancies = append(base.Discrepancies, resp.Discrepancies...)
	base.ReviewRequired = resp.ReviewRequired

	var matched []*order.Order
	for _, id := range resp.MatchedOrderIDs {
		o, ok := reg.ByOrderID(id)
		if !ok {
			base.Discrepancies = append(base.Discrepancies,
				fmt.Sprintf("Oracle returned unknown order id %s", id))
			base.ReviewRequired = true
			continue
		}
		matched = append(matched, o)
		base.CandidateOrderIDs = append(base.CandidateOrderIDs, o.OrderID)
	}

	if len(matched) == 0 {
		base.Type = match.NoMatch
		return base
	}

	instructed := g.InstructedQuantity()
	if instructed <= 0 {
		// Value-based instruction: only the oracle can size it.
		base.Type = match.Type(resp.MatchType)
		return base
	}

	var total int64
	for _, o := range matched {
		total += o.Quantity
	}
	switch {
	case len(matched) > 1 && total == instructed:
		base.Type = match.SplitExecution
	case total < instructed:
		base.Type = match.PartialMatch
	case total > instructed:
		base.Type = match.OverMatch
	case base.Confidence >= m.cfg.PerfectThreshold:
		base.Type = match.PerfectMatch
	default:
		base.Type = match.BasicMatch
	}
	return base
}

// classifyDiscrepancies labels a result's discrepancies as actual
// trading errors or reporting noise, when the oracle backend offers
// the capability. Classification failure just leaves the class empty.
func (m *Matcher) classifyDiscrepancies(ctx context.Context, res *match.Result) {
	if len(res.Discrepancies) == 0 {
		return
	}
	classifier, ok := m.client.(oracle.Classifier)
	if !ok {
		return
	}
	class, err := classifier.ClassifyDiscrepancy(ctx, strings.Join(res.Discrepancies, "\n"))
	if err != nil {
		m.log.Warn("discrepancy classification failed",
			zap.String("evidence", res.EvidenceRef),
			zap.Error(err))
		return
	}
	res.DiscrepancyClass = string(class)
}

// fallback is the deterministic degradation: exact client+symbol, no
// further discrimination, confidence pinned at zero, review required.
func (m *Matcher) fallback(base match.Result, g *evidence.InstructionGroup, candidates []*order.Order, reason string) match.Result {
	base.Type = match.NoMatch
	base.Confidence = 0
	base.ReviewRequired = true
	base.Discrepancies = append(base.Discrepancies, reason)
	for _, o := range candidates {
		if strings.EqualFold(o.Symbol, g.Symbol) {
			base.CandidateOrderIDs = append(base.CandidateOrderIDs, o.OrderID)
		}
	}
	return base
}

// -------------------- Alerts --------------------

// MatchAlerts binds OMS alerts to orders by exact client, symbol and
// (when stated) side. Deterministic; no oracle round trip.
func (m *Matcher) MatchAlerts(ctx context.Context, reg *order.Registry, alerts []evidence.Alert) []match.Result {
	out := make([]match.Result, 0, len(alerts))
	for i := range alerts {
		out = append(out, m.matchAlert(reg, &alerts[i]))
	}
	return out
}

func (m *Matcher) matchAlert(reg *order.Registry, a *evidence.Alert) match.Result {
	base := match.Result{
		EvidenceRef: a.AlertID,
		Source:      match.SourceOMS,
		ClientID:    a.ClientID,
	}

	clientID, clientOrders := m.resolveClient(reg, a.ClientID)
	base.ClientID = clientID

	for _, o := range clientOrders {
		if !strings.EqualFold(o.Symbol, a.Symbol) {
			continue
		}
		if a.Side != "" {
			side, err := order.ParseSide(a.Side)
			if err != nil || side != o.Side {
				continue
			}
		}
		base.CandidateOrderIDs = append(base.CandidateOrderIDs, o.OrderID)
	}

	if len(base.CandidateOrderIDs) == 0 {
		base.Type = match.NoMatch
		return base
	}
	base.Type = match.OMSMatch
	base.Confidence = 100
	return base
}

// -------------------- Request Assembly --------------------

func buildRequest(g *evidence.InstructionGroup, candidates []*order.Order) oracle.Request {
	req := oracle.Request{
		EvidenceInstructions: make([]oracle.InstructionPayload, 0, len(g.Instructions)),
		CandidateOrders:      make([]oracle.OrderPayload, 0, len(candidates)),
	}
	for _, ins := range g.Instructions {
		req.EvidenceInstructions = append(req.EvidenceInstructions, oracle.InstructionPayload{
			ClientCode: g.ClientID,
			Symbol:     ins.Symbol,
			Quantity:   ins.Quantity,
			Price:      ins.Price,
			Side:       ins.Side,
			Time:       ins.Time,
			Subject:    g.SourceRef,
		})
	}
	for _, o := range candidates {
		req.CandidateOrders = append(req.CandidateOrders, oracle.OrderPayload{
			OrderID:  o.OrderID,
			Symbol:   o.Symbol,
			Quantity: o.Quantity,
			Price:    o.Price,
			Side:     o.Side.String(),
			Status:   o.Status,
		})
	}
	return req
}

// filterBySymbol restricts to exact-symbol orders when any exist;
// otherwise every client order goes to the oracle, which handles
// symbol variants the registry cannot.
func filterBySymbol(orders []*order.Order, symbol string) []*order.Order {
	if symbol == "" {
		return orders
	}
	var exact []*order.Order
	for _, o := range orders {
		if strings.EqualFold(o.Symbol, symbol) {
			exact = append(exact, o)
		}
	}
	if len(exact) > 0 {
		return exact
	}
	return orders
}
