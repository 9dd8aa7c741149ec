package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// -------------------- Contract --------------------

// InstructionPayload is one evidence instruction sent to the oracle.
type InstructionPayload struct {
	ClientCode string `json:"client_code"`
	Symbol     string `json:"symbol"`
	Quantity   int64  `json:"quantity"`
	Price      string `json:"price"`
	Side       string `json:"buy_sell"`
	Time       string `json:"order_time,omitempty"`
	Subject    string `json:"subject,omitempty"`
}

// OrderPayload is one candidate order sent to the oracle.
type OrderPayload struct {
	OrderID  string  `json:"order_id"`
	Symbol   string  `json:"symbol"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price"`
	Side     string  `json:"buy_sell"`
	Status   string  `json:"status,omitempty"`
}

// Request is the single structured document sent per invocation.
// Idempotent: no side effects on the oracle, safe to retry.
type Request struct {
	EvidenceInstructions []InstructionPayload `json:"evidenceInstructions"`
	CandidateOrders      []OrderPayload       `json:"candidateOrders"`
}

// Response is the oracle's verdict after validation and repair.
type Response struct {
	MatchedOrderIDs []string `json:"matched_order_ids"`
	Confidence      int      `json:"confidence_score"`
	MatchType       string   `json:"match_type"`
	Discrepancies   []string `json:"discrepancies"`
	ReviewRequired  bool     `json:"review_required"`
	Reasoning       string   `json:"reasoning,omitempty"`
}

// Client is the semantic-matching capability boundary. The only
// non-deterministic element in the pipeline.
type Client interface {
	Match(ctx context.Context, req Request) (Response, error)
}

// DiscrepancyClass distinguishes trading errors from mis-reported
// confirmations.
type DiscrepancyClass string

const (
	DiscrepancyActual    DiscrepancyClass = "actual"
	DiscrepancyReporting DiscrepancyClass = "reporting"
)

// Classifier labels free-text discrepancies. Optional capability;
// implemented by the same backends as Client.
type Classifier interface {
	ClassifyDiscrepancy(ctx context.Context, text string) (DiscrepancyClass, error)
}

// -------------------- Validation --------------------

// ErrBadResponse marks a response the repair rules could not save.
var ErrBadResponse = errors.New("oracle: malformed response")

var knownMatchTypes = map[string]string{
	"EXACT_MATCH":     "PERFECT_MATCH",
	"PERFECT_MATCH":   "PERFECT_MATCH",
	"SPLIT_EXECUTION": "SPLIT_EXECUTION",
	"PARTIAL_MATCH":   "PARTIAL_MATCH",
	"OVER_MATCH":      "OVER_MATCH",
	"NO_MATCH":        "NO_MATCH",
}

// Validate enforces the response schema before anything downstream
// sees it: confidence clamped into 0–100, match type mapped onto the
// known set, nil slices made concrete. A response that names a match
// type outside the contract is rejected, not guessed at.
func Validate(resp Response) (Response, error) {
	if resp.Confidence < 0 {
		resp.Confidence = 0
	}
	if resp.Confidence > 100 {
		resp.Confidence = 100
	}

	mt := strings.ToUpper(strings.TrimSpace(resp.MatchType))
	if mt == "" {
		mt = "NO_MATCH"
	}
	canon, ok := knownMatchTypes[mt]
	if !ok {
		return Response{}, fmt.Errorf("%w: match type %q", ErrBadResponse, resp.MatchType)
	}
	resp.MatchType = canon

	if resp.MatchedOrderIDs == nil {
		resp.MatchedOrderIDs = []string{}
	}
	if resp.Discrepancies == nil {
		resp.Discrepancies = []string{}
	}
	return resp, nil
}

// ExtractJSON pulls the JSON document out of a model reply that may be
// wrapped in markdown fences or prose.
func ExtractJSON(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object found", ErrBadResponse)
	}
	return []byte(s[start : end+1]), nil
}

// ParseResponse decodes and validates a raw model reply.
func ParseResponse(text string) (Response, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return Validate(resp)
}
