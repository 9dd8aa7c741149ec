package evidence

import (
	"sort"
	"strings"
	"time"
)

// -------------------- Union --------------------

type Kind uint8

const (
	KindCall Kind = iota
	KindInstruction
	KindAlert
)

func (k Kind) String() string {
	switch k {
	case KindCall:
		return "CALL"
	case KindInstruction:
		return "INSTRUCTION"
	case KindAlert:
		return "ALERT"
	default:
		return "UNKNOWN"
	}
}

// Evidence is the tagged union handed over by the ingestion
// collaborators. Exactly one payload field is set for a given Kind.
// Read-only to this engine.
type Evidence struct {
	Kind  Kind              `json:"kind"`
	Call  *Call             `json:"call,omitempty"`
	Group *InstructionGroup `json:"group,omitempty"`
	Alert *Alert            `json:"alert,omitempty"`
}

// -------------------- Payloads --------------------

// Call is one recorded voice call. A phone number can resolve to
// several client codes, so AllClientIDs carries every candidate.
type Call struct {
	ClientID     string    `json:"client_id"`
	AllClientIDs []string  `json:"all_client_ids"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
	FileRef      string    `json:"file_ref"`

	// Extract is the upstream transcript extract, when transcription
	// ran before matching. Carried into the durable record untouched.
	Extract string `json:"extract,omitempty"`
}

// Instruction is a single extracted trade instruction. Price stays
// free text because upstream extraction passes through spellings like
// "CMP" or "market price" that matter to scoring.
type Instruction struct {
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
	Price    string `json:"price"`
	Side     string `json:"side"`
	Time     string `json:"time"`
}

// InstructionGroup is the written-instruction evidence for one
// client+symbol, already extracted upstream.
type InstructionGroup struct {
	ClientID     string        `json:"client_id"`
	Symbol       string        `json:"symbol"`
	Instructions []Instruction `json:"instructions"`
	SourceRef    string        `json:"source_ref"`
	Content      string        `json:"content,omitempty"`
}

// GroupKey identifies a group: one group per client+symbol per day.
func (g *InstructionGroup) GroupKey() string {
	return g.ClientID + "_" + g.Symbol
}

// InstructedQuantity is the quantity of the first instruction carrying
// one, matching how the upstream system reads a group.
func (g *InstructionGroup) InstructedQuantity() int64 {
	for _, ins := range g.Instructions {
		if ins.Quantity != 0 {
			return ins.Quantity
		}
	}
	return 0
}

// Alert is one order-management-system alert.
type Alert struct {
	ClientID string `json:"client_id"`
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	AlertID  string `json:"alert_id"`
}

// -------------------- Client Code Normalization --------------------

// PrefixVariants maps a client-code prefix seen in evidence to the
// canonical prefix used by the order book. Extensible via config.
type PrefixVariants map[string]string

// DefaultPrefixVariants covers the spellings observed upstream:
// truncated prefixes and bare numeric codes.
func DefaultPrefixVariants() PrefixVariants {
	return PrefixVariants{
		"EOWM": "NEOWM",
		"WM":   "NEOWM",
	}
}

// CandidateClientCodes expands an evidence client code into the
// canonical spellings it could refer to, most exact first.
func CandidateClientCodes(code string, variants PrefixVariants) []string {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil
	}
	out := []string{code}
	prefixes := make([]string, 0, len(variants))
	for p := range variants {
		prefixes = append(prefixes, p)
	}
	// Longest prefix first keeps candidate order deterministic.
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})
	for _, prefix := range prefixes {
		canon := variants[prefix]
		if strings.HasPrefix(code, prefix) && !strings.HasPrefix(code, canon) {
			out = append(out, canon+code[len(prefix):])
		}
	}
	if isAllDigits(code) {
		out = append(out, "NEO"+code)
	}
	return out
}

func isAllDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
