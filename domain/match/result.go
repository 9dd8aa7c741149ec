package match

// -------------------- Types --------------------

// Source says which evidence stream produced a result. Merge uses it
// to pick the delta fields; allocation uses it to decide who contests
// order claims.
type Source uint8

const (
	SourceAudio Source = iota
	SourceEmail
	SourceOMS
)

func (s Source) String() string {
	switch s {
	case SourceAudio:
		return "audio"
	case SourceEmail:
		return "email"
	case SourceOMS:
		return "oms"
	default:
		return "unknown"
	}
}

type Type string

const (
	// Temporal matcher outcomes.
	MatchedInWindow      Type = "MATCHED_IN_WINDOW"
	MatchedDailyFallback Type = "MATCHED_DAILY_FALLBACK"

	// Semantic matcher outcomes.
	PerfectMatch   Type = "PERFECT_MATCH"
	SplitExecution Type = "SPLIT_EXECUTION"
	PartialMatch   Type = "PARTIAL_MATCH"
	OverMatch      Type = "OVER_MATCH"
	BasicMatch     Type = "BASIC_MATCH"
	OMSMatch       Type = "OMS_MATCH"

	// Shared.
	NoMatch       Type = "NO_MATCH"
	OrderConflict Type = "ORDER_CONFLICT"
)

// Result is one matcher verdict binding evidence to candidate orders.
// Ephemeral: produced per run, folded into the durable record by the
// merge layer, never persisted directly.
type Result struct {
	EvidenceRef string
	Source      Source
	ClientID    string

	CandidateOrderIDs []string
	Type              Type
	Confidence        int // 0–100, clamped
	Discrepancies     []string
	// DiscrepancyClass labels discrepancies as "actual" (trade differs
	// from instruction) or "reporting" (paperwork noise). Empty when no
	// discrepancies.
	DiscrepancyClass string
	ReviewRequired   bool

	// Payload carried through to the durable record: call extract or
	// full instruction content, depending on Source.
	Detail string

	// FileRef is set for audio results (the matched recording files).
	FileRef string

	// FallbackSeconds is the time distance for daily-fallback matches.
	FallbackSeconds float64
}

// ClampConfidence forces a score into the 0–100 contract. Oracle
// responses and degraded fallbacks both pass through here.
func ClampConfidence(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
