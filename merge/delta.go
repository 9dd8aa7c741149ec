package merge

import (
	"argus/domain/match"
	"argus/domain/record"
)

// Delta is the field-group update one match result contributes to one
// order's record. Only the fields of the delta's source stream are
// meaningful; the merger ignores the rest.
type Delta struct {
	OrderID string `json:"orderId"`
	Source  string `json:"source"` // audio | email | oms

	AudioMatchType   string `json:"audioMatchType,omitempty"`
	AudioMatchedCall string `json:"audioMatchedCall,omitempty"`
	AudioFileRef     string `json:"audioFileRef,omitempty"`
	CallExtract      string `json:"callExtract,omitempty"`
	FallbackSeconds  float64 `json:"fallbackSeconds,omitempty"`

	EmailMatchStatus string   `json:"emailMatchStatus,omitempty"`
	EmailMatchType   string   `json:"emailMatchType,omitempty"`
	EmailMatchedRef  string   `json:"emailMatchedRef,omitempty"`
	MatchConfidence  int      `json:"matchConfidence,omitempty"`
	Discrepancies    []string `json:"discrepancies,omitempty"`
	DiscrepancyClass string   `json:"discrepancyClass,omitempty"`
	ReviewRequired   bool     `json:"reviewRequired,omitempty"`

	OMSMatchID  string   `json:"omsMatchId,omitempty"`
	OMSAlertIDs []string `json:"omsAlertIds,omitempty"`
}

// DeriveDeltas flattens finalized match results into per-order deltas.
// A result with no candidate orders contributes nothing; its negative
// verdict lives in the stage report, not the store.
func DeriveDeltas(results []match.Result) []Delta {
	var out []Delta
	for i := range results {
		r := &results[i]
		for _, orderID := range r.CandidateOrderIDs {
			switch r.Source {
			case match.SourceAudio:
				out = append(out, audioDelta(orderID, r))
			case match.SourceEmail:
				out = append(out, emailDelta(orderID, r))
			case match.SourceOMS:
				out = append(out, omsDelta(orderID, r))
			}
		}
	}
	return out
}

func audioDelta(orderID string, r *match.Result) Delta {
	return Delta{
		OrderID:          orderID,
		Source:           "audio",
		AudioMatchType:   string(r.Type),
		AudioMatchedCall: r.EvidenceRef,
		AudioFileRef:     r.FileRef,
		CallExtract:      r.Detail,
		FallbackSeconds:  r.FallbackSeconds,
	}
}

func emailDelta(orderID string, r *match.Result) Delta {
	d := Delta{
		OrderID:          orderID,
		Source:           "email",
		EmailMatchType:   string(r.Type),
		EmailMatchedRef:  r.EvidenceRef,
		MatchConfidence:  r.Confidence,
		Discrepancies:    r.Discrepancies,
		DiscrepancyClass: r.DiscrepancyClass,
		ReviewRequired:   r.ReviewRequired,
	}
	// A conflict or miss is recorded for review but never promotes the
	// row to "Matched".
	if r.Type != match.NoMatch && r.Type != match.OrderConflict {
		d.EmailMatchStatus = record.StatusMatched
	}
	return d
}

func omsDelta(orderID string, r *match.Result) Delta {
	d := Delta{
		OrderID:         orderID,
		Source:          "oms",
		MatchConfidence: r.Confidence,
		OMSMatchID:      r.EvidenceRef,
		OMSAlertIDs:     []string{r.EvidenceRef},
	}
	if r.Type == match.OMSMatch {
		d.EmailMatchStatus = record.StatusOMSMatch
	}
	return d
}
