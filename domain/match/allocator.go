package match

import "fmt"

/*
Allocator claims orders for evidence groups, first writer wins.

Greedy by design: evidence groups arrive independently per matcher, so
no attempt is made to search for an alternate assignment that would
dissolve a conflict. The second claimant is relabeled ORDER_CONFLICT
and surfaced for human review, never discarded, and the first owner is
never un-claimed.

Audio and OMS results pass through untouched. A client may call more
than once about one trade, so call evidence neither claims nor contests
orders; OMS alerts are system confirmations that dominate whatever an
instruction claimed, so they are never relabeled either.
*/
type Allocator struct {
	claimed map[string]string // order id -> evidence ref of first claimant
}

func NewAllocator() *Allocator {
	return &Allocator{claimed: make(map[string]string)}
}

// Allocate processes results in insertion order and returns them with
// conflicting claims relabeled. Single-threaded; order of input decides
// who wins, so callers must feed a deterministic sequence.
func (a *Allocator) Allocate(results []Result) []Result {
	out := make([]Result, len(results))
	for i, res := range results {
		out[i] = a.claim(res)
	}
	return out
}

func (a *Allocator) claim(res Result) Result {
	if res.Source == SourceAudio || res.Source == SourceOMS {
		return res
	}

	var prior string
	for _, id := range res.CandidateOrderIDs {
		if owner, ok := a.claimed[id]; ok && owner != res.EvidenceRef {
			prior = owner
			break
		}
	}

	if prior != "" {
		res.Type = OrderConflict
		res.ReviewRequired = true
		res.Discrepancies = append(res.Discrepancies,
			fmt.Sprintf("Order already assigned to another instruction (%s)", prior))
	}

	// The claim attempt is recorded either way: unowned candidates now
	// belong to this evidence, owned ones keep their first claimant.
	for _, id := range res.CandidateOrderIDs {
		if _, ok := a.claimed[id]; !ok {
			a.claimed[id] = res.EvidenceRef
		}
	}
	return res
}

// Claimed reports whether an order id has an owner, and who.
func (a *Allocator) Claimed(orderID string) (string, bool) {
	owner, ok := a.claimed[orderID]
	return owner, ok
}

// ClaimedCount is the number of distinct claimed order ids.
func (a *Allocator) ClaimedCount() int { return len(a.claimed) }
