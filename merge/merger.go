package merge

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"

	"argus/config"
	"argus/domain/match"
	"argus/domain/order"
	"argus/domain/record"
	"argus/infra/staging"
	"argus/infra/store"
)

// ErrVerifyFailed means the post-write re-read did not see the state
// the merge just wrote. The store must be treated as suspect; the
// stage fails hard and is never retried automatically.
var ErrVerifyFailed = errors.New("merge: post-write verification failed")

// statusRank orders email-match statuses weakest to strongest. A merge
// never demotes the stored status.
var statusRank = map[string]int{
	record.StatusNoEmailMatch: 0,
	record.StatusMatched:      1,
	record.StatusOMSMatch:     2,
}

// audioRank orders audio verdicts the same way: a daily fallback from
// a second call never displaces an in-window match already on the
// record.
var audioRank = map[string]int{
	string(match.MatchedDailyFallback): 1,
	string(match.MatchedInWindow):      2,
}

// Report summarizes one stage merge.
type Report struct {
	Stage    string
	Deferred bool
	Applied  int // deltas folded into records
	Created  int // records lazily created for unknown order ids
}

/*
Merger applies stage deltas to the durable store under the field
authority table.

Protocol per stage run: stage the delta batch first, apply against the
live store, verify by re-read, then discard the staging artifact. If
the day has no store yet the batch stays staged and the run reports
Deferred; a later run recovers it before doing new work. Re-applying
an already-applied batch is a no-op, which is what makes crash-retry
safe.
*/
type Merger struct {
	store   *store.Store
	staging *staging.Staging
	auth    config.Authority
	log     *zap.Logger
}

func NewMerger(st *store.Store, stg *staging.Staging, auth config.Authority, log *zap.Logger) *Merger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Merger{store: st, staging: stg, auth: auth, log: log}
}

// ApplyBase lays down one record per registry order and marks the day
// initialized. Existing records are left untouched, so a re-run keeps
// evidence already merged.
func (m *Merger) ApplyBase(date time.Time, reg *order.Registry) (int, error) {
	created := 0
	for _, o := range reg.All() {
		if _, err := m.store.Get(date, o.OrderID); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return created, err
		}
		rec := record.New(o.OrderID, o.ClientID, o.Symbol, o.Side.String(), o.Quantity, o.Price, o.Status, o.Timestamp)
		rec.RecomputeFlags()
		if err := m.store.Put(date, rec); err != nil {
			return created, err
		}
		created++
	}
	if err := m.store.InitDay(date); err != nil {
		return created, err
	}
	m.log.Info("base rows laid down",
		zap.String("date", date.Format("2006-01-02")),
		zap.Int("created", created),
		zap.Int("orders", reg.Len()))
	return created, nil
}

// Apply runs the staging-then-verify protocol for one stage batch.
func (m *Merger) Apply(date time.Time, stage string, deltas []Delta) (Report, error) {
	rep := Report{Stage: stage}

	if err := m.staging.Write(date, stage, deltas); err != nil {
		return rep, err
	}

	ok, err := m.store.DayInitialized(date)
	if err != nil {
		return rep, err
	}
	if !ok {
		// No live store yet: the batch stays staged for a later run.
		rep.Deferred = true
		m.log.Warn("merge deferred, day uninitialized",
			zap.String("stage", stage),
			zap.String("date", date.Format("2006-01-02")),
			zap.Int("deltas", len(deltas)))
		return rep, nil
	}

	before, err := m.store.Count(date)
	if err != nil {
		return rep, err
	}

	written := make(map[string]record.Record, len(deltas))
	for _, d := range deltas {
		rec, err := m.store.Get(date, d.OrderID)
		if errors.Is(err, store.ErrNotFound) {
			rec = record.New(d.OrderID, "", "", "", 0, 0, "", time.Time{})
			rep.Created++
		} else if err != nil {
			return rep, err
		}

		m.applyDelta(&rec, d)
		rec.RecomputeFlags()
		if err := m.store.Put(date, rec); err != nil {
			return rep, err
		}
		written[d.OrderID] = rec
		rep.Applied++
	}

	if err := m.verify(date, written); err != nil {
		return rep, err
	}
	after, err := m.store.Count(date)
	if err != nil {
		return rep, err
	}
	if after != before+rep.Created {
		return rep, fmt.Errorf("%w: day holds %d records, expected %d", ErrVerifyFailed, after, before+rep.Created)
	}

	if err := m.staging.Discard(date, stage); err != nil {
		return rep, err
	}
	return rep, nil
}

// Recover re-applies any staged batch left behind by an earlier run.
// Returns the reports of the batches it found.
func (m *Merger) Recover(date time.Time) ([]Report, error) {
	stages, err := m.staging.Stages(date)
	if err != nil {
		return nil, err
	}
	var reports []Report
	for _, stage := range stages {
		var deltas []Delta
		ok, err := m.staging.Load(date, stage, &deltas)
		if err != nil {
			return reports, err
		}
		if !ok {
			continue
		}
		m.log.Info("recovering staged batch",
			zap.String("stage", stage),
			zap.Int("deltas", len(deltas)))
		rep, err := m.Apply(date, stage, deltas)
		if err != nil {
			return reports, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

// verify re-reads every written row and asserts it holds exactly the
// state the merge produced. UpdatedAt is the only field allowed to
// differ from the in-memory copy.
func (m *Merger) verify(date time.Time, written map[string]record.Record) error {
	for orderID, want := range written {
		got, err := m.store.Get(date, orderID)
		if err != nil {
			return fmt.Errorf("%w: re-read %s: %v", ErrVerifyFailed, orderID, err)
		}
		got.UpdatedAt = time.Time{}
		want.UpdatedAt = time.Time{}
		if !reflect.DeepEqual(got, want) {
			return fmt.Errorf("%w: record %s diverged after write", ErrVerifyFailed, orderID)
		}
	}
	return nil
}

// -------------------- Field Application --------------------

func (m *Merger) applyDelta(rec *record.Record, d Delta) {
	switch d.Source {
	case "audio":
		m.applyAudio(rec, d)
	case "email", "oms":
		m.applyWritten(rec, d)
	}
}

func (m *Merger) applyAudio(rec *record.Record, d Delta) {
	if d.AudioMatchType != "" && m.auth.Owns("audioMatchType", d.Source) &&
		audioRank[d.AudioMatchType] >= audioRank[rec.AudioMatchType] {
		rec.AudioMatchType = d.AudioMatchType
		// The call, extract and fallback distance travel with the
		// winning verdict.
		if d.AudioMatchedCall != "" && m.auth.Owns("audioMatchedCall", d.Source) {
			rec.AudioMatchedCall = d.AudioMatchedCall
		}
		if d.CallExtract != "" && m.auth.Owns("callExtract", d.Source) {
			rec.CallExtract = d.CallExtract
		}
		if m.auth.Owns("fallbackSeconds", d.Source) {
			rec.FallbackSeconds = d.FallbackSeconds
		}
	}
	if d.AudioFileRef != "" && m.auth.Owns("audioFileRefs", d.Source) {
		rec.AudioFileRefs = appendUnique(rec.AudioFileRefs, d.AudioFileRef)
	}
}

func (m *Merger) applyWritten(rec *record.Record, d Delta) {
	statusAccepted := false
	if d.EmailMatchStatus != "" && m.auth.Owns("emailMatchStatus", d.Source) {
		switch {
		case rec.EmailMatchStatus == d.EmailMatchStatus:
			statusAccepted = true
		case m.auth.StickyHolds("emailMatchStatus", rec.EmailMatchStatus):
			// Pinned; this delta loses.
		case statusRank[d.EmailMatchStatus] >= statusRank[rec.EmailMatchStatus]:
			rec.EmailMatchStatus = d.EmailMatchStatus
			statusAccepted = true
		}
	}

	if d.EmailMatchType != "" && m.auth.Owns("emailMatchType", d.Source) {
		if statusAccepted || rec.EmailMatchStatus == record.StatusNoEmailMatch {
			rec.EmailMatchType = d.EmailMatchType
		}
	}
	if d.EmailMatchedRef != "" && m.auth.Owns("emailMatchedRef", d.Source) {
		if statusAccepted || rec.EmailMatchedRef == "" {
			rec.EmailMatchedRef = d.EmailMatchedRef
		}
	}
	if m.auth.Owns("matchConfidence", d.Source) && d.MatchConfidence > 0 {
		if statusAccepted || rec.MatchConfidence == 0 {
			rec.MatchConfidence = d.MatchConfidence
		}
	}
	if len(d.Discrepancies) > 0 && m.auth.Owns("discrepancies", d.Source) {
		// Non-empty never shrinks to empty; union keeps re-runs
		// idempotent.
		for _, disc := range d.Discrepancies {
			rec.Discrepancies = appendUnique(rec.Discrepancies, disc)
		}
	}
	if d.DiscrepancyClass != "" && m.auth.Owns("discrepancyClass", d.Source) {
		rec.DiscrepancyClass = d.DiscrepancyClass
	}
	if m.auth.Owns("reviewRequired", d.Source) {
		rec.ReviewRequired = rec.ReviewRequired || d.ReviewRequired
	}

	if d.OMSMatchID != "" && m.auth.Owns("omsMatchId", d.Source) {
		rec.OMSMatchID = d.OMSMatchID
	}
	if len(d.OMSAlertIDs) > 0 && m.auth.Owns("omsAlertIds", d.Source) {
		for _, id := range d.OMSAlertIDs {
			rec.OMSAlertIDs = appendUnique(rec.OMSAlertIDs, id)
		}
	}
}

func appendUnique(list []string, v string) []string {
	for _, have := range list {
		if have == v {
			return list
		}
	}
	return append(list, v)
}
