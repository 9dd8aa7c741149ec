package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"argus/domain/evidence"
	"argus/domain/match"
	"argus/domain/order"
	"argus/infra/outbox"
	"argus/jobs"
	"argus/matcher/semantic"
	"argus/matcher/temporal"
	"argus/merge"
)

// -------------------- Collaborator Boundaries --------------------

// OrderSource supplies the day's order rows. Malformed or missing
// rows upstream surface here as zero orders, never as a crash.
type OrderSource interface {
	Orders(ctx context.Context, date time.Time) ([]order.Order, error)
}

// EvidenceSource supplies already-parsed evidence for the day. Text
// cleaning, transcription and alert extraction are its problem.
type EvidenceSource interface {
	Evidence(ctx context.Context, date time.Time) ([]evidence.Evidence, error)
}

// -------------------- Reports --------------------

// StageReport is the end-of-stage summary handed to the operator.
type StageReport struct {
	Stage          string       `json:"stage"`
	Results        int          `json:"results"`
	Matched        int          `json:"matched"`
	Fallback       int          `json:"fallback"`
	NoMatch        int          `json:"noMatch"`
	Conflicts      int          `json:"conflicts"`
	ReviewRequired int          `json:"reviewRequired"`
	Merge          merge.Report `json:"merge"`
}

// RunReport summarizes one full day run.
type RunReport struct {
	JobID           string         `json:"jobId"`
	BusinessDate    string         `json:"businessDate"`
	Orders          int            `json:"orders"`
	SkippedOrderIDs []string       `json:"skippedOrderIds,omitempty"`
	Recovered       []merge.Report `json:"recovered,omitempty"`
	Stages          []StageReport  `json:"stages"`
	Warnings        []string       `json:"warnings,omitempty"`
}

// -------------------- Service --------------------

type Service struct {
	orders   OrderSource
	evidence EvidenceSource
	temporal *temporal.Matcher
	semantic *semantic.Matcher
	merger   *merge.Merger
	outbox   *outbox.Outbox // optional event feed
	jobs     *jobs.Store

	clusterGap time.Duration
	log        *zap.Logger
}

// New wires all dependencies. The outbox may be nil when no
// downstream feed is configured.
func New(
	orders OrderSource,
	ev EvidenceSource,
	tm *temporal.Matcher,
	sm *semantic.Matcher,
	merger *merge.Merger,
	ob *outbox.Outbox,
	jobStore *jobs.Store,
	clusterGap time.Duration,
	log *zap.Logger,
) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if clusterGap <= 0 {
		clusterGap = 3 * time.Minute
	}
	return &Service{
		orders:     orders,
		evidence:   ev,
		temporal:   tm,
		semantic:   sm,
		merger:     merger,
		outbox:     ob,
		jobs:       jobStore,
		clusterGap: clusterGap,
		log:        log,
	}
}

// RunDay executes the whole pipeline for one business day. Every
// completed stage merge is durable before the next begins, so a crash
// resumes cleanly on the next invocation.
func (s *Service) RunDay(ctx context.Context, date time.Time) (*RunReport, error) {
	job := s.jobs.Create(date.Format("2006-01-02"))
	if err := s.jobs.Start(job.ID); err != nil {
		return nil, err
	}

	rep, err := s.runDay(ctx, date, job.ID)
	if err != nil {
		_ = s.jobs.Fail(job.ID, err)
		return rep, err
	}
	_ = s.jobs.Complete(job.ID, rep.Warnings)
	return rep, nil
}

func (s *Service) runDay(ctx context.Context, date time.Time, jobID string) (*RunReport, error) {
	rep := &RunReport{JobID: jobID, BusinessDate: date.Format("2006-01-02")}

	rows, err := s.orders.Orders(ctx, date)
	if err != nil {
		return rep, fmt.Errorf("service: load orders: %w", err)
	}
	reg, err := order.NewRegistry(date, rows)
	if errors.Is(err, order.ErrRegistryEmpty) {
		// Quiet day: valid, empty output.
		rep.Warnings = append(rep.Warnings, "no orders for business day")
	} else if err != nil {
		return rep, fmt.Errorf("service: build registry: %w", err)
	}
	rep.Orders = reg.Len()
	rep.SkippedOrderIDs = reg.Skipped()
	if len(reg.Skipped()) > 0 {
		rep.Warnings = append(rep.Warnings,
			fmt.Sprintf("%d order ids could not be normalized", len(reg.Skipped())))
	}

	// Base rows first: the day's store must exist before any evidence
	// merge can land.
	if _, err := s.merger.ApplyBase(date, reg); err != nil {
		return rep, fmt.Errorf("service: lay base rows: %w", err)
	}

	// Recover batches a crashed earlier run left staged.
	recovered, err := s.merger.Recover(date)
	if err != nil {
		return rep, fmt.Errorf("service: recover staged batches: %w", err)
	}
	rep.Recovered = recovered

	evs, err := s.evidence.Evidence(ctx, date)
	if err != nil {
		return rep, fmt.Errorf("service: load evidence: %w", err)
	}
	calls, groups, alerts := splitEvidence(evs)
	calls = evidence.ConsolidateCalls(calls, s.clusterGap)
	groups = evidence.MergeGroups(groups)

	// The two matchers share nothing mutable; run them in parallel.
	var (
		audioResults []match.Result
		emailResults []match.Result
		omsResults   []match.Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		audioResults = s.temporal.Match(reg, calls)
		return nil
	})
	g.Go(func() error {
		emailResults = s.semantic.MatchGroups(gctx, reg, groups)
		omsResults = s.semantic.MatchAlerts(gctx, reg, alerts)
		return nil
	})
	if err := g.Wait(); err != nil {
		return rep, err
	}

	// Allocation consumes results in a fixed order so conflicts
	// resolve the same way on every run.
	alloc := match.NewAllocator()
	audioResults = alloc.Allocate(audioResults)
	emailResults = alloc.Allocate(emailResults)
	omsResults = alloc.Allocate(omsResults)

	for _, stage := range []struct {
		name    string
		results []match.Result
	}{
		{"audio", audioResults},
		{"email", emailResults},
		{"oms", omsResults},
	} {
		sr, err := s.mergeStage(date, stage.name, stage.results)
		if err != nil {
			return rep, err
		}
		rep.Stages = append(rep.Stages, sr)
		if sr.Merge.Deferred {
			rep.Warnings = append(rep.Warnings, "stage "+stage.name+" deferred")
		}
	}

	s.log.Info("day run complete",
		zap.String("date", rep.BusinessDate),
		zap.Int("orders", rep.Orders),
		zap.Int("stages", len(rep.Stages)),
		zap.Int("warnings", len(rep.Warnings)))
	return rep, nil
}

// mergeStage folds one stage's results into the store and feeds the
// event outbox.
func (s *Service) mergeStage(date time.Time, stage string, results []match.Result) (StageReport, error) {
	sr := StageReport{Stage: stage}
	summarize(&sr, results)

	deltas := merge.DeriveDeltas(results)
	mrep, err := s.merger.Apply(date, stage, deltas)
	if err != nil {
		return sr, fmt.Errorf("service: merge stage %s: %w", stage, err)
	}
	sr.Merge = mrep

	if s.outbox != nil && !mrep.Deferred {
		day := date.Format("2006-01-02")
		for _, d := range deltas {
			ev := outbox.Event{Date: day, OrderID: d.OrderID, Stage: stage}
			if err := s.outbox.Enqueue(ev); err != nil {
				s.log.Warn("enqueue record event",
					zap.String("order", d.OrderID), zap.Error(err))
			}
		}
	}
	return sr, nil
}

func summarize(sr *StageReport, results []match.Result) {
	sr.Results = len(results)
	for i := range results {
		r := &results[i]
		switch r.Type {
		case match.NoMatch:
			sr.NoMatch++
		case match.OrderConflict:
			sr.Conflicts++
		case match.MatchedDailyFallback:
			sr.Fallback++
		default:
			sr.Matched++
		}
		if r.ReviewRequired {
			sr.ReviewRequired++
		}
	}
}

func splitEvidence(evs []evidence.Evidence) ([]evidence.Call, []evidence.InstructionGroup, []evidence.Alert) {
	var (
		calls  []evidence.Call
		groups []evidence.InstructionGroup
		alerts []evidence.Alert
	)
	for i := range evs {
		ev := &evs[i]
		switch ev.Kind {
		case evidence.KindCall:
			if ev.Call != nil {
				calls = append(calls, *ev.Call)
			}
		case evidence.KindInstruction:
			if ev.Group != nil {
				groups = append(groups, *ev.Group)
			}
		case evidence.KindAlert:
			if ev.Alert != nil {
				alerts = append(alerts, *ev.Alert)
			}
		}
	}
	return calls, groups, alerts
}
