package jobs

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// -------------------- Status --------------------

type Status string

const (
	StatusCreated               Status = "created"
	StatusRunning               Status = "running"
	StatusCompleted             Status = "completed"
	StatusCompletedWithWarnings Status = "completed_with_warnings"
	StatusFailed                Status = "failed"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedWithWarnings, StatusFailed:
		return true
	default:
		return false
	}
}

var ErrNotFound = errors.New("jobs: job not found")
var ErrTerminal = errors.New("jobs: job already terminal")

// -------------------- Job --------------------

// Job tracks one surveillance run for one business day.
type Job struct {
	ID           string    `json:"id"`
	BusinessDate string    `json:"businessDate"`
	Status       Status    `json:"status"`
	Error        string    `json:"error,omitempty"`
	Warnings     []string  `json:"warnings,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// -------------------- Store --------------------

// Store is an injected in-memory job table. One terminal transition
// per job; terminal jobs are immutable until pruned.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
}

// Create registers a new job for the business day.
func (s *Store) Create(businessDate string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	j := &Job{
		ID:           uuid.NewString(),
		BusinessDate: businessDate,
		Status:       StatusCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.jobs[j.ID] = j
	return snapshot(j)
}

func (s *Store) Get(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return snapshot(j), nil
}

// Start moves a job to running.
func (s *Store) Start(id string) error {
	return s.transition(id, StatusRunning, "", nil)
}

// Complete finishes a job; warnings demote the status.
func (s *Store) Complete(id string, warnings []string) error {
	status := StatusCompleted
	if len(warnings) > 0 {
		status = StatusCompletedWithWarnings
	}
	return s.transition(id, status, "", warnings)
}

// Fail finishes a job with an error.
func (s *Store) Fail(id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.transition(id, StatusFailed, msg, nil)
}

func (s *Store) transition(id string, to Status, errMsg string, warnings []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Status.Terminal() {
		return ErrTerminal
	}
	j.Status = to
	j.Error = errMsg
	j.Warnings = warnings
	j.UpdatedAt = s.now()
	return nil
}

// List returns all jobs, newest first.
func (s *Store) List() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, snapshot(j))
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out
}

// Prune drops terminal jobs older than maxAge and returns how many
// went.
func (s *Store) Prune(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	n := 0
	for id, j := range s.jobs {
		if j.Status.Terminal() && j.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			n++
		}
	}
	return n
}

func snapshot(j *Job) *Job {
	cp := *j
	if j.Warnings != nil {
		cp.Warnings = append([]string(nil), j.Warnings...)
	}
	return &cp
}
