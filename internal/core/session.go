package core

import (
	"sync"
	"time"
)

// SessionPhase is the lifecycle position of an import session.
type SessionPhase string

const (
	PhaseStarted    SessionPhase = "started"    // parsed and validated, lookup not done
	PhaseClassified SessionPhase = "classified" // duplicates known, resolution open
	PhaseCommitting SessionPhase = "committing"
	PhaseCommitted  SessionPhase = "committed"
)

// Session is one operator's import from upload to commit. It owns the batch
// and its resolution controller; nothing about an import lives outside it.
type Session struct {
	// mu guards every unexported field and UpdatedAt.
	mu sync.Mutex

	ID       string
	Profile  *Profile
	FileName string

	// Operator is the authenticated user who started the import, if any.
	Operator string

	CreatedAt time.Time
	// UpdatedAt moves on every mutation; the janitor expires on it.
	UpdatedAt time.Time

	phase SessionPhase

	// identicalDefault is applied to identical candidates once the
	// lookup succeeds.
	identicalDefault Action

	batch *Batch

	// ctl is nil until the batch is classified.
	ctl *Controller

	// lookupErr holds the last duplicate lookup failure. It blocks commit
	// until a retry succeeds.
	lookupErr error

	// outcome is set once, by a commit that reached the store.
	outcome *CommitOutcome

	// discarded sessions reject every further operation.
	discarded bool
}

// sample sizes for SessionView
const (
	maxNewRecordSamples = 10
	maxErrorsInView     = 200
)

// PreviewSummary counts what a commit would do.
type PreviewSummary struct {
	Records   int `json:"records"`
	New       int `json:"new"`
	Identical int `json:"identical"`
	Divergent int `json:"divergent"`
	Pending   int `json:"pending"`
	Errors    int `json:"errors"`
	ErrorRows int `json:"errorRows"`
}

// CandidateView is a duplicate candidate with its field diff.
type CandidateView struct {
	Key        string      `json:"key"`
	Row        int         `json:"row"`
	Identical  bool        `json:"identical"`
	Action     Action      `json:"action"`
	ExistingID string      `json:"existingId"`
	Current    Fields      `json:"current"`
	Incoming   Fields      `json:"incoming"`
	Changed    []FieldName `json:"changed"`
}

// SessionView is a read-only snapshot of a session.
type SessionView struct {
	ID       string       `json:"id"`
	Profile  string       `json:"profile"`
	FileName string       `json:"fileName"`
	Operator string       `json:"operator,omitempty"`
	Phase    SessionPhase `json:"phase"`

	Resolution       ResolutionState `json:"resolution,omitempty"`
	IdenticalDefault Action          `json:"identicalDefault"`

	Summary    PreviewSummary    `json:"summary"`
	Errors     []ValidationError `json:"errors"`
	Candidates []CandidateView   `json:"candidates"`
	Current    *CandidateView    `json:"current,omitempty"`

	// ReviewCursor is the index of Current among the divergent candidates.
	ReviewCursor int `json:"reviewCursor"`

	NewSamples []ImportRecord `json:"newSamples"`

	CanCommit   bool   `json:"canCommit"`
	Blocker     string `json:"blocker,omitempty"`
	LookupError string `json:"lookupError,omitempty"`

	Outcome *CommitOutcome `json:"outcome,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// commitBlocker explains why the session cannot commit, or returns nil.
// Callers hold s.mu.
func (s *Session) commitBlocker() error {
	if s.discarded {
		return ErrSessionNotFound
	}
	switch s.phase {
	case PhaseCommitting:
		return ErrSessionBusy
	case PhaseCommitted:
		return ErrSessionCommitted
	}
	if len(s.batch.Errors) > 0 {
		return ErrValidationFailed
	}
	if !s.batch.Classified || s.ctl == nil {
		return ErrClassificationIncomplete
	}
	return s.ctl.Ready()
}

// resolvable reports whether duplicate decisions may change. Callers hold s.mu.
func (s *Session) resolvable() error {
	if s.discarded {
		return ErrSessionNotFound
	}
	switch s.phase {
	case PhaseCommitting:
		return ErrSessionBusy
	case PhaseCommitted:
		return ErrSessionCommitted
	case PhaseStarted:
		return ErrClassificationIncomplete
	}
	return nil
}

// view builds a snapshot. Callers hold s.mu.
func (s *Session) view() SessionView {
	v := SessionView{
		ID:        s.ID,
		Profile:   s.Profile.Key,
		FileName:  s.FileName,
		Operator:  s.Operator,
		Phase:     s.phase,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		Outcome:   s.outcome,
	}

	b := s.batch
	v.Summary.Records = len(b.Records)
	v.Summary.Errors = len(b.Errors)
	v.Summary.ErrorRows = len(ErrorRows(b.Errors))
	v.Errors = b.Errors
	if len(v.Errors) > maxErrorsInView {
		v.Errors = v.Errors[:maxErrorsInView]
	}

	policy := s.Profile.EqualityPolicy()
	v.Candidates = make([]CandidateView, 0, len(b.Candidates))
	for _, c := range b.Candidates {
		if c.Identical {
			v.Summary.Identical++
		} else {
			v.Summary.Divergent++
		}
		if c.Action == ActionPending {
			v.Summary.Pending++
		}
		v.Candidates = append(v.Candidates, candidateView(c, policy))
	}

	if b.Classified {
		dup := make(map[string]bool, len(b.Candidates))
		for _, c := range b.Candidates {
			dup[c.Key] = true
		}
		for _, r := range b.Records {
			if dup[r.Key] {
				continue
			}
			v.Summary.New++
			if len(v.NewSamples) < maxNewRecordSamples {
				v.NewSamples = append(v.NewSamples, r)
			}
		}
	}

	if s.ctl != nil {
		v.Resolution = s.ctl.State()
		v.IdenticalDefault = s.ctl.IdenticalDefault()
		v.ReviewCursor = s.ctl.Cursor()
		if cur, ok := s.ctl.Current(); ok {
			cv := candidateView(cur, policy)
			v.Current = &cv
		}
	}
	if s.lookupErr != nil {
		v.LookupError = s.lookupErr.Error()
	}

	if err := s.commitBlocker(); err != nil {
		v.Blocker = err.Error()
	} else {
		v.CanCommit = true
	}
	return v
}

func candidateView(c DuplicateCandidate, policy EqualityPolicy) CandidateView {
	return CandidateView{
		Key:        c.Key,
		Row:        c.Importing.SourceRow,
		Identical:  c.Identical,
		Action:     c.Action,
		ExistingID: c.Existing.ID,
		Current:    c.Existing.Fields,
		Incoming:   c.Importing.Fields,
		Changed:    policy.Changed(c.Importing.Fields, c.Existing.Fields),
	}
}
