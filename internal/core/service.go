package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/stockbook/internal/logging"
)

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	// CommitWorkers bounds concurrent record writes within one commit.
	CommitWorkers int

	// CommitTimeout caps one commit's write phase. Default 5m.
	CommitTimeout time.Duration

	// MaxConcurrent is the number of commits that may write at once.
	MaxConcurrent int

	// MaxWait is how long a commit waits for a slot before failing with
	// ErrTooManyCommits.
	MaxWait time.Duration

	// SessionTTL expires sessions idle this long. Default 30m.
	SessionTTL time.Duration

	// IdenticalDefault is the action identical candidates start with.
	// Empty means pending.
	IdenticalDefault Action

	// DetachCommit keeps a commit running when the caller's context is
	// cancelled, e.g. an HTTP client disconnecting. CommitTimeout still
	// applies.
	DetachCommit bool
}

const (
	DefaultCommitTimeout = 5 * time.Minute
	DefaultSessionTTL    = 30 * time.Minute
)

// Service runs import sessions: start, classify, resolve, commit, clear.
type Service struct {
	backend Backend
	history History
	limiter *CommitLimiter
	opts    Options
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session

	// operators maps an operator to their unfinished session.
	operators map[string]string
}

// NewService creates a Service. history may be nil.
func NewService(backend Backend, history History, opts Options) *Service {
	if opts.CommitTimeout <= 0 {
		opts.CommitTimeout = DefaultCommitTimeout
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.IdenticalDefault == "" {
		opts.IdenticalDefault = ActionPending
	}
	return &Service{
		backend:   backend,
		history:   history,
		limiter:   NewCommitLimiter(opts.MaxConcurrent, opts.MaxWait),
		opts:      opts,
		now:       time.Now,
		sessions:  make(map[string]*Session),
		operators: make(map[string]string),
	}
}

// ProfileInfo describes an import profile to clients.
type ProfileInfo struct {
	Key       string   `json:"key"`
	Group     string   `json:"group"`
	Label     string   `json:"label"`
	KeyColumn string   `json:"keyColumn"`
	Columns   []string `json:"columns"`
	Required  []string `json:"required"`
	Aggregate string   `json:"aggregate,omitempty"`
}

// Profiles lists the registered import profiles.
func (s *Service) Profiles() []ProfileInfo { return DescribeProfiles() }

// DescribeProfiles lists the registered import profiles.
func DescribeProfiles() []ProfileInfo {
	all := All()
	infos := make([]ProfileInfo, 0, len(all))
	for _, p := range all {
		info := ProfileInfo{Key: p.Key, Group: p.Group, Label: p.Label}
		for _, f := range p.Fields {
			info.Columns = append(info.Columns, f.Source)
			if f.Required {
				info.Required = append(info.Required, f.Source)
			}
			if f.Name == p.KeyField {
				info.KeyColumn = f.Source
			}
			if p.Aggregate != nil && f.Name == p.Aggregate.Field {
				info.Aggregate = f.Source
			}
		}
		infos = append(infos, info)
	}
	return infos
}

// StartRequest is the input of Start.
type StartRequest struct {
	Profile  string
	FileName string
	Operator string
	Rows     []RawRow

	// IdenticalDefault overrides the service default when non-empty.
	IdenticalDefault Action
}

// Start opens a session: it normalizes and validates the rows and
// classifies duplicates. Validation errors do not fail Start; they are
// part of the view and block commit.
//
// A lookup failure keeps the session in PhaseStarted and returns the
// view together with an error wrapping ErrLookupFailed. Reclassify
// retries; Discard aborts.
func (s *Service) Start(ctx context.Context, req StartRequest) (SessionView, error) {
	profile, ok := Get(req.Profile)
	if !ok {
		return SessionView{}, fmt.Errorf("%w: %s", ErrUnknownProfile, req.Profile)
	}

	identicalDefault := s.opts.IdenticalDefault
	if req.IdenticalDefault != "" {
		identicalDefault = req.IdenticalDefault
	}
	if identicalDefault != ActionPending && identicalDefault != ActionSkip && identicalDefault != ActionOverwrite {
		return SessionView{}, &ActionError{Action: identicalDefault}
	}

	records := profile.Normalizer().Normalize(req.Rows)
	if len(records) == 0 {
		return SessionView{}, ErrNoRecords
	}

	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		Profile:   profile,
		FileName:  req.FileName,
		Operator:  req.Operator,
		CreatedAt: now,
		UpdatedAt: now,
		phase:     PhaseStarted,

		identicalDefault: identicalDefault,
		batch: &Batch{
			Records: records,
			Errors:  profile.Validator().Validate(records),
		},
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := s.register(sess); err != nil {
		return SessionView{}, err
	}

	ctx = logging.ContextWithSession(ctx, sess.ID, profile.Key)
	logging.WithFields(ctx,
		"file", req.FileName,
		"records", len(records),
		"validation_errors", len(sess.batch.Errors),
	).Info("import session started")

	err := s.classify(ctx, sess)
	return sess.view(), err
}

// register stores sess, refusing a second unfinished session for the
// same operator.
func (s *Service) register(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.Operator != "" {
		if other, busy := s.operators[sess.Operator]; busy {
			return fmt.Errorf("%w: session %s", ErrSessionInFlight, other)
		}
		s.operators[sess.Operator] = sess.ID
	}
	s.sessions[sess.ID] = sess
	return nil
}

// forget removes a session and its operator claim.
func (s *Service) forget(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess.ID)
	s.releaseOperatorLocked(sess)
}

func (s *Service) releaseOperator(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseOperatorLocked(sess)
}

func (s *Service) releaseOperatorLocked(sess *Session) {
	if sess.Operator != "" && s.operators[sess.Operator] == sess.ID {
		delete(s.operators, sess.Operator)
	}
}

// classify runs the duplicate lookup for sess. Callers hold sess.mu.
func (s *Service) classify(ctx context.Context, sess *Session) error {
	identicalDefault := sess.identicalDefault
	store := s.backend.ForProfile(sess.Profile)

	candidates, err := Classify(ctx, sess.batch.Records, store, sess.Profile.EqualityPolicy())
	if err != nil {
		sess.lookupErr = err
		sess.batch.Classified = false
		logging.FromContext(ctx).Error("duplicate lookup failed", "error", err)
		return err
	}

	sess.lookupErr = nil
	sess.batch.Candidates = candidates
	sess.batch.Classified = true
	sess.ctl = NewController(sess.batch, identicalDefault)
	sess.phase = PhaseClassified
	sess.UpdatedAt = s.now()

	if identicalDefault != ActionPending && sess.ctl.IdenticalCount() > 0 {
		if err := sess.ctl.ApplyIdenticalDefault(); err != nil {
			return err
		}
	}

	logging.FromContext(ctx).Info("duplicates classified",
		"identical", sess.ctl.IdenticalCount(),
		"divergent", sess.ctl.DivergentCount(),
		"identical_default", identicalDefault,
	)
	return nil
}

// Reclassify retries the duplicate lookup of a session whose lookup failed.
func (s *Service) Reclassify(ctx context.Context, id string) (SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return SessionView{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.phase != PhaseStarted {
		return sess.view(), nil
	}
	ctx = logging.ContextWithSession(ctx, sess.ID, sess.Profile.Key)
	err = s.classify(ctx, sess)
	return sess.view(), err
}

// Get returns a snapshot of a session.
func (s *Service) Get(id string) (SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return SessionView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view(), nil
}

// ApplyToAll decides every divergent duplicate of a session.
func (s *Service) ApplyToAll(id string, a Action) (SessionView, error) {
	return s.resolve(id, func(c *Controller) error { return c.ApplyToAll(a) })
}

// ReviewNext decides the divergent duplicate under the review cursor.
func (s *Service) ReviewNext(id string, a Action) (SessionView, error) {
	return s.resolve(id, func(c *Controller) error { return c.ReviewNext(a) })
}

// ApplyToRemaining decides the rest of the divergent duplicates.
func (s *Service) ApplyToRemaining(id string, a Action) (SessionView, error) {
	return s.resolve(id, func(c *Controller) error { return c.ApplyToRemaining(a) })
}

// DecideIdentical sets one action on every identical duplicate.
func (s *Service) DecideIdentical(id string, a Action) (SessionView, error) {
	return s.resolve(id, func(c *Controller) error { return c.DecideIdentical(a) })
}

func (s *Service) resolve(id string, fn func(*Controller) error) (SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return SessionView{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.resolvable(); err != nil {
		return sess.view(), err
	}
	if err := fn(sess.ctl); err != nil {
		return sess.view(), err
	}
	sess.UpdatedAt = s.now()
	return sess.view(), nil
}

// Commit writes a resolved session. Only one commit per session runs;
// concurrent commits across sessions are bounded by the limiter.
func (s *Service) Commit(ctx context.Context, id string) (SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return SessionView{}, err
	}

	sess.mu.Lock()
	if err := sess.commitBlocker(); err != nil {
		v := sess.view()
		sess.mu.Unlock()
		return v, err
	}
	sess.phase = PhaseCommitting
	sess.mu.Unlock()

	ctx = logging.ContextWithSession(ctx, sess.ID, sess.Profile.Key)
	logger := logging.FromContext(ctx)

	if !s.limiter.TryAcquire() {
		logger.Info("waiting for a commit slot")
		if err := s.limiter.Acquire(ctx); err != nil {
			sess.mu.Lock()
			sess.phase = PhaseClassified
			v := sess.view()
			sess.mu.Unlock()
			return v, err
		}
	}
	defer s.limiter.Release()

	commitCtx := ctx
	if s.opts.DetachCommit {
		commitCtx = context.WithoutCancel(ctx)
	}
	commitCtx, cancel := context.WithTimeout(commitCtx, s.opts.CommitTimeout)
	defer cancel()

	exec := &Executor{
		Store:   s.backend.ForProfile(sess.Profile),
		Profile: sess.Profile,
		Workers: s.opts.CommitWorkers,
		BatchID: sess.ID,
		Logger:  logger,
		now:     s.now,
	}
	logger.Info("commit started", "records", len(sess.batch.Records), "workers", exec.Workers)

	outcome, err := exec.Commit(commitCtx, sess.batch, sess.ctl)

	sess.mu.Lock()
	if err != nil {
		sess.phase = PhaseClassified
		v := sess.view()
		sess.mu.Unlock()
		return v, err
	}
	sess.phase = PhaseCommitted
	sess.outcome = &outcome
	sess.UpdatedAt = s.now()
	v := sess.view()
	sess.mu.Unlock()

	s.releaseOperator(sess)

	logger.Info("commit finished",
		"created", outcome.Created,
		"updated", outcome.Updated,
		"skipped", outcome.Skipped,
		"failed", outcome.Failed,
		"not_attempted", outcome.NotAttempted,
		"side_effect_total", outcome.SideEffectTotal,
		"duration_ms", outcome.Duration.Milliseconds(),
	)

	s.recordHistory(ctx, sess, outcome)
	return v, nil
}

// recordHistory appends the outcome to the import history. A failure is
// logged; the commit already happened.
func (s *Service) recordHistory(ctx context.Context, sess *Session, outcome CommitOutcome) {
	if s.history == nil {
		return
	}
	entry := HistoryEntry{
		ID:          uuid.NewString(),
		SessionID:   sess.ID,
		Profile:     sess.Profile.Key,
		FileName:    sess.FileName,
		Operator:    sess.Operator,
		Outcome:     outcome,
		CommittedAt: s.now(),
	}
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.history.RecordImport(hctx, entry); err != nil {
		logging.FromContext(ctx).Warn("failed to record import history", "error", err)
	}
}

// Discard clears a session. A committing session cannot be discarded.
func (s *Service) Discard(id string) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	if sess.phase == PhaseCommitting {
		sess.mu.Unlock()
		return ErrSessionBusy
	}
	sess.discarded = true
	sess.mu.Unlock()

	s.forget(sess)
	return nil
}

// History returns the most recent committed imports.
func (s *Service) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if s.history == nil {
		return []HistoryEntry{}, nil
	}
	return s.history.RecentImports(ctx, limit)
}

// ActiveSessions returns the number of sessions held.
func (s *Service) ActiveSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// LimiterStatus reports commit slot usage.
func (s *Service) LimiterStatus() LimiterStatus { return s.limiter.Status() }

// Drain waits for running commits to finish.
func (s *Service) Drain(ctx context.Context) error { return s.limiter.WaitForDrain(ctx) }

func (s *Service) session(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// IsSessionError reports whether err is about session state rather than
// the import data.
func IsSessionError(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSessionInFlight) ||
		errors.Is(err, ErrSessionBusy) ||
		errors.Is(err, ErrSessionCommitted)
}
