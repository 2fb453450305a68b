package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultCommitWorkers is used when Executor.Workers is not positive.
const DefaultCommitWorkers = 4

// Executor writes a resolved batch to a store.
type Executor struct {
	// Store receives the record writes and the side-effect record.
	Store Store

	// Profile supplies the aggregate spec; nil means no side effect.
	Profile *Profile

	// Workers bounds concurrent writes. Non-positive means
	// DefaultCommitWorkers.
	Workers int

	// BatchID is passed to the aggregate's Build. Empty gets a random id.
	BatchID string

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	now func() time.Time
}

func (e *Executor) batchID() string {
	if e.BatchID != "" {
		return e.BatchID
	}
	return uuid.NewString()
}

type writeResult int

const (
	resultNotAttempted writeResult = iota
	resultCreated
	resultUpdated
	resultSkipped
	resultFailed
)

type recordResult struct {
	kind   writeResult
	reason string
}

type plannedWrite struct {
	action     Action
	existingID string
}

// Commit writes every record of b in row order: skip and overwrite
// follow the candidate's action, everything else is created. A failed
// write is recorded in the outcome and does not stop the batch.
//
// Commit refuses to start while b has validation errors, is unclassified
// or has pending candidates. ctl, when given, is locked for the duration
// so actions cannot change mid-commit.
//
// If ctx is cancelled, records not yet started are counted as
// NotAttempted and the aggregate side effect is not written.
func (e *Executor) Commit(ctx context.Context, b *Batch, ctl *Controller) (CommitOutcome, error) {
	if len(b.Errors) > 0 {
		return CommitOutcome{}, fmt.Errorf("%w: %d errors", ErrValidationFailed, len(b.Errors))
	}
	if !b.Classified {
		return CommitOutcome{}, ErrClassificationIncomplete
	}
	if ctl != nil {
		if err := ctl.Ready(); err != nil {
			return CommitOutcome{}, err
		}
		ctl.Lock()
	}

	plan := make(map[string]plannedWrite, len(b.Candidates))
	for _, c := range b.Candidates {
		if c.Action == ActionPending {
			return CommitOutcome{}, fmt.Errorf("%w: key %q", ErrUnresolved, c.Key)
		}
		plan[c.Key] = plannedWrite{action: c.Action, existingID: c.Existing.ID}
	}

	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := e.now
	if now == nil {
		now = time.Now
	}
	start := now()

	workers := e.Workers
	if workers <= 0 {
		workers = DefaultCommitWorkers
	}

	results := make([]recordResult, len(b.Records))

	var g errgroup.Group
	g.SetLimit(workers)

	for i, rec := range b.Records {
		if ctx.Err() != nil {
			break
		}

		p, isDuplicate := plan[rec.Key]
		if isDuplicate && p.action == ActionSkip {
			results[i] = recordResult{kind: resultSkipped}
			continue
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			var err error
			if isDuplicate {
				_, err = e.Store.UpdateRecord(ctx, p.existingID, rec.Fields)
				results[i] = recordResult{kind: resultUpdated}
			} else {
				_, err = e.Store.CreateRecord(ctx, rec.Fields)
				results[i] = recordResult{kind: resultCreated}
			}
			if err != nil {
				results[i] = recordResult{kind: resultFailed, reason: err.Error()}
			}
			return nil
		})
	}
	_ = g.Wait()

	var out CommitOutcome
	for i, r := range results {
		switch r.kind {
		case resultCreated:
			out.Created++
		case resultUpdated:
			out.Updated++
		case resultSkipped:
			out.Skipped++
		case resultFailed:
			out.Failed++
			out.Failures = append(out.Failures, WriteFailure{
				Key:    b.Records[i].Key,
				Row:    b.Records[i].SourceRow,
				Reason: r.reason,
			})
		default:
			out.NotAttempted++
		}
	}
	out.Cancelled = out.NotAttempted > 0 || ctx.Err() != nil

	if out.Failed > 0 {
		logger.Warn("commit finished with write failures", "failed", out.Failed, "attempted", out.Attempted())
	}

	if e.Profile != nil && e.Profile.Aggregate != nil {
		e.writeSideEffect(ctx, b, &out, logger, now())
	}

	out.Duration = now().Sub(start)
	return out, nil
}

func (e *Executor) writeSideEffect(ctx context.Context, b *Batch, out *CommitOutcome, logger *slog.Logger, at time.Time) {
	agg := e.Profile.Aggregate
	total := e.Profile.AggregateTotal(b.Records)
	if total.Sign() == 0 {
		return
	}
	out.SideEffectTotal = FormatDecimal(total)

	if out.Cancelled {
		out.SideEffectError = "commit cancelled before side effect"
		logger.Warn("side effect skipped", "field", agg.Field, "total", out.SideEffectTotal)
		return
	}

	if err := e.Store.CreateSideEffectRecord(ctx, agg.Build(out.SideEffectTotal, at, e.batchID())); err != nil {
		out.SideEffectError = fmt.Errorf("%w: %v", ErrSideEffectFailed, err).Error()
		logger.Error("side effect record failed", "field", agg.Field, "total", out.SideEffectTotal, "error", err)
		return
	}
	out.SideEffectCreated = true
}
