package core

import "fmt"

// ResolutionState is the position of a Controller in the resolution flow.
type ResolutionState string

const (
	// StateUnresolved: candidates are pending and no divergent decision has
	// been completed.
	StateUnresolved ResolutionState = "unresolved"
	// StateBulkApplied: every divergent candidate is decided, identical
	// candidates still wait for their default.
	StateBulkApplied ResolutionState = "bulk_applied"
	// StateReviewInProgress: divergent candidates are being decided one at
	// a time.
	StateReviewInProgress ResolutionState = "review_in_progress"
	// StateResolved: no candidate is pending.
	StateResolved ResolutionState = "resolved"
)

// Controller sequences the operator's duplicate decisions over a batch.
// It only ever writes Action; Identical and Key are never touched.
//
// Identical candidates are decided only through DecideIdentical or
// ApplyIdenticalDefault, never as a by-product of a divergent decision.
// A Controller is not safe for concurrent use.
type Controller struct {
	batch            *Batch
	divergent        []int
	identical        []int
	identicalDefault Action

	cursor        int
	reviewing     bool
	divergentDone bool
	locked        bool
}

// NewController wraps the candidates of b. identicalDefault is what
// ApplyIdenticalDefault applies; ActionPending means there is none.
func NewController(b *Batch, identicalDefault Action) *Controller {
	c := &Controller{batch: b, identicalDefault: identicalDefault}
	for i, cand := range b.Candidates {
		if cand.Identical {
			c.identical = append(c.identical, i)
		} else {
			c.divergent = append(c.divergent, i)
		}
	}
	return c
}

// State derives the current resolution state.
func (c *Controller) State() ResolutionState {
	switch {
	case c.Pending() == 0:
		return StateResolved
	case c.reviewing:
		return StateReviewInProgress
	case c.divergentDone:
		return StateBulkApplied
	default:
		return StateUnresolved
	}
}

// Pending counts candidates without a decision.
func (c *Controller) Pending() int {
	n := 0
	for _, cand := range c.batch.Candidates {
		if cand.Action == ActionPending {
			n++
		}
	}
	return n
}

// DivergentCount and IdenticalCount size the two candidate groups.
func (c *Controller) DivergentCount() int { return len(c.divergent) }
func (c *Controller) IdenticalCount() int { return len(c.identical) }

// IdenticalDefault returns the configured default for identical candidates.
func (c *Controller) IdenticalDefault() Action { return c.identicalDefault }

// Cursor returns the review position among divergent candidates.
func (c *Controller) Cursor() int { return c.cursor }

// Current returns the divergent candidate under the review cursor.
func (c *Controller) Current() (DuplicateCandidate, bool) {
	if c.cursor >= len(c.divergent) {
		return DuplicateCandidate{}, false
	}
	return c.batch.Candidates[c.divergent[c.cursor]], true
}

// ApplyToAll decides every divergent candidate at once.
func (c *Controller) ApplyToAll(a Action) error {
	if err := c.check(a); err != nil {
		return err
	}
	for _, i := range c.divergent {
		c.batch.Candidates[i].Action = a
	}
	c.finishDivergent()
	return nil
}

// ReviewNext decides the divergent candidate under the cursor and advances.
func (c *Controller) ReviewNext(a Action) error {
	if err := c.check(a); err != nil {
		return err
	}
	if c.cursor >= len(c.divergent) {
		return ErrNothingToReview
	}
	c.batch.Candidates[c.divergent[c.cursor]].Action = a
	c.cursor++
	c.reviewing = true
	if c.cursor == len(c.divergent) {
		c.finishDivergent()
	}
	return nil
}

// ApplyToRemaining decides the candidate under the cursor and every
// divergent candidate after it.
func (c *Controller) ApplyToRemaining(a Action) error {
	if err := c.check(a); err != nil {
		return err
	}
	if c.cursor >= len(c.divergent) {
		return ErrNothingToReview
	}
	for _, i := range c.divergent[c.cursor:] {
		c.batch.Candidates[i].Action = a
	}
	c.finishDivergent()
	return nil
}

// DecideIdentical sets a on every identical candidate.
func (c *Controller) DecideIdentical(a Action) error {
	if err := c.check(a); err != nil {
		return err
	}
	for _, i := range c.identical {
		c.batch.Candidates[i].Action = a
	}
	return nil
}

// ApplyIdenticalDefault sets the configured default on identical candidates
// that are still pending.
func (c *Controller) ApplyIdenticalDefault() error {
	if c.identicalDefault == ActionPending {
		return ErrNoIdenticalPolicy
	}
	if err := c.check(c.identicalDefault); err != nil {
		return err
	}
	for _, i := range c.identical {
		if c.batch.Candidates[i].Action == ActionPending {
			c.batch.Candidates[i].Action = c.identicalDefault
		}
	}
	return nil
}

// Ready returns nil when every candidate has a decision.
func (c *Controller) Ready() error {
	if n := c.Pending(); n > 0 {
		return fmt.Errorf("%w: %d of %d undecided", ErrUnresolved, n, len(c.batch.Candidates))
	}
	return nil
}

// Lock freezes every action. Called when commit starts.
func (c *Controller) Lock() { c.locked = true }

// Locked reports whether Lock was called.
func (c *Controller) Locked() bool { return c.locked }

func (c *Controller) finishDivergent() {
	c.cursor = len(c.divergent)
	c.reviewing = false
	c.divergentDone = true
}

func (c *Controller) check(a Action) error {
	if c.locked {
		return ErrResolutionLocked
	}
	if a != ActionSkip && a != ActionOverwrite {
		return &ActionError{Action: a}
	}
	return nil
}
