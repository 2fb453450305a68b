package core

import (
	"errors"
	"fmt"
)

var (
	ErrValidationFailed         = errors.New("batch has validation errors")
	ErrClassificationIncomplete = errors.New("duplicate classification is incomplete")
	ErrUnresolved               = errors.New("duplicate candidates still pending")
	ErrLookupFailed             = errors.New("duplicate lookup failed")
	ErrSideEffectFailed         = errors.New("side effect record failed")

	ErrInvalidAction     = errors.New("invalid action")
	ErrResolutionLocked  = errors.New("resolution is locked by commit")
	ErrNothingToReview   = errors.New("no divergent duplicate left to review")
	ErrNoIdenticalPolicy = errors.New("no default configured for identical duplicates")

	ErrUnknownProfile   = errors.New("unknown import profile")
	ErrNoRecords        = errors.New("file contains no importable rows")
	ErrSessionNotFound  = errors.New("import session not found")
	ErrSessionInFlight  = errors.New("operator already has an import in progress")
	ErrSessionCommitted = errors.New("import session already committed")
	ErrSessionBusy      = errors.New("import session is committing")
	ErrTooManyCommits   = errors.New("too many concurrent commits")
)

// LookupError reports a failed duplicate lookup. The batch it belongs to
// stays unclassified.
type LookupError struct {
	Keys int
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("duplicate lookup for %d keys failed: %v", e.Keys, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

func (e *LookupError) Is(target error) bool { return target == ErrLookupFailed }

// ActionError reports an action that cannot be applied.
type ActionError struct {
	Action Action
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("invalid action %q: must be skip or overwrite", e.Action)
}

func (e *ActionError) Is(target error) bool { return target == ErrInvalidAction }
