package core

import (
	"context"
	"time"
)

// FieldName is a canonical field of an import profile. It doubles as the
// database column name.
type FieldName string

// Fields holds raw cell values keyed by canonical field.
type Fields map[FieldName]string

// Clone returns a copy of f.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// RawRow is one spreadsheet row as produced by a table parser.
type RawRow struct {
	// Line is the 1-based row number in the source sheet.
	Line  int
	Cells map[string]string
}

// ImportRecord is one normalized source row. Never mutated after Normalize.
type ImportRecord struct {
	SourceRow int    `json:"row"`
	Key       string `json:"key"`
	Fields    Fields `json:"fields"`
}

// ExternalRecord is a record that already exists in the store.
type ExternalRecord struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields Fields `json:"fields"`
}

// ErrorKind classifies a validation error.
type ErrorKind string

const (
	MissingRequired  ErrorKind = "missing_required"
	InvalidNumber    ErrorKind = "invalid_number"
	InvalidDate      ErrorKind = "invalid_date"
	InvalidValue     ErrorKind = "invalid_value"
	InvalidBool      ErrorKind = "invalid_bool"
	DuplicateInBatch ErrorKind = "duplicate_in_batch"
)

// Action is the resolution chosen for a duplicate candidate.
type Action string

const (
	ActionPending   Action = "pending"
	ActionSkip      Action = "skip"
	ActionOverwrite Action = "overwrite"
)

// ParseAction parses an operator supplied action. Empty input parses as
// pending.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case "", ActionPending:
		return ActionPending, nil
	case ActionSkip, ActionOverwrite:
		return Action(s), nil
	}
	return "", &ActionError{Action: Action(s)}
}

// DuplicateCandidate pairs an incoming record with the existing record that
// shares its key.
type DuplicateCandidate struct {
	Key       string         `json:"key"`
	Existing  ExternalRecord `json:"existing"`
	Importing ImportRecord   `json:"importing"`
	Identical bool           `json:"identical"`
	Action    Action         `json:"action"`
}

// Batch is one import: the records, their validation errors and duplicate
// classification. It is the unit of commit.
type Batch struct {
	Records    []ImportRecord
	Errors     []ValidationError
	Candidates []DuplicateCandidate

	// Classified is true once duplicate lookup has succeeded for Records.
	Classified bool
}

// Candidate returns the candidate for key, if any.
func (b *Batch) Candidate(key string) (DuplicateCandidate, bool) {
	for _, c := range b.Candidates {
		if c.Key == key {
			return c, true
		}
	}
	return DuplicateCandidate{}, false
}

// WriteFailure describes one record whose write failed during commit.
type WriteFailure struct {
	Key    string `json:"key"`
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// CommitOutcome summarizes one commit. Created+Updated+Skipped+Failed is the
// number of records attempted.
type CommitOutcome struct {
	Created  int            `json:"created"`
	Updated  int            `json:"updated"`
	Skipped  int            `json:"skipped"`
	Failed   int            `json:"failed"`
	Failures []WriteFailure `json:"failures"`

	// NotAttempted counts records never started because the commit was
	// cancelled or timed out.
	NotAttempted int  `json:"notAttempted"`
	Cancelled    bool `json:"cancelled"`

	SideEffectTotal   string `json:"sideEffectTotal,omitempty"`
	SideEffectCreated bool   `json:"sideEffectCreated"`
	SideEffectError   string `json:"sideEffectError,omitempty"`

	Duration time.Duration `json:"durationNs"`
}

// Attempted returns the number of records the commit reached.
func (o CommitOutcome) Attempted() int {
	return o.Created + o.Updated + o.Skipped + o.Failed
}

// Lookup finds existing records by key in one batched call. Empty keys
// yield an empty result.
type Lookup interface {
	FindExisting(ctx context.Context, keys []string) ([]ExternalRecord, error)
}

// Writer creates and updates records. Neither call is idempotent.
type Writer interface {
	CreateRecord(ctx context.Context, fields Fields) (ExternalRecord, error)
	UpdateRecord(ctx context.Context, id string, fields Fields) (ExternalRecord, error)
}

// SideEffectWriter stores the aggregate summary record of a commit.
type SideEffectWriter interface {
	CreateSideEffectRecord(ctx context.Context, fields Fields) error
}

// Store is everything a profile's import needs from persistence.
type Store interface {
	Lookup
	Writer
	SideEffectWriter
}

// Backend hands out a Store bound to one profile.
type Backend interface {
	ForProfile(p *Profile) Store
}

// HistoryEntry is one committed import.
type HistoryEntry struct {
	ID          string        `json:"id"`
	SessionID   string        `json:"sessionId"`
	Profile     string        `json:"profile"`
	FileName    string        `json:"fileName"`
	Operator    string        `json:"operator"`
	Outcome     CommitOutcome `json:"outcome"`
	CommittedAt time.Time     `json:"committedAt"`
}

// History persists committed imports.
type History interface {
	RecordImport(ctx context.Context, entry HistoryEntry) error
	RecentImports(ctx context.Context, limit int) ([]HistoryEntry, error)
}
