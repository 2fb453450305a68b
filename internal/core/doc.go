// Package core holds the bulk import reconciliation engine.
//
// It is independent of transport and storage: the HTTP API, the CLI and
// the tests all drive the same [Service] against a [Backend].
//
// # Profiles
//
// An import [Profile] describes one kind of sheet: its source columns,
// the key field, field types, enums and the optional aggregate that is
// booked as a side-effect record on commit. Profiles are registered at
// init time with [Register]:
//
//	core.Register(&core.Profile{
//	    Key:      "skus",
//	    Table:    "skus",
//	    KeyField: "sku_code",
//	    Fields: []core.FieldSpec{
//	        {Name: "sku_code", Source: "SKU ID", Required: true},
//	        {Name: "price", Source: "Price", Type: core.FieldNumeric},
//	    },
//	})
//
// # Import flow
//
//  1. [Service.Start] normalizes raw rows into records ([Normalizer]),
//     validates them ([Validator]) and classifies keys that already exist
//     ([Classify]) into identical and divergent duplicates.
//  2. The operator resolves divergent duplicates through the session's
//     [Controller]: apply one action to all, review one at a time, or
//     apply to the remainder. Identical duplicates follow the session's
//     default or an explicit [Service.DecideIdentical].
//  3. [Service.Commit] writes new records and overwrites, skips what was
//     skipped, and books the aggregate total ([Executor]).
//
// Commit refuses batches with validation errors or undecided duplicates.
// Write failures do not stop the commit; they are reported per record in
// the [CommitOutcome].
//
// # Concurrency
//
// Sessions live in memory and are guarded by their own mutex. Commits are
// bounded by a [CommitLimiter]; within a commit records are written by a
// fixed worker pool. An operator holds at most one unfinished session.
//
// # Errors
//
// Sentinel errors such as [ErrUnresolved] and [ErrLookupFailed] are
// wrapped with %w. [MapError] turns any error into a coded message for
// users.
package core
