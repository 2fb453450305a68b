package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

var commitTime = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

// classifiedBatch returns a batch over store with A new, B divergent and
// C identical, classified against store.
func classifiedBatch(t *testing.T, items *Profile, store *memStore) (*Batch, *Controller) {
	t.Helper()
	b := &Batch{Records: []ImportRecord{
		rec(2, "A", "title", "Widget", "price", "10", "shipping", "2.50"),
		rec(3, "B", "title", "Gadget", "price", "6", "shipping", "1.25"),
		rec(4, "C", "title", "Gizmo", "price", "7.00", "shipping", "1"),
	}}
	b.Errors = items.Validator().Validate(b.Records)

	cands, err := Classify(context.Background(), b.Records, store, items.EqualityPolicy())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	b.Candidates = cands
	b.Classified = true
	return b, NewController(b, ActionPending)
}

func seededStore() *memStore {
	return newMemStore("code",
		Fields{"code": "B", "title": "Gadget", "price": "5"},
		Fields{"code": "C", "title": "Gizmo", "price": "7"},
	)
}

func newExecutor(store *memStore, p *Profile) *Executor {
	return &Executor{Store: store, Profile: p, Workers: 3, BatchID: "b1", now: func() time.Time { return commitTime }}
}

func TestExecutor_Commit(t *testing.T) {
	items, _ := testProfiles()
	store := seededStore()
	b, ctl := classifiedBatch(t, items, store)

	if err := ctl.ApplyToAll(ActionOverwrite); err != nil {
		t.Fatal(err)
	}
	if err := ctl.DecideIdentical(ActionSkip); err != nil {
		t.Fatal(err)
	}

	out, err := newExecutor(store, items).Commit(context.Background(), b, ctl)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if out.Created != 1 || out.Updated != 1 || out.Skipped != 1 || out.Failed != 0 {
		t.Errorf("outcome = %+v, want 1 created, 1 updated, 1 skipped", out)
	}
	if out.Attempted() != len(b.Records) || out.Cancelled || out.NotAttempted != 0 {
		t.Errorf("outcome = %+v, want every record attempted", out)
	}

	if r, ok := store.get("A"); !ok || r.Fields["title"] != "Widget" {
		t.Errorf("A not created: %+v", r)
	}
	if r, _ := store.get("B"); r.Fields["price"] != "6" || r.ID != "id-1" {
		t.Errorf("B not overwritten in place: %+v", r)
	}
	if r, _ := store.get("C"); r.Fields["price"] != "7" {
		t.Errorf("C should be untouched: %+v", r)
	}

	if !ctl.Locked() {
		t.Error("controller should be locked by commit")
	}

	if out.SideEffectTotal != "4.75" || !out.SideEffectCreated {
		t.Errorf("side effect total = %q created = %v, want 4.75 written", out.SideEffectTotal, out.SideEffectCreated)
	}
	if len(store.sideEffect) != 1 {
		t.Fatalf("side effect records = %d, want 1", len(store.sideEffect))
	}
	if got := store.sideEffect[0]; got["amount"] != "4.75" || got["reference"] != "shipping-20250630-b1" {
		t.Errorf("side effect record = %v", got)
	}
}

func TestExecutor_Commit_AllSkipped(t *testing.T) {
	items, _ := testProfiles()
	store := seededStore()
	b := &Batch{Records: []ImportRecord{
		rec(2, "B", "title", "Gadget", "price", "6"),
		rec(3, "C", "title", "Gizmo", "price", "7"),
	}}
	cands, _ := Classify(context.Background(), b.Records, store, items.EqualityPolicy())
	b.Candidates, b.Classified = cands, true
	ctl := NewController(b, ActionSkip)
	_ = ctl.ApplyToAll(ActionSkip)
	_ = ctl.ApplyIdenticalDefault()

	out, err := newExecutor(store, items).Commit(context.Background(), b, ctl)
	if err != nil {
		t.Fatal(err)
	}
	if out.Skipped != 2 || out.Created+out.Updated+out.Failed != 0 {
		t.Errorf("outcome = %+v, want 2 skipped", out)
	}
	if out.SideEffectTotal != "" || len(store.sideEffect) != 0 {
		t.Errorf("zero aggregate must not write a side effect: %+v", out)
	}
}

func TestExecutor_Commit_WriteFailureContinues(t *testing.T) {
	items, _ := testProfiles()
	store := seededStore()
	store.failKeys["A"] = true
	b, ctl := classifiedBatch(t, items, store)
	_ = ctl.ApplyToAll(ActionOverwrite)
	_ = ctl.DecideIdentical(ActionOverwrite)

	out, err := newExecutor(store, items).Commit(context.Background(), b, ctl)
	if err != nil {
		t.Fatal(err)
	}
	if out.Failed != 1 || out.Updated != 2 {
		t.Errorf("outcome = %+v, want 1 failed, 2 updated", out)
	}
	if len(out.Failures) != 1 || out.Failures[0].Key != "A" || out.Failures[0].Row != 2 {
		t.Errorf("failures = %+v, want A on row 2", out.Failures)
	}
	if !out.SideEffectCreated {
		t.Error("write failures should not block the side effect")
	}
}

func TestExecutor_Commit_SideEffectFailure(t *testing.T) {
	items, _ := testProfiles()
	store := seededStore()
	store.sideErr = errors.New("ledger unavailable")
	b, ctl := classifiedBatch(t, items, store)
	_ = ctl.ApplyToAll(ActionSkip)
	_ = ctl.DecideIdentical(ActionSkip)

	out, err := newExecutor(store, items).Commit(context.Background(), b, ctl)
	if err != nil {
		t.Fatalf("side effect failure must not fail the commit: %v", err)
	}
	if out.Created != 1 {
		t.Errorf("Created = %d, record writes should stand", out.Created)
	}
	if out.SideEffectCreated || !strings.Contains(out.SideEffectError, "ledger unavailable") {
		t.Errorf("side effect error = %q created = %v", out.SideEffectError, out.SideEffectCreated)
	}
}

func TestExecutor_Commit_Cancelled(t *testing.T) {
	items, _ := testProfiles()
	store := seededStore()
	b, ctl := classifiedBatch(t, items, store)
	_ = ctl.ApplyToAll(ActionOverwrite)
	_ = ctl.DecideIdentical(ActionOverwrite)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := newExecutor(store, items).Commit(ctx, b, ctl)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Cancelled || out.NotAttempted != 3 || out.Attempted() != 0 {
		t.Errorf("outcome = %+v, want 3 not attempted", out)
	}
	if out.SideEffectCreated || len(store.sideEffect) != 0 {
		t.Error("cancelled commit must not write the side effect")
	}
	if out.SideEffectError == "" {
		t.Error("cancelled commit should report the skipped side effect")
	}
}

func TestExecutor_Commit_Preconditions(t *testing.T) {
	items, _ := testProfiles()

	tests := []struct {
		name    string
		setup   func(t *testing.T) (*Batch, *Controller)
		wantErr error
	}{
		{
			name: "validation errors",
			setup: func(t *testing.T) (*Batch, *Controller) {
				b, ctl := classifiedBatch(t, items, seededStore())
				b.Errors = []ValidationError{{Row: 2, Kind: MissingRequired}}
				return b, ctl
			},
			wantErr: ErrValidationFailed,
		},
		{
			name: "unclassified",
			setup: func(t *testing.T) (*Batch, *Controller) {
				return &Batch{Records: []ImportRecord{rec(2, "A", "title", "W")}}, nil
			},
			wantErr: ErrClassificationIncomplete,
		},
		{
			name: "pending with controller",
			setup: func(t *testing.T) (*Batch, *Controller) {
				return classifiedBatch(t, items, seededStore())
			},
			wantErr: ErrUnresolved,
		},
		{
			name: "pending without controller",
			setup: func(t *testing.T) (*Batch, *Controller) {
				b, _ := classifiedBatch(t, items, seededStore())
				return b, nil
			},
			wantErr: ErrUnresolved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seededStore()
			b, ctl := tt.setup(t)

			_, err := newExecutor(store, items).Commit(context.Background(), b, ctl)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Commit() error = %v, want %v", err, tt.wantErr)
			}
			if _, ok := store.get("A"); ok {
				t.Error("refused commit wrote a record")
			}
			if ctl != nil && ctl.Locked() {
				t.Error("refused commit locked the controller")
			}
		})
	}
}
