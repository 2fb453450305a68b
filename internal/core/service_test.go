package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func itemRows() []RawRow {
	return []RawRow{
		{Line: 2, Cells: map[string]string{"Code": "A", "Title": "Widget", "Price": "10", "Shipping": "2"}},
		{Line: 3, Cells: map[string]string{"Code": "B", "Title": "Gadget", "Price": "6", "Shipping": "1"}},
		{Line: 4, Cells: map[string]string{"Code": "C", "Title": "Gizmo", "Price": "7.00"}},
	}
}

func newTestService(t *testing.T, opts Options) (*Service, *memStore, *memHistory) {
	t.Helper()
	registerTestProfiles(t)
	store := seededStore()
	hist := &memHistory{}
	return NewService(store, hist, opts), store, hist
}

func TestService_ImportFlow(t *testing.T) {
	svc, store, hist := newTestService(t, Options{})
	ctx := context.Background()

	v, err := svc.Start(ctx, StartRequest{Profile: "items", FileName: "items.csv", Operator: "ana", Rows: itemRows()})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	want := PreviewSummary{Records: 3, New: 1, Identical: 1, Divergent: 1, Pending: 2}
	if v.Summary != want {
		t.Errorf("summary = %+v, want %+v", v.Summary, want)
	}
	if v.Phase != PhaseClassified || v.Resolution != StateUnresolved || v.CanCommit {
		t.Errorf("view = phase %s resolution %s canCommit %v", v.Phase, v.Resolution, v.CanCommit)
	}
	if v.Current == nil || v.Current.Key != "B" || len(v.Current.Changed) != 1 || v.Current.Changed[0] != "price" {
		t.Errorf("current = %+v, want B with price changed", v.Current)
	}

	if _, err := svc.Commit(ctx, v.ID); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("Commit() while pending error = %v, want ErrUnresolved", err)
	}

	if v.ReviewCursor != 0 {
		t.Errorf("ReviewCursor = %d before review, want 0", v.ReviewCursor)
	}
	reviewed, err := svc.ReviewNext(v.ID, ActionOverwrite)
	if err != nil {
		t.Fatal(err)
	}
	if reviewed.ReviewCursor != 1 || reviewed.Current != nil {
		t.Errorf("after ReviewNext cursor = %d current = %+v, want 1 and none", reviewed.ReviewCursor, reviewed.Current)
	}
	v, err = svc.DecideIdentical(v.ID, ActionSkip)
	if err != nil {
		t.Fatal(err)
	}
	if !v.CanCommit || v.Resolution != StateResolved {
		t.Fatalf("view after decisions = %+v", v)
	}

	v, err = svc.Commit(ctx, v.ID)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if v.Phase != PhaseCommitted || v.Outcome == nil {
		t.Fatalf("view after commit = %+v", v)
	}
	if o := v.Outcome; o.Created != 1 || o.Updated != 1 || o.Skipped != 1 || o.SideEffectTotal != "3" {
		t.Errorf("outcome = %+v", o)
	}
	if r, _ := store.get("B"); r.Fields["price"] != "6" {
		t.Errorf("B = %+v, want overwritten", r)
	}

	if len(hist.entries) != 1 || hist.entries[0].SessionID != v.ID || hist.entries[0].Operator != "ana" {
		t.Errorf("history = %+v", hist.entries)
	}
	entries, err := svc.History(ctx, 10)
	if err != nil || len(entries) != 1 {
		t.Errorf("History() = %v, %v", entries, err)
	}

	if _, err := svc.Commit(ctx, v.ID); !errors.Is(err, ErrSessionCommitted) {
		t.Errorf("second Commit() error = %v, want ErrSessionCommitted", err)
	}
	if _, err := svc.ApplyToAll(v.ID, ActionSkip); !errors.Is(err, ErrSessionCommitted) {
		t.Errorf("ApplyToAll() after commit error = %v, want ErrSessionCommitted", err)
	}

	// the committed session no longer blocks the operator
	if _, err := svc.Start(ctx, StartRequest{Profile: "items", Operator: "ana", Rows: itemRows()}); err != nil {
		t.Errorf("Start() after commit error = %v", err)
	}
}

func TestService_IdenticalDefault(t *testing.T) {
	svc, _, _ := newTestService(t, Options{IdenticalDefault: ActionSkip})
	ctx := context.Background()

	v, err := svc.Start(ctx, StartRequest{Profile: "items", Rows: itemRows()})
	if err != nil {
		t.Fatal(err)
	}
	if v.Summary.Pending != 1 || v.IdenticalDefault != ActionSkip {
		t.Errorf("summary = %+v default = %s, want identical decided by default", v.Summary, v.IdenticalDefault)
	}

	v, err = svc.Start(ctx, StartRequest{Profile: "items", Rows: itemRows(), IdenticalDefault: ActionPending})
	if err != nil {
		t.Fatal(err)
	}
	if v.Summary.Pending != 2 {
		t.Errorf("per-request pending default ignored: %+v", v.Summary)
	}

	if _, err := svc.Start(ctx, StartRequest{Profile: "items", Rows: itemRows(), IdenticalDefault: "merge"}); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("Start() with bad default error = %v, want ErrInvalidAction", err)
	}
}

func TestService_StartErrors(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()

	if _, err := svc.Start(ctx, StartRequest{Profile: "nope", Rows: itemRows()}); !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("unknown profile error = %v", err)
	}
	rows := []RawRow{{Line: 2, Cells: map[string]string{"Title": "keyless"}}}
	if _, err := svc.Start(ctx, StartRequest{Profile: "items", Rows: rows}); !errors.Is(err, ErrNoRecords) {
		t.Errorf("keyless rows error = %v, want ErrNoRecords", err)
	}
	if svc.ActiveSessions() != 0 {
		t.Errorf("failed starts left %d sessions", svc.ActiveSessions())
	}
}

func TestService_ValidationErrorsBlockCommit(t *testing.T) {
	svc, store, _ := newTestService(t, Options{})
	ctx := context.Background()

	rows := append(itemRows(), RawRow{Line: 5, Cells: map[string]string{"Code": "D", "Price": "cheap"}})
	v, err := svc.Start(ctx, StartRequest{Profile: "items", Rows: rows})
	if err != nil {
		t.Fatalf("validation errors must not fail Start: %v", err)
	}
	if v.Summary.Errors != 2 || v.Summary.ErrorRows != 1 || v.CanCommit {
		t.Errorf("summary = %+v canCommit = %v", v.Summary, v.CanCommit)
	}
	if v.Phase != PhaseClassified {
		t.Errorf("duplicates should still be classified for preview, phase = %s", v.Phase)
	}

	_, _ = svc.ApplyToAll(v.ID, ActionSkip)
	_, _ = svc.DecideIdentical(v.ID, ActionSkip)
	if _, err := svc.Commit(ctx, v.ID); !errors.Is(err, ErrValidationFailed) {
		t.Errorf("Commit() error = %v, want ErrValidationFailed", err)
	}
	if _, ok := store.get("A"); ok {
		t.Error("blocked commit wrote records")
	}
}

func TestService_LookupFailureAndReclassify(t *testing.T) {
	svc, store, _ := newTestService(t, Options{})
	ctx := context.Background()
	store.lookupErr = errors.New("connection refused")

	v, err := svc.Start(ctx, StartRequest{Profile: "items", Rows: itemRows()})
	if !errors.Is(err, ErrLookupFailed) {
		t.Fatalf("Start() error = %v, want ErrLookupFailed", err)
	}
	if v.ID == "" || v.Phase != PhaseStarted || v.LookupError == "" || v.CanCommit {
		t.Errorf("view = %+v, want started session with lookup error", v)
	}
	if v.Summary.New != 0 {
		t.Errorf("unclassified batch reported %d new records", v.Summary.New)
	}

	if _, err := svc.Commit(ctx, v.ID); !errors.Is(err, ErrClassificationIncomplete) {
		t.Errorf("Commit() error = %v, want ErrClassificationIncomplete", err)
	}
	if _, err := svc.ApplyToAll(v.ID, ActionSkip); !errors.Is(err, ErrClassificationIncomplete) {
		t.Errorf("ApplyToAll() error = %v, want ErrClassificationIncomplete", err)
	}

	store.mu.Lock()
	store.lookupErr = nil
	store.mu.Unlock()

	v, err = svc.Reclassify(ctx, v.ID)
	if err != nil {
		t.Fatalf("Reclassify() error = %v", err)
	}
	if v.Phase != PhaseClassified || v.LookupError != "" || v.Summary.Divergent != 1 {
		t.Errorf("view after reclassify = %+v", v)
	}
}

func TestService_OperatorInFlight(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()

	first, err := svc.Start(ctx, StartRequest{Profile: "items", Operator: "ana", Rows: itemRows()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Start(ctx, StartRequest{Profile: "items", Operator: "ana", Rows: itemRows()}); !errors.Is(err, ErrSessionInFlight) {
		t.Fatalf("second Start() error = %v, want ErrSessionInFlight", err)
	}
	if _, err := svc.Start(ctx, StartRequest{Profile: "items", Operator: "ben", Rows: itemRows()}); err != nil {
		t.Errorf("other operator blocked: %v", err)
	}

	if err := svc.Discard(first.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(first.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() after Discard error = %v", err)
	}
	if _, err := svc.Start(ctx, StartRequest{Profile: "items", Operator: "ana", Rows: itemRows()}); err != nil {
		t.Errorf("Start() after Discard error = %v", err)
	}
}

func TestService_CommitInProgress(t *testing.T) {
	svc, store, _ := newTestService(t, Options{})
	ctx := context.Background()
	store.block = make(chan struct{})

	v, _ := svc.Start(ctx, StartRequest{Profile: "items", Rows: itemRows()})
	_, _ = svc.ApplyToAll(v.ID, ActionOverwrite)
	_, _ = svc.DecideIdentical(v.ID, ActionOverwrite)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Commit(ctx, v.ID)
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		cur, _ := svc.Get(v.ID)
		if cur.Phase == PhaseCommitting {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("commit never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := svc.Commit(ctx, v.ID); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("concurrent Commit() error = %v, want ErrSessionBusy", err)
	}
	if _, err := svc.ApplyToAll(v.ID, ActionSkip); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("ApplyToAll() during commit error = %v, want ErrSessionBusy", err)
	}
	if err := svc.Discard(v.ID); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("Discard() during commit error = %v, want ErrSessionBusy", err)
	}
	if svc.ExpireIdle() != 0 {
		t.Error("janitor expired a committing session")
	}

	close(store.block)
	if err := <-done; err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if st := svc.LimiterStatus(); st.Active != 0 {
		t.Errorf("limiter still holds %d slots", st.Active)
	}
}

func TestService_ExpireIdle(t *testing.T) {
	svc, _, _ := newTestService(t, Options{SessionTTL: time.Minute})
	ctx := context.Background()

	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	old, _ := svc.Start(ctx, StartRequest{Profile: "items", Operator: "ana", Rows: itemRows()})
	now = now.Add(50 * time.Second)
	fresh, _ := svc.Start(ctx, StartRequest{Profile: "items", Operator: "ben", Rows: itemRows()})

	now = now.Add(30 * time.Second)
	if n := svc.ExpireIdle(); n != 1 {
		t.Fatalf("ExpireIdle() = %d, want 1", n)
	}
	if _, err := svc.Get(old.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("old session still present: %v", err)
	}
	if _, err := svc.Get(fresh.ID); err != nil {
		t.Errorf("fresh session expired: %v", err)
	}
	if _, err := svc.Start(ctx, StartRequest{Profile: "items", Operator: "ana", Rows: itemRows()}); err != nil {
		t.Errorf("expired session kept the operator claim: %v", err)
	}
}

func TestService_Profiles(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})

	infos := svc.Profiles()
	if len(infos) != 2 || infos[0].Key != "ledger" || infos[1].Key != "items" {
		t.Fatalf("Profiles() = %+v, want ledger (Finance) before items (Inventory)", infos)
	}
	items := infos[1]
	if items.KeyColumn != "Code" || items.Aggregate != "Shipping" || len(items.Required) != 2 {
		t.Errorf("items info = %+v", items)
	}
}

func TestIsSessionError(t *testing.T) {
	if !IsSessionError(ErrSessionBusy) || IsSessionError(ErrUnresolved) {
		t.Error("IsSessionError misclassifies")
	}
}

func TestService_CommitWaitsForSlot(t *testing.T) {
	svc, store, _ := newTestService(t, Options{MaxConcurrent: 1, MaxWait: 50 * time.Millisecond})
	ctx := context.Background()
	store.block = make(chan struct{})

	first, _ := svc.Start(ctx, StartRequest{Profile: "items", Operator: "ana", Rows: itemRows()})
	_, _ = svc.ApplyToAll(first.ID, ActionOverwrite)
	_, _ = svc.DecideIdentical(first.ID, ActionOverwrite)
	second, _ := svc.Start(ctx, StartRequest{Profile: "items", Operator: "ben", Rows: []RawRow{
		{Line: 2, Cells: map[string]string{"Code": "D", "Title": "Doohickey"}},
	}})
	if !second.CanCommit {
		t.Fatalf("second session = %+v, want committable", second)
	}

	done := make(chan error, 1)
	go func() {
		_, err := svc.Commit(ctx, first.ID)
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for svc.LimiterStatus().Active != 1 {
		if time.Now().After(deadline) {
			t.Fatal("first commit never took a slot")
		}
		time.Sleep(5 * time.Millisecond)
	}

	v, err := svc.Commit(ctx, second.ID)
	if !errors.Is(err, ErrTooManyCommits) {
		t.Fatalf("Commit() with no free slot error = %v, want ErrTooManyCommits", err)
	}
	if v.Phase != PhaseClassified || !v.CanCommit {
		t.Errorf("view after timeout = phase %s canCommit %v, want a retryable session", v.Phase, v.CanCommit)
	}

	close(store.block)
	if err := <-done; err != nil {
		t.Fatalf("first Commit() error = %v", err)
	}
	if _, err := svc.Commit(ctx, second.ID); err != nil {
		t.Errorf("retried Commit() error = %v", err)
	}
}
