package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory Store keyed by record key.
type memStore struct {
	mu       sync.Mutex
	keyField FieldName
	records  map[string]ExternalRecord
	nextID   int

	lookupErr  error
	lookups    int
	failKeys   map[string]bool
	sideErr    error
	sideEffect []Fields

	// block, when set, makes writes wait until it is closed.
	block chan struct{}
}

func newMemStore(keyField FieldName, existing ...Fields) *memStore {
	s := &memStore{keyField: keyField, records: make(map[string]ExternalRecord), failKeys: make(map[string]bool)}
	for _, f := range existing {
		s.nextID++
		key := f[keyField]
		s.records[key] = ExternalRecord{ID: fmt.Sprintf("id-%d", s.nextID), Key: key, Fields: f}
	}
	return s
}

func (s *memStore) ForProfile(*Profile) Store { return s }

func (s *memStore) FindExisting(_ context.Context, keys []string) ([]ExternalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	var out []ExternalRecord
	for _, k := range keys {
		if r, ok := s.records[k]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) wait(ctx context.Context) error {
	if s.block == nil {
		return nil
	}
	select {
	case <-s.block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *memStore) CreateRecord(ctx context.Context, fields Fields) (ExternalRecord, error) {
	if err := s.wait(ctx); err != nil {
		return ExternalRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fields[s.keyField]
	if s.failKeys[key] {
		return ExternalRecord{}, errors.New("insert rejected")
	}
	if _, exists := s.records[key]; exists {
		return ExternalRecord{}, fmt.Errorf("duplicate key value %q", key)
	}
	s.nextID++
	r := ExternalRecord{ID: fmt.Sprintf("id-%d", s.nextID), Key: key, Fields: fields.Clone()}
	s.records[key] = r
	return r, nil
}

func (s *memStore) UpdateRecord(ctx context.Context, id string, fields Fields) (ExternalRecord, error) {
	if err := s.wait(ctx); err != nil {
		return ExternalRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fields[s.keyField]
	if s.failKeys[key] {
		return ExternalRecord{}, errors.New("update rejected")
	}
	for k, r := range s.records {
		if r.ID == id {
			r.Fields = fields.Clone()
			s.records[k] = r
			return r, nil
		}
	}
	return ExternalRecord{}, fmt.Errorf("record %s not found", id)
}

func (s *memStore) CreateSideEffectRecord(_ context.Context, fields Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sideErr != nil {
		return s.sideErr
	}
	s.sideEffect = append(s.sideEffect, fields)
	return nil
}

func (s *memStore) get(key string) (ExternalRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	return r, ok
}

// memHistory records history entries in memory.
type memHistory struct {
	mu      sync.Mutex
	entries []HistoryEntry
}

func (h *memHistory) RecordImport(_ context.Context, e HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
	return nil
}

func (h *memHistory) RecentImports(_ context.Context, limit int) ([]HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryEntry, 0, len(h.entries))
	for i := len(h.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.entries[i])
	}
	return out, nil
}

// testProfiles returns an item profile whose shipping totals land in a
// ledger profile.
func testProfiles() (items, ledger *Profile) {
	ledger = &Profile{
		Key:      "ledger",
		Group:    "Finance",
		Label:    "Ledger",
		Table:    "ledger",
		KeyField: "reference",
		Fields: []FieldSpec{
			{Name: "reference", Source: "Reference", Required: true},
			{Name: "amount", Source: "Amount", Type: FieldNumeric, Required: true},
		},
	}
	items = &Profile{
		Key:      "items",
		Group:    "Inventory",
		Label:    "Items",
		Table:    "items",
		KeyField: "code",
		Fields: []FieldSpec{
			{Name: "code", Source: "Code", Aliases: []string{"Item Code"}, Required: true},
			{Name: "title", Source: "Title", Required: true},
			{Name: "price", Source: "Price", Type: FieldNumeric},
			{Name: "shipping", Source: "Shipping", Type: FieldNumeric},
			{Name: "status", Source: "Status", Type: FieldEnum, EnumValues: []string{"active", "retired"}},
			{Name: "listed_on", Source: "Listed On", Type: FieldDate},
		},
		EqualityFields: []FieldName{"title", "price"},
		Aggregate: &AggregateSpec{
			Field:  "shipping",
			Target: ledger,
			Build: func(total string, at time.Time, batchID string) Fields {
				return Fields{"reference": "shipping-" + at.Format("20060102") + "-" + batchID, "amount": total}
			},
		},
	}
	return items, ledger
}

// registerTestProfiles replaces the registry with the test profiles.
func registerTestProfiles(t *testing.T) *Profile {
	t.Helper()
	Clear()
	items, ledger := testProfiles()
	Register(items)
	Register(ledger)
	t.Cleanup(Clear)
	return items
}

func rec(row int, key string, kv ...string) ImportRecord {
	f := Fields{"code": key}
	for i := 0; i+1 < len(kv); i += 2 {
		f[FieldName(kv[i])] = kv[i+1]
	}
	return ImportRecord{SourceRow: row, Key: key, Fields: f}
}
