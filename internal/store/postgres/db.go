// Package postgres stores import profiles' records in PostgreSQL through
// pgx. Queries are built from the profile definitions, so adding a profile
// needs only its table in sql/schema.sql.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/stockbook/internal/core"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// DB implements core.Backend and core.History.
type DB struct {
	db DBTX
}

var (
	_ core.Backend = (*DB)(nil)
	_ core.History = (*DB)(nil)
	_ core.Store   = (*TableStore)(nil)
)

// New wraps a pool or connection.
func New(db DBTX) *DB {
	return &DB{db: db}
}

// ForProfile returns the store for one profile's table.
func (d *DB) ForProfile(p *core.Profile) core.Store {
	return &TableStore{db: d.db, profile: p}
}

// TableStore reads and writes one profile's table.
type TableStore struct {
	db      DBTX
	profile *core.Profile
}

// FindExisting returns the rows whose key is one of keys.
func (s *TableStore) FindExisting(ctx context.Context, keys []string) ([]core.ExternalRecord, error) {
	if len(keys) == 0 {
		return []core.ExternalRecord{}, nil
	}

	rows, err := s.db.Query(ctx, selectExistingSQL(s.profile), keys)
	if err != nil {
		return nil, fmt.Errorf("find existing %s: %w", s.profile.Table, err)
	}
	defer rows.Close()

	var found []core.ExternalRecord
	for rows.Next() {
		rec, err := scanRecord(rows, s.profile)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.profile.Table, err)
		}
		found = append(found, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return found, nil
}

// CreateRecord inserts fields as a new row.
func (s *TableStore) CreateRecord(ctx context.Context, fields core.Fields) (core.ExternalRecord, error) {
	query, args := insertSQL(s.profile, fields)

	var id string
	if err := s.db.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return core.ExternalRecord{}, fmt.Errorf("insert %s %q: %w", s.profile.Table, fields[s.profile.KeyField], err)
	}
	return core.ExternalRecord{ID: id, Key: fields[s.profile.KeyField], Fields: fields.Clone()}, nil
}

// UpdateRecord overwrites the row with the given id. Only fields present in
// fields are written; an empty cell never erases a stored value.
func (s *TableStore) UpdateRecord(ctx context.Context, id string, fields core.Fields) (core.ExternalRecord, error) {
	query, args := updateSQL(s.profile, id, fields)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return core.ExternalRecord{}, fmt.Errorf("update %s %s: %w", s.profile.Table, id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return core.ExternalRecord{}, fmt.Errorf("update %s %s: %w", s.profile.Table, id, err)
		}
		return core.ExternalRecord{}, fmt.Errorf("update %s %s: %w", s.profile.Table, id, ErrRecordNotFound)
	}
	rec, err := scanRecord(rows, s.profile)
	if err != nil {
		return core.ExternalRecord{}, fmt.Errorf("scan %s: %w", s.profile.Table, err)
	}
	return rec, nil
}

// CreateSideEffectRecord inserts the summary row into the aggregate's
// target table.
func (s *TableStore) CreateSideEffectRecord(ctx context.Context, fields core.Fields) error {
	agg := s.profile.Aggregate
	if agg == nil {
		return fmt.Errorf("profile %s has no aggregate", s.profile.Key)
	}
	query, args := insertSQL(agg.Target, fields)

	var id string
	if err := s.db.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return fmt.Errorf("insert %s: %w", agg.Target.Table, err)
	}
	return nil
}

// ErrRecordNotFound is returned when an update matches no row.
var ErrRecordNotFound = errors.New("record not found")

// scanRecord reads a row selected with recordColumns.
func scanRecord(rows pgx.Rows, p *core.Profile) (core.ExternalRecord, error) {
	values := make([]pgtype.Text, len(p.Fields)+1)
	dest := make([]interface{}, len(values))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return core.ExternalRecord{}, err
	}

	rec := core.ExternalRecord{ID: values[0].String, Fields: make(core.Fields, len(p.Fields))}
	for i, f := range p.Fields {
		v := values[i+1]
		if !v.Valid {
			continue
		}
		rec.Fields[f.Name] = v.String
	}
	rec.Key = rec.Fields[p.KeyField]
	return rec, nil
}
