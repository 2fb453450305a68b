package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/stockbook/internal/core"
)

const insertHistorySQL = `INSERT INTO import_history
	(id, session_id, profile, file_name, operator, outcome, committed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

const recentHistorySQL = `SELECT id, session_id, profile, file_name, operator, outcome, committed_at
FROM import_history
ORDER BY committed_at DESC
LIMIT $1`

// RecordImport appends a committed import to import_history.
func (d *DB) RecordImport(ctx context.Context, e core.HistoryEntry) error {
	outcome, err := json.Marshal(e.Outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	_, err = d.db.Exec(ctx, insertHistorySQL,
		core.ToPgUUID(e.ID),
		core.ToPgUUID(e.SessionID),
		e.Profile,
		core.ToPgText(e.FileName),
		core.ToPgText(e.Operator),
		outcome,
		pgtype.Timestamptz{Time: e.CommittedAt, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("insert import history: %w", err)
	}
	return nil
}

// RecentImports returns up to limit committed imports, newest first.
func (d *DB) RecentImports(ctx context.Context, limit int) ([]core.HistoryEntry, error) {
	rows, err := d.db.Query(ctx, recentHistorySQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query import history: %w", err)
	}
	defer rows.Close()

	entries := []core.HistoryEntry{}
	for rows.Next() {
		var (
			id, sessionID      pgtype.UUID
			profile            string
			fileName, operator pgtype.Text
			outcome            []byte
			committedAt        pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &sessionID, &profile, &fileName, &operator, &outcome, &committedAt); err != nil {
			return nil, fmt.Errorf("scan import history: %w", err)
		}

		e := core.HistoryEntry{
			ID:          core.PgUUIDToString(id),
			SessionID:   core.PgUUIDToString(sessionID),
			Profile:     profile,
			FileName:    fileName.String,
			Operator:    operator.String,
			CommittedAt: committedAt.Time,
		}
		if err := json.Unmarshal(outcome, &e.Outcome); err != nil {
			return nil, fmt.Errorf("decode outcome of %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return entries, nil
}
