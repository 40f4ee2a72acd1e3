package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/sqlc-dev/pqtype"
)

const getSession = `-- name: GetSession :one
SELECT id, phase, current_round, winner, cancel_reason, event_seq, state, history, created_at, updated_at, ended_at
FROM flip_sessions
WHERE id = $1
`

func (q *Queries) GetSession(ctx context.Context, id string) (FlipSession, error) {
	row := q.db.QueryRowContext(ctx, getSession, id)
	var i FlipSession
	err := row.Scan(
		&i.ID,
		&i.Phase,
		&i.CurrentRound,
		&i.Winner,
		&i.CancelReason,
		&i.EventSeq,
		&i.State,
		&i.History,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.EndedAt,
	)
	return i, err
}

const upsertSession = `-- name: UpsertSession :execrows
INSERT INTO flip_sessions (id, phase, current_round, winner, cancel_reason, event_seq, state, history, created_at, updated_at, ended_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), $10)
ON CONFLICT (id) DO UPDATE SET
    phase = EXCLUDED.phase,
    current_round = EXCLUDED.current_round,
    winner = EXCLUDED.winner,
    cancel_reason = EXCLUDED.cancel_reason,
    event_seq = EXCLUDED.event_seq,
    state = EXCLUDED.state,
    history = EXCLUDED.history,
    updated_at = NOW(),
    ended_at = EXCLUDED.ended_at
WHERE flip_sessions.event_seq <= EXCLUDED.event_seq
`

type UpsertSessionParams struct {
	ID           string
	Phase        string
	CurrentRound int32
	Winner       sql.NullString
	CancelReason sql.NullString
	EventSeq     int64
	State        json.RawMessage
	History      pqtype.NullRawMessage
	CreatedAt    sql.NullTime
	EndedAt      sql.NullTime
}

// UpsertSession reports zero rows when a newer snapshot is already stored.
func (q *Queries) UpsertSession(ctx context.Context, arg UpsertSessionParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, upsertSession,
		arg.ID,
		arg.Phase,
		arg.CurrentRound,
		arg.Winner,
		arg.CancelReason,
		arg.EventSeq,
		arg.State,
		arg.History,
		arg.CreatedAt,
		arg.EndedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listUnfinishedSessionIDs = `-- name: ListUnfinishedSessionIDs :many
SELECT id FROM flip_sessions
WHERE phase NOT IN ('COMPLETED', 'CANCELLED')
ORDER BY created_at
`

func (q *Queries) ListUnfinishedSessionIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listUnfinishedSessionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
