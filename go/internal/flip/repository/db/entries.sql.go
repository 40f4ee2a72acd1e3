package db

import (
	"context"
	"time"
)

const getEntry = `-- name: GetEntry :one
SELECT game_id, player_id, status, cosmetic, confirmed_at, joined_at, created_at
FROM flip_entries
WHERE game_id = $1 AND player_id = $2
`

type GetEntryParams struct {
	GameID   string
	PlayerID string
}

func (q *Queries) GetEntry(ctx context.Context, arg GetEntryParams) (FlipEntry, error) {
	row := q.db.QueryRowContext(ctx, getEntry, arg.GameID, arg.PlayerID)
	var i FlipEntry
	err := row.Scan(
		&i.GameID,
		&i.PlayerID,
		&i.Status,
		&i.Cosmetic,
		&i.ConfirmedAt,
		&i.JoinedAt,
		&i.CreatedAt,
	)
	return i, err
}

const fetchConfirmedUnjoined = `-- name: FetchConfirmedUnjoined :many
SELECT game_id, player_id, status, cosmetic, confirmed_at, joined_at, created_at
FROM flip_entries
WHERE status = 'confirmed' AND joined_at IS NULL
  AND (COALESCE(confirmed_at, created_at), game_id, player_id) > ($1::timestamptz, $2::text, $3::text)
ORDER BY COALESCE(confirmed_at, created_at), game_id, player_id
LIMIT $4
`

type FetchConfirmedUnjoinedParams struct {
	AfterConfirmedAt time.Time
	AfterGameID      string
	AfterPlayerID    string
	Limit            int32
}

func (q *Queries) FetchConfirmedUnjoined(ctx context.Context, arg FetchConfirmedUnjoinedParams) ([]FlipEntry, error) {
	rows, err := q.db.QueryContext(ctx, fetchConfirmedUnjoined,
		arg.AfterConfirmedAt,
		arg.AfterGameID,
		arg.AfterPlayerID,
		arg.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []FlipEntry
	for rows.Next() {
		var i FlipEntry
		if err := rows.Scan(
			&i.GameID,
			&i.PlayerID,
			&i.Status,
			&i.Cosmetic,
			&i.ConfirmedAt,
			&i.JoinedAt,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markEntryJoined = `-- name: MarkEntryJoined :exec
UPDATE flip_entries SET joined_at = NOW()
WHERE game_id = $1 AND player_id = $2 AND joined_at IS NULL
`

type MarkEntryJoinedParams struct {
	GameID   string
	PlayerID string
}

func (q *Queries) MarkEntryJoined(ctx context.Context, arg MarkEntryJoinedParams) error {
	_, err := q.db.ExecContext(ctx, markEntryJoined, arg.GameID, arg.PlayerID)
	return err
}

const markEntryRejected = `-- name: MarkEntryRejected :exec
UPDATE flip_entries SET status = 'rejected'
WHERE game_id = $1 AND player_id = $2 AND joined_at IS NULL
`

type MarkEntryRejectedParams struct {
	GameID   string
	PlayerID string
}

func (q *Queries) MarkEntryRejected(ctx context.Context, arg MarkEntryRejectedParams) error {
	_, err := q.db.ExecContext(ctx, markEntryRejected, arg.GameID, arg.PlayerID)
	return err
}
