package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/lastcoin/go/internal/flip/repository/db"
	"github.com/mcdev12/lastcoin/go/internal/sqlutil"
)

// Entry statuses written by the payment collaborator.
const (
	EntryPending   = "pending"
	EntryConfirmed = "confirmed"
	EntryRejected  = "rejected"
)

// Entry is one committed (or pending) tournament entry.
type Entry struct {
	GameID      string
	PlayerID    string
	Status      string
	ConfirmedAt time.Time
}

// EntryCursor is a keyset position in confirmation order. The zero value starts from the beginning.
type EntryCursor struct {
	ConfirmedAt time.Time
	GameID      string
	PlayerID    string
}

// Cursor returns the position just past e.
func (e Entry) Cursor() EntryCursor {
	return EntryCursor{ConfirmedAt: e.ConfirmedAt, GameID: e.GameID, PlayerID: e.PlayerID}
}

// EntryRepository reads entry confirmations.
type EntryRepository struct {
	database *sql.DB
	queries  *db.Queries
}

func NewEntryRepository(database *sql.DB) *EntryRepository {
	return &EntryRepository{database: database, queries: db.New(database)}
}

// VerifyEntry reports whether the player's entry is confirmed. A missing entry is not an error.
func (r *EntryRepository) VerifyEntry(ctx context.Context, gameID, playerID string) (bool, error) {
	row, err := r.queries.GetEntry(ctx, db.GetEntryParams{GameID: gameID, PlayerID: playerID})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get entry: %w", err)
	}
	return row.Status == EntryConfirmed, nil
}

// FetchConfirmedUnjoined returns confirmed entries not yet seated that come after the cursor,
// oldest confirmation first.
func (r *EntryRepository) FetchConfirmedUnjoined(ctx context.Context, after EntryCursor, limit int32) ([]Entry, error) {
	rows, err := r.queries.FetchConfirmedUnjoined(ctx, db.FetchConfirmedUnjoinedParams{
		AfterConfirmedAt: after.ConfirmedAt,
		AfterGameID:      after.GameID,
		AfterPlayerID:    after.PlayerID,
		Limit:            limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch confirmed entries: %w", err)
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		confirmedAt := row.CreatedAt
		if row.ConfirmedAt.Valid {
			confirmedAt = row.ConfirmedAt.Time
		}
		entries = append(entries, Entry{
			GameID:      row.GameID,
			PlayerID:    row.PlayerID,
			Status:      row.Status,
			ConfirmedAt: confirmedAt,
		})
	}
	return entries, nil
}

// MarkJoined records that the entry has a seat.
func (r *EntryRepository) MarkJoined(ctx context.Context, gameID, playerID string) error {
	if err := r.queries.MarkEntryJoined(ctx, db.MarkEntryJoinedParams{GameID: gameID, PlayerID: playerID}); err != nil {
		return fmt.Errorf("failed to mark entry joined: %w", err)
	}
	return nil
}

// MarkRejected flags an entry that can never be seated, e.g. the game filled first.
// Entries that already hold a seat are left alone.
func (r *EntryRepository) MarkRejected(ctx context.Context, gameID, playerID string) error {
	return sqlutil.Run(ctx, r.database, r.queries.WithTx, func(q *db.Queries) error {
		row, err := q.GetEntry(ctx, db.GetEntryParams{GameID: gameID, PlayerID: playerID})
		if err != nil {
			return fmt.Errorf("failed to get entry: %w", err)
		}
		if row.JoinedAt.Valid {
			return nil
		}
		if err := q.MarkEntryRejected(ctx, db.MarkEntryRejectedParams{GameID: gameID, PlayerID: playerID}); err != nil {
			return fmt.Errorf("failed to mark entry rejected: %w", err)
		}
		return nil
	})
}
