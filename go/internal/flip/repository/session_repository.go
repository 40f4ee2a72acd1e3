package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/lastcoin/go/internal/flip/repository/db"
	"github.com/mcdev12/lastcoin/go/internal/flip/session"
	"github.com/mcdev12/lastcoin/go/internal/models"
	"github.com/mcdev12/lastcoin/go/internal/sqlutil"
	"github.com/rs/zerolog/log"
)

// SessionRepository persists session snapshots in Postgres.
type SessionRepository struct {
	queries *db.Queries
}

func NewSessionRepository(queries *db.Queries) *SessionRepository {
	return &SessionRepository{queries: queries}
}

var _ session.Persistence = (*SessionRepository)(nil)

// Load returns session.ErrNotFound when no snapshot is stored.
func (r *SessionRepository) Load(ctx context.Context, id string) (*models.GameSession, error) {
	row, err := r.queries.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sessionFromRow(row)
}

// Save upserts the snapshot. An older snapshot never overwrites a newer one.
func (r *SessionRepository) Save(ctx context.Context, snapshot *models.GameSession) error {
	params, err := sessionToParams(snapshot)
	if err != nil {
		return err
	}
	n, err := r.queries.UpsertSession(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	if n == 0 {
		log.Debug().
			Str("game_id", snapshot.ID).
			Uint64("event_seq", snapshot.EventSeq).
			Msg("stale session snapshot skipped")
	}
	return nil
}

// ListUnfinished returns the ids of every stored session that has not ended.
func (r *SessionRepository) ListUnfinished(ctx context.Context) ([]string, error) {
	ids, err := r.queries.ListUnfinishedSessionIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinished sessions: %w", err)
	}
	return ids, nil
}

func sessionToParams(g *models.GameSession) (db.UpsertSessionParams, error) {
	state, err := json.Marshal(g)
	if err != nil {
		return db.UpsertSessionParams{}, fmt.Errorf("failed to marshal session state: %w", err)
	}
	var history json.RawMessage
	if len(g.EliminationHistory) > 0 {
		if history, err = json.Marshal(g.EliminationHistory); err != nil {
			return db.UpsertSessionParams{}, fmt.Errorf("failed to marshal elimination history: %w", err)
		}
	}
	return db.UpsertSessionParams{
		ID:           g.ID,
		Phase:        string(g.Phase),
		CurrentRound: int32(g.CurrentRound),
		Winner:       sqlutil.ToSqlString(g.Winner),
		CancelReason: sqlutil.ToSqlStringNonEmpty(g.CancelReason),
		EventSeq:     int64(g.EventSeq),
		State:        state,
		History:      sqlutil.ToNullRawMessage(history),
		CreatedAt:    sqlutil.ToSqlTime(&g.CreatedAt),
		EndedAt:      sqlutil.ToSqlTime(g.EndedAt),
	}, nil
}

func sessionFromRow(row db.FlipSession) (*models.GameSession, error) {
	var g models.GameSession
	if err := json.Unmarshal(row.State, &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", row.ID, err)
	}
	if g.Players == nil {
		g.Players = make(map[string]*models.PlayerState)
	}
	// The indexed columns are authoritative over the document.
	g.ID = row.ID
	g.Phase = models.GamePhase(row.Phase)
	g.EventSeq = uint64(row.EventSeq)
	g.Winner = sqlutil.FromSqlStringPtr(row.Winner)
	g.CancelReason = sqlutil.FromSqlString(row.CancelReason, "")
	g.EndedAt = sqlutil.FromSqlTime(row.EndedAt)
	if raw := sqlutil.FromNullRawMessage(row.History); raw != nil {
		var history []models.RoundRecord
		if err := json.Unmarshal(raw, &history); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history for %s: %w", row.ID, err)
		}
		g.EliminationHistory = history
	}
	if g.EliminationHistory == nil {
		g.EliminationHistory = []models.RoundRecord{}
	}
	return &g, nil
}
