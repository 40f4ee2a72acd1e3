package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/mcdev12/lastcoin/go/internal/flip/repository/db"
	"github.com/mcdev12/lastcoin/go/internal/flip/repository/schema"
	"github.com/mcdev12/lastcoin/go/internal/flip/session"
	"github.com/mcdev12/lastcoin/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSession(seq uint64) *models.GameSession {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := models.NewGameSession("repo-1", models.GameSettings{MaxPlayers: 2, CreatorID: "a"}, now)
	g.AddPlayer("a", models.CreatorSlot, now)
	g.AddPlayer("b", 1, now)
	g.Phase = models.GamePhaseRoundActive
	g.CurrentRound = 1
	g.EventSeq = seq
	return g
}

func TestSessionRowMapping(t *testing.T) {
	g := sampleSession(9)
	winner := "a"
	ended := g.CreatedAt.Add(time.Minute)
	g.Phase = models.GamePhaseCompleted
	g.Winner = &winner
	g.EndedAt = &ended
	g.EliminationHistory = []models.RoundRecord{{Round: 1, Target: models.FaceHeads, Eliminated: []string{"b"}, Survivors: []string{"a"}}}

	params, err := sessionToParams(g)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", params.Phase)
	assert.True(t, params.Winner.Valid)
	assert.False(t, params.CancelReason.Valid)
	assert.True(t, params.History.Valid)
	assert.Equal(t, int64(9), params.EventSeq)

	restored, err := sessionFromRow(db.FlipSession{
		ID:       params.ID,
		Phase:    params.Phase,
		Winner:   params.Winner,
		EventSeq: params.EventSeq,
		State:    params.State,
		History:  params.History,
		EndedAt:  params.EndedAt,
	})
	require.NoError(t, err)
	require.NotNil(t, restored.Winner)
	assert.Equal(t, "a", *restored.Winner)
	assert.Equal(t, []string{"b"}, restored.EliminationHistory[0].Eliminated)
	assert.Len(t, restored.Players, 2)
	assert.Equal(t, models.CreatorSlot, restored.Players["a"].SlotNumber)
}

func TestSessionFromRow_ColumnsWinOverDocument(t *testing.T) {
	params, err := sessionToParams(sampleSession(3))
	require.NoError(t, err)

	restored, err := sessionFromRow(db.FlipSession{
		ID:           "repo-1",
		Phase:        string(models.GamePhaseCancelled),
		CancelReason: sql.NullString{String: "internal_error", Valid: true},
		EventSeq:     5,
		State:        params.State,
	})
	require.NoError(t, err)
	assert.Equal(t, models.GamePhaseCancelled, restored.Phase)
	assert.Equal(t, "internal_error", restored.CancelReason)
	assert.Equal(t, uint64(5), restored.EventSeq)
	assert.NotNil(t, restored.EliminationHistory)
}

// openTestDB connects to FLIP_TEST_DATABASE_URL and applies the schema, or skips.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("FLIP_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("FLIP_TEST_DATABASE_URL not set")
	}
	database, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	ddl, err := schema.Migrations.ReadFile("001_flip.sql")
	require.NoError(t, err)
	_, err = database.Exec(string(ddl))
	require.NoError(t, err)
	_, err = database.Exec(`TRUNCATE flip_sessions, flip_entries`)
	require.NoError(t, err)
	return database
}

func TestSessionRepository_Postgres(t *testing.T) {
	database := openTestDB(t)
	repo := NewSessionRepository(db.New(database))
	ctx := context.Background()

	_, err := repo.Load(ctx, "repo-1")
	assert.ErrorIs(t, err, session.ErrNotFound)

	require.NoError(t, repo.Save(ctx, sampleSession(4)))

	older := sampleSession(2)
	older.CurrentRound = 0
	require.NoError(t, repo.Save(ctx, older))

	loaded, err := repo.Load(ctx, "repo-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), loaded.EventSeq)
	assert.Equal(t, 1, loaded.CurrentRound, "stale snapshot must not overwrite")

	ids, err := repo.ListUnfinished(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"repo-1"}, ids)
}

func TestEntryRepository_Postgres(t *testing.T) {
	database := openTestDB(t)
	repo := NewEntryRepository(database)
	ctx := context.Background()

	ok, err := repo.VerifyEntry(ctx, "g", "p")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = database.Exec(`INSERT INTO flip_entries (game_id, player_id, status, confirmed_at) VALUES ('g', 'p', 'confirmed', NOW()), ('g', 'q', 'pending', NULL)`)
	require.NoError(t, err)

	ok, err = repo.VerifyEntry(ctx, "g", "p")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.VerifyEntry(ctx, "g", "q")
	require.NoError(t, err)
	assert.False(t, ok)

	pending, err := repo.FetchConfirmedUnjoined(ctx, EntryCursor{}, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "p", pending[0].PlayerID)

	after, err := repo.FetchConfirmedUnjoined(ctx, pending[0].Cursor(), 10)
	require.NoError(t, err)
	assert.Empty(t, after)

	require.NoError(t, repo.MarkJoined(ctx, "g", "p"))
	pending, err = repo.FetchConfirmedUnjoined(ctx, EntryCursor{}, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, repo.MarkRejected(ctx, "g", "p"))
	ok, err = repo.VerifyEntry(ctx, "g", "p")
	require.NoError(t, err)
	assert.True(t, ok, "seated entries are never rejected")
}
