package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mcdev12/lastcoin/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu       sync.Mutex
	failures int
	sent     []Message
	attempts int
}

func (f *fakePublisher) Publish(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return errors.New("nats: timeout")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func finished(phase models.GamePhase) *models.GameSession {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	g := models.NewGameSession("g-42", models.GameSettings{MaxPlayers: 2}, now)
	g.AddPlayer("a", 1, now)
	g.AddPlayer("b", 2, now)
	g.Phase = phase
	g.CurrentRound = 1
	g.EndedAt = &now
	return g
}

func TestNotifier_PublishesCompletion(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub, "flip.events")

	g := finished(models.GamePhaseCompleted)
	winner := "a"
	g.Winner = &winner
	require.NoError(t, n.NotifyCompleted(context.Background(), g))

	require.Len(t, pub.sent, 1)
	msg := pub.sent[0]
	assert.Equal(t, "flip.events.g-42.completed", msg.Subject)
	assert.Equal(t, "g-42:completed", msg.ID)
	assert.Equal(t, EventGameCompleted, msg.Headers["Event-Type"])

	var payout Payout
	require.NoError(t, json.Unmarshal(msg.Data, &payout))
	require.NotNil(t, payout.Winner)
	assert.Equal(t, "a", *payout.Winner)
	assert.Equal(t, []string{"a", "b"}, payout.Players)
	assert.Equal(t, 1, payout.TotalRounds)
}

func TestNotifier_PublishesCancellation(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub, "flip.events")

	g := finished(models.GamePhaseCancelled)
	g.CancelReason = "no_survivors"
	require.NoError(t, n.NotifyCompleted(context.Background(), g))

	require.Len(t, pub.sent, 1)
	assert.Equal(t, "flip.events.g-42.cancelled", pub.sent[0].Subject)

	var payout Payout
	require.NoError(t, json.Unmarshal(pub.sent[0].Data, &payout))
	assert.Equal(t, EventGameCancelled, payout.EventType)
	assert.Nil(t, payout.Winner)
	assert.Equal(t, "no_survivors", payout.CancelReason)
}

func TestNotifier_RetriesOnce(t *testing.T) {
	pub := &fakePublisher{failures: 1}
	n := NewNotifier(pub, "flip.events")
	n.retryDelay = time.Millisecond

	require.NoError(t, n.NotifyCompleted(context.Background(), finished(models.GamePhaseCompleted)))
	assert.Equal(t, 2, pub.attempts)
	assert.Len(t, pub.sent, 1)

	pub = &fakePublisher{failures: 2}
	n = NewNotifier(pub, "flip.events")
	n.retryDelay = time.Millisecond
	assert.Error(t, n.NotifyCompleted(context.Background(), finished(models.GamePhaseCompleted)))
	assert.Equal(t, 2, pub.attempts)
}

func TestNotifier_RejectsLiveSession(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub, "flip.events")
	assert.Error(t, n.NotifyCompleted(context.Background(), finished(models.GamePhaseRoundActive)))
	assert.Zero(t, pub.attempts)
}
