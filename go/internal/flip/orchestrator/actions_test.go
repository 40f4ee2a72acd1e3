package orchestrator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mcdev12/lastcoin/go/internal/flip/events"
	"github.com/mcdev12/lastcoin/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireReason(t *testing.T, err error, want Reason) {
	t.Helper()
	require.Error(t, err)
	got, ok := ReasonOf(err)
	require.True(t, ok, "expected ActionError, got %v", err)
	assert.Equal(t, want, got)
}

func TestJoinSession_Rejections(t *testing.T) {
	h := newHarness(t, testConfig())
	id := h.create(3, "creator")

	_, err := h.orch.JoinSession(h.ctx, "missing", "a")
	requireReason(t, err, ReasonGameNotFound)

	_, err = h.orch.JoinSession(h.ctx, id, "creator")
	requireReason(t, err, ReasonAlreadyJoined)

	h.join(id, "a")
	_, err = h.orch.JoinSession(h.ctx, id, "a")
	requireReason(t, err, ReasonAlreadyJoined)

	h.join(id, "b")
	assert.Equal(t, models.GamePhaseStarting, h.state(id).Phase)

	_, err = h.orch.JoinSession(h.ctx, id, "late")
	requireReason(t, err, ReasonGameFull)
}

func TestJoinSession_WrongPhaseAfterEarlyStart(t *testing.T) {
	h := newHarness(t, testConfig())
	id := h.create(4, "creator")
	h.join(id, "a")
	require.NoError(t, h.orch.RequestEarlyStart(h.ctx, id, "creator"))

	before := h.rec.count(events.TypePlayerJoined)
	_, err := h.orch.JoinSession(h.ctx, id, "b")
	requireReason(t, err, ReasonWrongPhase)
	assert.Equal(t, before, h.rec.count(events.TypePlayerJoined))
}

func TestJoinSession_AssignsLowestFreeSlot(t *testing.T) {
	h := newHarness(t, testConfig())
	id := h.create(4, "creator")

	a, err := h.orch.JoinSession(h.ctx, id, "a")
	require.NoError(t, err)
	b, err := h.orch.JoinSession(h.ctx, id, "b")
	require.NoError(t, err)

	assert.Equal(t, 1, a.SlotNumber)
	assert.Equal(t, 2, b.SlotNumber)
	assert.Equal(t, models.CreatorSlot, h.state(id).Players["creator"].SlotNumber)

	joined := h.rec.last(t, events.TypePlayerJoined).(*events.PlayerJoinedPayload)
	assert.Equal(t, "b", joined.PlayerID)
	assert.Equal(t, 3, joined.Players)
	assert.Equal(t, 4, joined.MaxPlayers)
}

func TestJoinSession_RequiresConfirmedEntry(t *testing.T) {
	verifier := verifierFunc(func(_ context.Context, _, playerID string) (bool, error) {
		return playerID == "paid", nil
	})
	h := newHarness(t, testConfig(), withOptions(WithEntryVerifier(verifier)))
	id := h.create(3, "creator")

	_, err := h.orch.JoinSession(h.ctx, id, "freeloader")
	requireReason(t, err, ReasonEntryNotConfirmed)
	assert.Len(t, h.state(id).Players, 1)

	h.join(id, "paid")
	assert.Len(t, h.state(id).Players, 2)
}

func TestRequestEarlyStart(t *testing.T) {
	h := newHarness(t, testConfig())
	id := h.create(4, "creator")

	requireReason(t, h.orch.RequestEarlyStart(h.ctx, id, "creator"), ReasonInsufficientPlayers)

	h.join(id, "a")
	requireReason(t, h.orch.RequestEarlyStart(h.ctx, id, "a"), ReasonNotCreator)
	assert.Equal(t, models.GamePhaseFilling, h.state(id).Phase)

	require.NoError(t, h.orch.RequestEarlyStart(h.ctx, id, "creator"))
	starting := h.rec.last(t, events.TypeStarting).(*events.StartingPayload)
	assert.True(t, starting.EarlyStart)
	assert.Equal(t, []string{"creator", "a"}, starting.Players)

	requireReason(t, h.orch.RequestEarlyStart(h.ctx, id, "creator"), ReasonWrongPhase)
	requireReason(t, h.orch.RequestEarlyStart(h.ctx, "missing", "creator"), ReasonGameNotFound)

	h.clock.Advance(h.cfg.StartDelay)
	h.waitRoundPhase(id, 1, models.RoundPhaseRevealingTarget)
}

func TestRequestEarlyStart_NoCreator(t *testing.T) {
	h := newHarness(t, testConfig())
	id := h.create(3, "")
	h.join(id, "a", "b")
	requireReason(t, h.orch.RequestEarlyStart(h.ctx, id, "a"), ReasonNotCreator)
}

func TestRoundActions_RejectedOutsideChoiceWindow(t *testing.T) {
	h := newHarness(t, testConfig())
	id := h.create(2, "")
	h.join(id, "a", "b")

	requireReason(t, h.orch.SetChoice(h.ctx, id, "a", models.FaceHeads), ReasonWrongPhase)

	h.clock.Advance(h.cfg.StartDelay)
	h.waitRoundPhase(id, 1, models.RoundPhaseRevealingTarget)

	before := len(h.rec.all())
	requireReason(t, h.orch.SetChoice(h.ctx, id, "a", models.FaceHeads), ReasonWrongPhase)
	requireReason(t, h.orch.StartPowerCharge(h.ctx, id, "a"), ReasonWrongPhase)
	_, err := h.orch.ExecuteFlip(h.ctx, id, "a")
	requireReason(t, err, ReasonWrongPhase)
	assert.Len(t, h.rec.all(), before, "rejections must not broadcast")
	assert.Nil(t, h.state(id).Players["a"].Choice)
}

func TestSetChoice_Validation(t *testing.T) {
	h := newHarness(t, testConfig())
	id := h.create(3, "")
	h.join(id, "a", "b", "c")
	h.openRound(id, 1)

	requireReason(t, h.orch.SetChoice(h.ctx, id, "a", models.Face("edge")), ReasonInvalidChoice)
	requireReason(t, h.orch.SetChoice(h.ctx, id, "ghost", models.FaceHeads), ReasonPlayerNotFound)
	requireReason(t, h.orch.SetChoice(h.ctx, "missing", "a", models.FaceHeads), ReasonGameNotFound)

	require.NoError(t, h.orch.SetChoice(h.ctx, id, "a", models.FaceHeads))
	require.NoError(t, h.orch.SetChoice(h.ctx, id, "a", models.FaceTails))
	assert.Equal(t, models.FaceTails, *h.state(id).Players["a"].Choice)

	made := h.rec.last(t, events.TypeChoiceMade).(*events.ChoiceMadePayload)
	assert.Equal(t, "a", made.PlayerID)
	raw := h.rec.all()[len(h.rec.all())-1].Data
	assert.NotContains(t, string(raw), "tails", "choice_made must not leak the face")
}

func TestExecuteFlip_IsIdempotentPerRound(t *testing.T) {
	h := newHarness(t, testConfig())
	id := h.create(3, "")
	h.join(id, "a", "b", "c")
	h.openRound(id, 1)

	require.NoError(t, h.orch.SetChoice(h.ctx, id, "a", models.FaceHeads))
	_, err := h.orch.ExecuteFlip(h.ctx, id, "a")
	require.NoError(t, err)
	coin := h.state(id).Players["a"].Coin
	flips := h.rec.count(events.TypeFlipExecuted)

	_, err = h.orch.ExecuteFlip(h.ctx, id, "a")
	requireReason(t, err, ReasonAlreadyFlipped)
	requireReason(t, h.orch.SetChoice(h.ctx, id, "a", models.FaceTails), ReasonAlreadyFlipped)

	assert.Equal(t, coin, h.state(id).Players["a"].Coin)
	assert.Equal(t, flips, h.rec.count(events.TypeFlipExecuted))
}

func TestExecuteFlip_EliminatedPlayerIsRejected(t *testing.T) {
	h := newHarness(t, testConfig())
	id := h.create(3, "")
	h.join(id, "a", "b", "c")

	h.rng.push(0.1) // heads
	h.openRound(id, 1)
	h.rng.push(0.1, 0.1, 0.9) // c misses
	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, h.orch.SetChoice(h.ctx, id, p, models.FaceHeads))
		_, err := h.orch.ExecuteFlip(h.ctx, id, p)
		require.NoError(t, err)
	}

	h.openRound(id, 2)
	_, err := h.orch.ExecuteFlip(h.ctx, id, "c")
	requireReason(t, err, ReasonPlayerNotActive)
	requireReason(t, h.orch.StartPowerCharge(h.ctx, id, "c"), ReasonPlayerNotActive)
}

func TestExecuteFlip_AutoAssignsMissingChoice(t *testing.T) {
	h := newHarness(t, testConfig())
	id := h.create(3, "")
	h.join(id, "a", "b", "c")
	h.openRound(id, 1)

	h.rng.push(0.8, 0.1) // fallback tails, lands tails
	out, err := h.orch.ExecuteFlip(h.ctx, id, "a")
	require.NoError(t, err)
	assert.True(t, out.AutoChoice)
	assert.Equal(t, models.FaceTails, out.Choice)
	assert.Equal(t, models.FaceTails, out.Result)

	flipped := h.rec.last(t, events.TypeFlipExecuted).(*events.FlipExecutedPayload)
	assert.False(t, flipped.Auto)
}

func TestExecuteFlip_RequireChoice(t *testing.T) {
	cfg := testConfig()
	cfg.RequireChoice = true
	h := newHarness(t, cfg)
	id := h.create(2, "")
	h.join(id, "a", "b")
	h.openRound(id, 1)

	_, err := h.orch.ExecuteFlip(h.ctx, id, "a")
	requireReason(t, err, ReasonNoChoice)
	assert.False(t, h.state(id).Players["a"].HasActed)
}

func TestPowerCharge_StopClampsToServerPower(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg)
	id := h.create(3, "")
	h.join(id, "a", "b", "c")
	h.openRound(id, 1)

	require.NoError(t, h.orch.StartPowerCharge(h.ctx, id, "a"))
	for want := 2; want <= 3; want++ {
		h.clock.Advance(cfg.PowerTickInterval)
		power := want
		h.waitUntil(id, func(g *models.GameSession) bool { return g.Players["a"].Power == power })
	}

	claimed := 50
	power, err := h.orch.StopPowerCharge(h.ctx, id, "a", &claimed)
	require.NoError(t, err)
	assert.Equal(t, 3, power)

	g := h.state(id)
	assert.False(t, g.Players["a"].Charging)
	assert.Equal(t, models.RoundPhaseWaitingChoice, g.RoundPhase)

	// Ticker is gone: further time does not add power.
	h.clock.Advance(5 * cfg.PowerTickInterval)
	assert.Equal(t, 3, h.state(id).Players["a"].Power)

	low := 0
	power, err = h.orch.StopPowerCharge(h.ctx, id, "a", &low)
	require.NoError(t, err)
	assert.Equal(t, models.MinPower, power)

	update := h.rec.last(t, events.TypePowerUpdate).(*events.PowerUpdatePayload)
	assert.False(t, update.Charging)
	assert.Equal(t, models.MinPower, update.Power)
}

func TestPowerCharge_TickersDoNotSurviveRoundEnd(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg)
	id := h.create(3, "")
	h.join(id, "a", "b", "c")
	h.openRound(id, 1)

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, h.orch.StartPowerCharge(h.ctx, id, p))
	}
	// round deadline plus three tickers
	assert.Equal(t, 4, h.orch.PendingTimers(id))

	h.clock.Advance(cfg.ChoiceWindow)
	g := h.waitUntil(id, func(g *models.GameSession) bool {
		return len(g.EliminationHistory) == 1
	})
	for _, p := range g.JoinOrder {
		assert.False(t, g.Players[p].Charging)
		assert.Equal(t, models.MinPower, g.Players[p].Coin.PowerUsed)
	}
	if !g.Phase.Terminal() {
		assert.Equal(t, 1, h.orch.PendingTimers(id), "only the result display timer remains")
	} else {
		assert.Equal(t, 0, h.orch.PendingTimers(id))
	}
}

func TestUpdateCoinCosmetic(t *testing.T) {
	h := newHarness(t, testConfig())
	id := h.create(2, "creator")

	cosmetic := map[string]any{"skin": "gold", "trail": "sparks"}
	require.NoError(t, h.orch.UpdateCoinCosmetic(h.ctx, id, "creator", cosmetic))

	var stored map[string]any
	require.NoError(t, json.Unmarshal(h.state(id).Players["creator"].Cosmetic, &stored))
	assert.Equal(t, "gold", stored["skin"])

	updated := h.rec.last(t, events.TypeCosmeticUpdated).(*events.CosmeticUpdatedPayload)
	assert.Equal(t, "creator", updated.PlayerID)

	requireReason(t, h.orch.UpdateCoinCosmetic(h.ctx, id, "ghost", cosmetic), ReasonPlayerNotFound)
}

func TestCreateSession_Validation(t *testing.T) {
	h := newHarness(t, testConfig())

	g, err := h.orch.CreateSession(h.ctx, CreateRequest{ID: "fixed"})
	require.NoError(t, err)
	assert.Equal(t, h.cfg.MaxPlayersDefault, g.MaxPlayers)

	_, err = h.orch.CreateSession(h.ctx, CreateRequest{ID: "fixed"})
	requireReason(t, err, ReasonGameExists)

	_, err = h.orch.CreateSession(h.ctx, CreateRequest{MaxPlayers: 1})
	requireReason(t, err, ReasonInvalidSettings)

	g, err = h.orch.CreateSession(h.ctx, CreateRequest{MaxPlayers: 2})
	require.NoError(t, err)
	assert.NotEmpty(t, g.ID)
}
