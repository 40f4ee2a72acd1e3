package orchestrator

import (
	"fmt"
	"time"

	"github.com/mcdev12/lastcoin/go/internal/flip/events"
	"github.com/mcdev12/lastcoin/go/internal/flip/timers"
	"github.com/mcdev12/lastcoin/go/internal/models"
	"github.com/rs/zerolog/log"
)

func inPhase(phase models.GamePhase) func(g *models.GameSession) bool {
	return func(g *models.GameSession) bool { return g.Phase == phase }
}

func inRound(round int, phases ...models.RoundPhase) func(g *models.GameSession) bool {
	return func(g *models.GameSession) bool {
		if g.Phase != models.GamePhaseRoundActive || g.CurrentRound != round {
			return false
		}
		for _, p := range phases {
			if g.RoundPhase == p {
				return true
			}
		}
		return false
	}
}

func (m *mutation) deadlineIn(d time.Duration) time.Time {
	at := m.o.clock.Now().Add(d)
	m.g.RoundDeadline = &at
	return at
}

// armFillTimeout starts the Filling timeout when one is configured.
func (m *mutation) armFillTimeout(delay time.Duration) {
	if m.o.cfg.FillTimeout <= 0 {
		return
	}
	m.schedule(timers.KindFillTimeout, delay, inPhase(models.GamePhaseFilling), (*mutation).fillTimedOut)
}

func (m *mutation) fillTimedOut() {
	g := m.g
	if len(g.Players) < 2 {
		log.Info().Str("game_id", g.ID).Int("players", len(g.Players)).Msg("fill timeout with too few players")
		m.cancel(CancelInsufficientPlayers)
		return
	}
	log.Info().Str("game_id", g.ID).Int("players", len(g.Players)).Msg("fill timeout, starting with current players")
	m.beginStarting(false)
}

// beginStarting moves a Filling session into the pre-game countdown.
func (m *mutation) beginStarting(early bool) {
	g := m.g
	m.o.timers.Cancel(m.key(timers.KindFillTimeout, ""))

	g.Phase = models.GamePhaseStarting
	startsAt := m.deadlineIn(m.o.cfg.StartDelay)

	log.Info().
		Str("game_id", g.ID).
		Int("players", len(g.Players)).
		Bool("early_start", early).
		Time("starts_at", startsAt).
		Msg("game starting")

	m.emit(events.StartingPayload{
		CountdownMs: m.o.cfg.StartDelay.Milliseconds(),
		StartsAt:    startsAt,
		Players:     append([]string{}, g.ActivePlayers...),
		EarlyStart:  early,
	})
	m.persist = true
	m.schedule(timers.KindStartCountdown, m.o.cfg.StartDelay, inPhase(models.GamePhaseStarting), (*mutation).startRound)
}

// startRound opens the next round and draws its target.
func (m *mutation) startRound() {
	g := m.g
	m.o.timers.CancelKind(g.ID, timers.KindPowerCharge)

	now := m.o.clock.Now()
	if g.StartedAt == nil {
		g.StartedAt = &now
	}
	g.Phase = models.GamePhaseRoundActive
	g.CurrentRound++

	for _, id := range g.ActivePlayers {
		p := g.Players[id]
		p.ResetForRound()
		p.RoundsParticipated++
	}

	// Drawn fresh every round, before choices open; hidden until reveal.
	target := faceFromDraw(m.o.rng.Float64())
	g.TargetResult = &target
	g.TargetRevealed = false
	g.RoundPhase = models.RoundPhaseRevealingTarget
	revealAt := m.deadlineIn(m.o.cfg.RevealDelay)

	log.Info().
		Str("game_id", g.ID).
		Int("round", g.CurrentRound).
		Int("active", len(g.ActivePlayers)).
		Msg("round started")
	log.Debug().Str("game_id", g.ID).Int("round", g.CurrentRound).Str("target", string(target)).Msg("round target drawn")

	m.emit(events.RoundStartedPayload{
		Round:    g.CurrentRound,
		RevealAt: revealAt,
		Active:   append([]string{}, g.ActivePlayers...),
	})
	m.schedule(timers.KindReveal, m.o.cfg.RevealDelay,
		inRound(g.CurrentRound, models.RoundPhaseRevealingTarget), (*mutation).revealTarget)
}

// revealTarget publishes the target and opens the choice window.
func (m *mutation) revealTarget() {
	g := m.g
	g.TargetRevealed = true
	g.RoundPhase = models.RoundPhaseWaitingChoice
	deadline := m.deadlineIn(m.o.cfg.ChoiceWindow)

	m.emit(events.TargetRevealedPayload{
		Round:    g.CurrentRound,
		Target:   *g.TargetResult,
		Deadline: deadline,
	})
	m.armDeadline(m.o.cfg.ChoiceWindow)
}

func (m *mutation) armDeadline(delay time.Duration) {
	m.schedule(timers.KindRoundDeadline, delay,
		inRound(m.g.CurrentRound, models.RoundPhaseWaitingChoice, models.RoundPhaseChargingPower),
		(*mutation).deadlineExpired)
}

// deadlineExpired auto-resolves every player who has not flipped, in join order, then resolves the round.
func (m *mutation) deadlineExpired() {
	g := m.g
	pending := g.PendingActors()
	log.Info().
		Str("game_id", g.ID).
		Int("round", g.CurrentRound).
		Int("pending", len(pending)).
		Msg("round deadline reached")

	for _, id := range pending {
		m.autoResolve(g.Players[id])
	}
	m.resolveRound()
}

// autoResolve is the fallback for a player who did not flip before the deadline:
// a choice is assigned if none was made and power drops to the minimum.
func (m *mutation) autoResolve(p *models.PlayerState) {
	m.o.timers.Cancel(m.key(timers.KindPowerCharge, p.ID))
	if p.Choice == nil {
		face := m.o.strat.ChooseFace(m.g.ID, p.ID)
		p.Choice = &face
	}
	p.Power = models.MinPower
	p.Charging = false
	m.flip(p, true)
}

// flip draws the outcome for one player. Each player flips at most once per round.
func (m *mutation) flip(p *models.PlayerState, auto bool) models.Face {
	result := m.o.cfg.Odds.Resolve(*p.Choice, p.Power, m.o.rng.Float64())

	p.HasActed = true
	p.Charging = false
	p.AutoResolved = auto
	p.Coin = models.CoinState{FlipResult: &result, PowerUsed: p.Power}

	log.Info().
		Str("game_id", m.g.ID).
		Str("player_id", p.ID).
		Int("round", m.g.CurrentRound).
		Str("choice", string(*p.Choice)).
		Int("power", p.Power).
		Str("result", string(result)).
		Bool("auto", auto).
		Msg("flip executed")

	m.emit(events.FlipExecutedPayload{
		PlayerID: p.ID,
		Choice:   *p.Choice,
		Power:    p.Power,
		Result:   result,
		Auto:     auto,
	})
	return result
}

// resolveRound partitions the active players against the target and decides what comes next.
func (m *mutation) resolveRound() {
	g := m.g
	m.o.timers.Cancel(m.key(timers.KindRoundDeadline, ""))
	m.o.timers.CancelKind(g.ID, timers.KindPowerCharge)

	if g.TargetResult == nil {
		m.abort(fmt.Sprintf("round %d resolved without a target", g.CurrentRound))
		return
	}
	for _, id := range g.ActivePlayers {
		if p := g.Players[id]; p == nil || p.Coin.FlipResult == nil {
			m.abort(fmt.Sprintf("round %d resolved before player %s flipped", g.CurrentRound, id))
			return
		}
	}

	g.RoundPhase = models.RoundPhaseExecutingFlips
	target := *g.TargetResult

	eliminated := []string{}
	survivors := []string{}
	for _, id := range g.ActivePlayers {
		p := g.Players[id]
		if *p.Coin.FlipResult == target {
			p.RoundsSurvived++
			survivors = append(survivors, id)
			continue
		}
		p.Status = models.PlayerStatusEliminated
		eliminated = append(eliminated, id)
	}

	g.ActivePlayers = survivors
	g.EliminatedPlayers = append(g.EliminatedPlayers, eliminated...)
	g.EliminationHistory = append(g.EliminationHistory, models.RoundRecord{
		Round:      g.CurrentRound,
		Target:     target,
		Eliminated: append([]string{}, eliminated...),
		Survivors:  append([]string{}, survivors...),
		ResolvedAt: m.o.clock.Now(),
	})
	g.RoundPhase = models.RoundPhaseShowingResult
	m.deadlineIn(m.o.cfg.ResultDisplay)

	log.Info().
		Str("game_id", g.ID).
		Int("round", g.CurrentRound).
		Str("target", string(target)).
		Strs("eliminated", eliminated).
		Strs("survivors", survivors).
		Msg("round resolved")

	m.emit(events.RoundResultPayload{
		Round:      g.CurrentRound,
		Target:     target,
		Eliminated: eliminated,
		Survivors:  survivors,
		Remaining:  len(survivors),
	})
	m.persist = true

	switch len(survivors) {
	case 1:
		m.complete(survivors[0])
	case 0:
		if len(eliminated) == 0 {
			m.abort(fmt.Sprintf("round %d reached zero active players without eliminations", g.CurrentRound))
			return
		}
		log.Warn().
			Str("game_id", g.ID).
			Int("round", g.CurrentRound).
			Int("eliminated", len(eliminated)).
			Msg("every remaining player eliminated, no winner")
		m.cancel(CancelNoSurvivors)
	default:
		m.schedule(timers.KindResultDisplay, m.o.cfg.ResultDisplay,
			inRound(g.CurrentRound, models.RoundPhaseShowingResult), (*mutation).startRound)
	}
}

// complete ends the game with a winner.
func (m *mutation) complete(winnerID string) {
	g := m.g
	g.Players[winnerID].Status = models.PlayerStatusWinner
	g.Winner = &winnerID
	g.Phase = models.GamePhaseCompleted
	m.finish()

	log.Info().Str("game_id", g.ID).Str("winner", winnerID).Int("rounds", g.CurrentRound).Msg("game completed")
	m.emit(events.GameCompletePayload{
		Winner:      &winnerID,
		TotalRounds: g.CurrentRound,
		History:     append([]models.RoundRecord{}, g.EliminationHistory...),
	})
}

// cancel ends the game without a winner.
func (m *mutation) cancel(reason string) {
	g := m.g
	g.Phase = models.GamePhaseCancelled
	g.CancelReason = reason
	m.finish()

	log.Info().Str("game_id", g.ID).Str("reason", reason).Int("rounds", g.CurrentRound).Msg("game cancelled")
	m.emit(events.GameCompletePayload{
		TotalRounds: g.CurrentRound,
		History:     append([]models.RoundRecord{}, g.EliminationHistory...),
		Cancelled:   true,
		Reason:      reason,
	})
}

// finish tears down everything a terminal session no longer needs.
func (m *mutation) finish() {
	g := m.g
	m.o.timers.CancelAll(g.ID)

	now := m.o.clock.Now()
	g.EndedAt = &now
	g.RoundPhase = models.RoundPhaseNone
	g.TargetResult = nil
	g.TargetRevealed = false
	g.RoundDeadline = nil
	for _, id := range g.ActivePlayers {
		g.Players[id].Charging = false
	}
	m.persist = true
	m.terminal = true
}

// abort handles an internal invariant violation by cancelling this session only.
func (m *mutation) abort(detail string) {
	g := m.g
	log.Error().
		Str("game_id", g.ID).
		Str("op", m.op).
		Int("round", g.CurrentRound).
		Str("detail", detail).
		Msg("session invariant violated, cancelling")

	m.emit(events.ErrorPayload{Reason: string(ReasonInternal), Detail: detail})
	if !g.Phase.Terminal() {
		m.cancel(CancelInternalError)
	}
}
