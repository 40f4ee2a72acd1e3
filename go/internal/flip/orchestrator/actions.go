package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/lastcoin/go/internal/flip/events"
	"github.com/mcdev12/lastcoin/go/internal/flip/session"
	"github.com/mcdev12/lastcoin/go/internal/flip/timers"
	"github.com/mcdev12/lastcoin/go/internal/models"
	"github.com/rs/zerolog/log"
)

// CreateRequest announces a tournament. Empty ID generates one; zero MaxPlayers uses the configured default.
type CreateRequest struct {
	ID         string `json:"id,omitempty"`
	MaxPlayers int    `json:"max_players,omitempty"`
	CreatorID  string `json:"creator_id,omitempty"`
}

// FlipOutcome describes a manual flip back to the caller.
type FlipOutcome struct {
	PlayerID      string      `json:"player_id"`
	Round         int         `json:"round"`
	Choice        models.Face `json:"choice"`
	Power         int         `json:"power"`
	Result        models.Face `json:"result"`
	SuccessChance float64     `json:"success_chance"`
	AutoChoice    bool        `json:"auto_choice"`
}

// CreateSession registers a new session in the Filling phase.
func (o *Orchestrator) CreateSession(ctx context.Context, req CreateRequest) (*models.GameSession, error) {
	const op = "create"

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	maxPlayers := req.MaxPlayers
	if maxPlayers == 0 {
		maxPlayers = o.cfg.MaxPlayersDefault
	}

	// A persisted session with the same id counts as existing.
	if _, err := o.session(ctx, op, id); err == nil {
		return nil, reject(op, ReasonGameExists, id, "")
	} else if reason, _ := ReasonOf(err); reason != ReasonGameNotFound {
		return nil, err
	}

	sess, err := o.store.Create(id, models.GameSettings{MaxPlayers: maxPlayers, CreatorID: req.CreatorID})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrAlreadyExists):
			return nil, reject(op, ReasonGameExists, id, "")
		case errors.Is(err, session.ErrInvalidSettings):
			return nil, reject(op, ReasonInvalidSettings, id, "")
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	var snap *models.GameSession
	err = o.run(sess, op, func(m *mutation) error {
		m.persist = true
		m.armFillTimeout(o.cfg.FillTimeout)
		snap = m.g.Redacted()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// JoinSession adds a player to a Filling session in the lowest free slot.
// Reaching capacity starts the game.
func (o *Orchestrator) JoinSession(ctx context.Context, gameID, playerID string) (*models.PlayerState, error) {
	const op = "join"

	sess, err := o.session(ctx, op, gameID)
	if err != nil {
		return nil, err
	}
	if playerID == "" {
		return nil, reject(op, ReasonPlayerNotFound, gameID, playerID)
	}

	validate := func(g *models.GameSession) error {
		switch {
		case g.Player(playerID) != nil:
			return reject(op, ReasonAlreadyJoined, gameID, playerID)
		case len(g.Players) >= g.MaxPlayers:
			return reject(op, ReasonGameFull, gameID, playerID)
		case g.Phase != models.GamePhaseFilling:
			return reject(op, ReasonWrongPhase, gameID, playerID)
		}
		return nil
	}

	// Verify outside the lock, then re-validate: the session may have moved meanwhile.
	if err := sess.Apply(validate); err != nil {
		return nil, err
	}
	if o.verifier != nil {
		ok, err := o.verifier.VerifyEntry(ctx, gameID, playerID)
		if err != nil {
			return nil, fmt.Errorf("verify entry: %w", err)
		}
		if !ok {
			return nil, reject(op, ReasonEntryNotConfirmed, gameID, playerID)
		}
	}

	var joined models.PlayerState
	err = o.run(sess, op, func(m *mutation) error {
		g := m.g
		if err := validate(g); err != nil {
			return err
		}

		p := g.AddPlayer(playerID, g.NextSlot(), o.clock.Now())
		joined = *p

		log.Info().
			Str("game_id", gameID).
			Str("player_id", playerID).
			Int("slot", p.SlotNumber).
			Int("players", len(g.Players)).
			Int("max_players", g.MaxPlayers).
			Msg("player joined")

		m.emit(events.PlayerJoinedPayload{
			PlayerID:   playerID,
			Slot:       p.SlotNumber,
			Players:    len(g.Players),
			MaxPlayers: g.MaxPlayers,
		})
		m.persist = true

		if len(g.Players) == g.MaxPlayers {
			m.beginStarting(false)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &joined, nil
}

// RequestEarlyStart lets the creator start a Filling session with at least two players.
func (o *Orchestrator) RequestEarlyStart(ctx context.Context, gameID, requesterID string) error {
	const op = "early_start"

	sess, err := o.session(ctx, op, gameID)
	if err != nil {
		return err
	}
	return o.run(sess, op, func(m *mutation) error {
		g := m.g
		switch {
		case g.CreatorID == "" || g.CreatorID != requesterID:
			return reject(op, ReasonNotCreator, gameID, requesterID)
		case g.Phase != models.GamePhaseFilling:
			return reject(op, ReasonWrongPhase, gameID, requesterID)
		case len(g.Players) < session.MinPlayers:
			return reject(op, ReasonInsufficientPlayers, gameID, requesterID)
		}
		m.beginStarting(true)
		return nil
	})
}

// actor validates that playerID may act in the current round.
func actor(op string, g *models.GameSession, playerID string) (*models.PlayerState, error) {
	p := g.Player(playerID)
	switch {
	case p == nil:
		return nil, reject(op, ReasonPlayerNotFound, g.ID, playerID)
	case p.Status != models.PlayerStatusActive || !g.IsActive(playerID):
		return nil, reject(op, ReasonPlayerNotActive, g.ID, playerID)
	case p.HasActed:
		return nil, reject(op, ReasonAlreadyFlipped, g.ID, playerID)
	case g.Phase != models.GamePhaseRoundActive || !g.RoundPhase.AcceptsActions():
		return nil, reject(op, ReasonWrongPhase, g.ID, playerID)
	}
	return p, nil
}

// SetChoice stores a face for the player. It may be changed until the player flips.
func (o *Orchestrator) SetChoice(ctx context.Context, gameID, playerID string, face models.Face) error {
	const op = "set_choice"

	sess, err := o.session(ctx, op, gameID)
	if err != nil {
		return err
	}
	if !face.Valid() {
		return reject(op, ReasonInvalidChoice, gameID, playerID)
	}
	return o.run(sess, op, func(m *mutation) error {
		p, err := actor(op, m.g, playerID)
		if err != nil {
			return err
		}
		p.Choice = &face
		m.emit(events.ChoiceMadePayload{PlayerID: playerID})
		return nil
	})
}

// StartPowerCharge starts the player's power ticker. Calling it again restarts the ticker.
func (o *Orchestrator) StartPowerCharge(ctx context.Context, gameID, playerID string) error {
	const op = "start_power"

	sess, err := o.session(ctx, op, gameID)
	if err != nil {
		return err
	}
	return o.run(sess, op, func(m *mutation) error {
		p, err := actor(op, m.g, playerID)
		if err != nil {
			return err
		}
		p.Charging = true
		m.g.RoundPhase = models.RoundPhaseChargingPower
		m.emit(events.PowerUpdatePayload{PlayerID: playerID, Power: p.Power, Charging: true})

		if p.Power < models.MaxPower {
			m.every(timers.KindPowerCharge, playerID, o.cfg.PowerTickInterval,
				charging(m.g.CurrentRound, playerID), func(m *mutation) { m.chargeTick(playerID) })
		}
		return nil
	})
}

func charging(round int, playerID string) func(g *models.GameSession) bool {
	open := inRound(round, models.RoundPhaseWaitingChoice, models.RoundPhaseChargingPower)
	return func(g *models.GameSession) bool {
		p := g.Player(playerID)
		return open(g) && p != nil && p.Charging && !p.HasActed
	}
}

func (m *mutation) chargeTick(playerID string) {
	p := m.g.Player(playerID)
	next := p.Power + m.o.cfg.PowerStep
	if next > models.MaxPower {
		next = models.MaxPower
	}
	if next != p.Power {
		p.Power = next
		m.emit(events.PowerUpdatePayload{PlayerID: playerID, Power: p.Power, Charging: true})
	}
	if p.Power >= models.MaxPower {
		m.o.timers.Cancel(m.key(timers.KindPowerCharge, playerID))
	}
}

// StopPowerCharge stops the player's ticker. finalPower, when given, may only lower the
// server-side power, never raise it.
func (o *Orchestrator) StopPowerCharge(ctx context.Context, gameID, playerID string, finalPower *int) (int, error) {
	const op = "stop_power"

	sess, err := o.session(ctx, op, gameID)
	if err != nil {
		return 0, err
	}
	var power int
	err = o.run(sess, op, func(m *mutation) error {
		p, err := actor(op, m.g, playerID)
		if err != nil {
			return err
		}
		o.timers.Cancel(m.key(timers.KindPowerCharge, playerID))
		if finalPower != nil {
			p.Power = clampPower(*finalPower, p.Power)
		}
		p.Charging = false
		m.settleRoundPhase()
		power = p.Power
		m.emit(events.PowerUpdatePayload{PlayerID: playerID, Power: p.Power, Charging: false})
		return nil
	})
	return power, err
}

// settleRoundPhase returns to WaitingChoice once nobody is charging.
func (m *mutation) settleRoundPhase() {
	if m.g.RoundPhase != models.RoundPhaseChargingPower {
		return
	}
	for _, id := range m.g.ActivePlayers {
		if m.g.Players[id].Charging {
			return
		}
	}
	m.g.RoundPhase = models.RoundPhaseWaitingChoice
}

// ExecuteFlip resolves the player's flip. The last outstanding flip resolves the round immediately.
func (o *Orchestrator) ExecuteFlip(ctx context.Context, gameID, playerID string) (*FlipOutcome, error) {
	const op = "execute_flip"

	sess, err := o.session(ctx, op, gameID)
	if err != nil {
		return nil, err
	}
	var outcome FlipOutcome
	err = o.run(sess, op, func(m *mutation) error {
		p, err := actor(op, m.g, playerID)
		if err != nil {
			return err
		}
		if p.Choice == nil {
			if o.cfg.RequireChoice {
				return reject(op, ReasonNoChoice, gameID, playerID)
			}
			face := o.strat.ChooseFace(gameID, playerID)
			p.Choice = &face
			outcome.AutoChoice = true
		}

		o.timers.Cancel(m.key(timers.KindPowerCharge, playerID))
		result := m.flip(p, false)
		m.settleRoundPhase()

		outcome.PlayerID = playerID
		outcome.Round = m.g.CurrentRound
		outcome.Choice = *p.Choice
		outcome.Power = p.Power
		outcome.Result = result
		outcome.SuccessChance = o.cfg.Odds.SuccessChance(p.Power)

		if len(m.g.PendingActors()) == 0 {
			m.resolveRound()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}

// UpdateCoinCosmetic stores visual coin metadata in any phase. It never affects outcomes.
func (o *Orchestrator) UpdateCoinCosmetic(ctx context.Context, gameID, playerID string, cosmetic map[string]any) error {
	const op = "update_cosmetic"

	sess, err := o.session(ctx, op, gameID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(cosmetic)
	if err != nil {
		return reject(op, ReasonInvalidSettings, gameID, playerID)
	}
	return o.run(sess, op, func(m *mutation) error {
		p := m.g.Player(playerID)
		if p == nil {
			return reject(op, ReasonPlayerNotFound, gameID, playerID)
		}
		p.Cosmetic = raw
		m.emit(events.CosmeticUpdatedPayload{PlayerID: playerID, Cosmetic: cosmetic})
		return nil
	})
}
