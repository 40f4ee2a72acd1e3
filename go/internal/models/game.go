package models

import (
	"encoding/json"
	"time"
)

// Face is one side of the coin.
type Face string

const (
	FaceHeads Face = "heads"
	FaceTails Face = "tails"
)

// Valid reports whether f is heads or tails.
func (f Face) Valid() bool {
	return f == FaceHeads || f == FaceTails
}

// Opposite returns the other face.
func (f Face) Opposite() Face {
	if f == FaceHeads {
		return FaceTails
	}
	return FaceHeads
}

// GamePhase defines the lifecycle phase of a game session.
type GamePhase string

const (
	GamePhaseFilling     GamePhase = "FILLING"
	GamePhaseStarting    GamePhase = "STARTING"
	GamePhaseRoundActive GamePhase = "ROUND_ACTIVE"
	GamePhaseCompleted   GamePhase = "COMPLETED"
	GamePhaseCancelled   GamePhase = "CANCELLED"
)

// Terminal reports whether no further transitions are possible.
func (p GamePhase) Terminal() bool {
	return p == GamePhaseCompleted || p == GamePhaseCancelled
}

// RoundPhase is the sub-phase of a round. Only meaningful while the game is ROUND_ACTIVE.
type RoundPhase string

const (
	RoundPhaseNone            RoundPhase = ""
	RoundPhaseRevealingTarget RoundPhase = "REVEALING_TARGET"
	RoundPhaseWaitingChoice   RoundPhase = "WAITING_CHOICE"
	RoundPhaseChargingPower   RoundPhase = "CHARGING_POWER"
	RoundPhaseExecutingFlips  RoundPhase = "EXECUTING_FLIPS"
	RoundPhaseShowingResult   RoundPhase = "SHOWING_RESULT"
)

// AcceptsActions reports whether players may choose, charge and flip.
func (p RoundPhase) AcceptsActions() bool {
	return p == RoundPhaseWaitingChoice || p == RoundPhaseChargingPower
}

// PlayerStatus defines where a participant stands in the tournament.
type PlayerStatus string

const (
	PlayerStatusActive     PlayerStatus = "ACTIVE"
	PlayerStatusEliminated PlayerStatus = "ELIMINATED"
	PlayerStatusWinner     PlayerStatus = "WINNER"
)

const (
	MinPower = 1
	MaxPower = 10
)

// CreatorSlot is reserved for the player who announced the tournament.
const CreatorSlot = 0

// CoinState describes the last flip for observers. It is derived, not authoritative.
type CoinState struct {
	IsFlipping bool  `json:"is_flipping"`
	FlipResult *Face `json:"flip_result,omitempty"`
	PowerUsed  int   `json:"power_used"`
}

// PlayerState is one participant in a session.
type PlayerState struct {
	ID                 string          `json:"id"`
	SlotNumber         int             `json:"slot_number"`
	Status             PlayerStatus    `json:"status"`
	Choice             *Face           `json:"choice,omitempty"`
	Power              int             `json:"power"`
	Charging           bool            `json:"charging"`
	HasActed           bool            `json:"has_acted"`
	AutoResolved       bool            `json:"auto_resolved"`
	Coin               CoinState       `json:"coin_state"`
	Cosmetic           json.RawMessage `json:"cosmetic,omitempty"`
	RoundsParticipated int             `json:"rounds_participated"`
	RoundsSurvived     int             `json:"rounds_survived"`
	JoinedAt           time.Time       `json:"joined_at"`
}

// ResetForRound clears per-round fields at the start of every round.
func (p *PlayerState) ResetForRound() {
	p.Choice = nil
	p.Power = MinPower
	p.Charging = false
	p.HasActed = false
	p.AutoResolved = false
	p.Coin = CoinState{}
}

// RoundRecord is one append-only entry in the elimination history.
type RoundRecord struct {
	Round      int       `json:"round"`
	Target     Face      `json:"target"`
	Eliminated []string  `json:"eliminated"`
	Survivors  []string  `json:"survivors"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// GameSettings holds the creation-time configuration of a session.
type GameSettings struct {
	MaxPlayers int    `json:"max_players"`
	CreatorID  string `json:"creator_id,omitempty"`
}

// GameSession is one elimination tournament.
type GameSession struct {
	ID                 string                  `json:"id"`
	Phase              GamePhase               `json:"phase"`
	RoundPhase         RoundPhase              `json:"round_phase,omitempty"`
	MaxPlayers         int                     `json:"max_players"`
	CreatorID          string                  `json:"creator_id,omitempty"`
	Players            map[string]*PlayerState `json:"players"`
	JoinOrder          []string                `json:"join_order"`
	ActivePlayers      []string                `json:"active_players"`
	EliminatedPlayers  []string                `json:"eliminated_players"`
	CurrentRound       int                     `json:"current_round"`
	TargetResult       *Face                   `json:"target_result,omitempty"`
	TargetRevealed     bool                    `json:"target_revealed"`
	RoundDeadline      *time.Time              `json:"round_deadline,omitempty"`
	EliminationHistory []RoundRecord           `json:"elimination_history"`
	Winner             *string                 `json:"winner,omitempty"`
	CancelReason       string                  `json:"cancel_reason,omitempty"`
	EventSeq           uint64                  `json:"event_seq"`
	CreatedAt          time.Time               `json:"created_at"`
	StartedAt          *time.Time              `json:"started_at,omitempty"`
	EndedAt            *time.Time              `json:"ended_at,omitempty"`
}

// NewGameSession returns an empty session in the Filling phase.
func NewGameSession(id string, settings GameSettings, now time.Time) *GameSession {
	return &GameSession{
		ID:                 id,
		Phase:              GamePhaseFilling,
		MaxPlayers:         settings.MaxPlayers,
		CreatorID:          settings.CreatorID,
		Players:            make(map[string]*PlayerState),
		JoinOrder:          []string{},
		ActivePlayers:      []string{},
		EliminatedPlayers:  []string{},
		EliminationHistory: []RoundRecord{},
		CreatedAt:          now,
	}
}

// Player returns the participant with the given id, or nil.
func (g *GameSession) Player(id string) *PlayerState {
	return g.Players[id]
}

// IsActive reports whether the player is still in the tournament.
func (g *GameSession) IsActive(id string) bool {
	for _, a := range g.ActivePlayers {
		if a == id {
			return true
		}
	}
	return false
}

// SlotTaken reports whether any participant holds the slot.
func (g *GameSession) SlotTaken(slot int) bool {
	for _, p := range g.Players {
		if p.SlotNumber == slot {
			return true
		}
	}
	return false
}

// NextSlot returns the lowest free slot number >= 1.
func (g *GameSession) NextSlot() int {
	slot := CreatorSlot + 1
	for g.SlotTaken(slot) {
		slot++
	}
	return slot
}

// AddPlayer appends a participant as active in join order.
func (g *GameSession) AddPlayer(id string, slot int, now time.Time) *PlayerState {
	p := &PlayerState{
		ID:         id,
		SlotNumber: slot,
		Status:     PlayerStatusActive,
		Power:      MinPower,
		JoinedAt:   now,
	}
	g.Players[id] = p
	g.JoinOrder = append(g.JoinOrder, id)
	g.ActivePlayers = append(g.ActivePlayers, id)
	return p
}

// PendingActors returns active players who have not flipped this round, in join order.
func (g *GameSession) PendingActors() []string {
	var pending []string
	for _, id := range g.ActivePlayers {
		if p := g.Players[id]; p != nil && !p.HasActed {
			pending = append(pending, id)
		}
	}
	return pending
}

// Clone returns a deep copy safe to hand to other goroutines.
func (g *GameSession) Clone() *GameSession {
	c := *g
	c.Players = make(map[string]*PlayerState, len(g.Players))
	for id, p := range g.Players {
		cp := *p
		if p.Choice != nil {
			f := *p.Choice
			cp.Choice = &f
		}
		if p.Coin.FlipResult != nil {
			f := *p.Coin.FlipResult
			cp.Coin.FlipResult = &f
		}
		if p.Cosmetic != nil {
			cp.Cosmetic = append(json.RawMessage(nil), p.Cosmetic...)
		}
		c.Players[id] = &cp
	}
	c.JoinOrder = append([]string{}, g.JoinOrder...)
	c.ActivePlayers = append([]string{}, g.ActivePlayers...)
	c.EliminatedPlayers = append([]string{}, g.EliminatedPlayers...)
	c.EliminationHistory = make([]RoundRecord, len(g.EliminationHistory))
	for i, r := range g.EliminationHistory {
		r.Eliminated = append([]string{}, r.Eliminated...)
		r.Survivors = append([]string{}, r.Survivors...)
		c.EliminationHistory[i] = r
	}
	if g.TargetResult != nil {
		f := *g.TargetResult
		c.TargetResult = &f
	}
	if g.RoundDeadline != nil {
		t := *g.RoundDeadline
		c.RoundDeadline = &t
	}
	if g.Winner != nil {
		w := *g.Winner
		c.Winner = &w
	}
	if g.StartedAt != nil {
		t := *g.StartedAt
		c.StartedAt = &t
	}
	if g.EndedAt != nil {
		t := *g.EndedAt
		c.EndedAt = &t
	}
	return &c
}

// Redacted returns a copy for observers. The target is hidden until it has been revealed.
func (g *GameSession) Redacted() *GameSession {
	c := g.Clone()
	if !c.TargetRevealed {
		c.TargetResult = nil
	}
	return c
}
