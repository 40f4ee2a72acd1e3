package orchestrator

import (
	"math/rand"
	"sync"
	"time"

	"github.com/mcdev12/lastcoin/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Randomizer is the single source of randomness for targets, flips and fallback choices.
type Randomizer interface {
	// Float64 returns a uniform draw in [0, 1).
	Float64() float64
}

type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomizer returns a goroutine-safe Randomizer seeded once.
func NewRandomizer(seed int64) Randomizer {
	return &lockedRand{rng: rand.New(rand.NewSource(seed))}
}

func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// faceFromDraw maps a uniform draw to a face with p = 0.5 each.
func faceFromDraw(draw float64) models.Face {
	if draw < 0.5 {
		return models.FaceHeads
	}
	return models.FaceTails
}

// AutoResolveStrategy supplies a choice for a player who flips, or times out, without one.
type AutoResolveStrategy interface {
	ChooseFace(gameID, playerID string) models.Face
}

// RandomStrategy picks heads or tails uniformly.
type RandomStrategy struct {
	rng Randomizer
}

// NewRandomStrategy constructs a RandomStrategy on rng, or on a fresh time-seeded source when rng is nil.
func NewRandomStrategy(rng Randomizer) *RandomStrategy {
	if rng == nil {
		rng = NewRandomizer(time.Now().UnixNano())
	}
	return &RandomStrategy{rng: rng}
}

// ChooseFace implements AutoResolveStrategy.ChooseFace
func (s *RandomStrategy) ChooseFace(gameID, playerID string) models.Face {
	face := faceFromDraw(s.rng.Float64())
	log.Warn().
		Str("game_id", gameID).
		Str("player_id", playerID).
		Str("face", string(face)).
		Bool("auto_choice", true).
		Msg("auto-assigned choice")
	return face
}
