package orchestrator

import (
	"errors"

	"github.com/mcdev12/lastcoin/go/internal/models"
)

// Odds is the weighted-coin curve. successChance = base + ((power-1)/9) * maxBonus.
type Odds struct {
	BaseChance float64 `yaml:"base_chance"`
	MaxBonus   float64 `yaml:"max_bonus"`
}

// DefaultOdds gives 50% at power 1 and 85% at power 10.
func DefaultOdds() Odds {
	return Odds{BaseChance: 0.5, MaxBonus: 0.35}
}

// Validate rejects curves that leave [0, 1].
func (o Odds) Validate() error {
	if o.BaseChance < 0 || o.MaxBonus < 0 || o.BaseChance+o.MaxBonus > 1 {
		return errors.New("odds must satisfy 0 <= base_chance and base_chance + max_bonus <= 1")
	}
	return nil
}

// SuccessChance returns the probability that a flip lands on the chosen face.
func (o Odds) SuccessChance(power int) float64 {
	power = clampPower(power, models.MaxPower)
	return o.BaseChance + float64(power-models.MinPower)/float64(models.MaxPower-models.MinPower)*o.MaxBonus
}

// Resolve turns a uniform draw in [0, 1) into the face the coin lands on.
func (o Odds) Resolve(choice models.Face, power int, draw float64) models.Face {
	if draw < o.SuccessChance(power) {
		return choice
	}
	return choice.Opposite()
}

// clampPower bounds power to [MinPower, upper].
func clampPower(power, upper int) int {
	if upper > models.MaxPower {
		upper = models.MaxPower
	}
	if power > upper {
		power = upper
	}
	if power < models.MinPower {
		power = models.MinPower
	}
	return power
}
