package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcdev12/lastcoin/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOdds_SuccessChanceCurve(t *testing.T) {
	odds := DefaultOdds()
	assert.InDelta(t, 0.50, odds.SuccessChance(1), 1e-9)
	assert.InDelta(t, 0.85, odds.SuccessChance(10), 1e-9)
	assert.InDelta(t, 0.50+4.0/9*0.35, odds.SuccessChance(5), 1e-9)

	// Out-of-range power is clamped, never extrapolated.
	assert.InDelta(t, 0.50, odds.SuccessChance(0), 1e-9)
	assert.InDelta(t, 0.85, odds.SuccessChance(42), 1e-9)
}

func TestOdds_Resolve(t *testing.T) {
	odds := DefaultOdds()
	assert.Equal(t, models.FaceHeads, odds.Resolve(models.FaceHeads, 1, 0.49))
	assert.Equal(t, models.FaceTails, odds.Resolve(models.FaceHeads, 1, 0.50))
	assert.Equal(t, models.FaceTails, odds.Resolve(models.FaceTails, 10, 0.84))
	assert.Equal(t, models.FaceHeads, odds.Resolve(models.FaceTails, 10, 0.85))
}

func TestTargetDrawIsFair(t *testing.T) {
	const rounds = 10000
	rng := NewRandomizer(42)

	heads := 0
	for i := 0; i < rounds; i++ {
		if faceFromDraw(rng.Float64()) == models.FaceHeads {
			heads++
		}
	}
	assert.InDelta(t, 0.5, float64(heads)/rounds, 0.03)
}

func TestEngineDrawsFreshTargetEachRound(t *testing.T) {
	const rounds = 10000
	h := newHarness(t, testConfig(), withOptions(WithRandomizer(NewRandomizer(42))))
	id := h.create(2, "")
	h.join(id, "a", "b")
	sess, err := h.store.Get(id)
	require.NoError(t, err)

	heads, changes := 0, 0
	var prev models.Face
	for i := 0; i < rounds; i++ {
		var target models.Face
		require.NoError(t, h.orch.run(sess, "test_round", func(m *mutation) error {
			m.startRound()
			target = *m.g.TargetResult
			return nil
		}))
		if target == models.FaceHeads {
			heads++
		}
		if i > 0 && target != prev {
			changes++
		}
		prev = target
	}

	assert.Equal(t, rounds, h.state(id).CurrentRound)
	assert.InDelta(t, 0.5, float64(heads)/rounds, 0.03)
	// Independent draws flip face about half the time; a cached target never would.
	assert.InDelta(t, 0.5, float64(changes)/(rounds-1), 0.03)
}

func TestFlipFrequencyFollowsPower(t *testing.T) {
	const flips = 10000
	odds := DefaultOdds()
	rng := NewRandomizer(7)

	for _, power := range []int{1, 5, 10} {
		hits := 0
		for i := 0; i < flips; i++ {
			if odds.Resolve(models.FaceHeads, power, rng.Float64()) == models.FaceHeads {
				hits++
			}
		}
		assert.InDelta(t, odds.SuccessChance(power), float64(hits)/flips, 0.03, "power %d", power)
	}
}

func TestRandomStrategy_IsUniform(t *testing.T) {
	strat := NewRandomStrategy(NewRandomizer(99))
	heads := 0
	for i := 0; i < 10000; i++ {
		if strat.ChooseFace("g", "p") == models.FaceHeads {
			heads++
		}
	}
	assert.InDelta(t, 0.5, float64(heads)/10000, 0.03)
}

func TestLoadConfig_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := `
max_players_default: 8
choice_window: 15s
fill_timeout: 2m
require_choice: true
odds:
  base_chance: 0.4
  max_bonus: 0.5
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.MaxPlayersDefault)
	assert.Equal(t, 15*time.Second, cfg.ChoiceWindow)
	assert.Equal(t, 2*time.Minute, cfg.FillTimeout)
	assert.True(t, cfg.RequireChoice)
	assert.InDelta(t, 0.4, cfg.Odds.BaseChance, 1e-9)
	assert.Equal(t, DefaultConfig().StartDelay, cfg.StartDelay)
}

func TestLoadConfig_RejectsInvalidOdds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("odds:\n  base_chance: 0.9\n  max_bonus: 0.5\n"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
