package orchestrator

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/mcdev12/lastcoin/go/internal/flip/session"
	"gopkg.in/yaml.v3"
)

// Config holds the game tuning. Durations are read from YAML as Go duration strings.
type Config struct {
	MaxPlayersDefault int           `yaml:"max_players_default"`
	StartDelay        time.Duration `yaml:"start_delay"`
	RevealDelay       time.Duration `yaml:"reveal_delay"`
	ChoiceWindow      time.Duration `yaml:"choice_window"`
	ResultDisplay     time.Duration `yaml:"result_display"`
	// FillTimeout of zero leaves Filling sessions open indefinitely.
	FillTimeout       time.Duration `yaml:"fill_timeout"`
	PowerTickInterval time.Duration `yaml:"power_tick_interval"`
	PowerStep         int           `yaml:"power_step"`
	RequireChoice     bool          `yaml:"require_choice"`
	Odds              Odds          `yaml:"odds"`
	EvictAfter        time.Duration `yaml:"evict_after"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxPlayersDefault: 6,
		StartDelay:        3 * time.Second,
		RevealDelay:       2 * time.Second,
		ChoiceWindow:      20 * time.Second,
		ResultDisplay:     4 * time.Second,
		PowerTickInterval: 100 * time.Millisecond,
		PowerStep:         1,
		Odds:              DefaultOdds(),
		EvictAfter:        10 * time.Minute,
		SweepInterval:     time.Minute,
	}
}

// LoadConfig reads a YAML file over the defaults. A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the tuning for values the engine cannot run with.
func (c Config) Validate() error {
	switch {
	case c.MaxPlayersDefault < session.MinPlayers:
		return fmt.Errorf("max_players_default must be at least %d", session.MinPlayers)
	case c.StartDelay < 0, c.RevealDelay < 0, c.ResultDisplay < 0:
		return errors.New("delays must not be negative")
	case c.ChoiceWindow <= 0:
		return errors.New("choice_window must be positive")
	case c.FillTimeout < 0:
		return errors.New("fill_timeout must not be negative")
	case c.PowerTickInterval <= 0:
		return errors.New("power_tick_interval must be positive")
	case c.PowerStep < 1:
		return errors.New("power_step must be at least 1")
	case c.EvictAfter < 0:
		return errors.New("evict_after must not be negative")
	}
	return c.Odds.Validate()
}
