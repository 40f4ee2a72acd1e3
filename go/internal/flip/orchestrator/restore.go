package orchestrator

import (
	"time"

	"github.com/mcdev12/lastcoin/go/internal/flip/session"
	"github.com/mcdev12/lastcoin/go/internal/flip/timers"
	"github.com/mcdev12/lastcoin/go/internal/models"
	"github.com/rs/zerolog/log"
)

// rearm restarts the timer of a restored session's current sub-phase, measured
// from the persisted deadline rather than from zero.
func (o *Orchestrator) rearm(sess *session.Session) {
	_ = o.run(sess, "restore", func(m *mutation) error {
		g := m.g
		if g.Phase.Terminal() {
			return nil
		}

		remaining := func(from time.Time) time.Duration {
			if g.RoundDeadline == nil {
				return 0
			}
			return g.RoundDeadline.Sub(from)
		}
		now := o.clock.Now()

		switch g.Phase {
		case models.GamePhaseFilling:
			if o.cfg.FillTimeout > 0 {
				m.armFillTimeout(g.CreatedAt.Add(o.cfg.FillTimeout).Sub(now))
			}
		case models.GamePhaseStarting:
			m.schedule(timers.KindStartCountdown, remaining(now), inPhase(models.GamePhaseStarting), (*mutation).startRound)
		case models.GamePhaseRoundActive:
			round := g.CurrentRound
			switch g.RoundPhase {
			case models.RoundPhaseRevealingTarget:
				m.schedule(timers.KindReveal, remaining(now),
					inRound(round, models.RoundPhaseRevealingTarget), (*mutation).revealTarget)
			case models.RoundPhaseWaitingChoice, models.RoundPhaseChargingPower:
				// Power tickers do not survive a restart.
				for _, id := range g.ActivePlayers {
					g.Players[id].Charging = false
				}
				g.RoundPhase = models.RoundPhaseWaitingChoice
				m.armDeadline(remaining(now))
			case models.RoundPhaseShowingResult:
				m.schedule(timers.KindResultDisplay, remaining(now),
					inRound(round, models.RoundPhaseShowingResult), (*mutation).startRound)
			default:
				m.deadlineExpired()
			}
		}

		log.Info().
			Str("game_id", g.ID).
			Str("phase", string(g.Phase)).
			Str("round_phase", string(g.RoundPhase)).
			Int("round", g.CurrentRound).
			Int("timers", o.timers.Pending(g.ID)).
			Msg("re-armed restored session")
		return nil
	})
}
