package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/lastcoin/go/internal/flip/events"
	"github.com/mcdev12/lastcoin/go/internal/flip/session"
	"github.com/mcdev12/lastcoin/go/internal/flip/timers"
	"github.com/mcdev12/lastcoin/go/internal/models"
	"github.com/rs/zerolog/log"
)

/*
ROUND ENGINE

Every session is mutated only inside session.Apply, so player actions and timer callbacks
for one game are serialized against the same lock. Broadcasts are enqueued while the lock is
held, which keeps each game's timeline in mutation order. Persistence and settlement calls run
after the lock is released, on a snapshot taken inside it.

PHASE FLOW:
1. FILLING: players join until capacity, early start, or fill timeout
2. STARTING: countdown, then round 1
3. ROUND_ACTIVE: REVEALING_TARGET -> WAITING_CHOICE/CHARGING_POWER -> EXECUTING_FLIPS -> SHOWING_RESULT
4. COMPLETED (one survivor) or CANCELLED (no survivors, fill timeout, internal error)
*/

// Broadcaster pushes an event to every subscriber of a game. Implementations must not block.
type Broadcaster interface {
	Broadcast(gameID string, event *events.Event)
}

// CompletionNotifier tells the settlement collaborator that a session reached a terminal phase.
type CompletionNotifier interface {
	NotifyCompleted(ctx context.Context, snapshot *models.GameSession) error
}

// EntryVerifier confirms that a player committed entry funds before joining.
type EntryVerifier interface {
	VerifyEntry(ctx context.Context, gameID, playerID string) (bool, error)
}

const sideEffectTimeout = 5 * time.Second

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(string, *events.Event) {}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBroadcaster sets the event sink.
func WithBroadcaster(b Broadcaster) Option {
	return func(o *Orchestrator) { o.broadcaster = b }
}

// WithNotifier sets the settlement collaborator.
func WithNotifier(n CompletionNotifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithEntryVerifier requires confirmed entries for every non-creator join.
func WithEntryVerifier(v EntryVerifier) Option {
	return func(o *Orchestrator) { o.verifier = v }
}

// WithRandomizer replaces the random source for targets, flips and fallback choices.
func WithRandomizer(r Randomizer) Option {
	return func(o *Orchestrator) { o.rng = r }
}

// WithStrategy replaces the fallback choice strategy.
func WithStrategy(s AutoResolveStrategy) Option {
	return func(o *Orchestrator) { o.strat = s }
}

type Orchestrator struct {
	cfg         Config
	store       *session.Store
	timers      *timers.Service
	clock       clockwork.Clock
	broadcaster Broadcaster
	notifier    CompletionNotifier
	verifier    EntryVerifier
	rng         Randomizer
	strat       AutoResolveStrategy
}

// New creates the round engine over a session store and timer service.
func New(cfg Config, store *session.Store, timerSvc *timers.Service, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:         cfg,
		store:       store,
		timers:      timerSvc,
		clock:       timerSvc.Clock(),
		broadcaster: noopBroadcaster{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.rng == nil {
		o.rng = NewRandomizer(time.Now().UnixNano())
	}
	if o.strat == nil {
		o.strat = NewRandomStrategy(o.rng)
	}
	return o
}

// Config returns the tuning the engine runs with.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// mutation is the context of one serialized change to a session.
// Its methods may only be called while the session lock is held.
type mutation struct {
	o  *Orchestrator
	g  *models.GameSession
	op string

	persist  bool
	terminal bool
	snapshot *models.GameSession
}

// run applies fn under the session lock, recovering panics into a session cancellation,
// then performs persistence and settlement outside the lock.
func (o *Orchestrator) run(sess *session.Session, op string, fn func(m *mutation) error) error {
	m := &mutation{o: o, op: op}
	err := sess.Apply(func(g *models.GameSession) error {
		m.g = g
		err := m.guarded(fn)
		if m.persist || m.terminal {
			m.snapshot = g.Clone()
		}
		return err
	})
	o.flush(m)
	return err
}

func (m *mutation) guarded(fn func(m *mutation) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("game_id", m.g.ID).
				Str("op", m.op).
				Interface("panic", r).
				Msg("recovered panic in session mutation")
			m.abort(fmt.Sprintf("panic in %s: %v", m.op, r))
			err = fmt.Errorf("%s: %w", m.op, errInternal)
		}
	}()
	return fn(m)
}

var errInternal = errors.New("internal error, session cancelled")

func (o *Orchestrator) flush(m *mutation) {
	if m.snapshot == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	if m.persist {
		if err := o.store.Save(ctx, m.snapshot); err != nil {
			log.Error().Err(err).Str("game_id", m.snapshot.ID).Str("op", m.op).Msg("failed to persist session")
		}
	}
	if m.terminal && o.notifier != nil {
		if err := o.notifier.NotifyCompleted(ctx, m.snapshot); err != nil {
			log.Error().Err(err).Str("game_id", m.snapshot.ID).Msg("failed to notify settlement")
		}
	}
}

// emit assigns the next per-game sequence number and hands the event to the broadcaster.
func (m *mutation) emit(payload events.Payload) {
	m.g.EventSeq++
	ev, err := events.New(m.g.ID, m.g.EventSeq, payload, m.o.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("game_id", m.g.ID).Str("type", string(payload.Type())).Msg("failed to build event")
		return
	}
	m.o.broadcaster.Broadcast(m.g.ID, ev)
}

func (m *mutation) key(kind timers.Kind, playerID string) timers.Key {
	return timers.Key{GameID: m.g.ID, Kind: kind, PlayerID: playerID}
}

// schedule arms a one-shot timer whose callback re-enters the session only if guard still holds.
// A failed schedule is retried once; a second failure cancels the session.
func (m *mutation) schedule(kind timers.Kind, delay time.Duration, guard func(g *models.GameSession) bool, fn func(m *mutation)) {
	key := m.key(kind, "")
	cb := m.o.callback(key, guard, fn)
	m.arm(key, func() error { return m.o.timers.Schedule(key, delay, cb) })
}

// every arms a ticker with the same guard semantics as schedule.
func (m *mutation) every(kind timers.Kind, playerID string, interval time.Duration, guard func(g *models.GameSession) bool, fn func(m *mutation)) {
	key := m.key(kind, playerID)
	cb := m.o.callback(key, guard, fn)
	m.arm(key, func() error { return m.o.timers.Every(key, interval, cb) })
}

func (m *mutation) arm(key timers.Key, start func() error) {
	err := start()
	if err != nil && !errors.Is(err, timers.ErrClosed) {
		log.Warn().Err(err).Str("game_id", key.GameID).Str("kind", string(key.Kind)).Msg("timer schedule failed, retrying")
		err = start()
	}
	switch {
	case err == nil:
	case errors.Is(err, timers.ErrClosed):
		// Shutting down; a restore re-arms from the persisted deadline.
		log.Warn().Str("game_id", key.GameID).Str("kind", string(key.Kind)).Msg("timer service closed, not scheduling")
	default:
		m.abort(fmt.Sprintf("schedule %s timer: %v", key.Kind, err))
	}
}

func (o *Orchestrator) callback(key timers.Key, guard func(g *models.GameSession) bool, fn func(m *mutation)) func() {
	return func() {
		sess, err := o.store.Get(key.GameID)
		if err != nil {
			log.Debug().Str("game_id", key.GameID).Str("kind", string(key.Kind)).Msg("timer fired for unknown session")
			return
		}
		_ = o.run(sess, string(key.Kind), func(m *mutation) error {
			if m.g.Phase.Terminal() || !guard(m.g) {
				log.Debug().
					Str("game_id", key.GameID).
					Str("kind", string(key.Kind)).
					Str("player_id", key.PlayerID).
					Msg("skipping stale timer")
				return nil
			}
			fn(m)
			return nil
		})
	}
}

// session resolves a game id, restoring it from persistence and re-arming its timers on a miss.
func (o *Orchestrator) session(ctx context.Context, op, gameID string) (*session.Session, error) {
	sess, restored, err := o.store.GetOrRestore(ctx, gameID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, reject(op, ReasonGameNotFound, gameID, "")
		}
		return nil, err
	}
	if restored {
		o.rearm(sess)
	}
	return sess, nil
}

// Snapshot returns the observer view of a session.
func (o *Orchestrator) Snapshot(ctx context.Context, gameID string) (*models.GameSession, error) {
	sess, err := o.session(ctx, "snapshot", gameID)
	if err != nil {
		return nil, err
	}
	return sess.Snapshot().Redacted(), nil
}

// Summary is the list view of a session.
type Summary struct {
	ID           string            `json:"id"`
	Phase        models.GamePhase  `json:"phase"`
	RoundPhase   models.RoundPhase `json:"round_phase,omitempty"`
	CurrentRound int               `json:"current_round"`
	Players      int               `json:"players"`
	Active       int               `json:"active"`
	MaxPlayers   int               `json:"max_players"`
	Winner       *string           `json:"winner,omitempty"`
}

// ListSessions summarizes every live session.
func (o *Orchestrator) ListSessions() []Summary {
	sessions := o.store.List()
	out := make([]Summary, 0, len(sessions))
	for _, sess := range sessions {
		g := sess.Snapshot()
		out = append(out, Summary{
			ID:           g.ID,
			Phase:        g.Phase,
			RoundPhase:   g.RoundPhase,
			CurrentRound: g.CurrentRound,
			Players:      len(g.Players),
			Active:       len(g.ActivePlayers),
			MaxPlayers:   g.MaxPlayers,
			Winner:       g.Winner,
		})
	}
	return out
}

// PendingTimers reports how many timers are outstanding for a game.
func (o *Orchestrator) PendingTimers(gameID string) int {
	return o.timers.Pending(gameID)
}

// RunSweeper evicts terminated sessions until ctx is cancelled.
func (o *Orchestrator) RunSweeper(ctx context.Context) error {
	if o.cfg.SweepInterval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := o.clock.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", o.cfg.SweepInterval).Dur("evict_after", o.cfg.EvictAfter).Msg("session sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("session sweeper stopped")
			return nil
		case <-ticker.Chan():
			o.store.EvictTerminated(o.cfg.EvictAfter)
		}
	}
}
