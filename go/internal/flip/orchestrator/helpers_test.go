package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/lastcoin/go/internal/flip/events"
	"github.com/mcdev12/lastcoin/go/internal/flip/session"
	"github.com/mcdev12/lastcoin/go/internal/flip/timers"
	"github.com/mcdev12/lastcoin/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// scriptedRand returns queued draws in order, then fallback forever.
type scriptedRand struct {
	mu       sync.Mutex
	draws    []float64
	fallback float64
}

func (r *scriptedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.draws) == 0 {
		return r.fallback
	}
	d := r.draws[0]
	r.draws = r.draws[1:]
	return d
}

func (r *scriptedRand) push(draws ...float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draws = append(r.draws, draws...)
}

// recorder captures every broadcast in order.
type recorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recorder) Broadcast(_ string, ev *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []*events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*events.Event{}, r.events...)
}

func (r *recorder) types() []events.Type {
	var out []events.Type
	for _, ev := range r.all() {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) count(t events.Type) int {
	n := 0
	for _, ev := range r.all() {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) last(t *testing.T, typ events.Type) events.Payload {
	t.Helper()
	evs := r.all()
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Type == typ {
			payload, err := events.Decode(evs[i])
			require.NoError(t, err)
			return payload
		}
	}
	t.Fatalf("no %s event recorded", typ)
	return nil
}

type memoryPersistence struct {
	mu    sync.Mutex
	saved map[string]*models.GameSession
	saves int
}

func newMemoryPersistence() *memoryPersistence {
	return &memoryPersistence{saved: make(map[string]*models.GameSession)}
}

func (m *memoryPersistence) Load(_ context.Context, id string) (*models.GameSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.saved[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return g.Clone(), nil
}

func (m *memoryPersistence) Save(_ context.Context, snapshot *models.GameSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.saved[snapshot.ID] = snapshot.Clone()
	return nil
}

func (m *memoryPersistence) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *memoryPersistence) get(id string) *models.GameSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.saved[id]; ok {
		return g.Clone()
	}
	return nil
}

type notifierFunc func(ctx context.Context, snapshot *models.GameSession) error

func (f notifierFunc) NotifyCompleted(ctx context.Context, snapshot *models.GameSession) error {
	return f(ctx, snapshot)
}

type verifierFunc func(ctx context.Context, gameID, playerID string) (bool, error)

func (f verifierFunc) VerifyEntry(ctx context.Context, gameID, playerID string) (bool, error) {
	return f(ctx, gameID, playerID)
}

type harness struct {
	t       *testing.T
	ctx     context.Context
	cfg     Config
	clock   *clockwork.FakeClock
	timers  *timers.Service
	store   *session.Store
	rng     *scriptedRand
	rec     *recorder
	persist *memoryPersistence
	orch    *Orchestrator
}

type harnessOption func(h *harness, opts *[]Option)

func withPersistence() harnessOption {
	return func(h *harness, _ *[]Option) { h.persist = newMemoryPersistence() }
}

func withOptions(extra ...Option) harnessOption {
	return func(_ *harness, opts *[]Option) { *opts = append(*opts, extra...) }
}

func newHarness(t *testing.T, cfg Config, hopts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		ctx:   context.Background(),
		cfg:   cfg,
		clock: clockwork.NewFakeClock(),
		rng:   &scriptedRand{fallback: 0.1},
		rec:   &recorder{},
	}
	var opts []Option
	for _, o := range hopts {
		o(h, &opts)
	}

	h.timers = timers.NewService(h.clock)
	t.Cleanup(h.timers.Close)
	if h.persist != nil {
		h.store = session.NewStore(h.clock, h.timers, h.persist)
	} else {
		h.store = session.NewStore(h.clock, h.timers, nil)
	}

	opts = append([]Option{WithBroadcaster(h.rec), WithRandomizer(h.rng)}, opts...)
	h.orch = New(cfg, h.store, h.timers, opts...)
	return h
}

func (h *harness) create(maxPlayers int, creator string) string {
	h.t.Helper()
	g, err := h.orch.CreateSession(h.ctx, CreateRequest{MaxPlayers: maxPlayers, CreatorID: creator})
	require.NoError(h.t, err)
	return g.ID
}

func (h *harness) join(gameID string, players ...string) {
	h.t.Helper()
	for _, p := range players {
		_, err := h.orch.JoinSession(h.ctx, gameID, p)
		require.NoError(h.t, err)
	}
}

func (h *harness) state(gameID string) *models.GameSession {
	h.t.Helper()
	sess, err := h.store.Get(gameID)
	require.NoError(h.t, err)
	return sess.Snapshot()
}

// waitUntil blocks until cond holds on the session state, checking partition invariants on every sample.
func (h *harness) waitUntil(gameID string, cond func(g *models.GameSession) bool) *models.GameSession {
	h.t.Helper()
	sess, err := h.store.Get(gameID)
	require.NoError(h.t, err)

	var last *models.GameSession
	require.Eventually(h.t, func() bool {
		snap := sess.Snapshot()
		if !assertPartition(h.t, snap) {
			return false
		}
		last = snap
		return cond(snap)
	}, waitFor, time.Millisecond)
	return last
}

func (h *harness) waitRoundPhase(gameID string, round int, phase models.RoundPhase) *models.GameSession {
	h.t.Helper()
	return h.waitUntil(gameID, func(g *models.GameSession) bool {
		return g.Phase == models.GamePhaseRoundActive && g.CurrentRound == round && g.RoundPhase == phase
	})
}

func (h *harness) waitTerminal(gameID string) *models.GameSession {
	h.t.Helper()
	return h.waitUntil(gameID, func(g *models.GameSession) bool { return g.Phase.Terminal() })
}

// openRound drives a started session from Starting to the open choice window of round.
func (h *harness) openRound(gameID string, round int) {
	h.t.Helper()
	if round == 1 {
		h.clock.Advance(h.cfg.StartDelay)
	} else {
		h.clock.Advance(h.cfg.ResultDisplay)
	}
	h.waitRoundPhase(gameID, round, models.RoundPhaseRevealingTarget)
	h.clock.Advance(h.cfg.RevealDelay)
	h.waitRoundPhase(gameID, round, models.RoundPhaseWaitingChoice)
}

func assertPartition(t *testing.T, g *models.GameSession) bool {
	ok := true
	seen := make(map[string]bool)
	for _, id := range g.ActivePlayers {
		ok = assert.Contains(t, g.Players, id) && ok
		seen[id] = true
	}
	for _, id := range g.EliminatedPlayers {
		ok = assert.Contains(t, g.Players, id) && ok
		ok = assert.False(t, seen[id], "player %s both active and eliminated", id) && ok
	}
	return ok
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FillTimeout = 0
	cfg.SweepInterval = 0
	return cfg
}
