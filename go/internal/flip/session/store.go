package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/lastcoin/go/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrAlreadyExists   = errors.New("session already exists")
	ErrInvalidSettings = errors.New("invalid session settings")
)

// MinPlayers is the smallest tournament that can be played.
const MinPlayers = 2

// Persistence saves and restores session snapshots across restarts.
// Load returns ErrNotFound when nothing is stored for the id.
type Persistence interface {
	Load(ctx context.Context, id string) (*models.GameSession, error)
	Save(ctx context.Context, snapshot *models.GameSession) error
}

// TimerCanceller tears down every timer owned by a game.
type TimerCanceller interface {
	CancelAll(gameID string) int
}

// Session guards one GameSession. Every read and write goes through Apply or Snapshot.
type Session struct {
	mu    sync.Mutex
	state *models.GameSession
}

// ID returns the immutable game id.
func (s *Session) ID() string {
	return s.state.ID
}

// Apply runs fn with exclusive access to the session state.
func (s *Session) Apply(fn func(g *models.GameSession) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

// Snapshot returns a deep copy of the current state.
func (s *Session) Snapshot() *models.GameSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Store owns every live session in the process.
type Store struct {
	clock   clockwork.Clock
	timers  TimerCanceller
	persist Persistence

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates a store. persist may be nil for pure in-memory mode.
func NewStore(clock clockwork.Clock, timers TimerCanceller, persist Persistence) *Store {
	return &Store{
		clock:    clock,
		timers:   timers,
		persist:  persist,
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session in the Filling phase. When settings name a creator,
// the creator is enrolled into slot 0 without an entry check.
func (s *Store) Create(id string, settings models.GameSettings) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidSettings)
	}
	if settings.MaxPlayers < MinPlayers {
		return nil, fmt.Errorf("%w: max players %d below %d", ErrInvalidSettings, settings.MaxPlayers, MinPlayers)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; ok {
		return nil, ErrAlreadyExists
	}

	now := s.clock.Now()
	g := models.NewGameSession(id, settings, now)
	if settings.CreatorID != "" {
		g.AddPlayer(settings.CreatorID, models.CreatorSlot, now)
	}

	sess := &Session{state: g}
	s.sessions[id] = sess

	log.Info().
		Str("game_id", id).
		Int("max_players", settings.MaxPlayers).
		Str("creator_id", settings.CreatorID).
		Msg("session created")
	return sess, nil
}

// Get returns a live session.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// GetOrRestore returns a live session, loading it from persistence on a miss.
// restored is true only when this call brought the session back into memory.
func (s *Store) GetOrRestore(ctx context.Context, id string) (sess *Session, restored bool, err error) {
	if sess, err := s.Get(id); err == nil {
		return sess, false, nil
	}
	if s.persist == nil {
		return nil, false, ErrNotFound
	}

	snapshot, err := s.persist.Load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, ErrNotFound
		}
		return nil, false, fmt.Errorf("load session %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have restored it while we were loading.
	if existing, ok := s.sessions[id]; ok {
		return existing, false, nil
	}
	sess = &Session{state: snapshot}
	s.sessions[id] = sess

	log.Info().
		Str("game_id", id).
		Str("phase", string(snapshot.Phase)).
		Int("round", snapshot.CurrentRound).
		Msg("session restored from persistence")
	return sess, true, nil
}

// Save writes a snapshot through the persistence collaborator. It is a no-op in memory mode.
func (s *Store) Save(ctx context.Context, snapshot *models.GameSession) error {
	if s.persist == nil {
		return nil
	}
	if err := s.persist.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("save session %s: %w", snapshot.ID, err)
	}
	return nil
}

// Persistent reports whether a persistence collaborator is configured.
func (s *Store) Persistent() bool {
	return s.persist != nil
}

// Remove cancels every timer of the session and drops it from memory.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	if s.timers != nil {
		s.timers.CancelAll(id)
	}
	delete(s.sessions, id)

	log.Info().Str("game_id", id).Msg("session removed")
	return true
}

// List returns every live session ordered by id.
func (s *Store) List() []*Session {
	s.mu.RLock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// EvictTerminated removes completed and cancelled sessions that ended more than olderThan ago.
func (s *Store) EvictTerminated(olderThan time.Duration) []string {
	cutoff := s.clock.Now().Add(-olderThan)

	var expired []string
	for _, sess := range s.List() {
		snap := sess.Snapshot()
		if !snap.Phase.Terminal() || snap.EndedAt == nil {
			continue
		}
		if snap.EndedAt.Before(cutoff) || snap.EndedAt.Equal(cutoff) {
			expired = append(expired, snap.ID)
		}
	}

	for _, id := range expired {
		s.Remove(id)
	}
	if len(expired) > 0 {
		log.Info().Int("count", len(expired)).Msg("evicted terminated sessions")
	}
	return expired
}
