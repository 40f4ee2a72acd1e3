package timers

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Kind names one logical clock owned by a game.
type Kind string

const (
	KindFillTimeout    Kind = "fill_timeout"
	KindStartCountdown Kind = "start_countdown"
	KindReveal         Kind = "reveal"
	KindRoundDeadline  Kind = "round_deadline"
	KindResultDisplay  Kind = "result_display"
	KindPowerCharge    Kind = "power_charge"
)

// Key identifies a timer. PlayerID is only set for per-player clocks such as power charging.
type Key struct {
	GameID   string
	Kind     Kind
	PlayerID string
}

var (
	ErrClosed          = errors.New("timer service closed")
	ErrInvalidInterval = errors.New("ticker interval must be positive")
)

type handle struct {
	id     uint64
	stop   chan struct{}
	timer  clockwork.Timer
	ticker clockwork.Ticker
}

// Service owns every outstanding timer and ticker, keyed by game, kind and player.
// At most one handle exists per key; scheduling a key that is already running replaces it.
type Service struct {
	clock clockwork.Clock

	mu     sync.Mutex
	active map[Key]*handle
	nextID uint64
	closed bool
}

// NewService creates a timer service on the given clock.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
func NewService(clock clockwork.Clock) *Service {
	return &Service{
		clock:  clock,
		active: make(map[Key]*handle),
	}
}

// Clock returns the clock the service schedules on.
func (s *Service) Clock() clockwork.Clock {
	return s.clock
}

// Schedule arms a one-shot timer. fn runs on its own goroutine once the delay elapses,
// unless the key is cancelled or replaced first.
func (s *Service) Schedule(key Key, delay time.Duration, fn func()) error {
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.replaceLocked(key)
	s.nextID++
	h := &handle{id: s.nextID, stop: make(chan struct{}), timer: s.clock.NewTimer(delay)}
	s.active[key] = h
	s.mu.Unlock()

	go func() {
		select {
		case <-h.timer.Chan():
			if !s.release(key, h) {
				return
			}
			fn()
		case <-h.stop:
		}
	}()

	log.Debug().
		Str("game_id", key.GameID).
		Str("kind", string(key.Kind)).
		Str("player_id", key.PlayerID).
		Dur("delay", delay).
		Msg("scheduled timer")
	return nil
}

// Every arms a repeating ticker. fn runs for each tick until the key is cancelled or replaced.
func (s *Service) Every(key Key, interval time.Duration, fn func()) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.replaceLocked(key)
	s.nextID++
	h := &handle{id: s.nextID, stop: make(chan struct{}), ticker: s.clock.NewTicker(interval)}
	s.active[key] = h
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-h.ticker.Chan():
				if !s.current(key, h) {
					return
				}
				fn()
			case <-h.stop:
				return
			}
		}
	}()

	log.Debug().
		Str("game_id", key.GameID).
		Str("kind", string(key.Kind)).
		Str("player_id", key.PlayerID).
		Dur("interval", interval).
		Msg("scheduled ticker")
	return nil
}

// Cancel stops the timer for key. It reports whether one was running.
func (s *Service) Cancel(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.active[key]
	if !ok {
		return false
	}
	stopHandle(h)
	delete(s.active, key)
	log.Debug().
		Str("game_id", key.GameID).
		Str("kind", string(key.Kind)).
		Str("player_id", key.PlayerID).
		Msg("cancelled timer")
	return true
}

// CancelKind stops every timer of one kind for a game, across all players.
func (s *Service) CancelKind(gameID string, kind Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, h := range s.active {
		if key.GameID == gameID && key.Kind == kind {
			stopHandle(h)
			delete(s.active, key)
			n++
		}
	}
	return n
}

// CancelAll stops every timer owned by a game and returns how many were running.
func (s *Service) CancelAll(gameID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, h := range s.active {
		if key.GameID == gameID {
			stopHandle(h)
			delete(s.active, key)
			n++
		}
	}
	if n > 0 {
		log.Debug().Str("game_id", gameID).Int("count", n).Msg("cancelled all timers")
	}
	return n
}

// Pending returns the number of outstanding timers for a game.
func (s *Service) Pending(gameID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key := range s.active {
		if key.GameID == gameID {
			n++
		}
	}
	return n
}

// Active reports whether a timer is outstanding for key.
func (s *Service) Active(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[key]
	return ok
}

// Close stops every timer and rejects further scheduling.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, h := range s.active {
		stopHandle(h)
		delete(s.active, key)
	}
	s.closed = true
}

// replaceLocked cancels any existing handle for key. Caller holds s.mu.
func (s *Service) replaceLocked(key Key) {
	if existing, ok := s.active[key]; ok {
		stopHandle(existing)
		delete(s.active, key)
		log.Debug().
			Str("game_id", key.GameID).
			Str("kind", string(key.Kind)).
			Str("player_id", key.PlayerID).
			Msg("replaced existing timer")
	}
}

// release removes a fired one-shot handle. It reports false if the handle was cancelled or replaced meanwhile.
func (s *Service) release(key Key, h *handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[key] != h {
		return false
	}
	delete(s.active, key)
	return true
}

func (s *Service) current(key Key, h *handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[key] == h
}

func stopHandle(h *handle) {
	close(h.stop)
	if h.timer != nil {
		stopAndDrainTimer(h.timer)
	}
	if h.ticker != nil {
		h.ticker.Stop()
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
