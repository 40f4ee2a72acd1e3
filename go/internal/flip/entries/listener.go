// Package entries seats players whose committed entry the payment collaborator confirmed.
package entries

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mcdev12/lastcoin/go/internal/flip/orchestrator"
	"github.com/mcdev12/lastcoin/go/internal/flip/repository"
	"github.com/mcdev12/lastcoin/go/internal/models"
	"github.com/rs/zerolog/log"
)

type ListenerConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often to poll for missed confirmations
	PingInterval     time.Duration
	BatchSize        int32 // Max entries to fetch per poll
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel:    "flip_entry_confirmed",
		FallbackInterval: 30 * time.Second,
		PingInterval:     90 * time.Second,
		BatchSize:        100,
	}
}

// Joiner seats a player in a session.
type Joiner interface {
	JoinSession(ctx context.Context, gameID, playerID string) (*models.PlayerState, error)
}

// EntryStore tracks which confirmed entries still need a seat.
type EntryStore interface {
	FetchConfirmedUnjoined(ctx context.Context, after repository.EntryCursor, limit int32) ([]repository.Entry, error)
	MarkJoined(ctx context.Context, gameID, playerID string) error
	MarkRejected(ctx context.Context, gameID, playerID string) error
}

// notificationSource is the part of *pq.Listener the loop uses.
type notificationSource interface {
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

type confirmation struct {
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id"`
}

type Listener struct {
	source notificationSource
	joiner Joiner
	store  EntryStore
	cfg    ListenerConfig
}

func NewListener(cfg ListenerConfig, joiner Joiner, store EntryStore) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for entry confirmations")

	return newListener(l, cfg, joiner, store), nil
}

func newListener(source notificationSource, cfg ListenerConfig, joiner Joiner, store EntryStore) *Listener {
	return &Listener{source: source, joiner: joiner, store: store, cfg: cfg}
}

func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("entry listener started")

	pingTicker := time.NewTicker(l.cfg.PingInterval)
	fallbackTicker := time.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	// Catch up on anything confirmed while we were down.
	if err := l.processPending(ctx); err != nil {
		log.Error().Err(err).Msg("failed to process pending entries")
	}

	notifications := l.source.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("entry listener shutting down")
			return l.source.Close()
		case note := <-notifications:
			if note == nil {
				// Connection was lost; pq reconnects on its own. Poll in case we missed something.
				if err := l.processPending(ctx); err != nil {
					log.Error().Err(err).Msg("failed to process pending entries")
				}
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle entry notification")
			}
		case <-fallbackTicker.C:
			if err := l.processPending(ctx); err != nil {
				log.Error().Err(err).Msg("failed to process pending entries")
			}
		case <-pingTicker.C:
			if err := l.source.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *Listener) handleNotification(ctx context.Context, extra string) error {
	var c confirmation
	if err := json.Unmarshal([]byte(extra), &c); err != nil {
		return fmt.Errorf("invalid entry notification payload: %w", err)
	}
	if c.GameID == "" || c.PlayerID == "" {
		return fmt.Errorf("entry notification missing ids: %q", extra)
	}
	return l.seat(ctx, c.GameID, c.PlayerID)
}

// processPending walks every confirmed, unseated entry in confirmation order.
// A failing entry is skipped for this pass so it cannot hold back the ones behind it.
func (l *Listener) processPending(ctx context.Context) error {
	var cursor repository.EntryCursor
	for {
		pending, err := l.store.FetchConfirmedUnjoined(ctx, cursor, l.cfg.BatchSize)
		if err != nil {
			return err
		}
		for _, e := range pending {
			if err := l.seat(ctx, e.GameID, e.PlayerID); err != nil {
				log.Error().Err(err).Str("game_id", e.GameID).Str("player_id", e.PlayerID).Msg("failed to seat entry")
			}
		}
		if int32(len(pending)) < l.cfg.BatchSize || len(pending) == 0 {
			return nil
		}
		cursor = pending[len(pending)-1].Cursor()
	}
}

// seat joins the player and records the outcome on the entry.
func (l *Listener) seat(ctx context.Context, gameID, playerID string) error {
	_, err := l.joiner.JoinSession(ctx, gameID, playerID)
	if err == nil {
		log.Info().Str("game_id", gameID).Str("player_id", playerID).Msg("confirmed entry seated")
		return l.store.MarkJoined(ctx, gameID, playerID)
	}

	reason, ok := orchestrator.ReasonOf(err)
	if !ok {
		return fmt.Errorf("join %s/%s: %w", gameID, playerID, err)
	}
	switch reason {
	case orchestrator.ReasonAlreadyJoined:
		return l.store.MarkJoined(ctx, gameID, playerID)
	case orchestrator.ReasonGameFull, orchestrator.ReasonWrongPhase, orchestrator.ReasonGameNotFound:
		log.Warn().
			Str("game_id", gameID).
			Str("player_id", playerID).
			Str("reason", string(reason)).
			Msg("confirmed entry cannot be seated")
		return l.store.MarkRejected(ctx, gameID, playerID)
	}
	return fmt.Errorf("join %s/%s rejected: %s", gameID, playerID, reason)
}
