package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/lastcoin/go/internal/flip/entries"
	"github.com/mcdev12/lastcoin/go/internal/flip/gateway"
	"github.com/mcdev12/lastcoin/go/internal/flip/orchestrator"
	"github.com/mcdev12/lastcoin/go/internal/flip/repository"
	flipdb "github.com/mcdev12/lastcoin/go/internal/flip/repository/db"
	"github.com/mcdev12/lastcoin/go/internal/flip/session"
	"github.com/mcdev12/lastcoin/go/internal/flip/settlement"
	"github.com/mcdev12/lastcoin/go/internal/flip/timers"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Orchestrator *orchestrator.Orchestrator
	Connections  *gateway.ConnectionManager
	Timers       *timers.Service
	Sessions     *repository.SessionRepository
	Listener     *entries.Listener
	Publisher    *settlement.JetStreamPublisher
}

func setupServices(ctx context.Context, cfg *Config, database *sql.DB) (*Services, error) {
	// Wire up dependency injection chain
	// Database layer → Repository layer → Session store → Orchestrator → Transports
	svc := &Services{
		Timers:      timers.NewService(clockwork.NewRealClock()),
		Connections: gateway.NewConnectionManager(gateway.DefaultConnectionConfig()),
	}

	var persist session.Persistence
	if cfg.Persistence == persistencePostgres {
		svc.Sessions = repository.NewSessionRepository(flipdb.New(database))
		persist = svc.Sessions
	}
	store := session.NewStore(svc.Timers.Clock(), svc.Timers, persist)

	opts := []orchestrator.Option{orchestrator.WithBroadcaster(svc.Connections)}

	if cfg.NATSURL != "" {
		jsCfg := settlement.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATSURL
		publisher, err := settlement.NewJetStreamPublisher(ctx, jsCfg)
		if err != nil {
			return nil, fmt.Errorf("create settlement publisher: %w", err)
		}
		svc.Publisher = publisher
		opts = append(opts, orchestrator.WithNotifier(settlement.NewNotifier(publisher, publisher.SubjectPrefix())))
	} else {
		log.Warn().Msg("NATS_URL not set, settlement notifications disabled")
	}

	var entryRepo *repository.EntryRepository
	if cfg.RequireEntries {
		entryRepo = repository.NewEntryRepository(database)
		opts = append(opts, orchestrator.WithEntryVerifier(entryRepo))
	}

	svc.Orchestrator = orchestrator.New(cfg.Game, store, svc.Timers, opts...)

	if entryRepo != nil {
		ltCfg := entries.DefaultListenerConfig()
		ltCfg.DatabaseURL = cfg.Database.DSN()
		ltCfg.FallbackInterval = cfg.FallbackInterval
		listener, err := entries.NewListener(ltCfg, svc.Orchestrator, entryRepo)
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("create entry listener: %w", err)
		}
		svc.Listener = listener
	}
	return svc, nil
}

// restoreSessions brings unfinished sessions back into memory so their timers run again.
func (s *Services) restoreSessions(ctx context.Context) {
	if s.Sessions == nil {
		return
	}
	ids, err := s.Sessions.ListUnfinished(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list unfinished sessions")
		return
	}
	restored := 0
	for _, id := range ids {
		if _, err := s.Orchestrator.Snapshot(ctx, id); err != nil {
			log.Error().Err(err).Str("game_id", id).Msg("failed to restore session")
			continue
		}
		restored++
	}
	log.Info().Int("restored", restored).Int("unfinished", len(ids)).Msg("sessions restored")
}

func (s *Services) Close() {
	s.Timers.Close()
	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			log.Error().Err(err).Msg("close publisher")
		}
	}
}
