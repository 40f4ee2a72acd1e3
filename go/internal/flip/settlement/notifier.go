// Package settlement hands finished tournaments to the payout collaborator.
package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/lastcoin/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Settlement event kinds.
const (
	EventGameCompleted = "GameCompleted"
	EventGameCancelled = "GameCancelled"
)

// Publisher delivers one settlement message.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Payout is the settlement record for a terminal session.
type Payout struct {
	EventType    string               `json:"event_type"`
	GameID       string               `json:"game_id"`
	Winner       *string              `json:"winner"`
	Players      []string             `json:"players"`
	TotalRounds  int                  `json:"total_rounds"`
	History      []models.RoundRecord `json:"history"`
	CancelReason string               `json:"cancel_reason,omitempty"`
	EndedAt      *time.Time           `json:"ended_at,omitempty"`
}

// Notifier publishes GameCompleted or GameCancelled once a session ends.
type Notifier struct {
	publisher     Publisher
	subjectPrefix string
	retryDelay    time.Duration
}

func NewNotifier(publisher Publisher, subjectPrefix string) *Notifier {
	return &Notifier{
		publisher:     publisher,
		subjectPrefix: subjectPrefix,
		retryDelay:    200 * time.Millisecond,
	}
}

// NotifyCompleted publishes the payout record. The publish is retried once.
func (n *Notifier) NotifyCompleted(ctx context.Context, snapshot *models.GameSession) error {
	if !snapshot.Phase.Terminal() {
		return fmt.Errorf("session %s is not terminal: %s", snapshot.ID, snapshot.Phase)
	}
	msg, err := n.message(snapshot)
	if err != nil {
		return err
	}

	err = n.publisher.Publish(ctx, msg)
	if err == nil {
		return nil
	}
	log.Warn().Err(err).Str("game_id", snapshot.ID).Msg("settlement publish failed, retrying")

	select {
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	case <-time.After(n.retryDelay):
	}
	if err := n.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish settlement for %s: %w", snapshot.ID, err)
	}
	return nil
}

func (n *Notifier) message(g *models.GameSession) (Message, error) {
	payout := Payout{
		EventType:    EventGameCompleted,
		GameID:       g.ID,
		Winner:       g.Winner,
		Players:      append([]string{}, g.JoinOrder...),
		TotalRounds:  g.CurrentRound,
		History:      g.EliminationHistory,
		CancelReason: g.CancelReason,
		EndedAt:      g.EndedAt,
	}
	suffix := "completed"
	if g.Phase == models.GamePhaseCancelled {
		payout.EventType = EventGameCancelled
		suffix = "cancelled"
	}

	data, err := json.Marshal(payout)
	if err != nil {
		return Message{}, fmt.Errorf("marshal payout: %w", err)
	}
	return Message{
		Subject: fmt.Sprintf("%s.%s.%s", n.subjectPrefix, g.ID, suffix),
		ID:      g.ID + ":" + suffix,
		Headers: map[string]string{
			"Event-Type": payout.EventType,
			"Game-ID":    g.ID,
		},
		Data: data,
	}, nil
}
