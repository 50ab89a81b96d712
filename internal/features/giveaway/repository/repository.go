package repository

import (
	"context"
	"errors"

	"giveaway-bot-backend/internal/features/giveaway/models"
)

var ErrGiveawayNotFound = errors.New("giveaway not found")

// RecordStore is the narrow durable-storage contract the lifecycle engine
// depends on. Implementations must provide causal ordering per giveaway id:
// a read issued after a completed write for the same id observes that write.
type RecordStore interface {
	CreateGiveaway(ctx context.Context, giveaway *models.Giveaway) error
	GetGiveaway(ctx context.Context, id string) (*models.Giveaway, error)
	UpdateGiveaway(ctx context.Context, giveaway *models.Giveaway) error
	// DeleteGiveaway removes the record and cascades to its participants
	// and winners.
	DeleteGiveaway(ctx context.Context, id string) error

	ListGiveaways(ctx context.Context) ([]*models.Giveaway, error)
	// ListActiveGiveaways returns every non-terminal giveaway. Used by the
	// engine on startup to re-arm timers.
	ListActiveGiveaways(ctx context.Context) ([]*models.Giveaway, error)

	// MarkEnded atomically transitions the giveaway from non-terminal to
	// terminal. It returns true only for the single caller that performed
	// the transition; every later call gets false. This is the conditional
	// update that makes End idempotent under concurrent re-entry.
	MarkEnded(ctx context.Context, id string) (bool, error)

	// AddParticipant inserts the user into the participant set. Returns
	// false without error when the user had already joined.
	AddParticipant(ctx context.Context, giveawayID, userID string) (bool, error)
	ListParticipants(ctx context.Context, giveawayID string) ([]string, error)
	ParticipantCount(ctx context.Context, giveawayID string) (int64, error)

	// Winners are kept as an ordered list in draw order. A user id may
	// appear more than once across reroll history; current winners are the
	// distinct ids, derived by the caller.
	AddWinner(ctx context.Context, giveawayID, userID string) error
	AddWinners(ctx context.Context, giveawayID string, userIDs []string) error
	// RemoveWinner deletes every winner record for the user in this giveaway.
	RemoveWinner(ctx context.Context, giveawayID, userID string) error
	ListWinners(ctx context.Context, giveawayID string) ([]string, error)
}
