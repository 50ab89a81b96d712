package service

import (
	"context"
	"time"

	"giveaway-bot-backend/internal/features/giveaway/models"
)

// Clock abstracts time for deadline and countdown logic so tests can pin it.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// NewSystemClock returns the wall clock.
func NewSystemClock() Clock { return systemClock{} }

// Announcer renders and delivers giveaway messages on the chat platform.
// The engine only supplies structured data; all markup is the adapter's
// business. When the destination channel or message is gone, methods report
// models.ErrAnnouncementTargetGone (possibly wrapped).
type Announcer interface {
	// UpdateCountdown refreshes the live message with the current
	// participant count and remaining time.
	UpdateCountdown(ctx context.Context, giveaway *models.Giveaway, participantCount int64) error
	// AnnounceWinners replaces the live message with the final results.
	AnnounceWinners(ctx context.Context, giveaway *models.Giveaway, winners []string, participantCount int64) error
	// AnnounceReroll publishes the outcome of a reroll. replacedUserID is
	// empty for the untargeted mode.
	AnnounceReroll(ctx context.Context, giveaway *models.Giveaway, replacedUserID string, newWinners []string) error
}
