package models

import (
	"errors"
	"time"
)

var (
	ErrGiveawayEnded = errors.New("giveaway has ended")
	// ErrAnnouncementTargetGone is reported by announcers when the channel or
	// message a giveaway was posted to no longer exists. The scheduler reacts
	// by cancelling that giveaway's repeating refresh.
	ErrAnnouncementTargetGone = errors.New("announcement target no longer exists")
)

// Giveaway represents a single timed giveaway event. A giveaway is
// non-terminal (Ended=false, possibly with a past EndTime right after a
// restart) or terminal (Ended=true). The terminal state is irreversible;
// rerolls only mutate the winners relation.
type Giveaway struct {
	ID           string    `json:"id"`
	Prize        string    `json:"prize"`
	WinnersCount int       `json:"winners_count"`
	HostID       string    `json:"host_id"`
	CreatedAt    time.Time `json:"created_at"`
	EndTime      time.Time `json:"end_time"`
	Ended        bool      `json:"ended"`

	// Location of the announcement message. Opaque to the core; only the
	// chat adapter interprets these.
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// HasExpired reports whether the deadline has passed at the given instant.
func (g *Giveaway) HasExpired(now time.Time) bool {
	return !now.Before(g.EndTime)
}

// GiveawayStart carries the parameters of a new giveaway.
type GiveawayStart struct {
	Prize        string
	WinnersCount int
	Duration     time.Duration
	HostID       string
	ChannelID    string
	MessageID    string
}

// JoinResult reports the outcome of a join attempt.
type JoinResult struct {
	AlreadyJoined    bool  `json:"already_joined"`
	ParticipantCount int64 `json:"participant_count"`
}

// EndResult reports the outcome of ending a giveaway. AlreadyEnded is the
// no-op path; otherwise Winners holds the freshly drawn winners in draw
// order (possibly empty when no one joined).
type EndResult struct {
	AlreadyEnded     bool     `json:"already_ended"`
	Winners          []string `json:"winners"`
	ParticipantCount int64    `json:"participant_count"`
}

// RerollResult reports a completed reroll. ReplacedUserID is empty for the
// untargeted mode, which draws a fresh slate without removing prior winners.
type RerollResult struct {
	ReplacedUserID string   `json:"replaced_user_id,omitempty"`
	NewWinners     []string `json:"new_winners"`
}

// StartAnnouncement is the structured payload handed to the caller for
// rendering the initial giveaway message. The core never formats
// platform-specific markup.
type StartAnnouncement struct {
	GiveawayID   string    `json:"giveaway_id"`
	Prize        string    `json:"prize"`
	HostID       string    `json:"host_id"`
	WinnersCount int       `json:"winners_count"`
	EndTime      time.Time `json:"end_time"`
}
