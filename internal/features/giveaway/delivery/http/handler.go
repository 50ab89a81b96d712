package http

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	apperrors "giveaway-bot-backend/internal/common/errors"
	"giveaway-bot-backend/internal/features/giveaway/repository"
)

const fallbackHostName = "Unknown"

// UserResolver turns a chat-platform user id into a display name.
type UserResolver interface {
	ResolveUsername(ctx context.Context, userID string) (string, error)
}

// Handler serves the read-only status API: a projection of the record
// store joined with live participant counts and resolved host names.
type Handler struct {
	repo     repository.RecordStore
	resolver UserResolver
	log      zerolog.Logger
}

func NewHandler(repo repository.RecordStore, resolver UserResolver, log zerolog.Logger) *Handler {
	return &Handler{repo: repo, resolver: resolver, log: log}
}

func (h *Handler) Register(router *gin.RouterGroup) {
	router.GET("/giveaways", h.listGiveaways)
}

// GiveawayView is one row of the status listing.
type GiveawayView struct {
	ID                string    `json:"id"`
	Prize             string    `json:"prize"`
	WinnersCount      int       `json:"winners_count"`
	HostID            string    `json:"host_id"`
	HostName          string    `json:"host_name"`
	ChannelID         string    `json:"channel_id"`
	MessageID         string    `json:"message_id"`
	CreatedAt         time.Time `json:"created_at"`
	EndTime           time.Time `json:"end_time"`
	Ended             bool      `json:"ended"`
	ParticipantsCount int64     `json:"participants_count"`
}

func (h *Handler) listGiveaways(c *gin.Context) {
	ctx := c.Request.Context()

	giveaways, err := h.repo.ListGiveaways(ctx)
	if err != nil {
		c.Error(apperrors.NewStoreError("list giveaways", "", err))
		return
	}

	sort.Slice(giveaways, func(i, j int) bool {
		return giveaways[i].EndTime.After(giveaways[j].EndTime)
	})

	views := make([]GiveawayView, 0, len(giveaways))
	for _, giveaway := range giveaways {
		count, err := h.repo.ParticipantCount(ctx, giveaway.ID)
		if err != nil {
			c.Error(apperrors.NewStoreError("count participants", giveaway.ID, err))
			return
		}

		hostName, err := h.resolver.ResolveUsername(ctx, giveaway.HostID)
		if err != nil {
			// A missing display name should not break the listing.
			h.log.Warn().Err(err).Str("host_id", giveaway.HostID).Msg("Failed to resolve host name")
			hostName = fallbackHostName
		}

		views = append(views, GiveawayView{
			ID:                giveaway.ID,
			Prize:             giveaway.Prize,
			WinnersCount:      giveaway.WinnersCount,
			HostID:            giveaway.HostID,
			HostName:          hostName,
			ChannelID:         giveaway.ChannelID,
			MessageID:         giveaway.MessageID,
			CreatedAt:         giveaway.CreatedAt,
			EndTime:           giveaway.EndTime,
			Ended:             giveaway.Ended,
			ParticipantsCount: count,
		})
	}

	c.JSON(http.StatusOK, views)
}
