package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"giveaway-bot-backend/internal/common/config"
	"giveaway-bot-backend/internal/features/giveaway/models"
)

const (
	colorActive = 0x57F287 // green
	colorEnded  = 0xFEE75C // yellow

	buttonStylePrimary   = 1
	buttonStyleSecondary = 2

	// API error codes for deleted targets.
	codeUnknownChannel = 10003
	codeUnknownMessage = 10008
)

// Client talks to the Discord REST API. It renders the structured payloads
// the lifecycle engine produces into embeds and buttons; the engine itself
// never sees platform markup.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	log        zerolog.Logger
}

func NewClient(cfg *config.Config, log zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimSuffix(cfg.Discord.APIBaseURL, "/"),
		token:      cfg.Discord.BotToken,
		log:        log,
	}
}

// APIError is a non-2xx response from the Discord API.
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord API error: status=%d code=%d message=%s", e.Status, e.Code, e.Message)
}

// targetGone reports whether the error means the channel or message was
// deleted, as opposed to a transient failure.
func (e *APIError) targetGone() bool {
	return e.Status == http.StatusNotFound || e.Code == codeUnknownChannel || e.Code == codeUnknownMessage
}

type embedFooter struct {
	Text string `json:"text"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
}

type buttonEmoji struct {
	Name string `json:"name"`
}

type button struct {
	Type     int          `json:"type"` // 2 = button
	Style    int          `json:"style"`
	Label    string       `json:"label"`
	CustomID string       `json:"custom_id"`
	Emoji    *buttonEmoji `json:"emoji,omitempty"`
	Disabled bool         `json:"disabled,omitempty"`
}

type actionRow struct {
	Type       int      `json:"type"` // 1 = action row
	Components []button `json:"components"`
}

type messagePayload struct {
	Content    string      `json:"content,omitempty"`
	Embeds     []embed     `json:"embeds,omitempty"`
	Components []actionRow `json:"components,omitempty"`
}

func countdownDescription(giveaway *models.Giveaway) string {
	return fmt.Sprintf(
		"**Ends:** <t:%d:R>\n**Host:** <@%s>\n**Winners:** %d\n\nClick the button below to enter!",
		giveaway.EndTime.Unix(), giveaway.HostID, giveaway.WinnersCount,
	)
}

func joinButton(giveaway *models.Giveaway, participantCount int64) button {
	return button{
		Type:     2,
		Style:    buttonStylePrimary,
		Label:    fmt.Sprintf("Enter (%d)", participantCount),
		CustomID: "giveaway_join_" + giveaway.ID,
		Emoji:    &buttonEmoji{Name: "\U0001F389"},
	}
}

// UpdateCountdown refreshes the live giveaway message in place.
func (c *Client) UpdateCountdown(ctx context.Context, giveaway *models.Giveaway, participantCount int64) error {
	payload := messagePayload{
		Embeds: []embed{{
			Title:       fmt.Sprintf("\U0001F389 Giveaway: %s", giveaway.Prize),
			Description: countdownDescription(giveaway),
			Color:       colorActive,
			Footer:      &embedFooter{Text: "ID: " + giveaway.ID},
		}},
		Components: []actionRow{{Type: 1, Components: []button{joinButton(giveaway, participantCount)}}},
	}
	return c.editMessage(ctx, giveaway.ChannelID, giveaway.MessageID, payload)
}

// AnnounceWinners replaces the live message with the final results and a
// disabled button.
func (c *Client) AnnounceWinners(ctx context.Context, giveaway *models.Giveaway, winners []string, participantCount int64) error {
	var description string
	if len(winners) > 0 {
		description = fmt.Sprintf(
			"\U0001F389 Congratulations to the %d winner(s) of **%s**!\n\n**Winners:** %s\n**Entries:** %d",
			len(winners), giveaway.Prize, mentionList(winners), participantCount,
		)
	} else {
		description = fmt.Sprintf("Sadly, no one entered the giveaway for **%s**.", giveaway.Prize)
	}

	payload := messagePayload{
		Embeds: []embed{{
			Title:       "ENDED: " + giveaway.Prize,
			Description: description,
			Color:       colorEnded,
			Footer:      &embedFooter{Text: "ID: " + giveaway.ID},
		}},
		Components: []actionRow{{Type: 1, Components: []button{{
			Type:     2,
			Style:    buttonStyleSecondary,
			Label:    "Ended",
			CustomID: "giveaway_ended",
			Disabled: true,
		}}}},
	}
	return c.editMessage(ctx, giveaway.ChannelID, giveaway.MessageID, payload)
}

// AnnounceReroll posts a follow-up message in the giveaway's channel.
func (c *Client) AnnounceReroll(ctx context.Context, giveaway *models.Giveaway, replacedUserID string, newWinners []string) error {
	var description strings.Builder
	if replacedUserID != "" {
		fmt.Fprintf(&description, "\U0001F504 Winner <@%s> was rerolled.\n\n", replacedUserID)
	}
	fmt.Fprintf(&description, "\U0001F389 **REROLL!** \U0001F389\nNew winner(s) for **%s**: %s\nCongratulations!",
		giveaway.Prize, mentionList(newWinners))

	payload := messagePayload{
		Embeds: []embed{{
			Description: description.String(),
			Color:       colorActive,
			Footer:      &embedFooter{Text: "ID: " + giveaway.ID},
		}},
	}
	return c.createMessage(ctx, giveaway.ChannelID, payload)
}

// ResolveUsername looks up a user's display name for the status API.
func (c *Client) ResolveUsername(ctx context.Context, userID string) (string, error) {
	var user struct {
		Username   string `json:"username"`
		GlobalName string `json:"global_name"`
	}
	if err := c.request(ctx, http.MethodGet, "/users/"+userID, nil, &user); err != nil {
		return "", err
	}
	if user.GlobalName != "" {
		return user.GlobalName, nil
	}
	return user.Username, nil
}

func (c *Client) editMessage(ctx context.Context, channelID, messageID string, payload messagePayload) error {
	path := fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID)
	return c.request(ctx, http.MethodPatch, path, payload, nil)
}

func (c *Client) createMessage(ctx context.Context, channelID string, payload messagePayload) error {
	path := fmt.Sprintf("/channels/%s/messages", channelID)
	return c.request(ctx, http.MethodPost, path, payload, nil)
}

func (c *Client) request(ctx context.Context, method, path string, body, result interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		c.log.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("Discord API request failed")
		if apiErr.targetGone() {
			return fmt.Errorf("%s: %w", apiErr.Error(), models.ErrAnnouncementTargetGone)
		}
		return apiErr
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func mentionList(userIDs []string) string {
	mentions := make([]string, len(userIDs))
	for i, id := range userIDs {
		mentions[i] = "<@" + id + ">"
	}
	return strings.Join(mentions, ", ")
}
