package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	apperrors "giveaway-bot-backend/internal/common/errors"
	"giveaway-bot-backend/internal/features/giveaway/models"
	"giveaway-bot-backend/internal/features/giveaway/repository"
)

// GiveawayService is the lifecycle engine. It owns giveaway records for
// their whole life and holds no state in memory between operations: every
// invocation re-reads the store, which is what makes restart recovery a
// plain replay of persisted deadlines.
type GiveawayService struct {
	repo      repository.RecordStore
	announcer Announcer
	clock     Clock
	scheduler *Scheduler
	log       zerolog.Logger
}

func NewGiveawayService(repo repository.RecordStore, announcer Announcer, clock Clock, refreshInterval time.Duration, log zerolog.Logger) *GiveawayService {
	s := &GiveawayService{
		repo:      repo,
		announcer: announcer,
		clock:     clock,
		log:       log,
	}
	s.scheduler = NewScheduler(clock, refreshInterval, s.handleDeadline, s.refresh, log)
	return s
}

// Start validates the input, persists a new non-terminal giveaway, arms its
// end and refresh timers and returns the record together with the
// announcement payload for the caller to render.
func (s *GiveawayService) Start(ctx context.Context, input models.GiveawayStart) (*models.Giveaway, *models.StartAnnouncement, error) {
	if input.Prize == "" {
		return nil, nil, apperrors.NewValidationError("prize", "must not be empty")
	}
	if input.WinnersCount < 1 {
		return nil, nil, apperrors.NewValidationError("winners_count", "must be at least 1")
	}
	if input.Duration <= 0 {
		return nil, nil, apperrors.NewValidationError("duration", "must be positive")
	}

	now := s.clock.Now()
	giveaway := &models.Giveaway{
		ID:           fmt.Sprintf("g-%d", now.UnixMilli()),
		Prize:        input.Prize,
		WinnersCount: input.WinnersCount,
		HostID:       input.HostID,
		ChannelID:    input.ChannelID,
		MessageID:    input.MessageID,
		CreatedAt:    now,
		EndTime:      now.Add(input.Duration),
		Ended:        false,
	}

	if err := s.repo.CreateGiveaway(ctx, giveaway); err != nil {
		return nil, nil, apperrors.NewStoreError("create giveaway", giveaway.ID, err)
	}

	s.scheduler.Schedule(giveaway.ID, giveaway.EndTime)
	s.scheduler.ScheduleRefresh(giveaway.ID)

	s.log.Info().
		Str("giveaway_id", giveaway.ID).
		Str("prize", giveaway.Prize).
		Int("winners_count", giveaway.WinnersCount).
		Time("end_time", giveaway.EndTime).
		Msg("Giveaway started")

	announcement := &models.StartAnnouncement{
		GiveawayID:   giveaway.ID,
		Prize:        giveaway.Prize,
		HostID:       giveaway.HostID,
		WinnersCount: giveaway.WinnersCount,
		EndTime:      giveaway.EndTime,
	}
	return giveaway, announcement, nil
}

// Join inserts the user into the participant set. Joining twice is not an
// error; the second attempt reports AlreadyJoined with an unchanged count.
func (s *GiveawayService) Join(ctx context.Context, giveawayID, userID string) (*models.JoinResult, error) {
	giveaway, err := s.getGiveaway(ctx, giveawayID)
	if err != nil {
		return nil, err
	}
	if giveaway.Ended {
		return nil, apperrors.NewAlreadyEndedError(giveawayID)
	}

	inserted, err := s.repo.AddParticipant(ctx, giveawayID, userID)
	if err != nil {
		return nil, apperrors.NewStoreError("add participant", giveawayID, err)
	}

	count, err := s.repo.ParticipantCount(ctx, giveawayID)
	if err != nil {
		return nil, apperrors.NewStoreError("count participants", giveawayID, err)
	}

	return &models.JoinResult{
		AlreadyJoined:    !inserted,
		ParticipantCount: count,
	}, nil
}

// End moves the giveaway to its terminal state, draws winners and announces
// them. Ending an already-terminal giveaway is a no-op, never a second
// draw: the conditional MarkEnded transition is the first thing that
// happens, so exactly one of any set of concurrent callers proceeds.
func (s *GiveawayService) End(ctx context.Context, giveawayID string) (*models.EndResult, error) {
	claimed, err := s.repo.MarkEnded(ctx, giveawayID)
	if errors.Is(err, repository.ErrGiveawayNotFound) {
		return nil, apperrors.NewGiveawayNotFoundError(giveawayID)
	}
	if err != nil {
		return nil, apperrors.NewStoreError("mark ended", giveawayID, err)
	}
	if !claimed {
		return &models.EndResult{AlreadyEnded: true}, nil
	}

	// Cancellation, not a flag check, is what guarantees no refresh runs
	// after completion.
	s.scheduler.Cancel(giveawayID)

	giveaway, err := s.getGiveaway(ctx, giveawayID)
	if err != nil {
		return nil, err
	}

	participants, err := s.repo.ListParticipants(ctx, giveawayID)
	if err != nil {
		return nil, apperrors.NewStoreError("list participants", giveawayID, err)
	}

	winners, err := SelectWinners(participants, giveaway.WinnersCount)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "winner selection failed")
	}
	if err := s.repo.AddWinners(ctx, giveawayID, winners); err != nil {
		return nil, apperrors.NewStoreError("persist winners", giveawayID, err)
	}

	count := int64(len(participants))
	s.log.Info().
		Str("giveaway_id", giveawayID).
		Int("winners", len(winners)).
		Int64("participants", count).
		Msg("Giveaway ended")

	// The giveaway is terminal and its winners are persisted at this point;
	// a failed announcement must not undo that.
	if err := s.announcer.AnnounceWinners(ctx, giveaway, winners, count); err != nil {
		s.log.Error().Err(err).Str("giveaway_id", giveawayID).Msg("Failed to announce winners")
	}

	return &models.EndResult{
		Winners:          winners,
		ParticipantCount: count,
	}, nil
}

// Reroll re-draws winners for a terminal giveaway. With a target it
// replaces that single winner; without one it draws a fresh full slate
// from the participants who have never won, keeping prior winner records.
func (s *GiveawayService) Reroll(ctx context.Context, giveawayID, targetUserID string) (*models.RerollResult, error) {
	giveaway, err := s.getGiveaway(ctx, giveawayID)
	if err != nil {
		return nil, err
	}
	if !giveaway.Ended {
		return nil, apperrors.NewNotEndedError(giveawayID)
	}

	participants, err := s.repo.ListParticipants(ctx, giveawayID)
	if err != nil {
		return nil, apperrors.NewStoreError("list participants", giveawayID, err)
	}
	winnerHistory, err := s.repo.ListWinners(ctx, giveawayID)
	if err != nil {
		return nil, apperrors.NewStoreError("list winners", giveawayID, err)
	}

	previousWinners := make(map[string]struct{}, len(winnerHistory))
	for _, userID := range winnerHistory {
		previousWinners[userID] = struct{}{}
	}

	// Everyone who has ever won stays out of the pool, including the
	// targeted user.
	eligible := make([]string, 0, len(participants))
	for _, userID := range participants {
		if _, won := previousWinners[userID]; !won {
			eligible = append(eligible, userID)
		}
	}

	var result *models.RerollResult
	if targetUserID != "" {
		result, err = s.rerollTarget(ctx, giveaway, targetUserID, previousWinners, eligible)
	} else {
		result, err = s.rerollAll(ctx, giveaway, eligible)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("giveaway_id", giveawayID).
		Str("replaced_user_id", result.ReplacedUserID).
		Int("new_winners", len(result.NewWinners)).
		Msg("Giveaway rerolled")

	if err := s.announcer.AnnounceReroll(ctx, giveaway, result.ReplacedUserID, result.NewWinners); err != nil {
		s.log.Error().Err(err).Str("giveaway_id", giveawayID).Msg("Failed to announce reroll")
	}

	return result, nil
}

func (s *GiveawayService) rerollTarget(ctx context.Context, giveaway *models.Giveaway, targetUserID string, previousWinners map[string]struct{}, eligible []string) (*models.RerollResult, error) {
	if _, won := previousWinners[targetUserID]; !won {
		return nil, apperrors.NewNotAWinnerError(giveaway.ID, targetUserID)
	}
	if len(eligible) == 0 {
		return nil, apperrors.NewNoEligibleParticipantsError(giveaway.ID)
	}

	if err := s.repo.RemoveWinner(ctx, giveaway.ID, targetUserID); err != nil {
		return nil, apperrors.NewStoreError("remove winner", giveaway.ID, err)
	}

	newWinners, err := SelectWinners(eligible, 1)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "winner selection failed")
	}
	if err := s.repo.AddWinners(ctx, giveaway.ID, newWinners); err != nil {
		return nil, apperrors.NewStoreError("persist winners", giveaway.ID, err)
	}

	return &models.RerollResult{
		ReplacedUserID: targetUserID,
		NewWinners:     newWinners,
	}, nil
}

func (s *GiveawayService) rerollAll(ctx context.Context, giveaway *models.Giveaway, eligible []string) (*models.RerollResult, error) {
	if len(eligible) == 0 {
		return nil, apperrors.NewNoEligibleParticipantsError(giveaway.ID)
	}
	if len(eligible) < giveaway.WinnersCount {
		return nil, apperrors.NewInsufficientParticipantsError(giveaway.ID, giveaway.WinnersCount, len(eligible))
	}

	newWinners, err := SelectWinners(eligible, giveaway.WinnersCount)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "winner selection failed")
	}
	// Deliberately additive: prior winner records are kept, the new slate
	// is appended on top.
	if err := s.repo.AddWinners(ctx, giveaway.ID, newWinners); err != nil {
		return nil, apperrors.NewStoreError("persist winners", giveaway.ID, err)
	}

	return &models.RerollResult{NewWinners: newWinners}, nil
}

// RestoreActive re-arms the end and refresh timers for every non-terminal
// giveaway found in the store. Called once at startup; deadlines already in
// the past end within one scheduling tick.
func (s *GiveawayService) RestoreActive(ctx context.Context) error {
	giveaways, err := s.repo.ListActiveGiveaways(ctx)
	if err != nil {
		return apperrors.NewStoreError("list active giveaways", "", err)
	}

	for _, giveaway := range giveaways {
		s.scheduler.Schedule(giveaway.ID, giveaway.EndTime)
		s.scheduler.ScheduleRefresh(giveaway.ID)
		s.log.Info().
			Str("giveaway_id", giveaway.ID).
			Time("end_time", giveaway.EndTime).
			Bool("overdue", giveaway.HasExpired(s.clock.Now())).
			Msg("Restored giveaway timers")
	}

	return nil
}

// Stop drains the scheduler. Pending end actions fire again on the next
// startup via RestoreActive.
func (s *GiveawayService) Stop() {
	s.scheduler.Stop()
}

// handleDeadline is the scheduler's one-shot end callback. Failures of an
// unattended action are logged, never propagated.
func (s *GiveawayService) handleDeadline(giveawayID string) {
	ctx := context.Background()
	if _, err := s.End(ctx, giveawayID); err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeGiveawayNotFound) {
			s.log.Warn().Str("giveaway_id", giveawayID).Msg("Giveaway vanished before scheduled end")
			return
		}
		s.log.Error().Err(err).Str("giveaway_id", giveawayID).Msg("Scheduled end failed")
	}
}

// refresh is the scheduler's repeating callback: it pushes the current
// participant count to the live message. errStopRefresh asks the scheduler
// to cancel this giveaway's refresh for good.
func (s *GiveawayService) refresh(giveawayID string) error {
	ctx := context.Background()

	giveaway, err := s.repo.GetGiveaway(ctx, giveawayID)
	if errors.Is(err, repository.ErrGiveawayNotFound) {
		return errStopRefresh
	}
	if err != nil {
		return apperrors.NewStoreError("get giveaway", giveawayID, err)
	}
	if giveaway.Ended {
		return errStopRefresh
	}

	count, err := s.repo.ParticipantCount(ctx, giveawayID)
	if err != nil {
		return apperrors.NewStoreError("count participants", giveawayID, err)
	}

	if err := s.announcer.UpdateCountdown(ctx, giveaway, count); err != nil {
		if errors.Is(err, models.ErrAnnouncementTargetGone) {
			return errStopRefresh
		}
		return apperrors.NewAdapterError("update countdown", err)
	}

	return nil
}

func (s *GiveawayService) getGiveaway(ctx context.Context, giveawayID string) (*models.Giveaway, error) {
	giveaway, err := s.repo.GetGiveaway(ctx, giveawayID)
	if errors.Is(err, repository.ErrGiveawayNotFound) {
		return nil, apperrors.NewGiveawayNotFoundError(giveawayID)
	}
	if err != nil {
		return nil, apperrors.NewStoreError("get giveaway", giveawayID, err)
	}
	return giveaway, nil
}
