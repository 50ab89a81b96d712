package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "giveaway-bot-backend/internal/common/errors"
	"giveaway-bot-backend/internal/features/giveaway/models"
	"giveaway-bot-backend/internal/features/giveaway/repository"
	"giveaway-bot-backend/internal/features/giveaway/repository/memory"
)

type fakeAnnouncer struct {
	mu sync.Mutex

	countdownCalls int
	countdownErr   error

	winnersCalls int
	winnersErr   error
	lastWinners  []string

	rerollCalls    int
	rerollReplaced string
	rerollWinners  []string
}

func (a *fakeAnnouncer) UpdateCountdown(_ context.Context, _ *models.Giveaway, _ int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.countdownCalls++
	return a.countdownErr
}

func (a *fakeAnnouncer) AnnounceWinners(_ context.Context, _ *models.Giveaway, winners []string, _ int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.winnersCalls++
	a.lastWinners = winners
	return a.winnersErr
}

func (a *fakeAnnouncer) AnnounceReroll(_ context.Context, _ *models.Giveaway, replacedUserID string, newWinners []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rerollCalls++
	a.rerollReplaced = replacedUserID
	a.rerollWinners = newWinners
	return nil
}

func (a *fakeAnnouncer) snapshot() fakeAnnouncer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fakeAnnouncer{
		countdownCalls: a.countdownCalls,
		winnersCalls:   a.winnersCalls,
		lastWinners:    a.lastWinners,
		rerollCalls:    a.rerollCalls,
		rerollReplaced: a.rerollReplaced,
		rerollWinners:  a.rerollWinners,
	}
}

type fixture struct {
	svc       *GiveawayService
	store     repository.RecordStore
	announcer *fakeAnnouncer
	clock     *fakeClock
}

// newFixture wires the engine against the in-memory store with timers far in
// the future, so tests drive the lifecycle explicitly.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewMemoryRecordStore()
	announcer := &fakeAnnouncer{}
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := NewGiveawayService(store, announcer, clock, time.Hour, zerolog.Nop())
	t.Cleanup(svc.Stop)
	return &fixture{svc: svc, store: store, announcer: announcer, clock: clock}
}

func (f *fixture) start(t *testing.T, winnersCount int, participants ...string) *models.Giveaway {
	t.Helper()
	ctx := context.Background()

	// Ids derive from the clock; keep successive starts distinct.
	f.clock.Advance(time.Millisecond)

	giveaway, _, err := f.svc.Start(ctx, models.GiveawayStart{
		Prize:        "Nitro",
		WinnersCount: winnersCount,
		Duration:     time.Hour,
		HostID:       "host-1",
		ChannelID:    "chan-1",
		MessageID:    "msg-1",
	})
	require.NoError(t, err)

	for _, userID := range participants {
		_, err := f.svc.Join(ctx, giveaway.ID, userID)
		require.NoError(t, err)
	}
	return giveaway
}

func TestStartValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Start(ctx, models.GiveawayStart{Prize: "", WinnersCount: 1, Duration: time.Hour})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))

	_, _, err = f.svc.Start(ctx, models.GiveawayStart{Prize: "Nitro", WinnersCount: 0, Duration: time.Hour})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))

	_, _, err = f.svc.Start(ctx, models.GiveawayStart{Prize: "Nitro", WinnersCount: 1, Duration: 0})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))

	// Nothing was persisted by the rejected starts.
	all, err := f.store.ListGiveaways(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStartPersistsAndAnnounces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.clock.Advance(time.Millisecond)

	giveaway, announcement, err := f.svc.Start(ctx, models.GiveawayStart{
		Prize:        "Nitro",
		WinnersCount: 2,
		Duration:     30 * time.Minute,
		HostID:       "host-1",
		ChannelID:    "chan-1",
		MessageID:    "msg-1",
	})
	require.NoError(t, err)

	assert.Regexp(t, `^g-\d+$`, giveaway.ID)
	assert.Equal(t, f.clock.Now().Add(30*time.Minute), giveaway.EndTime)
	assert.False(t, giveaway.Ended)

	require.NotNil(t, announcement)
	assert.Equal(t, giveaway.ID, announcement.GiveawayID)
	assert.Equal(t, giveaway.EndTime, announcement.EndTime)
	assert.Equal(t, 2, announcement.WinnersCount)

	stored, err := f.store.GetGiveaway(ctx, giveaway.ID)
	require.NoError(t, err)
	assert.Equal(t, "Nitro", stored.Prize)
}

func TestJoinIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	giveaway := f.start(t, 1)

	first, err := f.svc.Join(ctx, giveaway.ID, "u-1")
	require.NoError(t, err)
	assert.False(t, first.AlreadyJoined)
	assert.Equal(t, int64(1), first.ParticipantCount)

	second, err := f.svc.Join(ctx, giveaway.ID, "u-1")
	require.NoError(t, err)
	assert.True(t, second.AlreadyJoined)
	assert.Equal(t, int64(1), second.ParticipantCount)
}

func TestJoinUnknownGiveaway(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Join(context.Background(), "g-missing", "u-1")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeGiveawayNotFound))
}

func TestJoinAfterEndRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	giveaway := f.start(t, 1, "u-1")

	_, err := f.svc.End(ctx, giveaway.ID)
	require.NoError(t, err)

	_, err = f.svc.Join(ctx, giveaway.ID, "u-2")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAlreadyEnded))
}

func TestEndDrawsWinnersFromParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	participants := []string{"u-1", "u-2", "u-3", "u-4"}
	giveaway := f.start(t, 2, participants...)

	result, err := f.svc.End(ctx, giveaway.ID)
	require.NoError(t, err)

	assert.False(t, result.AlreadyEnded)
	assert.Equal(t, int64(4), result.ParticipantCount)
	require.Len(t, result.Winners, 2)
	for _, winner := range result.Winners {
		assert.Contains(t, participants, winner)
	}
	assert.NotEqual(t, result.Winners[0], result.Winners[1])

	stored, err := f.store.GetGiveaway(ctx, giveaway.ID)
	require.NoError(t, err)
	assert.True(t, stored.Ended)

	snap := f.announcer.snapshot()
	assert.Equal(t, 1, snap.winnersCalls)
	assert.Equal(t, result.Winners, snap.lastWinners)
}

func TestEndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	giveaway := f.start(t, 1, "u-1", "u-2")

	first, err := f.svc.End(ctx, giveaway.ID)
	require.NoError(t, err)
	require.False(t, first.AlreadyEnded)

	second, err := f.svc.End(ctx, giveaway.ID)
	require.NoError(t, err)
	assert.True(t, second.AlreadyEnded)
	assert.Empty(t, second.Winners)

	// The second call never redraws.
	winners, err := f.store.ListWinners(ctx, giveaway.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Winners, winners)
	assert.Equal(t, 1, f.announcer.snapshot().winnersCalls)
}

func TestEndWithNoParticipants(t *testing.T) {
	f := newFixture(t)
	giveaway := f.start(t, 3)

	result, err := f.svc.End(context.Background(), giveaway.ID)
	require.NoError(t, err)

	assert.False(t, result.AlreadyEnded)
	assert.Empty(t, result.Winners)
	assert.Zero(t, result.ParticipantCount)
}

func TestEndUnknownGiveaway(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.End(context.Background(), "g-missing")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeGiveawayNotFound))
}

func TestEndSurvivesAnnouncementFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.announcer.winnersErr = assert.AnError
	giveaway := f.start(t, 1, "u-1")

	result, err := f.svc.End(ctx, giveaway.ID)
	require.NoError(t, err)
	assert.Len(t, result.Winners, 1)

	stored, err := f.store.GetGiveaway(ctx, giveaway.ID)
	require.NoError(t, err)
	assert.True(t, stored.Ended)
}

func TestRerollBeforeEndRejected(t *testing.T) {
	f := newFixture(t)
	giveaway := f.start(t, 1, "u-1")

	_, err := f.svc.Reroll(context.Background(), giveaway.ID, "")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotEnded))
}

func TestRerollTargetedReplacesOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	giveaway := f.start(t, 2, "u-1", "u-2", "u-3", "u-4", "u-5")

	ended, err := f.svc.End(ctx, giveaway.ID)
	require.NoError(t, err)
	target := ended.Winners[0]
	kept := ended.Winners[1]

	result, err := f.svc.Reroll(ctx, giveaway.ID, target)
	require.NoError(t, err)

	assert.Equal(t, target, result.ReplacedUserID)
	require.Len(t, result.NewWinners, 1)
	assert.NotContains(t, ended.Winners, result.NewWinners[0])

	winners, err := f.store.ListWinners(ctx, giveaway.ID)
	require.NoError(t, err)
	assert.Len(t, winners, 2)
	assert.NotContains(t, winners, target)
	assert.Contains(t, winners, kept)
	assert.Contains(t, winners, result.NewWinners[0])

	snap := f.announcer.snapshot()
	assert.Equal(t, 1, snap.rerollCalls)
	assert.Equal(t, target, snap.rerollReplaced)
}

func TestRerollTargetedNotAWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	giveaway := f.start(t, 1, "u-1", "u-2", "u-3")

	_, err := f.svc.End(ctx, giveaway.ID)
	require.NoError(t, err)

	_, err = f.svc.Reroll(ctx, giveaway.ID, "u-never-won")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotAWinner))
	assert.Zero(t, f.announcer.snapshot().rerollCalls)
}

func TestRerollUntargetedIsAdditive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	giveaway := f.start(t, 1, "u-1", "u-2", "u-3")

	ended, err := f.svc.End(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Len(t, ended.Winners, 1)

	result, err := f.svc.Reroll(ctx, giveaway.ID, "")
	require.NoError(t, err)

	assert.Empty(t, result.ReplacedUserID)
	require.Len(t, result.NewWinners, 1)
	assert.NotEqual(t, ended.Winners[0], result.NewWinners[0])

	// The original winner record stays; the fresh slate is appended.
	winners, err := f.store.ListWinners(ctx, giveaway.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{ended.Winners[0], result.NewWinners[0]}, winners)
}

func TestRerollUntargetedExcludesAllPreviousWinners(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	giveaway := f.start(t, 1, "u-1", "u-2", "u-3")

	_, err := f.svc.End(ctx, giveaway.ID)
	require.NoError(t, err)

	first, err := f.svc.Reroll(ctx, giveaway.ID, "")
	require.NoError(t, err)

	second, err := f.svc.Reroll(ctx, giveaway.ID, "")
	require.NoError(t, err)

	winners, err := f.store.ListWinners(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Len(t, winners, 3)
	assert.NotEqual(t, first.NewWinners[0], second.NewWinners[0])

	// Everyone has won now; a third reroll has nobody left to draw.
	_, err = f.svc.Reroll(ctx, giveaway.ID, "")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNoEligibleParticipants))
}

func TestRerollUntargetedInsufficientPool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	giveaway := f.start(t, 2, "u-1", "u-2", "u-3")

	ended, err := f.svc.End(ctx, giveaway.ID)
	require.NoError(t, err)
	require.Len(t, ended.Winners, 2)

	// One eligible participant left, two needed.
	_, err = f.svc.Reroll(ctx, giveaway.ID, "")
	require.True(t, apperrors.HasCode(err, apperrors.ErrCodeInsufficientParticipants))

	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 2, appErr.Details["required"])
	assert.Equal(t, 1, appErr.Details["eligible"])
	assert.Equal(t, 1, appErr.Details["shortfall"])

	// A failed reroll writes nothing.
	winners, err := f.store.ListWinners(ctx, giveaway.ID)
	require.NoError(t, err)
	assert.Len(t, winners, 2)
}

func TestRerollUnknownGiveaway(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Reroll(context.Background(), "g-missing", "")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeGiveawayNotFound))
}

func TestScheduledEndFires(t *testing.T) {
	store := memory.NewMemoryRecordStore()
	announcer := &fakeAnnouncer{}
	svc := NewGiveawayService(store, announcer, NewSystemClock(), time.Hour, zerolog.Nop())
	t.Cleanup(svc.Stop)
	ctx := context.Background()

	giveaway, _, err := svc.Start(ctx, models.GiveawayStart{
		Prize:        "Nitro",
		WinnersCount: 1,
		Duration:     30 * time.Millisecond,
		HostID:       "host-1",
	})
	require.NoError(t, err)

	_, err = svc.Join(ctx, giveaway.ID, "u-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, err := store.GetGiveaway(ctx, giveaway.ID)
		return err == nil && stored.Ended
	}, 2*time.Second, 10*time.Millisecond)

	winners, err := store.ListWinners(ctx, giveaway.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u-1"}, winners)
	assert.Equal(t, 1, announcer.snapshot().winnersCalls)
}

func TestRestoreActiveEndsOverdueGiveaway(t *testing.T) {
	store := memory.NewMemoryRecordStore()
	announcer := &fakeAnnouncer{}
	ctx := context.Background()

	// A giveaway whose deadline passed while the process was down.
	overdue := &models.Giveaway{
		ID:           "g-overdue",
		Prize:        "Nitro",
		WinnersCount: 1,
		EndTime:      time.Now().Add(-time.Minute),
	}
	require.NoError(t, store.CreateGiveaway(ctx, overdue))
	_, err := store.AddParticipant(ctx, overdue.ID, "u-1")
	require.NoError(t, err)

	svc := NewGiveawayService(store, announcer, NewSystemClock(), time.Hour, zerolog.Nop())
	t.Cleanup(svc.Stop)

	require.NoError(t, svc.RestoreActive(ctx))

	require.Eventually(t, func() bool {
		stored, err := store.GetGiveaway(ctx, overdue.ID)
		return err == nil && stored.Ended
	}, 2*time.Second, 10*time.Millisecond)

	winners, err := store.ListWinners(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u-1"}, winners)
}

func TestRefreshPushesCountdownAndStopsWhenTargetGone(t *testing.T) {
	store := memory.NewMemoryRecordStore()
	announcer := &fakeAnnouncer{}
	svc := NewGiveawayService(store, announcer, NewSystemClock(), 10*time.Millisecond, zerolog.Nop())
	t.Cleanup(svc.Stop)
	ctx := context.Background()

	giveaway, _, err := svc.Start(ctx, models.GiveawayStart{
		Prize:        "Nitro",
		WinnersCount: 1,
		Duration:     time.Hour,
		HostID:       "host-1",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return announcer.snapshot().countdownCalls >= 2
	}, 2*time.Second, 5*time.Millisecond)

	// The announcement message disappears; the refresh must cancel itself.
	announcer.mu.Lock()
	announcer.countdownErr = models.ErrAnnouncementTargetGone
	announcer.mu.Unlock()

	var settled int
	require.Eventually(t, func() bool {
		current := announcer.snapshot().countdownCalls
		if settled != current {
			settled = current
			return false
		}
		return true
	}, 2*time.Second, 50*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, announcer.snapshot().countdownCalls)

	// Giveaway is untouched, only the refresh stopped.
	stored, err := store.GetGiveaway(ctx, giveaway.ID)
	require.NoError(t, err)
	assert.False(t, stored.Ended)
}
