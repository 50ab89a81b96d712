package memory

import (
	"context"
	"sync"

	"giveaway-bot-backend/internal/features/giveaway/models"
	"giveaway-bot-backend/internal/features/giveaway/repository"
)

// memoryRepository is a map-backed RecordStore used in tests and local
// development. It honors the same contract as the redis implementation,
// including the conditional MarkEnded transition.
type memoryRepository struct {
	mu           sync.RWMutex
	giveaways    map[string]models.Giveaway
	participants map[string]map[string]struct{}
	winners      map[string][]string
}

func NewMemoryRecordStore() repository.RecordStore {
	return &memoryRepository{
		giveaways:    make(map[string]models.Giveaway),
		participants: make(map[string]map[string]struct{}),
		winners:      make(map[string][]string),
	}
}

func (r *memoryRepository) CreateGiveaway(_ context.Context, giveaway *models.Giveaway) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.giveaways[giveaway.ID] = *giveaway
	return nil
}

func (r *memoryRepository) GetGiveaway(_ context.Context, id string) (*models.Giveaway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	giveaway, ok := r.giveaways[id]
	if !ok {
		return nil, repository.ErrGiveawayNotFound
	}
	copied := giveaway
	return &copied, nil
}

func (r *memoryRepository) UpdateGiveaway(_ context.Context, giveaway *models.Giveaway) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.giveaways[giveaway.ID]; !ok {
		return repository.ErrGiveawayNotFound
	}
	r.giveaways[giveaway.ID] = *giveaway
	return nil
}

func (r *memoryRepository) DeleteGiveaway(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.giveaways, id)
	delete(r.participants, id)
	delete(r.winners, id)
	return nil
}

func (r *memoryRepository) ListGiveaways(_ context.Context) ([]*models.Giveaway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	giveaways := make([]*models.Giveaway, 0, len(r.giveaways))
	for _, giveaway := range r.giveaways {
		copied := giveaway
		giveaways = append(giveaways, &copied)
	}
	return giveaways, nil
}

func (r *memoryRepository) ListActiveGiveaways(_ context.Context) ([]*models.Giveaway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	giveaways := make([]*models.Giveaway, 0)
	for _, giveaway := range r.giveaways {
		if giveaway.Ended {
			continue
		}
		copied := giveaway
		giveaways = append(giveaways, &copied)
	}
	return giveaways, nil
}

func (r *memoryRepository) MarkEnded(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	giveaway, ok := r.giveaways[id]
	if !ok {
		return false, repository.ErrGiveawayNotFound
	}
	if giveaway.Ended {
		return false, nil
	}
	giveaway.Ended = true
	r.giveaways[id] = giveaway
	return true, nil
}

func (r *memoryRepository) AddParticipant(_ context.Context, giveawayID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.participants[giveawayID]
	if !ok {
		set = make(map[string]struct{})
		r.participants[giveawayID] = set
	}
	if _, joined := set[userID]; joined {
		return false, nil
	}
	set[userID] = struct{}{}
	return true, nil
}

func (r *memoryRepository) ListParticipants(_ context.Context, giveawayID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	participants := make([]string, 0, len(r.participants[giveawayID]))
	for userID := range r.participants[giveawayID] {
		participants = append(participants, userID)
	}
	return participants, nil
}

func (r *memoryRepository) ParticipantCount(_ context.Context, giveawayID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.participants[giveawayID])), nil
}

func (r *memoryRepository) AddWinner(_ context.Context, giveawayID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.winners[giveawayID] = append(r.winners[giveawayID], userID)
	return nil
}

func (r *memoryRepository) AddWinners(_ context.Context, giveawayID string, userIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.winners[giveawayID] = append(r.winners[giveawayID], userIDs...)
	return nil
}

func (r *memoryRepository) RemoveWinner(_ context.Context, giveawayID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.winners[giveawayID][:0]
	for _, id := range r.winners[giveawayID] {
		if id != userID {
			kept = append(kept, id)
		}
	}
	r.winners[giveawayID] = kept
	return nil
}

func (r *memoryRepository) ListWinners(_ context.Context, giveawayID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	winners := make([]string, len(r.winners[giveawayID]))
	copy(winners, r.winners[giveawayID])
	return winners, nil
}
