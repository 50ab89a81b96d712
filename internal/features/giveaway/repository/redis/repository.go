package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"giveaway-bot-backend/internal/features/giveaway/models"
	"giveaway-bot-backend/internal/features/giveaway/repository"
)

const (
	keyPrefixGiveaway  = "giveaway:"
	keyActiveGiveaways = "giveaways:active"
	keyEndedGiveaways  = "giveaways:ended"
)

type redisRepository struct {
	client *redis.Client
}

func NewRedisRecordStore(client *redis.Client) repository.RecordStore {
	return &redisRepository{client: client}
}

func makeGiveawayKey(id string) string {
	return keyPrefixGiveaway + id
}

func makeParticipantsKey(id string) string {
	return makeGiveawayKey(id) + ":participants"
}

func makeWinnersKey(id string) string {
	return makeGiveawayKey(id) + ":winners"
}

// markEndedScript flips ended=false to ended=true exactly once and moves the
// id between the state sets in the same atomic step. Returns -1 when the
// record does not exist, 0 when it was already terminal, 1 when this call
// performed the transition.
var markEndedScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
	return -1
end
local giveaway = cjson.decode(raw)
if giveaway['ended'] then
	return 0
end
giveaway['ended'] = true
redis.call('SET', KEYS[1], cjson.encode(giveaway))
redis.call('SMOVE', KEYS[2], KEYS[3], ARGV[1])
return 1
`)

func (r *redisRepository) CreateGiveaway(ctx context.Context, giveaway *models.Giveaway) error {
	data, err := json.Marshal(giveaway)
	if err != nil {
		return fmt.Errorf("failed to marshal giveaway: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, makeGiveawayKey(giveaway.ID), data, 0)
	pipe.SAdd(ctx, keyActiveGiveaways, giveaway.ID)

	_, err = pipe.Exec(ctx)
	return err
}

func (r *redisRepository) GetGiveaway(ctx context.Context, id string) (*models.Giveaway, error) {
	data, err := r.client.Get(ctx, makeGiveawayKey(id)).Bytes()
	if err == redis.Nil {
		return nil, repository.ErrGiveawayNotFound
	}
	if err != nil {
		return nil, err
	}

	var giveaway models.Giveaway
	if err := json.Unmarshal(data, &giveaway); err != nil {
		return nil, fmt.Errorf("failed to unmarshal giveaway %s: %w", id, err)
	}

	return &giveaway, nil
}

func (r *redisRepository) UpdateGiveaway(ctx context.Context, giveaway *models.Giveaway) error {
	data, err := json.Marshal(giveaway)
	if err != nil {
		return fmt.Errorf("failed to marshal giveaway: %w", err)
	}
	return r.client.Set(ctx, makeGiveawayKey(giveaway.ID), data, 0).Err()
}

func (r *redisRepository) DeleteGiveaway(ctx context.Context, id string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, makeGiveawayKey(id))
	pipe.SRem(ctx, keyActiveGiveaways, id)
	pipe.SRem(ctx, keyEndedGiveaways, id)
	// Cascade to owned records.
	pipe.Del(ctx, makeParticipantsKey(id))
	pipe.Del(ctx, makeWinnersKey(id))

	_, err := pipe.Exec(ctx)
	return err
}

func (r *redisRepository) ListGiveaways(ctx context.Context) ([]*models.Giveaway, error) {
	active, err := r.client.SMembers(ctx, keyActiveGiveaways).Result()
	if err != nil {
		return nil, err
	}
	ended, err := r.client.SMembers(ctx, keyEndedGiveaways).Result()
	if err != nil {
		return nil, err
	}
	return r.getGiveaways(ctx, append(active, ended...))
}

func (r *redisRepository) ListActiveGiveaways(ctx context.Context) ([]*models.Giveaway, error) {
	ids, err := r.client.SMembers(ctx, keyActiveGiveaways).Result()
	if err != nil {
		return nil, err
	}
	return r.getGiveaways(ctx, ids)
}

func (r *redisRepository) getGiveaways(ctx context.Context, ids []string) ([]*models.Giveaway, error) {
	giveaways := make([]*models.Giveaway, 0, len(ids))
	for _, id := range ids {
		giveaway, err := r.GetGiveaway(ctx, id)
		if err == repository.ErrGiveawayNotFound {
			// Stale set member; skip rather than fail the whole listing.
			continue
		}
		if err != nil {
			return nil, err
		}
		giveaways = append(giveaways, giveaway)
	}
	return giveaways, nil
}

func (r *redisRepository) MarkEnded(ctx context.Context, id string) (bool, error) {
	res, err := markEndedScript.Run(ctx, r.client,
		[]string{makeGiveawayKey(id), keyActiveGiveaways, keyEndedGiveaways}, id).Int()
	if err != nil {
		return false, err
	}
	if res == -1 {
		return false, repository.ErrGiveawayNotFound
	}
	return res == 1, nil
}

func (r *redisRepository) AddParticipant(ctx context.Context, giveawayID, userID string) (bool, error) {
	added, err := r.client.SAdd(ctx, makeParticipantsKey(giveawayID), userID).Result()
	if err != nil {
		return false, err
	}
	return added > 0, nil
}

func (r *redisRepository) ListParticipants(ctx context.Context, giveawayID string) ([]string, error) {
	return r.client.SMembers(ctx, makeParticipantsKey(giveawayID)).Result()
}

func (r *redisRepository) ParticipantCount(ctx context.Context, giveawayID string) (int64, error) {
	return r.client.SCard(ctx, makeParticipantsKey(giveawayID)).Result()
}

func (r *redisRepository) AddWinner(ctx context.Context, giveawayID, userID string) error {
	return r.client.RPush(ctx, makeWinnersKey(giveawayID), userID).Err()
}

func (r *redisRepository) AddWinners(ctx context.Context, giveawayID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	values := make([]interface{}, len(userIDs))
	for i, id := range userIDs {
		values[i] = id
	}
	return r.client.RPush(ctx, makeWinnersKey(giveawayID), values...).Err()
}

func (r *redisRepository) RemoveWinner(ctx context.Context, giveawayID, userID string) error {
	// Count 0 removes every occurrence across reroll history.
	return r.client.LRem(ctx, makeWinnersKey(giveawayID), 0, userID).Err()
}

func (r *redisRepository) ListWinners(ctx context.Context, giveawayID string) ([]string, error) {
	return r.client.LRange(ctx, makeWinnersKey(giveawayID), 0, -1).Result()
}
