package listing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jason-s-yu/pricecheck/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the set the ingestion worker fills with JSON items.
const DefaultRedisKey = "pricecheck:listings"

// setReader is the subset of redis.Cmdable the source needs.
type setReader interface {
	SRandMemberN(ctx context.Context, key string, count int64) *redis.StringSliceCmd
	SCard(ctx context.Context, key string) *redis.IntCmd
}

// RedisSource samples a Redis set whose members are JSON-encoded items.
type RedisSource struct {
	client setReader
	key    string
	count  int
}

// NewRedisSource returns a source reading key through client.
func NewRedisSource(client setReader, key string, count int) *RedisSource {
	if key == "" {
		key = DefaultRedisKey
	}
	if count <= 0 {
		count = DefaultCount
	}
	return &RedisSource{client: client, key: key, count: count}
}

// FetchCandidates draws distinct random members. Members that fail to decode
// or carry no price are skipped rather than failing the round.
func (s *RedisSource) FetchCandidates(ctx context.Context) (Batch, error) {
	// oversample so a few bad members do not starve the round
	raw, err := s.client.SRandMemberN(ctx, s.key, int64(s.count*2)).Result()
	if err != nil {
		return Batch{}, fmt.Errorf("srandmember %s: %w", s.key, err)
	}

	items := make([]models.Item, 0, s.count)
	for _, member := range raw {
		if len(items) == s.count {
			break
		}
		var it models.Item
		if err := json.Unmarshal([]byte(member), &it); err != nil {
			continue
		}
		if usable(it) {
			items = append(items, it)
		}
	}
	if len(items) == 0 {
		return Batch{}, ErrEmpty
	}

	total, err := s.client.SCard(ctx, s.key).Result()
	if err != nil {
		total = 0
	}
	return Batch{Items: items, EstimatedTotal: int(total)}, nil
}
