package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/siherrmann/memoria/helper"
	"github.com/siherrmann/memoria/model"
)

// RedisKeyPrefix prefixes every query result stored in redis.
const RedisKeyPrefix = "memoria:query:"

// Cache stores query responses by request key. Concurrent misses for the
// same key may both compute and store the result.
type Cache interface {
	Get(ctx context.Context, key string) (*model.QueryResponse, bool, error)
	Set(ctx context.Context, key string, response *model.QueryResponse) error
	Invalidate(ctx context.Context) error
}

// MemoryCache is a process local cache with per item expiry.
type MemoryCache struct {
	cache *gocache.Cache
}

// NewMemoryCache creates a memory cache. A ttl <= 0 keeps items until
// the cache is invalidated.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		return &MemoryCache{cache: gocache.New(gocache.NoExpiration, 0)}
	}
	return &MemoryCache{cache: gocache.New(ttl, 2*ttl)}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*model.QueryResponse, bool, error) {
	value, ok := c.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	response, ok := value.(*model.QueryResponse)
	if !ok {
		return nil, false, nil
	}
	return cloneResponse(response), true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, response *model.QueryResponse) error {
	c.cache.SetDefault(key, cloneResponse(response))
	return nil
}

func (c *MemoryCache) Invalidate(ctx context.Context) error {
	c.cache.Flush()
	return nil
}

// Len returns the number of cached responses, expired ones included until
// they are cleaned up.
func (c *MemoryCache) Len() int {
	return c.cache.ItemCount()
}

// RedisCache shares query responses between processes through redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a cache on top of client.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// NewRedisCacheFromURL connects to the redis server at url, e.g.
// redis://localhost:6379/0, and checks the connection.
func NewRedisCacheFromURL(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, helper.Errorf(helper.ErrInvalidInput, "redis url: %v", err)
	}

	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, helper.Errorf(helper.ErrUnavailable, "connect to redis: %v", err)
	}

	return NewRedisCache(client, ttl), nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (*model.QueryResponse, bool, error) {
	data, err := c.client.Get(ctx, RedisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, helper.NewError("get cached query", err)
	}

	response := &model.QueryResponse{}
	if err := json.Unmarshal(data, response); err != nil {
		return nil, false, helper.NewError("unmarshal cached query", err)
	}

	return response, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, response *model.QueryResponse) error {
	data, err := json.Marshal(response)
	if err != nil {
		return helper.NewError("marshal query", err)
	}

	if err := c.client.Set(ctx, RedisKeyPrefix+key, data, c.ttl).Err(); err != nil {
		return helper.NewError("set cached query", err)
	}

	return nil
}

// Invalidate deletes every cached query of this prefix.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, RedisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return helper.NewError("delete cached query", err)
		}
	}

	if err := iter.Err(); err != nil {
		return helper.NewError("scan cached queries", err)
	}

	return nil
}

// Close closes the redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// cacheKeyRequest is the canonical form of a request used for the cache key.
type cacheKeyRequest struct {
	Types           []model.EntryType `json:"types"`
	Search          string            `json:"search"`
	Embedding       []float32         `json:"embedding,omitempty"`
	Scope           string            `json:"scope"`
	Tags            []string          `json:"tags,omitempty"`
	RequireTags     []string          `json:"require_tags,omitempty"`
	ExcludeTags     []string          `json:"exclude_tags,omitempty"`
	RelatedTo       *model.RelatedTo  `json:"related_to,omitempty"`
	FollowRelations bool              `json:"follow_relations"`
	Limit           int               `json:"limit"`
	Offset          int               `json:"offset"`
}

// CacheKey derives a stable key from a normalized request. Order and case
// of types and tags do not change the key.
func CacheKey(request model.QueryRequest, scope model.Scope) string {
	canonical := cacheKeyRequest{
		Types:           sortedTypes(request.Types),
		Search:          strings.Join(strings.Fields(request.Search), " "),
		Embedding:       request.Embedding,
		Scope:           scope.String(),
		Tags:            sortedTags(request.Tags),
		RequireTags:     sortedTags(request.RequireTags),
		ExcludeTags:     sortedTags(request.ExcludeTags),
		RelatedTo:       request.RelatedTo,
		FollowRelations: request.FollowRelations,
		Limit:           request.Limit,
		Offset:          request.Offset,
	}

	// Marshalling a struct of plain fields cannot fail.
	data, _ := json.Marshal(canonical)
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

func sortedTypes(types []model.EntryType) []model.EntryType {
	sorted := slices.Clone(types)
	slices.Sort(sorted)
	return slices.Compact(sorted)
}

func sortedTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	sorted := make([]string, 0, len(tags))
	for _, tag := range tags {
		sorted = append(sorted, strings.ToLower(strings.TrimSpace(tag)))
	}
	slices.Sort(sorted)
	return slices.Compact(sorted)
}

func cloneResponse(response *model.QueryResponse) *model.QueryResponse {
	clone := *response
	clone.Items = slices.Clone(response.Items)
	if response.Telemetry != nil {
		telemetry := *response.Telemetry
		telemetry.Stages = slices.Clone(response.Telemetry.Stages)
		clone.Telemetry = &telemetry
	}
	return &clone
}
