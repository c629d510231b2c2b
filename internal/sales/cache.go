package sales

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionPrefix = "sales:version"

// Cache wraps Redis based read caching with a version per company. Bumping
// the version orphans every key built against the previous one.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func versionKey(companyID int64) string {
	return cacheVersionPrefix + ":" + strconv.FormatInt(companyID, 10)
}

// Version returns the current cache version for a company, initialising
// when missing.
func (c *Cache) Version(ctx context.Context, companyID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	key := versionKey(companyID)
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		// SETNX so concurrent initialisers agree on the same version.
		if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, key).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey composes the cache key with the company's current version.
func (c *Cache) BuildKey(ctx context.Context, companyID int64, parts ...string) (string, error) {
	joined := strings.Join(append([]string{"sales", strconv.FormatInt(companyID, 10)}, parts...), ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx, companyID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", joined, ver), nil
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c != nil && c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c != nil && c.client != nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates every cached read of a company.
func (c *Cache) Bump(ctx context.Context, companyID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey(companyID)).Err()
}

func listKey(filter ListFilter) []string {
	status := "all"
	if filter.Status != nil {
		status = string(*filter.Status)
	}
	customer := "all"
	if filter.CustomerID != nil {
		customer = strconv.FormatInt(*filter.CustomerID, 10)
	}
	return []string{"list", status, customer, strconv.Itoa(filter.Limit), strconv.Itoa(filter.Offset)}
}

func saleKey(id int64) []string {
	return []string{"sale", strconv.FormatInt(id, 10)}
}
