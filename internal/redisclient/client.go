package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/set_schema.lua
var setSchemaScript string

// schemaSentinel marks a cached entry so an empty legal set is told apart from a miss.
// Entity ids start at 1.
const schemaSentinel = "0"

type Client struct {
	rdb             *redis.Client
	schemaTTL       time.Duration
	setSchemaScript *redis.Script
}

// NewClient creates a new Redis client; schemaTTL bounds how long a cached attribute set lives
func NewClient(addr, password string, db int, schemaTTL time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:             rdb,
		schemaTTL:       schemaTTL,
		setSchemaScript: redis.NewScript(setSchemaScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func schemaKey(productTypeID int64) string {
	return fmt.Sprintf("schema:product_type:%d", productTypeID)
}

// schemaVersionKey counts invalidations of a product type. It never expires.
func schemaVersionKey(productTypeID int64) string {
	return fmt.Sprintf("schema:product_type:%d:version", productTypeID)
}

// SchemaVersion returns the invalidation counter of a product type, 0 if it was never invalidated
func (c *Client) SchemaVersion(ctx context.Context, productTypeID int64) (int64, error) {
	version, err := c.rdb.Get(ctx, schemaVersionKey(productTypeID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// GetSchema returns the cached legal attribute ids of a product type.
// ok is false on a cache miss.
func (c *Client) GetSchema(ctx context.Context, productTypeID int64) ([]int64, bool, error) {
	members, err := c.rdb.SMembers(ctx, schemaKey(productTypeID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("read schema cache: %w", err)
	}
	if len(members) == 0 {
		return nil, false, nil
	}

	ids := make([]int64, 0, len(members)-1)
	for _, m := range members {
		if m == schemaSentinel {
			continue
		}
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, false, fmt.Errorf("corrupt schema cache entry %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, true, nil
}

// SetSchema replaces the cached attribute set of a product type atomically,
// unless the product type was invalidated since version was read
func (c *Client) SetSchema(ctx context.Context, productTypeID int64, attributeIDs []int64, version int64) error {
	args := make([]interface{}, 0, len(attributeIDs)+3)
	args = append(args, version, c.schemaTTL.Milliseconds(), schemaSentinel)
	for _, id := range attributeIDs {
		args = append(args, strconv.FormatInt(id, 10))
	}

	keys := []string{schemaKey(productTypeID), schemaVersionKey(productTypeID)}
	if err := c.setSchemaScript.Run(ctx, c.rdb, keys, args...).Err(); err != nil {
		return fmt.Errorf("write schema cache: %w", err)
	}
	return nil
}

// InvalidateSchema drops the cached attribute set of a product type and bumps
// its version so that loads started earlier are not written back
func (c *Client) InvalidateSchema(ctx context.Context, productTypeID int64) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, schemaVersionKey(productTypeID))
		pipe.Del(ctx, schemaKey(productTypeID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate schema cache: %w", err)
	}
	return nil
}
