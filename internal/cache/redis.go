package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"example.com/carniceria/pedidos/config"
	"example.com/carniceria/pedidos/internal/models"
)

// listTTL bounds staleness of the cached per-store order list.
const listTTL = 30 * time.Second

// RedisCache caches per-store order lists
type RedisCache struct {
	client  *redis.Client
	enabled bool
}

// NewRedisCache creates a new Redis cache
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	if !cfg.Enabled {
		return &RedisCache{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &RedisCache{
		client:  client,
		enabled: true,
	}, nil
}

// listKey generates the cache key for a store's order list. The empty
// store id keys the factory-wide list.
func listKey(tiendaID string) string {
	if tiendaID == "" {
		return "pedidos:todos"
	}
	return fmt.Sprintf("pedidos:tienda:%s", tiendaID)
}

// GetPedidos retrieves a cached order list
func (c *RedisCache) GetPedidos(ctx context.Context, tiendaID string) ([]models.Pedido, error) {
	if !c.enabled {
		return nil, errors.New("cache is disabled")
	}

	data, err := c.client.Get(ctx, listKey(tiendaID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, errors.Wrap(err, "key not found in cache")
		}
		return nil, errors.Wrap(err, "failed to get value from Redis")
	}

	var pedidos []models.Pedido
	if err := json.Unmarshal(data, &pedidos); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal cached pedidos")
	}
	return pedidos, nil
}

// SetPedidos caches an order list for a store
func (c *RedisCache) SetPedidos(ctx context.Context, tiendaID string, pedidos []models.Pedido) error {
	if !c.enabled {
		return errors.New("cache is disabled")
	}

	data, err := json.Marshal(pedidos)
	if err != nil {
		return errors.Wrap(err, "failed to marshal pedidos for caching")
	}

	if err := c.client.Set(ctx, listKey(tiendaID), data, listTTL).Err(); err != nil {
		return errors.Wrap(err, "failed to set value in Redis")
	}
	return nil
}

// InvalidatePedidos drops the cached lists touched by a mutation: the
// store's own list and the factory-wide list.
func (c *RedisCache) InvalidatePedidos(ctx context.Context, tiendaID string) error {
	if !c.enabled {
		return nil
	}
	keys := []string{listKey("")}
	if tiendaID != "" {
		keys = append(keys, listKey(tiendaID))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, "failed to invalidate pedido lists")
	}
	return nil
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	if !c.enabled || c.client == nil {
		return nil
	}
	return c.client.Close()
}
