package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"checkout/internal/domain"
	"checkout/internal/repository"
)

type cachedCatalogRepo struct {
	next        repository.CatalogRepository
	redisClient *redis.Client
	cacheTTL    time.Duration
}

// NewCachedCatalogRepository wraps catalog reads with a read-through
// Redis cache. Prices change rarely; the short TTL bounds staleness.
func NewCachedCatalogRepository(next repository.CatalogRepository, redisClient *redis.Client) repository.CatalogRepository {
	return &cachedCatalogRepo{
		next:        next,
		redisClient: redisClient,
		cacheTTL:    time.Minute * 10,
	}
}

func (r *cachedCatalogRepo) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	key := fmt.Sprintf("product:%s", productID)

	val, err := r.redisClient.Get(ctx, key).Result()
	if err == nil {
		var product domain.Product
		if err := json.Unmarshal([]byte(val), &product); err == nil {
			return &product, nil
		}
	}

	product, err := r.next.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(product); err == nil {
		r.redisClient.Set(ctx, key, data, r.cacheTTL)
	}

	return product, nil
}
