package service_test

import (
	"fmt"

	"go.uber.org/zap"

	"checkout/internal/repository"
	"checkout/internal/service"
)

func (s *IntegrationTestSuite) cachedCatalog() repository.CatalogRepository {
	next := repository.NewCatalogRepository(s.DbPool, zap.NewNop())

	return service.NewCachedCatalogRepository(next, s.RedisClient)
}

func (s *IntegrationTestSuite) TestCatalogCacheMissPopulatesRedis() {
	s.seedProduct("P1", "Oversized Tee", 129900)

	catalog := s.cachedCatalog()

	product, err := catalog.GetProduct(s.Ctx, "P1")
	s.Require().NoError(err)
	s.Equal(int64(129900), product.Price)

	cached, err := s.RedisClient.Get(s.Ctx, "product:P1").Result()
	s.Require().NoError(err)
	s.Contains(cached, `"P1"`)
}

func (s *IntegrationTestSuite) TestCatalogCacheHitSkipsDatabase() {
	s.seedProduct("P1", "Oversized Tee", 129900)

	catalog := s.cachedCatalog()

	_, err := catalog.GetProduct(s.Ctx, "P1")
	s.Require().NoError(err)

	// A price change in the database is invisible until the TTL
	// expires; the second read must come from the cache.
	_, err = s.DbPool.Exec(s.Ctx, `UPDATE products SET price = 999 WHERE id = 'P1'`)
	s.Require().NoError(err)

	product, err := catalog.GetProduct(s.Ctx, "P1")
	s.Require().NoError(err)
	s.Equal(int64(129900), product.Price)
}

func (s *IntegrationTestSuite) TestCatalogCacheStaleJSONFallsThrough() {
	s.seedProduct("P1", "Oversized Tee", 129900)

	err := s.RedisClient.Set(s.Ctx, "product:P1", "not json", 0).Err()
	s.Require().NoError(err)

	catalog := s.cachedCatalog()

	product, err := catalog.GetProduct(s.Ctx, "P1")
	s.Require().NoError(err)
	s.Equal(int64(129900), product.Price)

	// The bad entry is replaced by the fresh read.
	cached, err := s.RedisClient.Get(s.Ctx, "product:P1").Result()
	s.Require().NoError(err)
	s.Contains(cached, fmt.Sprintf(`"price":%d`, 129900))
}

func (s *IntegrationTestSuite) TestCatalogCacheUnknownProduct() {
	catalog := s.cachedCatalog()

	_, err := catalog.GetProduct(s.Ctx, "P404")
	s.Require().ErrorIs(err, repository.ErrProductNotFound)
}
