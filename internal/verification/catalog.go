package verification

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/harvest/backend/internal/contracts"
	"github.com/wonny/harvest/backend/pkg/redis"
)

// CatalogRepository lists commodities and municipalities
type CatalogRepository struct {
	pool  *pgxpool.Pool
	cache *redis.Cache
}

var _ contracts.Catalog = (*CatalogRepository)(nil)

// NewCatalogRepository creates a catalog. cache may be nil.
func NewCatalogRepository(pool *pgxpool.Pool, cache *redis.Cache) *CatalogRepository {
	return &CatalogRepository{pool: pool, cache: cache}
}

// Commodities returns every commodity ordered by name
func (r *CatalogRepository) Commodities(ctx context.Context) ([]contracts.Commodity, error) {
	var out []contracts.Commodity
	if r.cached(ctx, "catalog:commodities", &out) {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, average_weight_per_unit::float8
		FROM forecast.commodities
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query commodities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c contracts.Commodity
		if err := rows.Scan(&c.ID, &c.Name, &c.AverageWeightPerUnit); err != nil {
			return nil, fmt.Errorf("scan commodity: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	r.store(ctx, "catalog:commodities", out)
	return out, nil
}

// Municipalities returns every municipality ordered by id
func (r *CatalogRepository) Municipalities(ctx context.Context) ([]contracts.MunicipalityInfo, error) {
	var out []contracts.MunicipalityInfo
	if r.cached(ctx, "catalog:municipalities", &out) {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT id, name FROM forecast.municipalities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query municipalities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m contracts.MunicipalityInfo
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, fmt.Errorf("scan municipality: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	r.store(ctx, "catalog:municipalities", out)
	return out, nil
}

// Invalidate drops cached catalog lists
func (r *CatalogRepository) Invalidate(ctx context.Context) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Delete(ctx, "catalog:commodities")
	_ = r.cache.Delete(ctx, "catalog:municipalities")
}

func (r *CatalogRepository) cached(ctx context.Context, key string, dest interface{}) bool {
	if r.cache == nil {
		return false
	}
	found, err := r.cache.Get(ctx, key, dest)
	return err == nil && found
}

func (r *CatalogRepository) store(ctx context.Context, key string, v interface{}) {
	if r.cache == nil {
		return
	}
	// Cache failures only cost a query
	_ = r.cache.Set(ctx, key, v, redis.TTLLong)
}
