package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/harvest/backend/internal/contracts"
)

// OverallLabel names the Overall aggregate in reports
const OverallLabel = "Overall"

// Repository reads verified history and versions forecast rows
type Repository struct {
	pool      *pgxpool.Pool
	overallID int64
}

// NewRepository creates a repository
func NewRepository(pool *pgxpool.Pool, overallID int64) *Repository {
	return &Repository{pool: pool, overallID: overallID}
}

var (
	_ contracts.ObservationReader = (*Repository)(nil)
	_ contracts.ResultStore       = (*Repository)(nil)
)

// MonthlyByMunicipality sums verified kg per month for one real municipality
func (r *Repository) MonthlyByMunicipality(ctx context.Context, commodityID, municipalityID int64, floor *time.Time) ([]contracts.Observation, error) {
	query := `
		SELECT date_trunc('month', observed_on)::date AS month, SUM(weight_kg)::float8
		FROM forecast.verified_observations
		WHERE commodity_id = $1
		  AND municipality_id = $2
		  AND ($3::date IS NULL OR observed_on >= $3::date)
		GROUP BY 1
		ORDER BY 1`

	return r.monthly(ctx, query, commodityID, municipalityID, floor)
}

// MonthlyPooled sums verified kg per month over every real municipality
func (r *Repository) MonthlyPooled(ctx context.Context, commodityID int64, floor *time.Time) ([]contracts.Observation, error) {
	query := `
		SELECT date_trunc('month', observed_on)::date AS month, SUM(weight_kg)::float8
		FROM forecast.verified_observations
		WHERE commodity_id = $1
		  AND municipality_id <> $2
		  AND ($3::date IS NULL OR observed_on >= $3::date)
		GROUP BY 1
		ORDER BY 1`

	return r.monthly(ctx, query, commodityID, r.overallID, floor)
}

func (r *Repository) monthly(ctx context.Context, query string, commodityID, municipalityID int64, floor *time.Time) ([]contracts.Observation, error) {
	rows, err := r.pool.Query(ctx, query, commodityID, municipalityID, floor)
	if err != nil {
		return nil, fmt.Errorf("query monthly observations: %w", err)
	}
	defer rows.Close()

	var obs []contracts.Observation
	for rows.Next() {
		var o contracts.Observation
		if err := rows.Scan(&o.Month, &o.KG); err != nil {
			return nil, fmt.Errorf("scan monthly observation: %w", err)
		}
		o.Month = contracts.MonthStart(o.Month)
		obs = append(obs, o)
	}

	return obs, rows.Err()
}

// CreateBatch inserts a new batch. created_at uses clock_timestamp so batches
// created inside one transaction still order.
func (r *Repository) CreateBatch(ctx context.Context, mode contracts.RunMode, note, actor string) (*contracts.ForecastBatch, error) {
	query := `
		INSERT INTO forecast.batches (mode, scope_note, triggered_by)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''))
		RETURNING id, created_at`

	b := &contracts.ForecastBatch{Mode: mode, ScopeNote: note, TriggeredBy: actor}
	if err := r.pool.QueryRow(ctx, query, mode, note, actor).Scan(&b.ID, &b.CreatedAt); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	return b, nil
}

// UpsertResults writes rows keyed by (batch, commodity, municipality, month, year)
func (r *Repository) UpsertResults(ctx context.Context, results []contracts.ForecastResult) error {
	if len(results) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO forecast.results
			(batch_id, commodity_id, municipality_id, forecast_month, forecast_year,
			 predicted_kg, predicted_units, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
		ON CONFLICT (batch_id, commodity_id, municipality_id, forecast_month, forecast_year)
		DO UPDATE SET
			predicted_kg = EXCLUDED.predicted_kg,
			predicted_units = EXCLUDED.predicted_units,
			notes = EXCLUDED.notes,
			updated_at = NOW()`

	for _, res := range results {
		batch.Queue(query, res.BatchID, res.CommodityID, res.MunicipalityID,
			res.Month, res.Year, res.PredictedKG, res.PredictedUnits, res.Notes)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range results {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert forecast result: %w", err)
		}
	}

	return nil
}

// Current returns, per (commodity, municipality, month, year), the row from the
// newest batch that wrote that exact combination. A zero Limit returns every row.
func (r *Repository) Current(ctx context.Context, q contracts.CurrentQuery) ([]contracts.CurrentForecast, error) {
	query := `
		SELECT * FROM (
			SELECT DISTINCT ON (r.commodity_id, r.municipality_id, r.forecast_year, r.forecast_month)
				r.batch_id, r.commodity_id, r.municipality_id, r.forecast_month, r.forecast_year,
				r.predicted_kg, r.predicted_units, COALESCE(r.notes, ''),
				COALESCE(c.name, ''),
				CASE WHEN r.municipality_id = $1::bigint THEN $2::text ELSE COALESCE(m.name, '') END,
				b.created_at
			FROM forecast.results r
			JOIN forecast.batches b ON b.id = r.batch_id
			LEFT JOIN forecast.commodities c ON c.id = r.commodity_id
			LEFT JOIN forecast.municipalities m ON m.id = r.municipality_id
			WHERE ($3::bigint = 0 OR r.commodity_id = $3::bigint)
			  AND ($4::bigint = 0 OR r.municipality_id = $4::bigint)
			  AND ($5::date IS NULL OR make_date(r.forecast_year, r.forecast_month, 1) >= $5::date)
			  AND ($6::date IS NULL OR make_date(r.forecast_year, r.forecast_month, 1) <= $6::date)
			ORDER BY r.commodity_id, r.municipality_id, r.forecast_year, r.forecast_month,
			         b.created_at DESC, b.id DESC
		) cur
		ORDER BY 2, 3, 5, 4
		LIMIT $7::bigint`

	rows, err := r.pool.Query(ctx, query,
		r.overallID, OverallLabel,
		q.CommodityID, q.MunicipalityID,
		optionalDate(q.From), optionalDate(q.To),
		optionalLimit(q.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query current forecasts: %w", err)
	}
	defer rows.Close()

	var out []contracts.CurrentForecast
	for rows.Next() {
		var c contracts.CurrentForecast
		if err := rows.Scan(
			&c.BatchID, &c.CommodityID, &c.MunicipalityID, &c.Month, &c.Year,
			&c.PredictedKG, &c.PredictedUnits, &c.Notes,
			&c.CommodityName, &c.MunicipalityName, &c.BatchCreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan current forecast: %w", err)
		}
		out = append(out, c)
	}

	return out, rows.Err()
}

// BatchResults returns every row written by one batch
func (r *Repository) BatchResults(ctx context.Context, batchID int64) ([]contracts.ForecastResult, error) {
	query := `
		SELECT batch_id, commodity_id, municipality_id, forecast_month, forecast_year,
		       predicted_kg, predicted_units, COALESCE(notes, '')
		FROM forecast.results
		WHERE batch_id = $1
		ORDER BY commodity_id, municipality_id, forecast_year, forecast_month`

	rows, err := r.pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("query batch results: %w", err)
	}
	defer rows.Close()

	var out []contracts.ForecastResult
	for rows.Next() {
		var res contracts.ForecastResult
		if err := rows.Scan(&res.BatchID, &res.CommodityID, &res.MunicipalityID, &res.Month, &res.Year,
			&res.PredictedKG, &res.PredictedUnits, &res.Notes); err != nil {
			return nil, fmt.Errorf("scan batch result: %w", err)
		}
		out = append(out, res)
	}

	return out, rows.Err()
}

// ListBatches returns the newest batches with their row counts
func (r *Repository) ListBatches(ctx context.Context, limit int) ([]contracts.ForecastBatch, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT b.id, b.mode, COALESCE(b.scope_note, ''), COALESCE(b.triggered_by, ''), b.created_at,
		       (SELECT COUNT(*) FROM forecast.results r WHERE r.batch_id = b.id)
		FROM forecast.batches b
		ORDER BY b.created_at DESC, b.id DESC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var out []contracts.ForecastBatch
	for rows.Next() {
		var b contracts.ForecastBatch
		if err := rows.Scan(&b.ID, &b.Mode, &b.ScopeNote, &b.TriggeredBy, &b.CreatedAt, &b.RowCount); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		out = append(out, b)
	}

	return out, rows.Err()
}

// optionalLimit maps a non-positive limit to NULL, which Postgres reads as LIMIT ALL
func optionalLimit(n int) *int64 {
	if n <= 0 {
		return nil
	}
	v := int64(n)
	return &v
}

func optionalDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	m := contracts.MonthStart(t)
	return &m
}
