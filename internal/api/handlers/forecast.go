package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/wonny/harvest/backend/internal/contracts"
	"github.com/wonny/harvest/backend/internal/export"
	"github.com/wonny/harvest/backend/pkg/logger"
	"github.com/wonny/harvest/backend/pkg/redis"
)

// ForecastReader reads versioned forecast output
type ForecastReader interface {
	Current(ctx context.Context, q contracts.CurrentQuery) ([]contracts.CurrentForecast, error)
	ListBatches(ctx context.Context, limit int) ([]contracts.ForecastBatch, error)
}

// ChartSource renders one segment from its stored model
type ChartSource interface {
	Chart(ctx context.Context, commodityID, municipalityID int64, now time.Time) (*contracts.SegmentForecast, error)
}

// FullRunTrigger enqueues manual full runs
type FullRunTrigger interface {
	TriggerFull(ctx context.Context, actor, note string) (*contracts.DispatchResult, error)
}

// FullRunLimits bounds manual full runs per actor
type FullRunLimits struct {
	Limit  int
	Window time.Duration
}

// ForecastHandler serves current forecasts, exports, charts and batches
// ⭐ SSOT: forecast read API lives in this struct
type ForecastHandler struct {
	results    ForecastReader
	charts     ChartSource
	dispatcher FullRunTrigger
	cache      *redis.Cache
	limiter    *redis.RateLimiter
	limits     FullRunLimits
	logger     *logger.Logger
	now        func() time.Time
}

// NewForecastHandler creates a new forecast handler. cache and limiter may be nil.
func NewForecastHandler(
	results ForecastReader,
	charts ChartSource,
	dispatcher FullRunTrigger,
	cache *redis.Cache,
	limiter *redis.RateLimiter,
	limits FullRunLimits,
	log *logger.Logger,
) *ForecastHandler {
	return &ForecastHandler{
		results:    results,
		charts:     charts,
		dispatcher: dispatcher,
		cache:      cache,
		limiter:    limiter,
		limits:     limits,
		logger:     log,
		now:        time.Now,
	}
}

// CurrentResponse is the current-forecast payload
type CurrentResponse struct {
	Forecasts []contracts.CurrentForecast `json:"forecasts"`
	Count     int                         `json:"count"`
}

// GetCurrent returns the newest row per combination
// GET /api/forecasts/current?commodity_id=&municipality_id=&from=YYYY-MM&to=YYYY-MM
func (h *ForecastHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q, ok := h.parseCurrentQuery(w, r)
	if !ok {
		return
	}

	cacheKey := ""
	if h.cache != nil {
		gen, err := h.cache.Generation(ctx, redis.CurrentForecastGeneration)
		if err != nil {
			h.logger.WithError(err).Warn("Cache generation unavailable")
		} else {
			cacheKey = redis.CurrentForecastKey(gen, q.CommodityID, q.MunicipalityID, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
			var cached CurrentResponse
			if hit, err := h.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
				respondJSON(w, http.StatusOK, cached)
				return
			}
		}
	}

	rows, err := h.results.Current(ctx, q)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get current forecasts")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve forecasts")
		return
	}
	if rows == nil {
		rows = []contracts.CurrentForecast{}
	}

	resp := CurrentResponse{Forecasts: rows, Count: len(rows)}
	if cacheKey != "" {
		if err := h.cache.Set(ctx, cacheKey, resp, redis.TTLMedium); err != nil {
			h.logger.WithError(err).Warn("Failed to cache current forecasts")
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// ExportCSV streams the current forecasts as CSV
// GET /api/forecasts/export.csv
func (h *ForecastHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	q, ok := h.parseCurrentQuery(w, r)
	if !ok {
		return
	}
	// Consumers expect every combination, never a truncated page
	q.Limit = 0

	rows, err := h.results.Current(r.Context(), q)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get forecasts for export")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve forecasts")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(h.now())+`"`)
	if err := export.WriteCSV(w, rows); err != nil {
		h.logger.WithError(err).Error("Failed to write CSV export")
	}
}

// GetChart returns the chart grid of one segment
// GET /api/forecasts/chart?commodity_id=&municipality_id=
func (h *ForecastHandler) GetChart(w http.ResponseWriter, r *http.Request) {
	commodityID, err := queryInt64(r, "commodity_id")
	if err != nil || commodityID == 0 {
		respondError(w, http.StatusBadRequest, "commodity_id is required")
		return
	}
	municipalityID, err := queryInt64(r, "municipality_id")
	if err != nil || municipalityID == 0 {
		respondError(w, http.StatusBadRequest, "municipality_id is required")
		return
	}

	chart, err := h.charts.Chart(r.Context(), commodityID, municipalityID, h.now())
	switch {
	case errors.Is(err, contracts.ErrNoModelAvailable), errors.Is(err, contracts.ErrInsufficientHistory):
		respondError(w, http.StatusNotFound, "No forecast yet for this segment")
		return
	case err != nil:
		h.logger.WithError(err).WithFields(map[string]interface{}{
			"commodity_id":    commodityID,
			"municipality_id": municipalityID,
		}).Error("Failed to build chart")
		respondError(w, http.StatusInternalServerError, "Failed to build chart")
		return
	}

	respondJSON(w, http.StatusOK, chart)
}

// FullRunRequest is the manual full-run payload
type FullRunRequest struct {
	Actor string `json:"actor"`
	Note  string `json:"note"`
}

// TriggerFullRun queues a full run, rate limited per actor
// POST /api/forecasts/full-run
func (h *ForecastHandler) TriggerFullRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req FullRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Actor == "" {
		respondError(w, http.StatusBadRequest, "actor is required")
		return
	}

	if h.limiter != nil {
		allowed, _, err := h.limiter.Allow(ctx, redis.FullRunLimit(req.Actor, h.limits.Limit, h.limits.Window))
		if err != nil {
			h.logger.WithError(err).Warn("Rate limiter unavailable")
		} else if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(h.limits.Window.Seconds())))
			respondError(w, http.StatusTooManyRequests, "Too many full runs requested; try again later")
			return
		}
	}

	res, err := h.dispatcher.TriggerFull(ctx, req.Actor, req.Note)
	if err != nil {
		h.logger.WithError(err).WithField("actor", req.Actor).Error("Failed to queue full run")
		respondError(w, http.StatusServiceUnavailable, "Full run could not be queued")
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"actor":  req.Actor,
		"job_id": res.JobID.String(),
	}).Info("Full run queued")

	respondJSON(w, http.StatusAccepted, res)
}

// ListBatches returns the newest batches
// GET /api/batches?limit=
func (h *ForecastHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.results.ListBatches(r.Context(), queryLimit(r, 20, 200))
	if err != nil {
		h.logger.WithError(err).Error("Failed to list batches")
		respondError(w, http.StatusInternalServerError, "Failed to list batches")
		return
	}
	if batches == nil {
		batches = []contracts.ForecastBatch{}
	}
	respondJSON(w, http.StatusOK, batches)
}

func (h *ForecastHandler) parseCurrentQuery(w http.ResponseWriter, r *http.Request) (contracts.CurrentQuery, bool) {
	var q contracts.CurrentQuery
	var err error

	if q.CommodityID, err = queryInt64(r, "commodity_id"); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return q, false
	}
	if q.MunicipalityID, err = queryInt64(r, "municipality_id"); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return q, false
	}
	if q.From, err = queryMonth(r, "from"); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return q, false
	}
	if q.To, err = queryMonth(r, "to"); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return q, false
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		respondError(w, http.StatusBadRequest, "'to' must not be before 'from'")
		return q, false
	}
	return q, true
}
