package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"

	"github.com/wonny/harvest/backend/internal/contracts"
	"github.com/wonny/harvest/backend/pkg/logger"
	"github.com/wonny/harvest/backend/pkg/redis"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

// JobReader reads retraining jobs
type JobReader interface {
	Get(ctx context.Context, id uuid.UUID) (*contracts.Job, error)
	Stats(ctx context.Context) (*contracts.JobStats, error)
	List(ctx context.Context, limit int) ([]contracts.Job, error)
}

// EventSource subscribes to job events
type EventSource interface {
	Subscribe(ctx context.Context, channels ...string) *goredis.PubSub
}

// JobHandler exposes retraining job status
type JobHandler struct {
	jobs     JobReader
	events   EventSource
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

// NewJobHandler creates a new job handler. events may be nil.
func NewJobHandler(jobs JobReader, events EventSource, log *logger.Logger) *JobHandler {
	return &JobHandler{
		jobs:   jobs,
		events: events,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: writeWait,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		logger: log,
	}
}

// GetJob returns one job
// GET /api/jobs/{id}
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job id")
		return
	}

	job, err := h.jobs.Get(r.Context(), id)
	if errors.Is(err, contracts.ErrJobNotFound) {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.logger.WithJob(id, "").WithError(err).Error("Failed to get job")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve job")
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// JobListResponse is the job overview payload
type JobListResponse struct {
	Stats *contracts.JobStats `json:"stats"`
	Jobs  []contracts.Job     `json:"jobs"`
}

// ListJobs returns recent jobs with per-state counts
// GET /api/jobs?limit=
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.jobs.Stats(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get job stats")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve job stats")
		return
	}

	jobs, err := h.jobs.List(ctx, queryLimit(r, 50, 500))
	if err != nil {
		h.logger.WithError(err).Error("Failed to list jobs")
		respondError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []contracts.Job{}
	}

	respondJSON(w, http.StatusOK, JobListResponse{Stats: stats, Jobs: jobs})
}

// Stream relays job events to a websocket client. With ?actor= only that
// actor's jobs are relayed.
// GET /ws/jobs
func (h *JobHandler) Stream(w http.ResponseWriter, r *http.Request) {
	actor := r.URL.Query().Get("actor")

	if h.events == nil {
		respondError(w, http.StatusServiceUnavailable, "Job events are not available")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := h.events.Subscribe(ctx, redis.JobEventsChannel)
	if sub == nil {
		respondError(w, http.StatusServiceUnavailable, "Job events are not available")
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Reader: only pongs and close frames are expected
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	messages := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if !eventForActor(msg.Payload, actor) {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// eventForActor reports whether a published job event belongs to actor.
// An empty actor matches every event.
func eventForActor(payload, actor string) bool {
	if actor == "" {
		return true
	}
	var ev contracts.JobEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return false
	}
	return ev.Actor == actor
}
