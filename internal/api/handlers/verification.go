package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/wonny/harvest/backend/internal/contracts"
	"github.com/wonny/harvest/backend/pkg/logger"
)

// VerificationDispatcher turns a verification action into a retraining job
type VerificationDispatcher interface {
	HandleVerification(ctx context.Context, ev contracts.VerificationEvent) (*contracts.DispatchResult, error)
}

// VerificationHandler receives record status changes from the records service
type VerificationHandler struct {
	dispatcher VerificationDispatcher
	logger     *logger.Logger
}

// NewVerificationHandler creates a new verification handler
func NewVerificationHandler(dispatcher VerificationDispatcher, log *logger.Logger) *VerificationHandler {
	return &VerificationHandler{dispatcher: dispatcher, logger: log}
}

// PostEvent applies one action's status changes and queues retraining.
// The action is accepted even when retraining cannot be queued; the
// response then carries warnings for the actor. An action without an id
// gets a generated one, echoed back so the caller can retry it safely.
// POST /api/verification/events
func (h *VerificationHandler) PostEvent(w http.ResponseWriter, r *http.Request) {
	var ev contracts.VerificationEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(ev.Changes) == 0 {
		respondError(w, http.StatusBadRequest, "changes must not be empty")
		return
	}
	for _, c := range ev.Changes {
		if err := c.Validate(); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if ev.ActionID == "" {
		ev.ActionID = uuid.NewString()
	}

	res, err := h.dispatcher.HandleVerification(r.Context(), ev)
	if res != nil {
		res.ActionID = ev.ActionID
	}
	switch {
	case errors.Is(err, contracts.ErrDispatchFailure):
		h.logger.WithError(err).WithField("action_id", ev.ActionID).Error("Retraining not queued")
		respondJSON(w, http.StatusAccepted, res)
		return
	case err != nil:
		h.logger.WithError(err).WithField("action_id", ev.ActionID).Error("Failed to apply verification")
		respondError(w, http.StatusInternalServerError, "Failed to apply verification")
		return
	}

	status := http.StatusAccepted
	if res.Duplicate {
		status = http.StatusOK
	}
	respondJSON(w, status, res)
}
