package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pulseboard/pulseboard/internal/analytics"
	"github.com/pulseboard/pulseboard/internal/handler/dto"
	"github.com/pulseboard/pulseboard/internal/middleware"
)

const (
	maxClickBodyBytes = 16 << 10
	maxClockSkew      = 5 * time.Minute
)

// ClickPublisher enqueues click events for the ingest worker.
type ClickPublisher interface {
	Publish(ctx context.Context, event analytics.ClickEventPayload) (string, error)
}

// ClickHandler accepts tracked link clicks.
type ClickHandler struct {
	publisher ClickPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewClickHandler creates a new ClickHandler.
func NewClickHandler(publisher ClickPublisher, logger *slog.Logger) *ClickHandler {
	return &ClickHandler{
		publisher: publisher,
		logger:    logger.With("component", "handler.clicks"),
		now:       time.Now,
	}
}

// Ingest handles POST /api/v1/clicks.
func (h *ClickHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "MISSING_SCOPE", middleware.OrgIDHeader+" header is required")
		return
	}

	var req dto.ClickRequest
	body := http.MaxBytesReader(w, r.Body, maxClickBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}

	now := h.now().UTC()
	clickedAt := now
	if req.Timestamp != nil {
		clickedAt = req.Timestamp.UTC()
		if clickedAt.After(now.Add(maxClockSkew)) {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "timestamp is in the future")
			return
		}
	}

	userAgent := analytics.TruncateUserAgent(strings.TrimSpace(req.UserAgent))
	if userAgent == "" {
		userAgent = analytics.TruncateUserAgent(r.UserAgent())
	}
	deviceClass := analytics.NormalizeDeviceClass(req.DeviceClass, userAgent)

	payload := analytics.ClickEventPayload{
		LinkID:      strings.TrimSpace(req.LinkID),
		OrgID:       scope.OrgID,
		ProjectID:   scope.ProjectID,
		AccountID:   scope.AccountID,
		Referrer:    analytics.SanitizeReferrer(req.Referrer),
		UserAgent:   userAgent,
		DeviceClass: deviceClass,
		IdentityKey: analytics.GenerateIdentityKey(userAgent, deviceClass),
		ClickedAt:   clickedAt.UnixMilli(),
	}
	if err := analytics.ValidateClickEventPayload(payload); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), analytics.PublishTimeout)
	defer cancel()

	streamID, err := h.publisher.Publish(ctx, payload)
	if err != nil {
		h.logger.Error("failed to enqueue click", "link_id", payload.LinkID, "org_id", scope.OrgID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "INGEST_UNAVAILABLE", "Click could not be queued")
		return
	}

	writeJSON(w, http.StatusAccepted, dto.ClickAcceptedResponse{
		Status:      "accepted",
		StreamID:    streamID,
		DeviceClass: deviceClass,
		IdentityKey: payload.IdentityKey,
	})
}
