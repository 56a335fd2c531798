package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/config-overlay/internal/overrides"
	"github.com/eugenenazirov/config-overlay/internal/settings"
	"github.com/eugenenazirov/config-overlay/internal/store"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// actorHeader carries the administrator id set by the upstream auth layer.
const actorHeader = "X-User-ID"

// Service is the override API consumed by the handlers.
type Service interface {
	Get(ctx context.Context) (store.Document, error)
	Set(ctx context.Context, key string, raw settings.Value, actor string) (overrides.SetResult, error)
	SetMany(ctx context.Context, values map[string]settings.Value, actor string) (overrides.SetResult, error)
	Reset(ctx context.Context, actor string) (store.Document, error)
	Apply(ctx context.Context) error
	Effective(ctx context.Context) (json.RawMessage, error)
	Schema(ctx context.Context) ([]overrides.SchemaEntry, error)
}

// Handler wires the override service into HTTP handlers.
type Handler struct {
	service Service
	logger  *zap.Logger

	clock func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithHandlerLogger sets the logger used for failed requests.
func WithHandlerLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(service Service, opts ...HandlerOption) *Handler {
	h := &Handler{
		service: service,
		logger:  zap.NewNop(),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetOverrides(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Get(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOverridesResponse(doc))
}

func (h *Handler) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	var req setOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		writeError(w, http.StatusBadRequest, "Invalid request", settings.ErrKeyRequired.Error())
		return
	}

	res, err := h.service.Set(r.Context(), req.Key, req.Value, actorFromRequest(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSetOverrideResponse(res))
}

// handleSetOverrides applies a map of key to value as one write. A null value
// removes that override.
func (h *Handler) handleSetOverrides(w http.ResponseWriter, r *http.Request) {
	var req map[string]settings.Value
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "expected a JSON object of key to value")
		return
	}
	if len(req) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid request", "no overrides supplied")
		return
	}

	res, err := h.service.SetMany(r.Context(), req, actorFromRequest(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSetOverrideResponse(res))
}

func (h *Handler) handleResetOverrides(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.Reset(r.Context(), actorFromRequest(r)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Configuration reset to defaults"})
}

func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Apply(r.Context()); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Restart requested"})
}

func (h *Handler) handleSchema(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Schema(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schemaResponse{Keys: entries})
}

func (h *Handler) handleEffectiveConfig(w http.ResponseWriter, r *http.Request) {
	payload, err := h.service.Effective(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(bytes.TrimSpace(payload))
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, settings.ErrKeyRequired),
		errors.Is(err, settings.ErrKeyNotAllowed),
		errors.Is(err, settings.ErrInvalidValue),
		errors.Is(err, settings.ErrInvalidPath):
		writeError(w, http.StatusBadRequest, "Invalid override", err.Error())
		return
	case errors.Is(err, overrides.ErrArtifact):
		writeError(w, http.StatusInternalServerError, "Configuration saved but not applied", err.Error(),
			"The merged configuration will be regenerated on the next request")
	case errors.Is(err, store.ErrUnavailable):
		writeError(w, http.StatusInternalServerError, "Storage unavailable", err.Error())
	default:
		writeInternalError(w, err)
	}
	h.logger.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", requestIDFromContext(r.Context())),
		zap.Error(err),
	)
}

func actorFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(actorHeader))
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type setOverrideRequest struct {
	Key   string         `json:"key"`
	Value settings.Value `json:"value"`
}

type overridesResponse struct {
	Overrides  settings.Tree `json:"overrides"`
	Generation uint64        `json:"generation"`
	UpdatedBy  string        `json:"updatedBy,omitempty"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

func newOverridesResponse(doc store.Document) overridesResponse {
	tree := doc.Overrides
	if tree == nil {
		tree = settings.Tree{}
	}
	return overridesResponse{
		Overrides:  tree,
		Generation: doc.Generation,
		UpdatedBy:  doc.UpdatedBy,
		UpdatedAt:  doc.UpdatedAt,
	}
}

type setOverrideResponse struct {
	overridesResponse
	RestartRequired bool     `json:"restartRequired"`
	Derived         []string `json:"derived,omitempty"`
}

func newSetOverrideResponse(res overrides.SetResult) setOverrideResponse {
	return setOverrideResponse{
		overridesResponse: newOverridesResponse(res.Document),
		RestartRequired:   res.RestartRequired,
		Derived:           res.Derived,
	}
}

type schemaResponse struct {
	Keys []overrides.SchemaEntry `json:"keys"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
