package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/clothes-api/internal/middleware"
	"github.com/vyrodovalexey/clothes-api/internal/model"
	"github.com/vyrodovalexey/clothes-api/internal/pagination"
	"github.com/vyrodovalexey/clothes-api/internal/store"
)

// Version is the application version.
const Version = "1.0.0"

// MaxBodyBytes caps the size of create and replace request bodies.
const MaxBodyBytes = 1 << 20

// Route paths.
const (
	CollectionPath = "/clothes"
	RecordPath     = "/clothes/{id}"
	HealthPath     = "/health"
	ReadyPath      = "/ready"
)

// RESTHandler handles REST API requests for clothes.
type RESTHandler struct {
	store  store.Store
	logger *zap.Logger
}

// NewRESTHandler creates a new RESTHandler instance.
func NewRESTHandler(s store.Store, logger *zap.Logger) *RESTHandler {
	return &RESTHandler{
		store:  s,
		logger: logger,
	}
}

// RegisterRoutes registers the REST API routes with the router.
func (h *RESTHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc(HealthPath, h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc(ReadyPath, h.ReadyCheck).Methods(http.MethodGet)
	router.HandleFunc(CollectionPath, h.ListClothes).Methods(http.MethodGet)
	router.HandleFunc(CollectionPath, h.CreateClothing).Methods(http.MethodPost)
	router.HandleFunc(RecordPath, h.GetClothing).Methods(http.MethodGet)
	router.HandleFunc(RecordPath, h.UpdateClothing).Methods(http.MethodPut)
	router.HandleFunc(RecordPath, h.DeleteClothing).Methods(http.MethodDelete)
}

// HealthCheck handles GET /health requests.
func (h *RESTHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	response := HealthResponse{
		Status:  "healthy",
		Version: Version,
	}
	h.writeJSON(w, http.StatusOK, response)
}

// ReadyCheck handles GET /ready requests. The service is ready when the
// backing document can be loaded.
func (h *RESTHandler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", zap.Error(err))
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not ready"})
		return
	}

	h.writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready"})
}

// ListClothes handles GET /clothes?page=P&perPage=N requests.
func (h *RESTHandler) ListClothes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, perPage, err := pagination.ParseParams(r.URL.Query())
	if err != nil {
		h.logger.Warn("invalid pagination parameters", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.store.List(ctx)
	if err != nil {
		h.handleStoreError(w, r, err, "list clothes")
		return
	}

	result, err := pagination.Paginate(items, page, perPage)
	if err != nil {
		h.handleStoreError(w, r, err, "paginate clothes")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// GetClothing handles GET /clothes/{id} requests.
func (h *RESTHandler) GetClothing(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.handleStoreError(w, r, err, "get clothing")
		return
	}

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.handleStoreError(w, r, err, "get clothing")
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

// CreateClothing handles POST /clothes requests.
func (h *RESTHandler) CreateClothing(w http.ResponseWriter, r *http.Request) {
	fields, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	rec, err := h.store.Create(r.Context(), fields)
	if err != nil {
		h.handleStoreError(w, r, err, "create clothing")
		return
	}

	h.writeJSON(w, http.StatusCreated, rec)
}

// UpdateClothing handles PUT /clothes/{id} requests.
func (h *RESTHandler) UpdateClothing(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.handleStoreError(w, r, err, "update clothing")
		return
	}

	fields, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	rec, err := h.store.Update(r.Context(), id, fields)
	if err != nil {
		h.handleStoreError(w, r, err, "update clothing")
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

// DeleteClothing handles DELETE /clothes/{id} requests.
func (h *RESTHandler) DeleteClothing(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.handleStoreError(w, r, err, "delete clothing")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.handleStoreError(w, r, err, "delete clothing")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// decodeInput reads and validates a record body. On failure it has already
// written the response.
func (h *RESTHandler) decodeInput(w http.ResponseWriter, r *http.Request) (model.Fields, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	var input model.RecordInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return model.Fields{}, false
	}

	if err := input.Validate(); err != nil {
		h.logger.Warn("validation failed", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, err.Error())
		return model.Fields{}, false
	}

	return input.Fields(), true
}

// parseID reads the {id} path variable as a positive integer.
func parseID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("id %q: %w", raw, store.ErrInvalidID)
	}

	return id, nil
}

// handleStoreError handles store errors and writes appropriate HTTP responses.
func (h *RESTHandler) handleStoreError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
		zap.Error(err),
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		h.logger.Debug("record not found", fields...)
		h.writeError(w, http.StatusNotFound, "item not found")
	case errors.Is(err, store.ErrInvalidID):
		h.logger.Warn("invalid record id", fields...)
		h.writeError(w, http.StatusBadRequest, "invalid item ID")
	case errors.Is(err, store.ErrIDExhausted):
		h.logger.Error("no record ID left to assign", fields...)
		h.writeError(w, http.StatusInsufficientStorage, "no item ID left to assign")
	case errors.Is(err, pagination.ErrInvalidParameter):
		h.logger.Warn("invalid parameter", fields...)
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("store operation failed", fields...)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeJSON writes a JSON response with the given status code.
func (h *RESTHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError writes an error response with the given status code and message.
func (h *RESTHandler) writeError(w http.ResponseWriter, status int, message string) {
	response := model.ErrorResponse{
		Code:    status,
		Message: message,
	}
	h.writeJSON(w, status, response)
}
