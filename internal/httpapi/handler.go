package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hameed6991/queueless/internal/models"
	"github.com/hameed6991/queueless/internal/store"
)

type Handler struct {
	store store.TokenStore
}

type joinQueueRequest struct {
	BusinessID string `json:"business_id"`
	CustomerID string `json:"customer_id"`
}

type tokenActionRequest struct {
	BusinessID string `json:"business_id"`
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(store store.TokenStore) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/queue/join", h.handleJoinQueue)
	mux.HandleFunc("/api/queue/active", h.handleActiveToken)
	mux.HandleFunc("/api/queue/tokens", h.handleActiveTokens)
	mux.HandleFunc("/api/tokens/", h.handleTokenActions)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleJoinQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req joinQueueRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.CustomerID = strings.TrimSpace(req.CustomerID)

	if req.BusinessID == "" || req.CustomerID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "business_id and customer_id are required")
		return
	}
	if !isValidUUID(req.BusinessID) || !isValidUUID(req.CustomerID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "business_id and customer_id must be UUIDs")
		return
	}

	token, created, err := h.store.JoinQueue(r.Context(), store.JoinInput{
		BusinessID: req.BusinessID,
		CustomerID: req.CustomerID,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, token)
}

func (h *Handler) handleActiveToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	customerID := strings.TrimSpace(r.URL.Query().Get("customer_id"))
	if businessID == "" || customerID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "business_id and customer_id are required")
		return
	}
	if !isValidUUID(businessID) || !isValidUUID(customerID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "business_id and customer_id must be UUIDs")
		return
	}

	token, found, err := h.store.GetActiveToken(r.Context(), businessID, customerID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, token)
}

func (h *Handler) handleActiveTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	customerID := strings.TrimSpace(r.URL.Query().Get("customer_id"))
	if customerID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "customer_id is required")
		return
	}
	if !isValidUUID(customerID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "customer_id must be a UUID")
		return
	}

	tokens, err := h.store.ListActiveTokens(r.Context(), customerID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if tokens == nil {
		tokens = []models.Token{}
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) handleTokenActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/tokens/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[1] != "actions" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	tokenID := parts[0]
	action := parts[2]
	if !isValidUUID(tokenID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "token_id must be a UUID")
		return
	}

	var req tokenActionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	if req.BusinessID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "business_id is required")
		return
	}
	if !isValidUUID(req.BusinessID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "business_id must be a UUID")
		return
	}

	input := store.TokenActionInput{
		BusinessID: req.BusinessID,
		TokenID:    tokenID,
	}

	var (
		token models.Token
		err   error
	)
	switch action {
	case "request":
		token, err = h.store.RequestToken(r.Context(), input)
	case "arrive":
		token, err = h.store.ArriveToken(r.Context(), input)
	case "serve":
		token, err = h.store.ServeToken(r.Context(), input)
	case "cancel":
		token, err = h.store.CancelToken(r.Context(), input)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, token)
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrBusinessNotFound):
		return http.StatusNotFound, "business_not_found", "business not found"
	case errors.Is(err, store.ErrBusinessInactive):
		return http.StatusConflict, "business_inactive", "business is not accepting tokens"
	case errors.Is(err, store.ErrTokenNotFound):
		return http.StatusNotFound, "token_not_found", "token not found"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "token state does not allow this action"
	case errors.Is(err, store.ErrAllocationConflict):
		return http.StatusConflict, "allocation_conflict", "could not allocate a token number, retry"
	case errors.Is(err, store.ErrDependencyUnavailable):
		return http.StatusServiceUnavailable, "dependency_unavailable", "a backing service is unavailable"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
