// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fieldtrack/fieldsync/internal/auth"
)

// Handlers exposes the per-table CRUD routes the remote adapter consumes.
type Handlers struct {
	store  Store
	jwt    *JWTAuth
	logger *slog.Logger
}

// NewHandlers builds the handler set over store with jwt authentication.
func NewHandlers(store Store, jwtAuth *JWTAuth, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{store: store, jwt: jwtAuth, logger: logger}
}

// Mux returns the route table:
//
//	HEAD/GET /healthz               liveness probe (unauthenticated)
//	GET      /rest/v1/{table}       select (owner scoped, ?updated_at=gt.T)
//	POST     /rest/v1/{table}       insert
//	PATCH    /rest/v1/{table}?id=eq.X  update
//	DELETE   /rest/v1/{table}?id=eq.X  delete
func (h *Handlers) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /rest/v1/{table}", h.authenticated(h.handleSelect))
	mux.HandleFunc("POST /rest/v1/{table}", h.authenticated(h.handleInsert))
	mux.HandleFunc("PATCH /rest/v1/{table}", h.authenticated(h.handleUpdate))
	mux.HandleFunc("DELETE /rest/v1/{table}", h.authenticated(h.handleDelete))
	return mux
}

func (h *Handlers) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := h.jwt.FromRequest(r)
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
			return
		}
		ctx := auth.SetUserID(r.Context(), claims.Subject)
		ctx = auth.SetDeviceID(ctx, claims.DeviceID)
		next(w, r.WithContext(ctx))
	}
}

func (h *Handlers) handleSelect(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	userID, _ := auth.GetUserID(r.Context())

	updatedAfter := stripOp(r.URL.Query().Get("updated_at"), "gt.")
	rows, err := h.store.Select(r.Context(), table, userID, updatedAfter)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	h.writeJSON(w, http.StatusOK, rows)
}

func (h *Handlers) handleInsert(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	userID, _ := auth.GetUserID(r.Context())

	var row map[string]any
	if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse row payload")
		return
	}
	if err := h.store.Insert(r.Context(), table, userID, row); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handlers) handleUpdate(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	userID, _ := auth.GetUserID(r.Context())

	rowID := stripOp(r.URL.Query().Get("id"), "eq.")
	if rowID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "id=eq.<uuid> filter required")
		return
	}
	var row map[string]any
	if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse row payload")
		return
	}
	if err := h.store.Update(r.Context(), table, userID, rowID, row); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleDelete(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	userID, _ := auth.GetUserID(r.Context())

	rowID := stripOp(r.URL.Query().Get("id"), "eq.")
	if rowID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "id=eq.<uuid> filter required")
		return
	}
	if err := h.store.Delete(r.Context(), table, userID, rowID); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeStoreError translates store sentinels into the HTTP statuses and
// body codes the adapter classifies on.
func (h *Handlers) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrUnknownTable):
		h.writeError(w, http.StatusNotFound, "unknown_table", err.Error())
	case errors.Is(err, ErrRowNotFound):
		h.writeError(w, http.StatusNotFound, "PGRST116", err.Error())
	case errors.Is(err, ErrDuplicateKey):
		h.writeError(w, http.StatusConflict, "23505", err.Error())
	case errors.Is(err, ErrBadColumn):
		h.writeError(w, http.StatusBadRequest, "invalid_column", err.Error())
	default:
		h.logger.Error("store operation failed", "path", r.URL.Path, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "operation failed")
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    code,
		"message": message,
	})
}

func stripOp(value, op string) string {
	if value == "" {
		return ""
	}
	if len(value) > len(op) && value[:len(op)] == op {
		return value[len(op):]
	}
	return value
}
