package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tasktrack.dev/internal/audit"
	"tasktrack.dev/internal/auth"
	"tasktrack.dev/internal/ids"
)

type updateUserRequest struct {
	Status string `json:"status"`
}

type deleteUserResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	acc, err := a.accounts.Profile(r.Context(), p)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, err := parsePositiveInt(q.Get("page"), 1, 1, 1<<20)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "page must be an integer")
		return
	}
	limit, err := parsePositiveInt(q.Get("limit"), 10, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be an integer")
		return
	}

	res, err := a.accounts.List(r.Context(), p, auth.ListQuery{
		Page:   page,
		Limit:  limit,
		Status: q.Get("status"),
	})
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !ids.Valid(id) {
		writeError(w, r, http.StatusNotFound, "user not found")
		return
	}
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	acc, err := a.accounts.SetStatus(r.Context(), p, id, req.Status)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.status_changed", map[string]any{
		"account_id": acc.ID,
		"status":     string(acc.Status),
	})
	writeJSON(w, http.StatusOK, acc)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !ids.Valid(id) {
		writeError(w, r, http.StatusNotFound, "user not found")
		return
	}

	acc, err := a.accounts.SoftDelete(r.Context(), p, id)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.deactivated", map[string]any{"account_id": acc.ID})
	writeJSON(w, http.StatusOK, deleteUserResponse{
		Message: "User soft-deleted (set to inactive)",
		UserID:  acc.ID,
	})
}
