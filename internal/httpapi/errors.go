package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"tasktrack.dev/internal/auth"
	"tasktrack.dev/internal/tasks"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	return v, nil
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// writeAuthError adds the Bearer challenge required on 401 and 403.
func writeAuthError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	challenge := `Bearer realm="tasktrack"`
	switch code {
	case http.StatusUnauthorized:
		challenge += `, error="invalid_token"`
	case http.StatusForbidden:
		challenge += `, error="insufficient_scope"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	writeError(w, r, code, msg)
}

// detail strips the sentinel prefix so clients see "email already in use"
// rather than "auth: already exists: email already in use".
func detail(err, sentinel error, fallback string) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return fallback
}

func (a *API) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, detail(err, auth.ErrInvalidInput, "invalid input"))
	case errors.Is(err, auth.ErrUnauthorized):
		writeAuthError(w, r, http.StatusUnauthorized, detail(err, auth.ErrUnauthorized, "unauthorized"))
	case errors.Is(err, auth.ErrForbidden):
		writeAuthError(w, r, http.StatusForbidden, detail(err, auth.ErrForbidden, "forbidden"))
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "user not found")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, detail(err, auth.ErrConflict, "already exists"))
	default:
		a.internalError(w, r, err)
	}
}

func (a *API) handleTaskError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tasks.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, detail(err, tasks.ErrInvalidInput, "invalid input"))
	case errors.Is(err, auth.ErrUnauthorized):
		writeAuthError(w, r, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, tasks.ErrForbidden):
		writeAuthError(w, r, http.StatusForbidden, detail(err, tasks.ErrForbidden, "forbidden"))
	case errors.Is(err, tasks.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "task not found")
	case errors.Is(err, tasks.ErrTerminalState):
		writeError(w, r, http.StatusConflict, "completed tasks cannot be edited")
	default:
		a.internalError(w, r, err)
	}
}

func (a *API) internalError(w http.ResponseWriter, r *http.Request, err error) {
	a.log.WithError(err).WithField("request_id", RequestIDFromContext(r.Context())).Error("request failed")
	writeError(w, r, http.StatusInternalServerError, "internal error")
}
