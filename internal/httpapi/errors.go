package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"abroadguide.org/internal/audit"
	"abroadguide.org/internal/auth"
	"abroadguide.org/internal/obs"
)

// fail maps a service error onto the response. Authentication and
// authorization failures carry fixed messages so that callers cannot tell
// their causes apart.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		writeUnauthenticated(w, r, "unauthenticated")
	case errors.Is(err, auth.ErrForbidden):
		reason, _ := auth.DenyReasonOf(err)
		_ = audit.LogEvent(r.Context(), audit.EventAuthzDenied, map[string]any{
			"reason": string(reason),
			"method": r.Method,
			"path":   r.URL.Path,
		})
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, auth.ErrInvalidRole):
		writeError(w, r, http.StatusBadRequest, publicMessage(err))
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, "already exists")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	default:
		obs.Error("request failed", err, map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"path":       r.URL.Path,
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// publicMessage strips package prefixes from validation errors.
func publicMessage(err error) string {
	return strings.ReplaceAll(err.Error(), "auth: ", "")
}

func writeUnauthenticated(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="abroadguide"`)
	writeError(w, r, http.StatusUnauthorized, msg)
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

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads exactly one JSON object with no unknown fields. The body
// size is bounded by the MaxBodyBytes middleware.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
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

func badRequest(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, r, http.StatusBadRequest, err.Error())
}
