package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"siashare-go/internal/model"
	"siashare-go/internal/share"
)

// errorStatus maps a service error to its HTTP status and public message.
// Internal detail never reaches the response body.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, share.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, share.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, share.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, share.ErrFileUnavailable):
		return http.StatusNotFound, "file unavailable"
	case errors.Is(err, share.ErrRangeNotSatisfiable):
		return http.StatusRequestedRangeNotSatisfiable, "range not satisfiable"
	case errors.Is(err, share.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "file unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "request_id", requestIDFromContext(r.Context()), "error", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, model.Error{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return errors.Join(share.ErrInvalidRequest, err)
	}
	return nil
}
