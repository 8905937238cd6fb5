package apiServer

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/i5heu/qrtile"
	"github.com/i5heu/qrtile/pkg/envelope"
	"github.com/i5heu/qrtile/pkg/reassemble"
)

func writeJSON(w http.ResponseWriter, status int, payload any) { // A
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeFailure maps a decode error to a status and a detailed body.
func decodeFailure(err error) (int, errorResponse) { // A
	resp := errorResponse{Error: err.Error()}

	var de *qrtile.DecodeError
	if !errors.As(err, &de) {
		return http.StatusInternalServerError, errorResponse{Error: http.StatusText(http.StatusInternalServerError)}
	}
	resp.Kind = de.Kind.String()
	resp.Stage = string(de.Stage)

	var (
		integrity  *envelope.IntegrityError
		incomplete *reassemble.IncompleteMessageError
		ambiguous  *reassemble.AmbiguousMessageError
	)
	switch {
	case errors.As(err, &integrity):
		resp.SHA256 = integrity.Expected
	case errors.As(err, &incomplete):
		resp.Missing = incomplete.Missing
		resp.Duplicates = incomplete.Duplicates
		resp.ConflictingTotals = incomplete.ConflictingTotals
	case errors.As(err, &ambiguous):
		resp.MessageIDs = ambiguous.MessageIDs
	}

	switch de.Kind {
	case qrtile.KindAuthentication:
		return http.StatusUnauthorized, resp
	case qrtile.KindIntegrity, qrtile.KindIncomplete, qrtile.KindAmbiguous, qrtile.KindParse:
		return http.StatusUnprocessableEntity, resp
	default:
		return http.StatusBadRequest, resp
	}
}

func WithLogger(logger *slog.Logger) Option { // HC
	return func(s *Server) {
		if logger != nil {
			s.log = logger
		}
	}
}

func WithMaxUpload(n int64) Option { // HC
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}
