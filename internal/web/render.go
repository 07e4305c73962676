package web

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hpungsan/draftkeep/internal/errors"
)

// renderError writes a JSON error body. Internal details are logged, never sent.
func renderError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var dErr *errors.DraftError
	if !stderrors.As(err, &dErr) {
		dErr = errors.NewInternal(err)
	}
	if dErr.Code == errors.ErrInternal {
		log.Error().Interface("details", dErr.Details).Msg("request failed")
	}

	body := map[string]any{
		"code":    string(dErr.Code),
		"message": dErr.Message,
		"status":  dErr.Status,
	}
	if dErr.Code != errors.ErrInternal && dErr.Details != nil {
		body["details"] = dErr.Details
	}
	renderJSON(w, dErr.Status, map[string]any{"error": body})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// wantsJSON reports whether the client asked for JSON rather than a page.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}
