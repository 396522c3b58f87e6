// Package shared centralizes JSON response and error envelope writing so all
// handler packages speak the same wire dialect.
package shared

import (
	"encoding/json"
	"net/http"

	dErrors "aegis/pkg/domain-errors"
)

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError translates a domain error into the JSON error envelope. Unknown
// errors collapse to internal_error so internals never leak to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(dErrors.HTTPStatus(code))
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   string(code),
		"message": dErrors.MessageOf(err),
	})
}
