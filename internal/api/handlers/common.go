package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/dhandebaz/sangathan-sub001/internal/apperr"
	"github.com/dhandebaz/sangathan-sub001/internal/auth"
)

const maxBodyBytes = 1 << 20

var errTooManyRequests = apperr.New(apperr.KindUnavailable, "too many requests, please try again later")

func token(r *http.Request) string {
	return auth.TokenFromContext(r.Context())
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		return apperr.Validation("body", "invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
