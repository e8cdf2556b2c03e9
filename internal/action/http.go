package action

import (
	"encoding/json"
	"net/http"

	"github.com/dhandebaz/sangathan-sub001/internal/apperr"
)

// WriteJSON writes res with the status its outcome maps to. ok is used for
// successful results.
func WriteJSON[T any](w http.ResponseWriter, ok int, res Result[T]) {
	status := ok
	if !res.Success {
		status = http.StatusInternalServerError
		if res.Error != nil {
			status = apperr.HTTPStatus(res.Error.Kind)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(res)
}
