package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// writeJSONError writes a {code, message} error body with the correct Content-Type.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": strconv.Itoa(status), "message": msg})
}
