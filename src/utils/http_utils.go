package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/matichattellino/euphoria-iva/src/logger"
)

// GenerateETag hashes the JSON representation of data.
func GenerateETag(data interface{}) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal data for ETag generation: %w", err)
	}
	return `"` + strconv.FormatUint(xxhash.Sum64(jsonData), 16) + `"`, nil
}

// SendJSONError writes {"error": message} with the given status.
func SendJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	logger.L.Warn().Str("message", message).Int("statusCode", statusCode).Msg("Sending JSON error to client")
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// SendJSON writes data as a JSON response.
func SendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.L.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
