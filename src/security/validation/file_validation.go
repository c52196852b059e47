package validation

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/matichattellino/euphoria-iva/src/logger"
)

var ErrValidationFailed = errors.New("file validation failed")

// AllowedClientContentTypes is a map for quick lookup of allowed client-declared MIME types.
// Portal downloads arrive either as the raw CSV or as the zip the portal serves.
var AllowedClientContentTypes = map[string]bool{
	"text/csv":                     true,
	"application/csv":              true,
	"application/vnd.ms-excel":     true, // Often used for CSV by older Excel
	"text/plain":                   true,
	"application/zip":              true,
	"application/x-zip-compressed": true,
	"application/octet-stream":     true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": false, // .xlsx is not a portal export
}

// allowedDetectedTypes are the signatures http.DetectContentType may report for a CSV or its zip.
var allowedDetectedTypes = map[string]bool{
	"text/plain":               true,
	"text/csv":                 true,
	"application/csv":          true,
	"application/zip":          true,
	"application/octet-stream": true,
}

// ValidateClientContentType checks the Content-Type header provided by the client.
// An empty header is accepted; content sniffing decides.
func ValidateClientContentType(contentType string) error {
	if contentType == "" {
		return nil
	}
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if allowed, exists := AllowedClientContentTypes[mediaType]; !exists || !allowed {
		logger.L.Warn().Str("contentType", contentType).Msg("Disallowed client-declared Content-Type")
		return fmt.Errorf("%w: client-declared file type '%s' is not allowed for invoice upload", ErrValidationFailed, contentType)
	}
	return nil
}

// ValidateFileContentByMagicBytes checks the actual file content signature (magic bytes)
// and rewinds the file. It returns the detected content type.
func ValidateFileContentByMagicBytes(file io.ReadSeeker) (string, error) {
	if file == nil {
		return "", fmt.Errorf("%w: file is nil", ErrValidationFailed)
	}

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read file for content type checking: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to reset file read pointer: %w", err)
	}
	if n == 0 {
		return "", fmt.Errorf("%w: file is empty", ErrValidationFailed)
	}

	detected := http.DetectContentType(buffer[:n])
	detected = strings.ToLower(strings.Split(detected, ";")[0])

	if !allowedDetectedTypes[detected] {
		logger.L.Warn().Str("detectedContentType", detected).Msg("Disallowed detected file content type (magic bytes)")
		return detected, fmt.Errorf("%w: detected file content type '%s' is not consistent with a CSV or zip file", ErrValidationFailed, detected)
	}

	logger.L.Debug().Str("detectedContentType", detected).Msg("File content type (magic bytes) validated")
	return detected, nil
}
