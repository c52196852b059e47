package validation

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateClientContentType(t *testing.T) {
	for _, ct := range []string{"", "text/csv", "text/csv; charset=utf-8", "application/zip", "application/octet-stream"} {
		assert.NoError(t, ValidateClientContentType(ct), ct)
	}
	for _, ct := range []string{"image/png", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"} {
		err := ValidateClientContentType(ct)
		assert.True(t, errors.Is(err, ErrValidationFailed), ct)
	}
}

func TestValidateFileContentByMagicBytes(t *testing.T) {
	t.Run("csv text is accepted and rewound", func(t *testing.T) {
		file := bytes.NewReader([]byte("Fecha;Tipo;IVA\n01/01/2026;1;21,00\n"))

		detected, err := ValidateFileContentByMagicBytes(file)
		require.NoError(t, err)
		assert.Equal(t, "text/plain", detected)

		rest, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "Fecha;Tipo;IVA\n01/01/2026;1;21,00\n", string(rest))
	})

	t.Run("zip is accepted", func(t *testing.T) {
		detected, err := ValidateFileContentByMagicBytes(bytes.NewReader([]byte("PK\x03\x04rest-of-archive")))
		require.NoError(t, err)
		assert.Equal(t, "application/zip", detected)
	})

	t.Run("images are rejected", func(t *testing.T) {
		png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
		detected, err := ValidateFileContentByMagicBytes(bytes.NewReader(png))
		assert.True(t, errors.Is(err, ErrValidationFailed))
		assert.Equal(t, "image/png", detected)
	})

	t.Run("empty file is rejected", func(t *testing.T) {
		_, err := ValidateFileContentByMagicBytes(bytes.NewReader(nil))
		assert.True(t, errors.Is(err, ErrValidationFailed))
	})
}
