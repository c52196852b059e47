package parsers

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/matichattellino/euphoria-iva/src/logger"
)

// RawRow is one CSV or remote record keyed by its original column name.
// Values are kept exactly as text; the normalizer interprets them.
type RawRow map[string]string

var (
	zipMagic = []byte("PK\x03\x04")
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
)

const fieldDelimiter = ';'

// DecodeFile reads a portal download from disk. Downloads may arrive zipped;
// in that case the first .csv entry is extracted and written back over path so
// later reads see plain text.
func DecodeFile(path string) ([]RawRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	text, wasArchive, err := unwrapArchive(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if wasArchive {
		if err := os.WriteFile(path, text, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write extracted csv to %s: %w", path, err)
		}
		logger.L.Info().
			Str("file", filepath.Base(path)).
			Str("archiveSize", humanize.Bytes(uint64(len(data)))).
			Str("csvSize", humanize.Bytes(uint64(len(text)))).
			Msg("Extracted csv from zip download")
	}

	rows, err := parseDelimited(text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.L.Debug().Str("file", filepath.Base(path)).Int("rows", len(rows)).
		Str("size", humanize.Bytes(uint64(len(text)))).Msg("Decoded csv file")
	return rows, nil
}

// Decode is DecodeFile for content that is not on disk. Archives are unwrapped
// but nothing is written back.
func Decode(r io.Reader) ([]RawRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv content: %w", err)
	}
	text, _, err := unwrapArchive(data)
	if err != nil {
		return nil, err
	}
	return parseDelimited(text)
}

// IsArchive reports whether data starts with the zip local file header signature.
func IsArchive(data []byte) bool {
	return bytes.HasPrefix(data, zipMagic)
}

func unwrapArchive(data []byte) ([]byte, bool, error) {
	if !IsArchive(data) {
		return data, false, nil
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, true, fmt.Errorf("failed to open zip archive: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, true, fmt.Errorf("failed to open zip entry %s: %w", f.Name, err)
		}
		text, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, true, fmt.Errorf("failed to extract zip entry %s: %w", f.Name, err)
		}
		return text, true, nil
	}
	return nil, true, ErrMissingEntry
}

func parseDelimited(data []byte) ([]RawRow, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = fieldDelimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return []RawRow{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	rows := []RawRow{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				logger.L.Warn().Err(err).Msg("Skipping malformed csv record")
				continue
			}
			return nil, fmt.Errorf("failed to read csv record: %w", err)
		}
		if isBlankRecord(record) {
			continue
		}

		row := make(RawRow, len(header))
		for i, name := range header {
			if _, dup := row[name]; dup {
				continue
			}
			if i < len(record) {
				row[name] = record[i]
			} else {
				row[name] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isBlankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
