package services

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/matichattellino/euphoria-iva/src/logger"
	"github.com/matichattellino/euphoria-iva/src/models"
	"github.com/matichattellino/euphoria-iva/src/utils"
)

var periodFilePattern = regexp.MustCompile(`^(\d{4}-\d{2})_(emitidos|recibidos)\.csv$`)

// PeriodFiles is the on-disk layout shared with the scraper: one file per
// period and direction, named {period}_{emitidos|recibidos}.csv.
type PeriodFiles struct {
	dir string
}

func NewPeriodFiles(dir string) *PeriodFiles {
	return &PeriodFiles{dir: dir}
}

func (f *PeriodFiles) Dir() string {
	return f.dir
}

func (f *PeriodFiles) Path(period string, direction models.Direction) string {
	return filepath.Join(f.dir, fmt.Sprintf("%s_%s.csv", period, direction.FileToken()))
}

// Exists reports whether the file for one direction of a period is present.
func (f *PeriodFiles) Exists(period string, direction models.Direction) bool {
	info, err := os.Stat(f.Path(period, direction))
	return err == nil && info.Mode().IsRegular()
}

// HasAny reports whether at least one direction of the period is on disk.
func (f *PeriodFiles) HasAny(period string) bool {
	return f.Exists(period, models.DirectionIssued) || f.Exists(period, models.DirectionReceived)
}

// Save writes content under the naming convention, replacing any previous file.
func (f *PeriodFiles) Save(period string, direction models.Direction, content []byte) (string, error) {
	if !utils.ValidPeriod(period) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create csv directory %s: %w", f.dir, err)
	}
	path := f.Path(period, direction)
	tmp, err := os.CreateTemp(f.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file in %s: %w", f.dir, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move upload to %s: %w", path, err)
	}
	logger.L.Info().Str("file", filepath.Base(path)).Str("size", humanize.Bytes(uint64(len(content)))).Msg("Saved period file")
	return path, nil
}

// Periods lists the periods with at least one file on disk, newest first.
func (f *PeriodFiles) Periods() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", f.dir, err)
	}

	seen := make(map[string]bool)
	periods := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := periodFilePattern.FindStringSubmatch(e.Name())
		if m == nil || seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		periods = append(periods, m[1])
	}
	sort.Sort(sort.Reverse(sort.StringSlice(periods)))
	return periods, nil
}
