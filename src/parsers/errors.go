package parsers

import "errors"

// ErrMissingEntry is returned when a compressed download holds no CSV entry.
var ErrMissingEntry = errors.New("no csv entry found in archive")
