package models

import "time"

type ScraperStatus string

const (
	ScraperIdle    ScraperStatus = "idle"
	ScraperRunning ScraperStatus = "running"
	ScraperDone    ScraperStatus = "done"
	ScraperError   ScraperStatus = "error"
)

// ScraperState describes the latest portal scrape. Values handed out by the
// supervisor are copies; mutating them has no effect on the supervisor.
type ScraperState struct {
	RunID      string        `json:"runId,omitempty"`
	Status     ScraperStatus `json:"status"`
	Period     string        `json:"periodo,omitempty"`
	DateFrom   string        `json:"fechaDesde,omitempty"`
	DateTo     string        `json:"fechaHasta,omitempty"`
	StartedAt  *time.Time    `json:"startedAt"`
	FinishedAt *time.Time    `json:"finishedAt"`
	Error      string        `json:"error,omitempty"`
	Output     []string      `json:"output"`
}

// Clone returns a deep copy.
func (s ScraperState) Clone() ScraperState {
	out := s
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		out.FinishedAt = &t
	}
	out.Output = append(make([]string, 0, len(s.Output)), s.Output...)
	return out
}
