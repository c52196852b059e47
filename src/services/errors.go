package services

import (
	"errors"
	"fmt"
)

var (
	ErrRemoteTimeout  = errors.New("remote automation did not finish within the polling budget")
	ErrAlreadyRunning = errors.New("a scraper run is already in progress")
	ErrPeriodNotFound = errors.New("no data available for period")
	ErrInvalidPeriod  = errors.New("invalid period, expected YYYY-MM")
	ErrInvalidInput   = errors.New("invalid input")
)

// RemoteTransportError is a non-2xx answer or a network failure while talking
// to the automation service. StatusCode is 0 when no response was received.
type RemoteTransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteTransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: automation service unreachable: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: automation service returned %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *RemoteTransportError) Unwrap() error {
	return e.Err
}

// RemoteJobFailed is a job the automation service reported as failed.
type RemoteJobFailed struct {
	JobID  string
	Detail string
}

func (e *RemoteJobFailed) Error() string {
	return fmt.Sprintf("automation job %s failed: %s", e.JobID, e.Detail)
}

// ProcessSpawnError means the scraper process could not be started.
type ProcessSpawnError struct {
	Command string
	Err     error
}

func (e *ProcessSpawnError) Error() string {
	return fmt.Sprintf("failed to start scraper %q: %v", e.Command, e.Err)
}

func (e *ProcessSpawnError) Unwrap() error {
	return e.Err
}

// ProcessExitError is a scraper process that ended with a non-zero exit code.
type ProcessExitError struct {
	ExitCode int
}

func (e *ProcessExitError) Error() string {
	return fmt.Sprintf("scraper exited with code %d", e.ExitCode)
}
