package services

import (
	"bufio"
	"errors"
	"io"
	"os/exec"
	"sync"
)

const maxLineSize = 1024 * 1024

// ProcessSpec describes one external process invocation.
type ProcessSpec struct {
	Command string
	Args    []string
	Dir     string
	Env     []string
}

// ProcessRunner starts external processes. Every stdout and stderr line is
// passed to onLine as it arrives.
type ProcessRunner interface {
	Start(spec ProcessSpec, onLine func(line string)) (RunningProcess, error)
}

// RunningProcess is a started process. Wait returns once the process has
// exited and all of its output has been delivered.
type RunningProcess interface {
	Wait() (exitCode int, err error)
}

type execRunner struct{}

func NewExecRunner() ProcessRunner {
	return execRunner{}
}

func (execRunner) Start(spec ProcessSpec, onLine func(line string)) (RunningProcess, error) {
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &ProcessSpawnError{Command: spec.Command, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &ProcessSpawnError{Command: spec.Command, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &ProcessSpawnError{Command: spec.Command, Err: err}
	}

	p := &execProcess{cmd: cmd}
	p.readers.Add(2)
	go p.consume(stdout, onLine)
	go p.consume(stderr, onLine)
	return p, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	readers sync.WaitGroup
}

func (p *execProcess) consume(r io.Reader, onLine func(string)) {
	defer p.readers.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			onLine(line)
		}
	}
	// Keep draining after an oversized line so the child never blocks on a full pipe.
	if scanner.Err() != nil {
		_, _ = io.Copy(io.Discard, r)
	}
}

func (p *execProcess) Wait() (int, error) {
	// Pipes must be fully read before cmd.Wait closes them.
	p.readers.Wait()
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
