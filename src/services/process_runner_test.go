package services

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectLines() (func(string), func() []string) {
	var mu sync.Mutex
	var lines []string
	return func(line string) {
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
		}, func() []string {
			mu.Lock()
			defer mu.Unlock()
			return append([]string{}, lines...)
		}
}

func TestExecRunner(t *testing.T) {
	t.Run("delivers stdout and stderr before wait returns", func(t *testing.T) {
		onLine, lines := collectLines()
		proc, err := NewExecRunner().Start(ProcessSpec{
			Command: "sh",
			Args:    []string{"-c", "echo out; echo err >&2; echo; echo $GREETING"},
			Env:     []string{"GREETING=hola"},
		}, onLine)
		require.NoError(t, err)

		code, err := proc.Wait()
		require.NoError(t, err)
		assert.Equal(t, 0, code)
		assert.ElementsMatch(t, []string{"out", "err", "hola"}, lines())
	})

	t.Run("reports exit code", func(t *testing.T) {
		proc, err := NewExecRunner().Start(ProcessSpec{Command: "sh", Args: []string{"-c", "exit 7"}}, func(string) {})
		require.NoError(t, err)

		code, err := proc.Wait()
		require.NoError(t, err)
		assert.Equal(t, 7, code)
	})

	t.Run("long lines are delivered whole", func(t *testing.T) {
		onLine, lines := collectLines()
		proc, err := NewExecRunner().Start(ProcessSpec{
			Command: "sh",
			Args:    []string{"-c", "head -c 100000 /dev/zero | tr '\\0' x; echo"},
		}, onLine)
		require.NoError(t, err)

		_, err = proc.Wait()
		require.NoError(t, err)
		require.Len(t, lines(), 1)
		assert.Equal(t, strings.Repeat("x", 100000), lines()[0])
	})

	t.Run("missing command", func(t *testing.T) {
		_, err := NewExecRunner().Start(ProcessSpec{Command: "/nonexistent/binary"}, func(string) {})
		var spawnErr *ProcessSpawnError
		assert.True(t, errors.As(err, &spawnErr))
	})
}
