package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	ics "github.com/arran4/remindav"
	"github.com/arran4/remindav/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, env map[string]string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	a := &app{stdout: &stdout, stderr: &stderr, getenv: func(k string) string { return env[k] }}
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestNewPrintsCalendar(t *testing.T) {
	out, err := run(t, nil, "new", "Buy milk, eggs", "--due", "20240601")
	require.NoError(t, err)

	cal, err := ics.ParseCalendarString(out)
	require.NoError(t, err)
	prod, err := cal.Property("PRODID")
	require.NoError(t, err)
	assert.Equal(t, prodID, prod.Value)

	todos := cal.Todos()
	require.Len(t, todos, 1)
	assert.Equal(t, "Buy milk, eggs", todos[0].SummaryText())
	due, ok := todos[0].Due.Get()
	require.True(t, ok)
	assert.True(t, due.AllDay)
	assert.Equal(t, "20240601", due.Serialize())
}

func TestNewWithTimedDue(t *testing.T) {
	out, err := run(t, nil, "new", "Call", "--due", "20240601T090000Z")
	require.NoError(t, err)
	assert.Contains(t, out, "DUE:20240601T090000Z\r\n")
}

func TestNewRejectsBadDue(t *testing.T) {
	_, err := run(t, nil, "new", "Call", "--due", "tomorrow")
	assert.ErrorIs(t, err, ics.ErrInvalidValue)
}

func TestCommandsNeedServerSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	for _, args := range [][]string{{"calendars"}, {"list"}, {"search", "x"}, {"show", "uid"}} {
		_, err := run(t, nil, append(args, "--config", path)...)
		assert.ErrorIs(t, err, config.ErrInvalid, "%v", args)
	}

	_, err := run(t, map[string]string{config.EnvUsername: "alice"}, "list", "--config", path, "--url", "dav.example.com")
	assert.ErrorIs(t, err, config.ErrInvalid, "relative URL")
}

func TestWatchRejectsTinyInterval(t *testing.T) {
	_, err := run(t, nil, "watch", "--every", "10ms")
	assert.Error(t, err)
}

func TestFormatDue(t *testing.T) {
	at := time.Date(2024, 6, 1, 9, 5, 0, 0, time.UTC)
	assert.Equal(t, "2024-06-01", formatDue(true, at))
	assert.Equal(t, "2024-06-01 09:05", formatDue(false, at))
}
