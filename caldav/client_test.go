package caldav

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"

	"github.com/arran4/remindav/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, f *fakeServer) *Client {
	t.Helper()
	c, err := New(context.Background(), f.URL+"/", testUser, testPassword, f.Client(), logging.Discard())
	require.NoError(t, err)
	f.reset()
	return c
}

func TestNewDiscoversTodoCalendars(t *testing.T) {
	f := newFakeServer(t)
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	c, err := New(context.Background(), f.URL+"/", testUser, testPassword, f.Client(), logger)
	require.NoError(t, err)

	assert.Equal(t, f.URL+"/principals/alice/", c.Principal())
	assert.Equal(t, f.URL+"/calendars/alice/", c.Home())

	cals := c.Calendars()
	require.Len(t, cals, 2)

	tasks := cals[0]
	assert.Equal(t, f.URL+"/calendars/alice/tasks/", tasks.URL())
	assert.Equal(t, "Tasks", tasks.Name())
	assert.Equal(t, "ctag-1", tasks.CTag())
	assert.Equal(t, "Things to do", tasks.Description())
	assert.Equal(t, "#FF2968FF", tasks.Color())
	assert.True(t, tasks.Metadata().SupportsTodo)
	assert.Nil(t, tasks.CurrentSnapshot())
	assert.Nil(t, tasks.PastSnapshot())

	chores := cals[1]
	assert.Equal(t, "chores", chores.Name(), "name falls back to the collection path")
	assert.Equal(t, DefaultColor, chores.Color())

	assert.Same(t, tasks, c.Calendar("Tasks"))
	assert.Same(t, tasks, c.Calendar("tasks"))
	assert.Nil(t, c.Calendar("Events"))

	reqs := f.recorded()
	require.Len(t, reqs, 3)
	assert.Equal(t, []string{"/", "/principals/alice/", "/calendars/alice/"}, []string{reqs[0].Path, reqs[1].Path, reqs[2].Path})
	assert.Equal(t, []string{"0", "0", "1"}, []string{reqs[0].Depth, reqs[1].Depth, reqs[2].Depth})
	for _, r := range reqs {
		assert.Equal(t, "PROPFIND", r.Method)
		assert.Equal(t, "application/xml", r.ContentType)
		assert.Equal(t, testUser, r.User)
		assert.Equal(t, testPassword, r.Password)
	}
	assert.Contains(t, reqs[2].Body, "<cs:getctag/>")
	assert.Contains(t, logs.String(), "caldav request")
}

func TestDiscoveryErrors(t *testing.T) {
	testCases := []struct {
		name   string
		key    string
		status int
		body   string
		op     string
		is     error
	}{
		{name: "principal status", key: "PROPFIND /", status: http.StatusNotFound, op: OpPrincipal, is: ErrUnexpectedStatus},
		{name: "principal not xml", key: "PROPFIND /", status: http.StatusMultiStatus, body: "<html", op: OpPrincipal},
		{name: "principal missing", key: "PROPFIND /", status: http.StatusMultiStatus, body: multistatus(response("/", ok(""))), op: OpPrincipal, is: ErrMissingNode},
		{name: "home set missing href", key: "PROPFIND /principals/alice/", status: http.StatusMultiStatus,
			body: multistatus(response("/principals/alice/", ok(`<c:calendar-home-set/>`))), op: OpHomeSet, is: ErrMissingNode},
		{name: "not multistatus", key: "PROPFIND /calendars/alice/", status: http.StatusMultiStatus, body: `<d:error xmlns:d="DAV:"/>`, op: OpCalendarList, is: ErrMissingNode},
		{name: "calendar list status", key: "PROPFIND /calendars/alice/", status: http.StatusInternalServerError, op: OpCalendarList, is: ErrUnexpectedStatus},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeServer(t)
			f.override(tc.key, tc.status, tc.body)

			_, err := New(context.Background(), f.URL+"/", testUser, testPassword, f.Client())
			var pe *ProtocolError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tc.op, pe.Op)
			if tc.is != nil {
				assert.ErrorIs(t, err, tc.is)
			}
			if tc.status >= 300 {
				assert.Equal(t, tc.status, pe.Status)
			}
		})
	}
}

func TestWrongCredentials(t *testing.T) {
	f := newFakeServer(t)
	_, err := New(context.Background(), f.URL+"/", testUser, "nope", f.Client())
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusUnauthorized, pe.Status)
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(context.Background(), "/relative", testUser, testPassword)
	assert.Error(t, err)

	_, err = New(context.Background(), "https://example.com/", testUser, testPassword, 42)
	assert.Error(t, err)
}

func TestCancelledContext(t *testing.T) {
	f := newFakeServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(ctx, f.URL+"/", testUser, testPassword, f.Client())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestAbsoluteHrefsAreKept(t *testing.T) {
	f := newFakeServer(t)
	f.override("PROPFIND /principals/alice/", http.StatusMultiStatus, multistatus(response("/principals/alice/",
		ok(`<c:calendar-home-set><d:href>`+f.URL+`/calendars/alice/</d:href></c:calendar-home-set>`))))
	c := newTestClient(t, f)
	assert.Equal(t, f.URL+"/calendars/alice/", c.Home())
}

func TestRefreshCalendar(t *testing.T) {
	f := newFakeServer(t)
	c := newTestClient(t, f)
	tasks := c.Calendar("Tasks")

	changed, err := c.RefreshCalendar(context.Background(), tasks)
	require.NoError(t, err)
	assert.False(t, changed)

	f.setCTag("ctag-2")
	changed, err = c.RefreshCalendar(context.Background(), tasks)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "ctag-2", tasks.CTag())

	f.setCTag("")
	changed, err = c.RefreshCalendar(context.Background(), tasks)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = c.RefreshCalendar(context.Background(), tasks)
	require.NoError(t, err)
	assert.True(t, changed, "no ctag is always a change")

	f.override("PROPFIND /calendars/alice/tasks/", http.StatusBadGateway, "")
	_, err = c.RefreshCalendar(context.Background(), tasks)
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, OpRefresh, pe.Op)

	for _, r := range f.recorded() {
		assert.Equal(t, "PROPFIND", r.Method)
		assert.Equal(t, "0", r.Depth)
	}
}

func TestRefreshCalendarsKeepsHandles(t *testing.T) {
	f := newFakeServer(t)
	c := newTestClient(t, f)
	tasks := c.Calendar("Tasks")
	current, err := c.GetCurrentTodos(context.Background(), tasks)
	require.NoError(t, err)

	f.setCTag("ctag-9")
	require.NoError(t, c.RefreshCalendars(context.Background()))
	assert.Same(t, tasks, c.Calendar("Tasks"))
	assert.Equal(t, "ctag-9", tasks.CTag())
	assert.Same(t, current, tasks.CurrentSnapshot())
	assert.Len(t, c.Calendars(), 2)
}
