package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/arran4/remindav/caldav"
	"github.com/arran4/remindav/internal/config"
	"github.com/arran4/remindav/internal/logging"
	"golang.org/x/sync/errgroup"
)

type app struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string

	configPath string
	url        string
	username   string
	verbose    bool

	// transport replaces the timeout bound http.Client when set
	transport caldav.HTTPClient
	logger    *slog.Logger
}

func (a *app) load() (*config.Config, error) {
	cfg, err := config.Load(a.configPath, a.getenv)
	if err != nil {
		return nil, err
	}
	if a.url != "" {
		cfg.URL = a.url
	}
	if a.username != "" {
		cfg.Username = a.username
	}
	if a.verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *app) connect(ctx context.Context) (*caldav.Client, error) {
	cfg, err := a.load()
	if err != nil {
		return nil, err
	}
	level, _ := cfg.Level()
	a.logger = logging.New(a.stderr, level)

	var hc caldav.HTTPClient = &http.Client{Timeout: cfg.Timeout.Duration}
	if a.transport != nil {
		hc = a.transport
	}
	client, err := caldav.New(ctx, cfg.URL, cfg.Username, cfg.Password, hc, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.URL, err)
	}
	return client, nil
}

// selectCalendars returns the calendar called name, or every calendar when
// name is empty.
func selectCalendars(client *caldav.Client, name string) ([]*caldav.Calendar, error) {
	if name == "" {
		return client.Calendars(), nil
	}
	cal := client.Calendar(name)
	if cal == nil {
		return nil, fmt.Errorf("%w: %q", caldav.ErrCalendarNotFound, name)
	}
	return []*caldav.Calendar{cal}, nil
}

type fetchFunc func(context.Context, *caldav.Calendar) (*caldav.Snapshot, error)

// collect runs fetch for every calendar concurrently. Results keep the
// order of cals.
func collect(ctx context.Context, cals []*caldav.Calendar, fetch fetchFunc) ([]*caldav.Snapshot, error) {
	out := make([]*caldav.Snapshot, len(cals))
	g, ctx := errgroup.WithContext(ctx)
	for i, cal := range cals {
		i, cal := i, cal
		g.Go(func() error {
			s, err := fetch(ctx, cal)
			if err != nil {
				return fmt.Errorf("%s: %w", cal.Name(), err)
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func printTodo(w io.Writer, cal *caldav.Calendar, todo *caldav.CalendarTodo) {
	mark := " "
	if todo.VTodo.IsCompleted() {
		mark = "x"
	}
	line := fmt.Sprintf("%s [%s] %s", cal.Swatch(), mark, todo.VTodo.SummaryText())
	if p, ok := todo.VTodo.Percent(); ok && p > 0 && p < 100 {
		line += fmt.Sprintf(" %d%%", p)
	}
	if due, ok := todo.VTodo.Due.Get(); ok {
		line += " (due " + formatDue(due.AllDay, due.In(time.Local)) + ")"
	}
	fmt.Fprintln(w, line)
}

func formatDue(allDay bool, t time.Time) string {
	if allDay {
		return t.Format(time.DateOnly)
	}
	return t.Format("2006-01-02 15:04")
}
