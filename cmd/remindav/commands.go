package main

import (
	"context"
	"fmt"
	"time"

	ics "github.com/arran4/remindav"
	"github.com/arran4/remindav/caldav"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

const prodID = "-//remindav//remindav//EN"

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "remindav",
		Short:         "Read todos from a CalDAV server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/remindav/config.toml)")
	cmd.PersistentFlags().StringVar(&a.url, "url", "", "CalDAV server URL")
	cmd.PersistentFlags().StringVar(&a.username, "username", "", "CalDAV user name")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log requests")

	cmd.AddCommand(
		newCalendarsCmd(a),
		newTodosCmd(a, "list", "List incomplete todos", (*caldav.Client).GetCurrentTodos),
		newTodosCmd(a, "past", "List completed todos", (*caldav.Client).GetPastTodos),
		newTodosCmd(a, "all", "List every todo", (*caldav.Client).GetAllTodos),
		newSearchCmd(a),
		newShowCmd(a),
		newNewCmd(a),
		newWatchCmd(a),
	)
	return cmd
}

func newCalendarsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "calendars",
		Short: "List calendars that hold todos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			for _, cal := range client.Calendars() {
				fmt.Fprintf(a.stdout, "%s %s", cal.Swatch(), cal.Name())
				if d := cal.Description(); d != "" {
					fmt.Fprintf(a.stdout, "\t%s", d)
				}
				fmt.Fprintln(a.stdout)
			}
			return nil
		},
	}
}

type clientFetch func(*caldav.Client, context.Context, *caldav.Calendar) (*caldav.Snapshot, error)

func newTodosCmd(a *app, use, short string, fetch clientFetch) *cobra.Command {
	var calendar string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			cals, err := selectCalendars(client, calendar)
			if err != nil {
				return err
			}
			snaps, err := collect(cmd.Context(), cals, func(ctx context.Context, cal *caldav.Calendar) (*caldav.Snapshot, error) {
				return fetch(client, ctx, cal)
			})
			if err != nil {
				return err
			}
			for i, s := range snaps {
				for _, todo := range s.Todos() {
					printTodo(a.stdout, cals[i], todo)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&calendar, "calendar", "c", "", "Only this calendar")
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	var calendar string
	cmd := &cobra.Command{
		Use:   "search TERM",
		Short: "Find todos whose summary or description contains TERM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			cals, err := selectCalendars(client, calendar)
			if err != nil {
				return err
			}
			snaps, err := collect(cmd.Context(), cals, client.GetAllTodos)
			if err != nil {
				return err
			}
			found := 0
			for i, s := range snaps {
				for _, todo := range s.Search(args[0]) {
					printTodo(a.stdout, cals[i], todo)
					found++
				}
			}
			if found == 0 {
				return fmt.Errorf("no todo matches %q", args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&calendar, "calendar", "c", "", "Only this calendar")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show UID",
		Short: "Print a todo as iCalendar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			cals := client.Calendars()
			snaps, err := collect(cmd.Context(), cals, client.GetAllTodos)
			if err != nil {
				return err
			}
			for _, s := range snaps {
				if todo, ok := s.Find(args[0]); ok {
					fmt.Fprint(a.stdout, todo.Serialize())
					return nil
				}
			}
			return fmt.Errorf("no todo with UID %q", args[0])
		},
	}
}

func newNewCmd(a *app) *cobra.Command {
	var due string
	cmd := &cobra.Command{
		Use:   "new SUMMARY",
		Short: "Print a new todo as iCalendar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			todo := ics.NewTodo(args[0])
			if due != "" {
				var params ics.Params
				if len(due) == len("20060102") {
					params = ics.Params{ics.WithValueType("DATE")}
				}
				dt, err := ics.ParseValue[ics.DateTime](due, params)
				if err != nil {
					return fmt.Errorf("--due: %w", err)
				}
				todo.SetDue(dt)
			}
			cal := ics.NewCalendar(prodID)
			cal.AddTodo(todo)
			return cal.SerializeTo(a.stdout)
		},
	}
	cmd.Flags().StringVar(&due, "due", "", "Due date, 20060102 or 20060102T150405[Z]")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	var every time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll calendars and report the ones that changed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if every < time.Second {
				return fmt.Errorf("--every must be at least 1s, got %s", every)
			}
			ctx := cmd.Context()
			client, err := a.connect(ctx)
			if err != nil {
				return err
			}
			c := cron.New()
			if _, err := c.AddFunc("@every "+every.String(), func() { a.poll(ctx, client) }); err != nil {
				return fmt.Errorf("schedule: %w", err)
			}
			a.logger.Info("watching calendars", "every", every, "count", len(client.Calendars()))
			c.Start()
			<-ctx.Done()
			<-c.Stop().Done()
			return nil
		},
	}
	cmd.Flags().DurationVar(&every, "every", 5*time.Minute, "Polling interval")
	return cmd
}

// poll reloads the incomplete todos of every calendar and reports the ones
// whose snapshot was replaced. An unchanged ctag costs one PROPFIND.
func (a *app) poll(ctx context.Context, client *caldav.Client) {
	for _, cal := range client.Calendars() {
		prev := cal.CurrentSnapshot()
		s, err := client.GetCurrentTodos(ctx, cal)
		if err != nil {
			a.logger.Error("poll failed", "calendar", cal.Name(), "error", err)
			continue
		}
		if s == prev {
			continue
		}
		a.logger.Info("calendar changed", "calendar", cal.Name(), "ctag", cal.CTag(), "todos", s.Len())
	}
}
