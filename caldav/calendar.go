package caldav

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// DefaultColor is reported for calendars that carry no calendar-color.
const DefaultColor = "#ffffff"

// Metadata is what a PROPFIND reports about a calendar collection.
type Metadata struct {
	Name        string
	CTag        string
	Color       string
	Description string
	// SupportsTodo is true when VTODO is in the supported component set.
	SupportsTodo bool
}

// Calendar is a handle on one calendar collection. Its metadata and cached
// todo snapshots change together, so a reader never sees todos from one
// ctag next to metadata from another.
type Calendar struct {
	url string

	// held across refresh, fetch and store
	mu    sync.Mutex
	state atomic.Pointer[calendarState]
}

type calendarState struct {
	md            Metadata
	current, past *Snapshot
}

func newCalendar(url string, md Metadata) *Calendar {
	cal := &Calendar{url: url}
	cal.state.Store(&calendarState{md: md})
	return cal
}

func (cal *Calendar) load() *calendarState { return cal.state.Load() }

func (cal *Calendar) setMetadata(md Metadata) {
	cal.mu.Lock()
	defer cal.mu.Unlock()
	next := *cal.load()
	next.md = md
	cal.state.Store(&next)
}

// URL is the absolute collection URL.
func (cal *Calendar) URL() string { return cal.url }

// Metadata returns the most recently stored metadata.
func (cal *Calendar) Metadata() Metadata { return cal.load().md }

func (cal *Calendar) Name() string        { return cal.load().md.Name }
func (cal *Calendar) CTag() string        { return cal.load().md.CTag }
func (cal *Calendar) Description() string { return cal.load().md.Description }

// Color is the calendar-color property, or DefaultColor when the server has
// none.
func (cal *Calendar) Color() string {
	if c := cal.load().md.Color; c != "" {
		return c
	}
	return DefaultColor
}

// Swatch renders the calendar colour as a two cell block using 24-bit ANSI
// escapes. Colours that cannot be read fall back to DefaultColor.
func (cal *Calendar) Swatch() string {
	r, g, b, err := parseColor(cal.Color())
	if err != nil {
		r, g, b, _ = parseColor(DefaultColor)
	}
	return fmt.Sprintf("\x1b[48;2;%d;%d;%dm  \x1b[0m", r, g, b)
}

// parseColor reads #RRGGBB and the #RRGGBBAA form Apple servers send.
func parseColor(s string) (r, g, b uint8, err error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 && len(hex) != 8 {
		return 0, 0, 0, fmt.Errorf("colour %q: want #RRGGBB", s)
	}
	v, err := strconv.ParseUint(hex[:6], 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("colour %q: %w", s, err)
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), nil
}

// CurrentSnapshot is the cached snapshot of incomplete todos, nil before the
// first fetch.
func (cal *Calendar) CurrentSnapshot() *Snapshot { return cal.load().current }

// PastSnapshot is the cached snapshot of completed todos, nil before the
// first fetch.
func (cal *Calendar) PastSnapshot() *Snapshot { return cal.load().past }

func (cal *Calendar) String() string { return cal.Name() }

// Snapshot is an immutable result of one or more REPORTs against a
// calendar. The slice returned by Todos must not be modified.
type Snapshot struct {
	ctag   string
	todos  []*CalendarTodo
	errors []error
}

func newSnapshot(ctag string, todos []*CalendarTodo, errs []error) *Snapshot {
	return &Snapshot{ctag: ctag, todos: todos, errors: errs}
}

// CTag is the calendar ctag known when the snapshot was requested.
func (s *Snapshot) CTag() string { return s.ctag }

func (s *Snapshot) Todos() []*CalendarTodo { return s.todos }

func (s *Snapshot) Len() int { return len(s.todos) }

// Errors lists the REPORT entries, as *EntryError, that were skipped.
func (s *Snapshot) Errors() []error { return s.errors }

// Find returns the todo with the given UID.
func (s *Snapshot) Find(uid string) (*CalendarTodo, bool) {
	for _, t := range s.todos {
		if t.VTodo.Id() == uid {
			return t, true
		}
	}
	return nil, false
}

// Search returns the todos whose summary or description contains term,
// ignoring case.
func (s *Snapshot) Search(term string) []*CalendarTodo {
	var out []*CalendarTodo
	for _, t := range s.todos {
		if t.VTodo.Matches(term) {
			out = append(out, t)
		}
	}
	return out
}

// valid reports whether the snapshot still matches the server's ctag. An
// empty ctag means the server gives no change signal.
func (s *Snapshot) valid(ctag string) bool {
	return s != nil && ctag != "" && s.ctag == ctag
}
