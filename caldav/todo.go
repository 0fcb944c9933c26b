package caldav

import (
	"context"
	"fmt"

	ics "github.com/arran4/remindav"
)

// Filters for the VTODO comp-filter of a calendar-query REPORT.
const (
	FilterIncomplete = `<c:prop-filter name="PERCENT-COMPLETE">` +
		`<c:text-match collation="i;ascii-numeric" negate-condition="yes">100</c:text-match>` +
		`</c:prop-filter>`
	FilterUndefined = `<c:prop-filter name="PERCENT-COMPLETE"><c:is-not-defined/></c:prop-filter>`
	FilterCompleted = `<c:prop-filter name="PERCENT-COMPLETE">` +
		`<c:text-match collation="i;ascii-numeric">100</c:text-match>` +
		`</c:prop-filter>`
	FilterAll = ``
)

// CalendarTodo is one calendar object resource holding a todo. VCal is the
// enclosing calendar with the VTODO taken out; Serialize puts it back where
// it was.
type CalendarTodo struct {
	ETag  string
	URL   string
	VCal  *ics.Calendar
	VTodo *ics.VTodo
	index int
}

// ParseCalendarTodo splits calendar-data into the todo and its enclosing
// calendar.
func ParseCalendarTodo(href, etag, data string) (*CalendarTodo, error) {
	cal, err := ics.ParseCalendarString(data)
	if err != nil {
		return nil, err
	}
	todo, index, err := cal.TakeTodo()
	if err != nil {
		return nil, err
	}
	return &CalendarTodo{ETag: etag, URL: href, VCal: cal, VTodo: todo, index: index}, nil
}

// Serialize renders the resource as it would be stored on the server.
func (ct *CalendarTodo) Serialize() string {
	cal := ct.VCal.Clone()
	cal.InsertAt(ct.index, ct.VTodo)
	return cal.Serialize()
}

// FetchTodos runs a calendar-query REPORT with filter inside the VTODO
// comp-filter. Entries that cannot be read are skipped and reported on the
// snapshot. Nothing is cached.
func (c *Client) FetchTodos(ctx context.Context, cal *Calendar, filter string) (*Snapshot, error) {
	return c.fetch(ctx, cal, cal.CTag(), filter)
}

// fetch concatenates the results of one REPORT per filter, in order, and
// labels them with ctag.
func (c *Client) fetch(ctx context.Context, cal *Calendar, ctag string, filters ...string) (*Snapshot, error) {
	var todos []*CalendarTodo
	var errs []error
	for _, filter := range filters {
		root, err := c.request(ctx, OpReport, "REPORT", cal.url, "1", todoQueryBody(filter))
		if err != nil {
			return nil, err
		}
		got, bad, err := parseReport(root, cal.url)
		if err != nil {
			return nil, &ProtocolError{Op: OpReport, URL: cal.url, Err: err}
		}
		for _, e := range bad {
			c.logger.Warn("skipping todo", "calendar", cal.Name(), "error", e)
		}
		todos = append(todos, got...)
		errs = append(errs, bad...)
	}
	return newSnapshot(ctag, todos, errs), nil
}

func parseReport(root *element, base string) ([]*CalendarTodo, []error, error) {
	resps, err := responses(root)
	if err != nil {
		return nil, nil, err
	}
	var todos []*CalendarTodo
	var errs []error
	for _, resp := range resps {
		todo, err := parseEntry(resp, base)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		todos = append(todos, todo)
	}
	return todos, errs, nil
}

func parseEntry(resp *element, base string) (*CalendarTodo, error) {
	href := ""
	if h := resp.child("href", nsDAV); h != nil {
		href = h.trimmed()
	}
	fail := func(err error) (*CalendarTodo, error) {
		return nil, &EntryError{Href: href, Err: err}
	}
	if href == "" {
		return fail(fmt.Errorf("%w: {%s}href", ErrMissingNode, nsDAV))
	}
	abs, err := resolve(base, href)
	if err != nil {
		return fail(err)
	}
	href = abs
	etag := findProp(resp, "getetag", nsDAV)
	if etag == nil {
		return fail(fmt.Errorf("%w: {%s}getetag", ErrMissingNode, nsDAV))
	}
	data := findProp(resp, "calendar-data", nsCalDAV)
	if data == nil {
		return fail(fmt.Errorf("%w: {%s}calendar-data", ErrMissingNode, nsCalDAV))
	}
	todo, err := ParseCalendarTodo(href, etag.trimmed(), data.trimmed())
	if err != nil {
		return fail(err)
	}
	return todo, nil
}
