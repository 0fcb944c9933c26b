package caldav

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
)

const (
	testUser     = "alice"
	testPassword = "s3cret"
)

type fakeTodo struct {
	uid     string
	summary string
	// -1 leaves PERCENT-COMPLETE out
	percent int
	// raw replaces the generated calendar-data
	raw string
}

func (f fakeTodo) data() string {
	if f.raw != "" {
		return f.raw
	}
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//fake//caldav//EN\r\n")
	b.WriteString("BEGIN:VTODO\r\nUID:" + f.uid + "\r\nDTSTAMP:20240101T100000Z\r\n")
	if f.percent >= 0 {
		fmt.Fprintf(&b, "PERCENT-COMPLETE:%d\r\n", f.percent)
	}
	b.WriteString("SUMMARY:" + f.summary + "\r\n")
	b.WriteString("END:VTODO\r\nEND:VCALENDAR\r\n")
	return b.String()
}

type seenRequest struct {
	Method      string
	Path        string
	Depth       string
	ContentType string
	User        string
	Password    string
	Body        string
}

// fakeServer is a small CalDAV server with one principal, a todo calendar
// called Tasks, a second todo calendar without display name or colour, an
// event-only calendar and a plain collection.
type fakeServer struct {
	*httptest.Server

	mu       sync.Mutex
	ctag     string
	todos    []fakeTodo
	requests []seenRequest
	// status overrides the response status per "METHOD path"
	status map[string]int
	// body overrides the response body per "METHOD path"
	body map[string]string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{
		ctag: "ctag-1",
		todos: []fakeTodo{
			{uid: "half", summary: "Paint the fence", percent: 50},
			{uid: "open", summary: "Call the plumber", percent: -1},
			{uid: "done", summary: "File taxes", percent: 100},
			{uid: "fresh", summary: "Water plants", percent: 0},
		},
		status: map[string]int{},
		body:   map[string]string{},
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) setCTag(ctag string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctag = ctag
}

func (f *fakeServer) setTodos(todos ...fakeTodo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.todos = todos
}

func (f *fakeServer) override(key string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[key] = status
	f.body[key] = body
}

func (f *fakeServer) clearOverrides() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = map[string]int{}
	f.body = map[string]string{}
}

func (f *fakeServer) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = nil
}

func (f *fakeServer) recorded() []seenRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]seenRequest(nil), f.requests...)
}

func (f *fakeServer) count(method string) int {
	n := 0
	for _, r := range f.recorded() {
		if r.Method == method {
			n++
		}
	}
	return n
}

func (f *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	user, pass, _ := r.BasicAuth()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, seenRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		Depth:       r.Header.Get("Depth"),
		ContentType: r.Header.Get("Content-Type"),
		User:        user,
		Password:    pass,
		Body:        string(body),
	})

	if user != testUser || pass != testPassword {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	key := r.Method + " " + r.URL.Path
	if status, ok := f.status[key]; ok {
		w.WriteHeader(status)
		io.WriteString(w, f.body[key])
		return
	}

	var out string
	switch key {
	case "PROPFIND /":
		out = response("/", ok(`<d:current-user-principal><d:href>/principals/alice/</d:href></d:current-user-principal>`))
	case "PROPFIND /principals/alice/":
		out = response("/principals/alice/", ok(`<c:calendar-home-set><d:href>/calendars/alice/</d:href></c:calendar-home-set>`))
	case "PROPFIND /calendars/alice/":
		out = response("/calendars/alice/", ok(`<d:resourcetype><d:collection/></d:resourcetype>`)) +
			f.tasksResponse() +
			response("/calendars/alice/chores/",
				ok(`<d:resourcetype><d:collection/><c:calendar/></d:resourcetype>`+
					`<c:supported-calendar-component-set><c:comp name="VEVENT"/><c:comp name="VTODO"/></c:supported-calendar-component-set>`+
					`<cs:getctag>chores-1</cs:getctag>`)) +
			response("/calendars/alice/events/",
				ok(`<d:displayname>Events</d:displayname><d:resourcetype><d:collection/><c:calendar/></d:resourcetype>`+
					`<c:supported-calendar-component-set><c:comp name="VEVENT"/></c:supported-calendar-component-set>`)) +
			response("/calendars/alice/inbox/",
				ok(`<d:displayname>Inbox</d:displayname><d:resourcetype><d:collection/></d:resourcetype>`))
	case "PROPFIND /calendars/alice/tasks/":
		out = f.tasksResponse()
	case "REPORT /calendars/alice/tasks/":
		out = f.report(string(body))
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	io.WriteString(w, multistatus(out))
}

func (f *fakeServer) tasksResponse() string {
	return response("/calendars/alice/tasks/",
		ok(`<d:displayname>Tasks</d:displayname>`+
			`<d:resourcetype><d:collection/><c:calendar/></d:resourcetype>`+
			`<c:supported-calendar-component-set><c:comp name="VTODO"/></c:supported-calendar-component-set>`+
			`<cs:getctag>`+f.ctag+`</cs:getctag>`+
			`<c:calendar-description>Things to do</c:calendar-description>`+
			`<i:calendar-color>#FF2968FF</i:calendar-color>`),
		`<d:propstat><d:prop><d:owner/></d:prop><d:status>HTTP/1.1 404 Not Found</d:status></d:propstat>`)
}

// report answers a calendar-query by recognising which filter was sent.
func (f *fakeServer) report(body string) string {
	var match func(fakeTodo) bool
	switch {
	case strings.Contains(body, `negate-condition="yes"`):
		match = func(t fakeTodo) bool { return t.percent >= 0 && t.percent < 100 }
	case strings.Contains(body, `is-not-defined`):
		match = func(t fakeTodo) bool { return t.percent < 0 }
	case strings.Contains(body, `text-match`):
		match = func(t fakeTodo) bool { return t.percent == 100 }
	default:
		match = func(fakeTodo) bool { return true }
	}
	var out strings.Builder
	for _, t := range f.todos {
		if !match(t) {
			continue
		}
		out.WriteString(response("/calendars/alice/tasks/"+t.uid+".ics",
			ok(`<d:getetag>"etag-`+t.uid+`"</d:getetag><c:calendar-data>`+escape(t.data())+`</c:calendar-data>`)))
	}
	return out.String()
}

func multistatus(inner string) string {
	return `<?xml version="1.0" encoding="utf-8"?>` +
		`<d:multistatus xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav" xmlns:cs="http://calendarserver.org/ns/" xmlns:i="http://apple.com/ns/ical/">` +
		inner + `</d:multistatus>`
}

func response(href string, propstats ...string) string {
	return `<d:response><d:href>` + href + `</d:href>` + strings.Join(propstats, "") + `</d:response>`
}

func ok(props string) string {
	return `<d:propstat><d:prop>` + props + `</d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat>`
}

func escape(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func uids(s *Snapshot) []string {
	var out []string
	for _, t := range s.Todos() {
		out = append(out, t.VTodo.Id())
	}
	return out
}

func sortedUIDs(s *Snapshot) []string {
	out := uids(s)
	sort.Strings(out)
	return out
}
