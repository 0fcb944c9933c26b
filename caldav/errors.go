package caldav

import (
	"errors"
	"fmt"
)

// Operations named in ProtocolError.Op.
const (
	OpPrincipal    = "principal"
	OpHomeSet      = "homeset"
	OpCalendarList = "calendar-list"
	OpRefresh      = "refresh"
	OpReport       = "report"
)

var (
	// ErrMissingNode is returned when a multistatus response lacks an element
	// the operation needs.
	ErrMissingNode = errors.New("missing xml node")
	// ErrUnexpectedStatus wraps non-2xx HTTP responses.
	ErrUnexpectedStatus = errors.New("unexpected http status")
	// ErrCalendarNotFound is returned by lookups by name.
	ErrCalendarNotFound = errors.New("calendar not found")
)

// ProtocolError is any failure talking to the server: transport errors,
// non-2xx statuses, bodies that are not XML and XML missing expected nodes.
type ProtocolError struct {
	Op     string
	URL    string
	Status int
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("caldav %s %s: status %d: %v", e.Op, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("caldav %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// EntryError is one REPORT entry that could not be turned into a todo. It
// does not stop the other entries of the same REPORT.
type EntryError struct {
	Href string
	Err  error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("report entry %s: %v", e.Href, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }
