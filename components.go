package ics

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// VTodo is a task (RFC 5545 section 3.6.2). Each field is named after its
// property with the wire name in UPPER-HYPHEN form. Pointer fields hold at
// most one value, slice fields every occurrence in document order. Lines the
// model has no field for, and sub-components other than VALARM, are kept in
// Unknown.
//
// DUE and DURATION are independent fields. RFC 5545 allows only one of them
// but both are kept when a server sends both.
type VTodo struct {
	UID             *Property[Text]
	DtStamp         *Property[DateTime]
	Class           *Property[Text]
	Completed       *Property[DateTime]
	Created         *Property[DateTime]
	Description     *Property[Text]
	DtStart         *Property[DateTime]
	Geo             *Property[Text]
	LastModified    *Property[DateTime]
	Location        *Property[Text]
	Organizer       *Property[Text]
	PercentComplete *Property[Integer]
	Priority        *Property[Integer]
	RecurrenceID    *Property[DateTime]
	Sequence        *Property[Integer]
	Status          *Property[Text]
	Summary         *Property[Text]
	URL             *Property[Text]
	Due             *Property[DateTime]
	Duration        *Property[Duration]

	Attach        []Property[Text]
	Attendee      []Property[Text]
	Categories    []Property[Text]
	Comment       []Property[Text]
	Contact       []Property[Text]
	ExDate        []Property[Text]
	RequestStatus []Property[Text]
	RelatedTo     []Property[Text]
	Resources     []Property[Text]
	RDate         []Property[Text]
	RRule         []Property[Text]

	Alarms  []*VAlarm
	Unknown []Object

	// Params are the parameters of the BEGIN line.
	Params Params
}

func (t *VTodo) fields() []field {
	return []field{
		opt("UID", &t.UID),
		opt("DTSTAMP", &t.DtStamp),
		opt("CLASS", &t.Class),
		opt("COMPLETED", &t.Completed),
		opt("CREATED", &t.Created),
		opt("DESCRIPTION", &t.Description),
		opt("DTSTART", &t.DtStart),
		opt("GEO", &t.Geo),
		opt("LAST-MODIFIED", &t.LastModified),
		opt("LOCATION", &t.Location),
		opt("ORGANIZER", &t.Organizer),
		opt("PERCENT-COMPLETE", &t.PercentComplete),
		opt("PRIORITY", &t.Priority),
		opt("RECURRENCE-ID", &t.RecurrenceID),
		opt("SEQUENCE", &t.Sequence),
		opt("STATUS", &t.Status),
		opt("SUMMARY", &t.Summary),
		opt("URL", &t.URL),
		opt("DUE", &t.Due),
		opt("DURATION", &t.Duration),
		mul("ATTACH", &t.Attach),
		mul("ATTENDEE", &t.Attendee),
		mul("CATEGORIES", &t.Categories),
		mul("COMMENT", &t.Comment),
		mul("CONTACT", &t.Contact),
		mul("EXDATE", &t.ExDate),
		mul("REQUEST-STATUS", &t.RequestStatus),
		mul("RELATED-TO", &t.RelatedTo),
		mul("RESOURCES", &t.Resources),
		mul("RDATE", &t.RDate),
		mul("RRULE", &t.RRule),
	}
}

func (t *VTodo) Token() string { return ComponentVTodo }

func (t *VTodo) adopt(child Object) bool {
	if a, ok := child.(*VAlarm); ok {
		t.Alarms = append(t.Alarms, a)
		return true
	}
	return false
}

func (t *VTodo) addUnknown(child Object) { t.Unknown = append(t.Unknown, child) }

func (t *VTodo) children() []Object { return withAlarms(t.Alarms, t.Unknown) }

func (t *VTodo) encode(e *encoder) { encodeComponent(e, ComponentVTodo, t.Params, t) }

// Serialize writes the VTODO on its own, without an enclosing VCALENDAR.
func (t *VTodo) Serialize() string {
	var e encoder
	t.encode(&e)
	return e.String()
}

// NewTodo returns a todo with a fresh UID and a DTSTAMP of now.
func NewTodo(summary string) *VTodo {
	now := time.Now()
	return &VTodo{
		UID:     NewProperty(Text(uuid.NewString())),
		DtStamp: NewProperty(UTCDateTime(now)),
		Created: NewProperty(UTCDateTime(now)),
		Summary: NewProperty(Text(ToText(summary))),
	}
}

func (t *VTodo) Id() string {
	uid, _ := t.UID.Get()
	return string(uid)
}

// SummaryText is the unescaped SUMMARY, or "" when absent.
func (t *VTodo) SummaryText() string {
	s, _ := t.Summary.Get()
	return s.String()
}

func (t *VTodo) DescriptionText() string {
	s, _ := t.Description.Get()
	return s.String()
}

func (t *VTodo) SetSummary(s string, params ...Param) {
	t.Summary = NewProperty(Text(ToText(s)), params...)
}

func (t *VTodo) SetDescription(s string, params ...Param) {
	t.Description = NewProperty(Text(ToText(s)), params...)
}

// SetDue sets DUE. Zoned values outside UTC get a TZID parameter.
func (t *VTodo) SetDue(dt DateTime) {
	t.Due = dateTimeProperty(dt)
}

func (t *VTodo) SetStartAt(dt DateTime) {
	t.DtStart = dateTimeProperty(dt)
}

// Percent returns PERCENT-COMPLETE.
func (t *VTodo) Percent() (int, bool) {
	p, ok := t.PercentComplete.Get()
	return int(p), ok
}

// IsCompleted reports whether the todo is 100% complete, which is the same
// test CalDAV servers apply for the completed filter.
func (t *VTodo) IsCompleted() bool {
	p, ok := t.Percent()
	return ok && p == 100
}

// Complete marks the todo done at the given time.
func (t *VTodo) Complete(at time.Time) {
	t.PercentComplete = NewProperty(Integer(100))
	t.Status = NewProperty(Text("COMPLETED"))
	t.Completed = NewProperty(UTCDateTime(at))
	t.LastModified = NewProperty(UTCDateTime(at))
}

// Matches reports whether term occurs in the summary or description, ignoring
// case.
func (t *VTodo) Matches(term string) bool {
	term = strings.ToLower(term)
	return strings.Contains(strings.ToLower(t.SummaryText()), term) ||
		strings.Contains(strings.ToLower(t.DescriptionText()), term)
}

func dateTimeProperty(dt DateTime) *Property[DateTime] {
	p := NewProperty(dt)
	switch {
	case dt.AllDay:
		p.Params.Set("VALUE", "DATE")
		if !dt.Floating {
			p.Params.Set("TZID", dt.Time.Location().String())
		}
	case !dt.Floating && !dt.IsUTC():
		p.Params.Set("TZID", dt.Time.Location().String())
	}
	return p
}

func withAlarms(alarms []*VAlarm, unknown []Object) []Object {
	out := make([]Object, 0, len(alarms)+len(unknown))
	for _, a := range alarms {
		out = append(out, a)
	}
	return append(out, unknown...)
}

// VAlarm is a reminder attached to a VTODO or VEVENT.
//
// TRIGGER is kept as text because it is either a duration or, with
// VALUE=DATE-TIME, an absolute time. Use TriggerDuration for the common
// relative form.
type VAlarm struct {
	Action      *Property[Text]
	Description *Property[Text]
	Trigger     *Property[Text]
	Summary     *Property[Text]
	Duration    *Property[Duration]
	Repeat      *Property[Integer]
	Attach      *Property[Text]

	Attendee []Property[Text]

	Unknown []Object
	Params  Params
}

func (a *VAlarm) fields() []field {
	return []field{
		opt("ACTION", &a.Action),
		opt("DESCRIPTION", &a.Description),
		opt("TRIGGER", &a.Trigger),
		opt("SUMMARY", &a.Summary),
		opt("DURATION", &a.Duration),
		opt("REPEAT", &a.Repeat),
		opt("ATTACH", &a.Attach),
		mul("ATTENDEE", &a.Attendee),
	}
}

func (a *VAlarm) Token() string { return ComponentVAlarm }

func (a *VAlarm) adopt(Object) bool { return false }

func (a *VAlarm) addUnknown(child Object) { a.Unknown = append(a.Unknown, child) }

func (a *VAlarm) children() []Object { return a.Unknown }

func (a *VAlarm) encode(e *encoder) { encodeComponent(e, ComponentVAlarm, a.Params, a) }

// NewDisplayAlarm fires before (negative offset) or after the anchor.
func NewDisplayAlarm(description string, offset time.Duration) *VAlarm {
	return &VAlarm{
		Action:      NewProperty(Text("DISPLAY")),
		Description: NewProperty(Text(ToText(description))),
		Trigger:     NewProperty(Text(Duration(offset).Serialize())),
	}
}

// TriggerDuration returns the relative trigger. It reports false for absolute
// triggers and for alarms without a TRIGGER.
func (a *VAlarm) TriggerDuration() (Duration, bool) {
	if a.Trigger == nil {
		return 0, false
	}
	if v, ok := a.Trigger.Params.Get("VALUE"); ok && strings.EqualFold(v, "DATE-TIME") {
		return 0, false
	}
	d, err := ParseDuration(string(a.Trigger.Value))
	if err != nil {
		return 0, false
	}
	return d, true
}

// VEvent is modeled structurally; nothing in this package interprets it.
type VEvent struct {
	UID          *Property[Text]
	DtStamp      *Property[DateTime]
	Class        *Property[Text]
	Created      *Property[DateTime]
	Description  *Property[Text]
	DtStart      *Property[DateTime]
	Geo          *Property[Text]
	LastModified *Property[DateTime]
	Location     *Property[Text]
	Organizer    *Property[Text]
	Priority     *Property[Integer]
	Sequence     *Property[Integer]
	Status       *Property[Text]
	Summary      *Property[Text]
	Transp       *Property[Text]
	URL          *Property[Text]
	RecurrenceID *Property[DateTime]
	DtEnd        *Property[DateTime]
	Duration     *Property[Duration]

	Attach        []Property[Text]
	Attendee      []Property[Text]
	Categories    []Property[Text]
	Comment       []Property[Text]
	Contact       []Property[Text]
	ExDate        []Property[Text]
	RequestStatus []Property[Text]
	RelatedTo     []Property[Text]
	Resources     []Property[Text]
	RDate         []Property[Text]
	RRule         []Property[Text]

	Alarms  []*VAlarm
	Unknown []Object
	Params  Params
}

func (ev *VEvent) fields() []field {
	return []field{
		opt("UID", &ev.UID),
		opt("DTSTAMP", &ev.DtStamp),
		opt("CLASS", &ev.Class),
		opt("CREATED", &ev.Created),
		opt("DESCRIPTION", &ev.Description),
		opt("DTSTART", &ev.DtStart),
		opt("GEO", &ev.Geo),
		opt("LAST-MODIFIED", &ev.LastModified),
		opt("LOCATION", &ev.Location),
		opt("ORGANIZER", &ev.Organizer),
		opt("PRIORITY", &ev.Priority),
		opt("SEQUENCE", &ev.Sequence),
		opt("STATUS", &ev.Status),
		opt("SUMMARY", &ev.Summary),
		opt("TRANSP", &ev.Transp),
		opt("URL", &ev.URL),
		opt("RECURRENCE-ID", &ev.RecurrenceID),
		opt("DTEND", &ev.DtEnd),
		opt("DURATION", &ev.Duration),
		mul("ATTACH", &ev.Attach),
		mul("ATTENDEE", &ev.Attendee),
		mul("CATEGORIES", &ev.Categories),
		mul("COMMENT", &ev.Comment),
		mul("CONTACT", &ev.Contact),
		mul("EXDATE", &ev.ExDate),
		mul("REQUEST-STATUS", &ev.RequestStatus),
		mul("RELATED-TO", &ev.RelatedTo),
		mul("RESOURCES", &ev.Resources),
		mul("RDATE", &ev.RDate),
		mul("RRULE", &ev.RRule),
	}
}

func (ev *VEvent) Token() string { return ComponentVEvent }

func (ev *VEvent) adopt(child Object) bool {
	if a, ok := child.(*VAlarm); ok {
		ev.Alarms = append(ev.Alarms, a)
		return true
	}
	return false
}

func (ev *VEvent) addUnknown(child Object) { ev.Unknown = append(ev.Unknown, child) }

func (ev *VEvent) children() []Object { return withAlarms(ev.Alarms, ev.Unknown) }

func (ev *VEvent) encode(e *encoder) { encodeComponent(e, ComponentVEvent, ev.Params, ev) }

// VJournal is modeled structurally. DESCRIPTION may repeat in a journal.
type VJournal struct {
	UID          *Property[Text]
	DtStamp      *Property[DateTime]
	Class        *Property[Text]
	Created      *Property[DateTime]
	DtStart      *Property[DateTime]
	LastModified *Property[DateTime]
	Organizer    *Property[Text]
	RecurrenceID *Property[DateTime]
	Sequence     *Property[Integer]
	Status       *Property[Text]
	Summary      *Property[Text]
	URL          *Property[Text]

	Attach        []Property[Text]
	Attendee      []Property[Text]
	Categories    []Property[Text]
	Comment       []Property[Text]
	Contact       []Property[Text]
	Description   []Property[Text]
	ExDate        []Property[Text]
	RelatedTo     []Property[Text]
	RDate         []Property[Text]
	RRule         []Property[Text]
	RequestStatus []Property[Text]

	Unknown []Object
	Params  Params
}

func (j *VJournal) fields() []field {
	return []field{
		opt("UID", &j.UID),
		opt("DTSTAMP", &j.DtStamp),
		opt("CLASS", &j.Class),
		opt("CREATED", &j.Created),
		opt("DTSTART", &j.DtStart),
		opt("LAST-MODIFIED", &j.LastModified),
		opt("ORGANIZER", &j.Organizer),
		opt("RECURRENCE-ID", &j.RecurrenceID),
		opt("SEQUENCE", &j.Sequence),
		opt("STATUS", &j.Status),
		opt("SUMMARY", &j.Summary),
		opt("URL", &j.URL),
		mul("ATTACH", &j.Attach),
		mul("ATTENDEE", &j.Attendee),
		mul("CATEGORIES", &j.Categories),
		mul("COMMENT", &j.Comment),
		mul("CONTACT", &j.Contact),
		mul("DESCRIPTION", &j.Description),
		mul("EXDATE", &j.ExDate),
		mul("RELATED-TO", &j.RelatedTo),
		mul("RDATE", &j.RDate),
		mul("RRULE", &j.RRule),
		mul("REQUEST-STATUS", &j.RequestStatus),
	}
}

func (j *VJournal) Token() string { return ComponentVJournal }

func (j *VJournal) adopt(Object) bool { return false }

func (j *VJournal) addUnknown(child Object) { j.Unknown = append(j.Unknown, child) }

func (j *VJournal) children() []Object { return j.Unknown }

func (j *VJournal) encode(e *encoder) { encodeComponent(e, ComponentVJournal, j.Params, j) }
