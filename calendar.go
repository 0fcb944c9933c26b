package ics

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	ComponentVCalendar = "VCALENDAR"
	ComponentVTodo     = "VTODO"
	ComponentVAlarm    = "VALARM"
	ComponentVEvent    = "VEVENT"
	ComponentVJournal  = "VJOURNAL"
)

// Object is a node of the calendar tree. To determine what this is please
// use a type switch on each of:
//   - *VTodo
//   - *VAlarm
//   - *VEvent
//   - *VJournal
//   - *UnknownComponent
//   - *UnknownProperty
type Object interface {
	// Token is the component name for components and the property name for
	// properties.
	Token() string
	encode(e *encoder)
}

var (
	_ Object = (*VTodo)(nil)
	_ Object = (*VAlarm)(nil)
	_ Object = (*VEvent)(nil)
	_ Object = (*VJournal)(nil)
	_ Object = (*UnknownComponent)(nil)
	_ Object = (*UnknownProperty)(nil)
)

// component is an Object that owns properties and sub-components.
type component interface {
	Object
	fields() []field
	// adopt takes a child into a typed slot, reporting false if the
	// component has no slot for it.
	adopt(child Object) bool
	addUnknown(child Object)
	children() []Object
}

// UnknownProperty is a property line the typed model has no field for. It is
// kept verbatim.
type UnknownProperty struct {
	Name   string
	Params Params
	Value  string
}

func (p *UnknownProperty) Token() string { return p.Name }

func (p *UnknownProperty) encode(e *encoder) { e.property(p.Name, p.Params, p.Value) }

// UnknownComponent is a component the typed model does not recognize, such
// as VTIMEZONE or a vendor X- component.
type UnknownComponent struct {
	Name     string
	Params   Params
	Children []Object
}

func (c *UnknownComponent) Token() string { return c.Name }
func (c *UnknownComponent) fields() []field { return nil }
func (c *UnknownComponent) adopt(Object) bool { return false }
func (c *UnknownComponent) addUnknown(child Object) { c.Children = append(c.Children, child) }
func (c *UnknownComponent) children() []Object { return c.Children }
func (c *UnknownComponent) encode(e *encoder) { encodeComponent(e, c.Name, c.Params, c) }

// Calendar is the VCALENDAR root. Calendar level properties such as VERSION
// and PRODID are kept as UnknownProperty children alongside the components,
// in document order.
type Calendar struct {
	Params   Params
	Children []Object
}

// NewCalendar returns an empty VERSION 2.0 calendar.
func NewCalendar(prodID string) *Calendar {
	return &Calendar{
		Children: []Object{
			&UnknownProperty{Name: "VERSION", Value: "2.0"},
			&UnknownProperty{Name: "PRODID", Value: prodID},
		},
	}
}

func (cal *Calendar) Serialize() string {
	var e encoder
	cal.encode(&e)
	return e.String()
}

func (cal *Calendar) SerializeTo(w io.Writer) error {
	_, err := io.WriteString(w, cal.Serialize())
	return err
}

func (cal *Calendar) encode(e *encoder) {
	e.begin(ComponentVCalendar, cal.Params)
	for _, c := range cal.Children {
		c.encode(e)
	}
	e.end(ComponentVCalendar)
}

// Property returns the first calendar level property with the given name.
func (cal *Calendar) Property(name string) (*UnknownProperty, error) {
	for _, c := range cal.Children {
		if p, ok := c.(*UnknownProperty); ok && strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrPropertyNotFound)
}

func (cal *Calendar) Add(o Object) {
	cal.Children = append(cal.Children, o)
}

func (cal *Calendar) AddTodo(t *VTodo) {
	cal.Add(t)
}

func (cal *Calendar) Todos() (r []*VTodo) {
	r = []*VTodo{}
	for _, c := range cal.Children {
		if t, ok := c.(*VTodo); ok {
			r = append(r, t)
		}
	}
	return
}

func (cal *Calendar) Events() (r []*VEvent) {
	r = []*VEvent{}
	for _, c := range cal.Children {
		if ev, ok := c.(*VEvent); ok {
			r = append(r, ev)
		}
	}
	return
}

// TakeTodo removes the first VTODO from the calendar and returns it with the
// index it occupied, so it can be put back with InsertAt.
func (cal *Calendar) TakeTodo() (*VTodo, int, error) {
	for i, c := range cal.Children {
		if t, ok := c.(*VTodo); ok {
			cal.Children = append(cal.Children[:i:i], cal.Children[i+1:]...)
			return t, i, nil
		}
	}
	return nil, -1, ErrNoTodo
}

// InsertAt puts o at index i, appending when i is out of range.
func (cal *Calendar) InsertAt(i int, o Object) {
	if i < 0 || i >= len(cal.Children) {
		cal.Children = append(cal.Children, o)
		return
	}
	children := make([]Object, 0, len(cal.Children)+1)
	children = append(children, cal.Children[:i]...)
	children = append(children, o)
	cal.Children = append(children, cal.Children[i:]...)
}

// Clone copies the calendar's child list. Children themselves are shared.
func (cal *Calendar) Clone() *Calendar {
	return &Calendar{
		Params:   cal.Params.Clone(),
		Children: append([]Object(nil), cal.Children...),
	}
}

// ParseCalendarString is ParseCalendar over an in-memory document.
func ParseCalendarString(s string) (*Calendar, error) {
	return ParseCalendar(strings.NewReader(s))
}

// ParseCalendar reads a VCALENDAR object from r. RFC 5545 section 3.4:
//
//	"The iCalendar object MUST begin with the BEGIN property with a value of
//	 VCALENDAR and end with the END property with a value of VCALENDAR."
//
// Lines between those markers are parsed into properties and components.
func ParseCalendar(r io.Reader) (*Calendar, error) {
	state := "begin"
	var cal *Calendar
	lr := NewLineReader(r)
	for {
		line, err := lr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch state {
		case "begin":
			if !isBegin(line) || !strings.EqualFold(line.Value, ComponentVCalendar) {
				return nil, structuralf("expected BEGIN:VCALENDAR, got %s:%s", line.Name, line.Value)
			}
			cal = &Calendar{Params: line.Params}
			state = "body"
		case "body":
			if isEnd(line) {
				if !strings.EqualFold(line.Value, ComponentVCalendar) {
					return nil, structuralf("unexpected END:%s inside VCALENDAR", line.Value)
				}
				state = "end"
				continue
			}
			o, err := parseObject(lr, line)
			if err != nil {
				return nil, err
			}
			cal.Children = append(cal.Children, o)
		case "end":
			return nil, structuralf("unexpected %s after END:VCALENDAR", line.Name)
		}
	}
	switch state {
	case "begin":
		return nil, structuralf("empty calendar")
	case "body":
		return nil, structuralf("missing END:VCALENDAR")
	}
	return cal, nil
}

func isBegin(line ContentLine) bool { return strings.EqualFold(line.Name, "BEGIN") }

func isEnd(line ContentLine) bool { return strings.EqualFold(line.Name, "END") }

// parseObject turns line into an Object, consuming the rest of the component
// from lr when line is a BEGIN.
func parseObject(lr *LineReader, line ContentLine) (Object, error) {
	if !isBegin(line) {
		return &UnknownProperty{Name: line.Name, Params: line.Params, Value: line.Value}, nil
	}
	var c component
	switch strings.ToUpper(line.Value) {
	case ComponentVCalendar:
		return nil, structuralf("VCALENDAR not where expected")
	case ComponentVTodo:
		c = &VTodo{Params: line.Params}
	case ComponentVAlarm:
		c = &VAlarm{Params: line.Params}
	case ComponentVEvent:
		c = &VEvent{Params: line.Params}
	case ComponentVJournal:
		c = &VJournal{Params: line.Params}
	default:
		c = &UnknownComponent{Name: line.Value, Params: line.Params}
	}
	if err := parseComponent(lr, line, c); err != nil {
		return nil, err
	}
	return c, nil
}

// parseComponent fills c from lr until the END matching begin.
func parseComponent(lr *LineReader, begin ContentLine, c component) error {
	fields := c.fields()
	index := make(map[string]slot, len(fields))
	for _, f := range fields {
		index[f.name] = f.slot
	}
	for {
		line, err := lr.Next()
		if errors.Is(err, io.EOF) {
			return structuralf("missing END:%s", begin.Value)
		}
		if err != nil {
			return err
		}
		switch {
		case isEnd(line):
			if !strings.EqualFold(line.Value, begin.Value) {
				return structuralf("unexpected END:%s inside %s", line.Value, begin.Value)
			}
			return nil
		case isBegin(line):
			child, err := parseObject(lr, line)
			if err != nil {
				return err
			}
			if !c.adopt(child) {
				c.addUnknown(child)
			}
		default:
			s, ok := index[strings.ToUpper(line.Name)]
			if !ok {
				c.addUnknown(&UnknownProperty{Name: line.Name, Params: line.Params, Value: line.Value})
				continue
			}
			if err := s.parse(line.Value, line.Params); err != nil {
				var ce *CodecError
				if errors.As(err, &ce) {
					ce.Property = strings.ToUpper(line.Name)
				}
				return fmt.Errorf("line %d: %w", lr.Line(), err)
			}
		}
	}
}

func encodeComponent(e *encoder, name string, params Params, c component) {
	e.begin(name, params)
	for _, f := range c.fields() {
		f.slot.encode(f.name, e)
	}
	for _, child := range c.children() {
		child.encode(e)
	}
	e.end(name)
}
