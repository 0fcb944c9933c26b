package ics

import (
	"fmt"
	"strconv"
	"strings"
)

// Param is a single NAME=VALUE property parameter. Quoted values keep their
// surrounding double quotes.
type Param struct {
	Name  string
	Value string
}

// Params behaves like a map keyed by case-insensitive parameter name but
// remembers the order names were first seen so that a parsed line
// serializes back byte for byte.
type Params []Param

func (ps Params) Get(name string) (string, bool) {
	for _, p := range ps {
		if strings.EqualFold(p.Name, name) {
			return p.Value, true
		}
	}
	return "", false
}

// Set replaces the value of an existing parameter or appends a new one.
func (ps *Params) Set(name, value string) {
	for i := range *ps {
		if strings.EqualFold((*ps)[i].Name, name) {
			(*ps)[i].Value = value
			return
		}
	}
	*ps = append(*ps, Param{Name: name, Value: value})
}

func (ps *Params) Del(name string) {
	out := (*ps)[:0]
	for _, p := range *ps {
		if !strings.EqualFold(p.Name, name) {
			out = append(out, p)
		}
	}
	*ps = out
}

func (ps Params) Len() int { return len(ps) }

func (ps Params) Clone() Params {
	if ps == nil {
		return nil
	}
	return append(Params(nil), ps...)
}

func WithTZID(tzid string) Param { return Param{Name: "TZID", Value: tzid} }

func WithValueType(kind string) Param { return Param{Name: "VALUE", Value: kind} }

func WithCN(cn string) Param { return Param{Name: "CN", Value: cn} }

// Kind is the set of leaf value types a property can hold.
type Kind interface {
	Text | Integer | Date | DateTime | Duration
	Serialize() string
}

// Text is kept exactly as it appeared on the wire. Use FromText and ToText to
// move between the escaped and the logical form.
type Text string

func (t Text) Serialize() string { return string(t) }

func (t Text) String() string { return FromText(string(t)) }

type Integer int

func ParseInteger(raw string) (Integer, error) {
	i, err := strconv.Atoi(strings.TrimPrefix(raw, "+"))
	if err != nil {
		return 0, fmt.Errorf("integer: %w", err)
	}
	return Integer(i), nil
}

func (i Integer) Serialize() string { return strconv.Itoa(int(i)) }

// ParseValue parses raw according to the grammar of T. params carries the
// parameters of the property the value came from (TZID, VALUE).
func ParseValue[T Kind](raw string, params Params) (T, error) {
	var v T
	var err error
	switch p := any(&v).(type) {
	case *Text:
		*p = Text(raw)
	case *Integer:
		*p, err = ParseInteger(raw)
	case *Date:
		*p, err = ParseDate(raw)
	case *DateTime:
		*p, err = ParseDateTime(raw, params)
	case *Duration:
		*p, err = ParseDuration(raw)
	}
	if err != nil {
		return v, &CodecError{Value: raw, Err: err}
	}
	return v, nil
}

// Property is a typed value together with the parameters it was written
// with. A component field of type *Property[T] holds zero or one value,
// later lines overwriting earlier ones. A []Property[T] field holds every
// occurrence in document order.
type Property[T Kind] struct {
	Value  T
	Params Params
}

func NewProperty[T Kind](v T, params ...Param) *Property[T] {
	return &Property[T]{Value: v, Params: Params(params)}
}

// Get is safe to call on a nil property.
func (p *Property[T]) Get() (T, bool) {
	if p == nil {
		var zero T
		return zero, false
	}
	return p.Value, true
}

// Values flattens a multi-valued field.
func Values[T Kind](ps []Property[T]) []T {
	out := make([]T, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Value)
	}
	return out
}

// slot is one typed field of a component as seen by the generic parse and
// serialize loops.
type slot interface {
	parse(raw string, params Params) error
	encode(name string, e *encoder)
}

type optionalSlot[T Kind] struct{ p **Property[T] }

func (s optionalSlot[T]) parse(raw string, params Params) error {
	v, err := ParseValue[T](raw, params)
	if err != nil {
		return err
	}
	*s.p = &Property[T]{Value: v, Params: params}
	return nil
}

func (s optionalSlot[T]) encode(name string, e *encoder) {
	if p := *s.p; p != nil {
		e.property(name, p.Params, p.Value.Serialize())
	}
}

type multipleSlot[T Kind] struct{ p *[]Property[T] }

func (s multipleSlot[T]) parse(raw string, params Params) error {
	v, err := ParseValue[T](raw, params)
	if err != nil {
		return err
	}
	*s.p = append(*s.p, Property[T]{Value: v, Params: params})
	return nil
}

func (s multipleSlot[T]) encode(name string, e *encoder) {
	for _, p := range *s.p {
		e.property(name, p.Params, p.Value.Serialize())
	}
}

// field binds a wire name to a slot.
type field struct {
	name string
	slot slot
}

func opt[T Kind](name string, p **Property[T]) field {
	return field{name: name, slot: optionalSlot[T]{p}}
}

func mul[T Kind](name string, p *[]Property[T]) field {
	return field{name: name, slot: multipleSlot[T]{p}}
}

var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\n", `\n`,
	`;`, `\;`,
	`,`, `\,`,
)

// ToText escapes s for use as a TEXT value.
func ToText(s string) string {
	return textEscaper.Replace(s)
}

var textUnescaper = strings.NewReplacer(
	`\\`, `\`,
	`\n`, "\n",
	`\N`, "\n",
	`\;`, `;`,
	`\,`, `,`,
)

// FromText reverses ToText.
func FromText(s string) string {
	return textUnescaper.Replace(s)
}
