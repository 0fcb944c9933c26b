package ics

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	dateLayout     = "20060102"
	dateTimeLayout = "20060102T150405"
)

// Date is a calendar date without a time of day (RFC 5545 section 3.3.4).
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func ParseDate(raw string) (Date, error) {
	if len(raw) != len(dateLayout) {
		return Date{}, fmt.Errorf("date %q: expected YYYYMMDD", raw)
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return Date{}, fmt.Errorf("date: %w", err)
	}
	return NewDate(t), nil
}

func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) Serialize() string {
	return fmt.Sprintf("%04d%02d%02d", d.Year, int(d.Month), d.Day)
}

// DateTime is either a floating local time (no zone, RFC 5545 form #1) or a
// zoned instant. A value read with a TZID parameter or a trailing Z is always
// zoned. Floating values keep their wall clock in Time using time.UTC as a
// placeholder location.
//
// AllDay marks values written with VALUE=DATE; they serialize as YYYYMMDD.
type DateTime struct {
	Time     time.Time
	Floating bool
	AllDay   bool
}

// LocalDateTime builds a floating value from the wall clock of t.
func LocalDateTime(t time.Time) DateTime {
	return DateTime{
		Time:     time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC),
		Floating: true,
	}
}

// ZonedDateTime keeps t's location. Serializes with a Z suffix only when that
// location is UTC; otherwise the property must carry a matching TZID.
func ZonedDateTime(t time.Time) DateTime {
	return DateTime{Time: t.Truncate(time.Second)}
}

// UTCDateTime is the form used for DTSTAMP, CREATED and LAST-MODIFIED.
func UTCDateTime(t time.Time) DateTime {
	return ZonedDateTime(t.UTC())
}

func AllDayDateTime(d Date) DateTime {
	return DateTime{Time: d.In(time.UTC), Floating: true, AllDay: true}
}

func (dt DateTime) IsZoned() bool { return !dt.Floating }

func (dt DateTime) IsUTC() bool { return !dt.Floating && dt.Time.Location() == time.UTC }

// In resolves a floating value against loc. Zoned values are returned as is.
func (dt DateTime) In(loc *time.Location) time.Time {
	if !dt.Floating {
		return dt.Time
	}
	t := dt.Time
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
}

func (dt DateTime) Equal(o DateTime) bool {
	return dt.Floating == o.Floating &&
		dt.AllDay == o.AllDay &&
		dt.Time.Equal(o.Time) &&
		dt.Time.Location().String() == o.Time.Location().String()
}

func ParseDateTime(raw string, params Params) (DateTime, error) {
	var loc *time.Location
	if tzid, ok := params.Get("TZID"); ok {
		var err error
		if loc, err = LoadTimezone(tzid); err != nil {
			return DateTime{}, err
		}
	}
	if v, ok := params.Get("VALUE"); ok && strings.EqualFold(v, "DATE") {
		d, err := ParseDate(raw)
		if err != nil {
			return DateTime{}, err
		}
		if loc == nil {
			return AllDayDateTime(d), nil
		}
		return DateTime{Time: d.In(loc), AllDay: true}, nil
	}
	digits, utc := strings.CutSuffix(raw, "Z")
	if len(digits) != len(dateTimeLayout) {
		return DateTime{}, fmt.Errorf("date-time %q: expected YYYYMMDDTHHMMSS[Z]", raw)
	}
	switch {
	case loc != nil:
		t, err := time.ParseInLocation(dateTimeLayout, digits, loc)
		if err != nil {
			return DateTime{}, fmt.Errorf("date-time: %w", err)
		}
		// a wall clock skipped by a DST change comes back shifted
		if t.Format(dateTimeLayout) != digits {
			return DateTime{}, fmt.Errorf("date-time %q: does not exist in %s", raw, loc)
		}
		return DateTime{Time: t}, nil
	case utc:
		t, err := time.ParseInLocation(dateTimeLayout, digits, time.UTC)
		if err != nil {
			return DateTime{}, fmt.Errorf("date-time: %w", err)
		}
		return DateTime{Time: t}, nil
	default:
		t, err := time.ParseInLocation(dateTimeLayout, digits, time.UTC)
		if err != nil {
			return DateTime{}, fmt.Errorf("date-time: %w", err)
		}
		return DateTime{Time: t, Floating: true}, nil
	}
}

func (dt DateTime) Serialize() string {
	if dt.AllDay {
		return dt.Time.Format(dateLayout)
	}
	s := dt.Time.Format(dateTimeLayout)
	if dt.IsUTC() {
		s += "Z"
	}
	return s
}

// Map of common Windows timezone names to IANA timezone names. Exchange and
// Outlook write these into TZID.
var windowsToIANA = map[string]string{
	"Pacific Standard Time":          "America/Los_Angeles",
	"Mountain Standard Time":         "America/Denver",
	"Central Standard Time":          "America/Chicago",
	"Eastern Standard Time":          "America/New_York",
	"Atlantic Standard Time":         "America/Halifax",
	"Alaskan Standard Time":          "America/Anchorage",
	"Hawaiian Standard Time":         "Pacific/Honolulu",
	"GMT Standard Time":              "Europe/London",
	"W. Europe Standard Time":        "Europe/Berlin",
	"Romance Standard Time":          "Europe/Paris",
	"Central Europe Standard Time":   "Europe/Budapest",
	"E. Europe Standard Time":        "Europe/Chisinau",
	"China Standard Time":            "Asia/Shanghai",
	"Tokyo Standard Time":            "Asia/Tokyo",
	"India Standard Time":            "Asia/Kolkata",
	"AUS Eastern Standard Time":      "Australia/Sydney",
	"New Zealand Standard Time":      "Pacific/Auckland",
	"UTC":                            "UTC",
	"Coordinated Universal Time":     "UTC",
	"Greenwich Standard Time":        "Atlantic/Reykjavik",
	"E. South America Standard Time": "America/Sao_Paulo",
}

var timezones sync.Map // string -> *time.Location

// LoadTimezone resolves a TZID to a location. Windows zone names are mapped
// to their IANA equivalent first. Results are cached for the life of the
// process.
func LoadTimezone(tzid string) (*time.Location, error) {
	if loc, ok := timezones.Load(tzid); ok {
		return loc.(*time.Location), nil
	}
	name := strings.Trim(tzid, `"`)
	if iana, ok := windowsToIANA[name]; ok {
		name = iana
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", tzid, err)
	}
	timezones.Store(tzid, loc)
	return loc, nil
}
