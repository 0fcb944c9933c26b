package ics

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	day  = 24 * time.Hour
	week = 7 * day
)

// Duration is a signed length of time. Days and weeks are nominal: a day is
// always 24 hours.
type Duration time.Duration

var (
	errEmptyDuration = errors.New("duration has no components")
	errDurationRange = errors.New("duration out of range")
)

// ParseDuration reads the RFC 5545 dur-value grammar. It is lenient about the
// order and combination of components, adding them all up, so that
// "P1W2D" and "PT90M" are accepted as well as the strict forms.
func ParseDuration(raw string) (Duration, error) {
	s := raw
	sign := time.Duration(1)
	switch {
	case strings.HasPrefix(s, "-"):
		sign = -1
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") {
		return 0, fmt.Errorf("duration %q: missing P designator", raw)
	}
	s = s[1:]

	var total time.Duration
	components := 0
	digits := ""
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits += string(r)
			continue
		}
		var unit time.Duration
		switch r {
		case 'T':
			if digits != "" {
				return 0, fmt.Errorf("duration %q: number without designator before T", raw)
			}
			continue
		case 'W':
			unit = week
		case 'D':
			unit = day
		case 'H':
			unit = time.Hour
		case 'M':
			unit = time.Minute
		case 'S':
			unit = time.Second
		default:
			return 0, fmt.Errorf("duration %q: unexpected %q", raw, r)
		}
		if digits == "" {
			return 0, fmt.Errorf("duration %q: designator %q without a number", raw, r)
		}
		n, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("duration %q: %w", raw, err)
		}
		if n > math.MaxInt64/int64(unit) {
			return 0, fmt.Errorf("duration %q: %w", raw, errDurationRange)
		}
		step := time.Duration(n) * unit
		if total > math.MaxInt64-step {
			return 0, fmt.Errorf("duration %q: %w", raw, errDurationRange)
		}
		total += step
		components++
		digits = ""
	}
	if digits != "" {
		return 0, fmt.Errorf("duration %q: trailing number without designator", raw)
	}
	if components == 0 {
		return 0, fmt.Errorf("duration %q: %w", raw, errEmptyDuration)
	}
	return Duration(sign * total), nil
}

// Serialize writes the week form only for exact multiples of a week,
// otherwise days followed by a time part. A zero duration is written PT0S.
func (d Duration) Serialize() string {
	total := time.Duration(d)
	if total == 0 {
		return "PT0S"
	}
	var b strings.Builder
	if total < 0 {
		b.WriteByte('-')
		total = -total
	}
	b.WriteByte('P')
	if total%week == 0 {
		fmt.Fprintf(&b, "%dW", total/week)
		return b.String()
	}
	if days := total / day; days > 0 {
		fmt.Fprintf(&b, "%dD", days)
	}
	rest := total % day
	if rest == 0 {
		return b.String()
	}
	hours := rest / time.Hour
	minutes := rest % time.Hour / time.Minute
	seconds := rest % time.Minute / time.Second
	b.WriteByte('T')
	fmt.Fprintf(&b, "%dH", hours)
	if minutes > 0 || seconds > 0 {
		fmt.Fprintf(&b, "%dM", minutes)
	}
	if seconds > 0 {
		fmt.Fprintf(&b, "%dS", seconds)
	}
	return b.String()
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return d.Serialize() }
