package config

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Infinite is the sentinel duration for "never". It is accepted wherever a
// duration is and spelled inf, infinite, never or forever in configuration.
const Infinite = time.Duration(math.MaxInt64)

var phrase = regexp.MustCompile(`^(-?[0-9]+(?:\.[0-9]+)?)\s*([a-zµ]+)$`)

var units = map[string]time.Duration{
	"ns": time.Nanosecond, "nano": time.Nanosecond, "nanos": time.Nanosecond,
	"nanosecond": time.Nanosecond, "nanoseconds": time.Nanosecond,
	"us": time.Microsecond, "µs": time.Microsecond, "micro": time.Microsecond, "micros": time.Microsecond,
	"microsecond": time.Microsecond, "microseconds": time.Microsecond,
	"ms": time.Millisecond, "milli": time.Millisecond, "millis": time.Millisecond,
	"millisecond": time.Millisecond, "milliseconds": time.Millisecond,
	"s": time.Second, "sec": time.Second, "secs": time.Second,
	"second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute,
	"minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour,
	"hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
}

// ParseDuration converts a configuration value into a duration.
//
// Accepted forms: a time.Duration, Go duration strings ("5s", "1m30s"),
// unit phrases ("5 seconds", "250 ms", "2 days"), plain numbers (taken as
// milliseconds) and the infinite spellings.
func ParseDuration(raw any) (time.Duration, error) {
	switch v := raw.(type) {
	case time.Duration:
		return v, nil
	case string:
		return parseDurationString(v)
	case fmt.Stringer:
		return parseDurationString(v.String())
	}

	ms, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, fmt.Errorf("config: unsupported duration %v (%T)", raw, raw)
	}
	return scale(ms, time.Millisecond)
}

func parseDurationString(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return 0, fmt.Errorf("config: empty duration")
	case "inf", "infinite", "infinity", "never", "forever":
		return Infinite, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return scale(n, time.Millisecond)
	}

	m := phrase.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("config: malformed duration %q", s)
	}
	unit, ok := units[m[2]]
	if !ok {
		return 0, fmt.Errorf("config: unknown duration unit %q", m[2])
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("config: malformed duration %q: %w", s, err)
	}
	return scale(n, unit)
}

func scale(n float64, unit time.Duration) (time.Duration, error) {
	d := n * float64(unit)
	if math.IsNaN(d) || d >= math.MaxInt64 || d <= math.MinInt64 {
		return 0, fmt.Errorf("config: duration %v out of range", n)
	}
	return time.Duration(d), nil
}
