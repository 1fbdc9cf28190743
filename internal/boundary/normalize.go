// Package boundary normalizes loosely-typed values arriving at the
// gateway's message boundary. The browser-extension agents on the other
// end of a websocket connection are JavaScript, where a number, a date,
// and a boolean all happily round-trip as a string, a numeric
// timestamp, or one of several truthy spellings. Rather than trust the
// wire shape, every dynamic field is run through an explicit converter
// here before it reaches domain code.
package boundary

import (
	"strconv"
	"strings"
	"time"
)

// ToNumber converts v to a float64. Empty string and nil both mean
// "no value" and return (0, false). A value that cannot be parsed as a
// number also returns (0, false).
func ToNumber(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// ToDate converts v to a time.Time. Accepts a RFC3339 string or a Unix
// timestamp (seconds, as a JSON number or numeric string). Empty string
// and nil both mean "no value" and return (zero, false).
func ToDate(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		if parsed, err := time.Parse(time.RFC3339, s); err == nil {
			return parsed.UTC(), true
		}
		if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC(), true
		}
		return time.Time{}, false
	case float64:
		return time.Unix(int64(t), 0).UTC(), true
	case int64:
		return time.Unix(t, 0).UTC(), true
	default:
		return time.Time{}, false
	}
}

// truthy is the exact closed set of spellings ToBoolean treats as true,
// case-insensitively.
var truthy = map[string]bool{"yes": true, "y": true, "1": true, "true": true}

// ToBoolean converts v to a bool. Empty string and nil both map to
// false, per spec: there is no tri-state "unknown" here, only a
// definite "yes, this was one of the truthy spellings" or "no."
func ToBoolean(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		return truthy[strings.ToLower(strings.TrimSpace(t))]
	default:
		return false
	}
}
