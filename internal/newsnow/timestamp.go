package newsnow

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Timestamp wraps time.Time so wire values may be either a numeric epoch
// (seconds or milliseconds) or a parseable date string. Upstream sources are
// wildly inconsistent about this.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(t.UnixMilli(), 10)), nil
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		t.Time = time.Time{}
		return nil
	}

	parsed, ok := CoerceTime(s)
	if !ok {
		// Unparseable dates degrade to zero rather than failing the whole
		// item decode.
		t.Time = time.Time{}
		return nil
	}
	t.Time = parsed
	return nil
}

// Epoch values below this are treated as seconds, above as milliseconds.
// The cutover is ~2001-09 in ms and ~5138 in seconds, safely between them.
const msCutover = 1e11

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CoerceTime resolves the loosely-typed date values carried by fetchers:
// float64/int64 epochs (from JSON numbers), numeric strings, or any of the
// common date string layouts.
func CoerceTime(v any) (time.Time, bool) {
	switch v := v.(type) {
	case time.Time:
		return v, !v.IsZero()
	case Timestamp:
		return v.Time, !v.IsZero()
	case float64:
		return fromEpoch(int64(v)), v > 0
	case int64:
		return fromEpoch(v), v > 0
	case int:
		return fromEpoch(int64(v)), v > 0
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return fromEpoch(n), n > 0
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return fromEpoch(n), n > 0
		}
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, v); err == nil {
				return parsed, true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func fromEpoch(n int64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	if n >= msCutover {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}
