package prices

import (
	"strings"
	"time"
)

// TimestampLayout is the format new rows are written with.
const TimestampLayout = "2006-01-02 15:04:05"

// LegacyTimestampLayout is the format found in older rows of the dataset.
// Month, day and hour may be written with or without a leading zero.
const LegacyTimestampLayout = "1/2/2006 15:04"

// lenientTimestampLayout reads writer-format rows that lost their zero
// padding, as spreadsheet round-trips tend to do.
const lenientTimestampLayout = "2006-1-2 15:04:05"

// TimeParser attempts to read an instant from a raw timestamp.
type TimeParser func(raw string) (time.Time, bool)

// LayoutParser builds a TimeParser for a zone-less layout, read as UTC.
func LayoutParser(layout string) TimeParser {
	return func(raw string) (time.Time, bool) {
		t, err := time.ParseInLocation(layout, raw, time.UTC)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
}

func rfc3339Parser(raw string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// DefaultParsers is the ordered chain used by Normalize. The dataset is
// append-only, so formats are only ever added here, never replaced.
var DefaultParsers = []TimeParser{
	LayoutParser(TimestampLayout),
	LayoutParser(lenientTimestampLayout),
	LayoutParser(LegacyTimestampLayout),
	rfc3339Parser,
}

// Normalize parses raw with DefaultParsers.
func Normalize(raw string) (time.Time, bool) {
	return NormalizeWith(raw, DefaultParsers...)
}

// NormalizeWith returns the instant from the first parser that accepts raw.
// Empty input or no match yields false.
func NormalizeWith(raw string, parsers ...TimeParser) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, parse := range parsers {
		if parse == nil {
			continue
		}
		if t, ok := parse(raw); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp renders t in the writer format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
