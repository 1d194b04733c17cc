package reminder

import (
	"fmt"
	"strings"
	"time"

	"github.com/nleeper/goment"
)

// ParseError reports user input that no known time format matched.
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse time %q", e.Input)
}

// Explicit layouts are tried before the permissive fallback so that
// ambiguous day/month input stays deterministic (DD/MM, never MM/DD).
var explicitLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	"02.01.2006 15:04",
	"02/01/2006 15:04",
	"02.01.2006",
	"02/01/2006",
}

// ParseWhen turns human-entered date/time text into an absolute UTC instant.
//
// Input without an explicit offset is assumed to be UTC; input with an offset
// is converted to UTC. A bare "HH:MM" means that time today (UTC), relative
// to now. ParseWhen does NOT check that the result is in the future; that is
// a separate validation so callers can tell "bad format" from "past time".
func ParseWhen(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, &ParseError{Input: text}
	}

	if t, err := time.Parse("15:04", text); err == nil {
		n := now.UTC()
		return time.Date(n.Year(), n.Month(), n.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), nil
	}

	for _, layout := range explicitLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC(), nil
		}
	}

	// Permissive fallback. The instant is rebuilt from the parsed calendar
	// components so that offset-less input is read as UTC wall-clock time,
	// not the host's local time.
	g, err := goment.New(text)
	if err != nil {
		return time.Time{}, &ParseError{Input: text}
	}
	return time.Date(g.Year(), time.Month(g.Month()), g.Date(),
		g.Hour(), g.Minute(), g.Second(), g.Nanosecond(), time.UTC), nil
}
