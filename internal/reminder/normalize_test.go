package reminder

import (
	"errors"
	"testing"
	"time"
)

func TestParseWhen(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		input string
		want  time.Time
	}{
		{
			name:  "rfc3339",
			input: "2026-09-01T09:00:00Z",
			want:  time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			name:  "rfc3339 with offset converts to utc",
			input: "2026-09-01T09:00:00+02:00",
			want:  time.Date(2026, 9, 1, 7, 0, 0, 0, time.UTC),
		},
		{
			name:  "date and time",
			input: "2026-09-01 09:00",
			want:  time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			name:  "date and time with seconds",
			input: "2026-09-01 09:00:30",
			want:  time.Date(2026, 9, 1, 9, 0, 30, 0, time.UTC),
		},
		{
			name:  "date only is midnight utc",
			input: "2026-09-01",
			want:  time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "bare time means today",
			input: "18:30",
			want:  time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC),
		},
		{
			name:  "dotted day first",
			input: "02.01.2027 10:00",
			want:  time.Date(2027, 1, 2, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "slashed day first",
			input: "02/01/2027 10:00",
			want:  time.Date(2027, 1, 2, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "surrounding whitespace",
			input: "  2026-09-01 09:00  ",
			want:  time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseWhen(tc.input, now)
			if err != nil {
				t.Fatalf("ParseWhen(%q) error: %v", tc.input, err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("ParseWhen(%q) = %v, want %v", tc.input, got, tc.want)
			}
			if got.Location() != time.UTC {
				t.Fatalf("ParseWhen(%q) location = %v, want UTC", tc.input, got.Location())
			}
		})
	}
}

func TestParseWhenRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "   ", "not a time", "25:99", "tomorrowish###"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseWhen(input, time.Now())
			if err == nil {
				t.Fatalf("ParseWhen(%q) succeeded, want ParseError", input)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("ParseWhen(%q) error = %T, want *ParseError", input, err)
			}
		})
	}
}

func TestParseWhenDoesNotValidateFuture(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	got, err := ParseWhen("2001-01-01 00:00", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Before(now) {
		t.Fatalf("expected a past instant, got %v", got)
	}
}
