package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Mode controls the identifier shape of every post in a group.
type Mode string

const (
	ModeSlug      Mode = "slug"
	ModeTimestamp Mode = "timestamp"
)

var (
	dateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRegex = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// Identifier names a post within its group. It is either a SlugIdentifier or
// a TimestampIdentifier.
type Identifier interface {
	// Path is the identifier's directory path relative to the group.
	Path() string
	Mode() Mode
	isIdentifier()
}

// SlugIdentifier identifies a slug-mode post.
type SlugIdentifier struct {
	Slug string
}

func (s SlugIdentifier) Path() string { return s.Slug }
func (s SlugIdentifier) Mode() Mode   { return ModeSlug }
func (SlugIdentifier) isIdentifier()  {}

// TimestampIdentifier identifies a timestamp-mode post by date (YYYY-MM-DD)
// and time (HH:MM, 24 hour).
type TimestampIdentifier struct {
	Date string
	Time string
}

func (t TimestampIdentifier) Path() string { return t.Date + "/" + t.Time }
func (t TimestampIdentifier) Mode() Mode   { return ModeTimestamp }
func (TimestampIdentifier) isIdentifier()  {}

// IsDate reports whether s looks like YYYY-MM-DD.
func IsDate(s string) bool { return dateRegex.MatchString(s) }

// IsTime reports whether s looks like HH:MM.
func IsTime(s string) bool { return timeRegex.MatchString(s) }

// ParseIdentifier turns a group-relative path back into an identifier.
func ParseIdentifier(mode Mode, path string) (Identifier, error) {
	path = strings.Trim(path, "/")
	switch mode {
	case ModeSlug:
		if path == "" || strings.Contains(path, "/") {
			return nil, fmt.Errorf("invalid slug identifier %q", path)
		}
		return SlugIdentifier{Slug: path}, nil
	case ModeTimestamp:
		date, clock, ok := strings.Cut(path, "/")
		if !ok || !IsDate(date) || !IsTime(clock) {
			return nil, fmt.Errorf("invalid timestamp identifier %q", path)
		}
		return TimestampIdentifier{Date: date, Time: clock}, nil
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}
