package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// DueLayout is the persisted due-date format shared by frontmatter and card
// comments. It carries no locale-dependent parts.
const DueLayout = "2006-01-02"

// FormatDue renders t in the persisted due-date format.
func FormatDue(t time.Time) string {
	return t.Format(DueLayout)
}

// ParseDue parses a persisted due date in the local time zone. Dates written
// by older tools in other layouts are accepted through a lenient parser.
func ParseDue(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(DueLayout, s, time.Local); err == nil {
		return t, nil
	}
	t, err := dateparse.ParseIn(s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule: parse due %q: %w", s, err)
	}
	return t, nil
}
