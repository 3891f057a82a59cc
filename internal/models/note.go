// Package models defines the domain types shared across recall packages.
package models

import "time"

// Frontmatter keys holding a note's review schedule.
const (
	KeyDue      = "sr-due"
	KeyInterval = "sr-interval"
	KeyEase     = "sr-ease"
)

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Link is a directed, weighted reference from one note to a target.
// Count is the number of times the target is referenced.
type Link struct {
	Target string `json:"target"`
	Count  int    `json:"count"`
}

// Heading is a Markdown heading with its byte offset in the raw file.
type Heading struct {
	Offset int    `json:"offset"`
	Level  int    `json:"level"`
	Text   string `json:"text"`
}

// ScheduleFields holds the raw sr-* frontmatter values. A field is only
// meaningful when its Has flag is set.
type ScheduleFields struct {
	Due         string  `json:"due,omitempty"`
	Interval    float64 `json:"interval,omitempty"`
	Ease        float64 `json:"ease,omitempty"`
	HasDue      bool    `json:"-"`
	HasInterval bool    `json:"-"`
	HasEase     bool    `json:"-"`
}

// Complete reports whether all three schedule fields are present.
func (f ScheduleFields) Complete() bool {
	return f.HasDue && f.HasInterval && f.HasEase
}
