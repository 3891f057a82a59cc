// Package cards locates flash-cards inside Markdown text, reads their
// embedded review metadata, derives a heading breadcrumb for each card and
// writes updated metadata back into the text.
//
// Two syntaxes are recognized:
//
//	Front::Back
//	<!--SR:2026-01-31,4,250-->
//
// and the multi-line form, where a lone "?" line separates two paragraphs:
//
//	Front paragraph
//	?
//	Back paragraph
//	<!--SR:2026-01-31,4,250-->
//
// The metadata comment is optional; cards without it are new.
package cards

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/starford/recall/internal/checksum"
	"github.com/starford/recall/internal/models"
	"github.com/starford/recall/internal/schedule"
)

// ContextSeparator joins heading texts in a card's breadcrumb.
const ContextSeparator = " > "

// ErrStaleCard is returned by Rewrite when the card text no longer appears
// in the document.
var ErrStaleCard = errors.New("cards: card text not found in document")

var (
	singleLineRe = regexp.MustCompile(`(?m)^(.+)::(.+?)(?:\n?<!--SR:(.+),(\d+),(\d+)-->|$)`)
	multiLineRe  = regexp.MustCompile(`(?m)^((?:.+\n)+)\?\n((?:.+\n)+?)(?:<!--SR:(.+),(\d+),(\d+)-->|$)`)
)

// Heading is a Markdown heading with its byte offset in the document.
type Heading = models.Heading

// Scheduled is the review state stored in a card's metadata comment.
type Scheduled struct {
	Due      time.Time `json:"due"`
	Interval int       `json:"interval"`
	Ease     int       `json:"ease"`
}

// Card is one reviewable front/back unit extracted from a document.
type Card struct {
	ID         string     `json:"id"`
	Path       string     `json:"path"`
	Front      string     `json:"front"`
	Back       string     `json:"back"`
	Context    string     `json:"context,omitempty"`
	SingleLine bool       `json:"single_line"`
	Schedule   *Scheduled `json:"schedule,omitempty"` // nil for new cards
	Match      string     `json:"-"`                  // raw matched text, replaced on rewrite
	Offset     int        `json:"-"`                  // byte offset of Match in the document
}

// IsNew reports whether the card has never been scheduled.
func (c Card) IsNew() bool {
	return c.Schedule == nil
}

// Options controls how metadata is written back.
type Options struct {
	// SameLineComment places the comment of single-line cards on the card
	// line instead of the next line.
	SameLineComment bool
}

// Extractor finds and rewrites cards.
type Extractor struct {
	opts Options
}

// New returns an Extractor.
func New(opts Options) *Extractor {
	return &Extractor{opts: opts}
}

// Extract returns the new and due cards found in text, single-line cards
// first, each group in document order. Cards whose stored due date lies after
// now are left out entirely. A stored due date that cannot be parsed counts
// as due now.
func (e *Extractor) Extract(path, text string, headings []Heading, now time.Time) []Card {
	var out []Card
	ids := make(map[string]int)

	scan := func(re *regexp.Regexp, src string, singleLine bool) {
		for _, m := range re.FindAllStringSubmatchIndex(src, -1) {
			start, end := m[0], min(m[1], len(text))
			c := Card{
				Path:       path,
				Front:      strings.TrimSpace(src[m[2]:m[3]]),
				Back:       strings.TrimSpace(src[m[4]:m[5]]),
				SingleLine: singleLine,
				Match:      text[start:end],
				Offset:     start,
			}
			if m[6] >= 0 {
				sched := parseScheduled(src[m[6]:m[7]], src[m[8]:m[9]], src[m[10]:m[11]], now)
				if sched.Due.After(now) {
					continue
				}
				c.Schedule = &sched
			}
			c.Context = Context(headings, start)
			c.ID = cardID(ids, path, c.Front, c.Back)
			out = append(out, c)
		}
	}

	scan(singleLineRe, text, true)
	// The multi-line form needs every paragraph line to end in a newline.
	multiSrc := text
	if !strings.HasSuffix(multiSrc, "\n") {
		multiSrc += "\n"
	}
	scan(multiLineRe, multiSrc, false)

	return out
}

func parseScheduled(due, interval, ease string, now time.Time) Scheduled {
	s := Scheduled{Due: now, Interval: 1}
	if t, err := schedule.ParseDue(due); err == nil {
		s.Due = t
	}
	if v, err := strconv.Atoi(interval); err == nil {
		s.Interval = v
	}
	if v, err := strconv.Atoi(ease); err == nil {
		s.Ease = v
	}
	return s
}

func cardID(seen map[string]int, path, front, back string) string {
	id := checksum.Short(path, front, back)
	n := seen[id]
	seen[id] = n + 1
	if n == 0 {
		return id
	}
	return fmt.Sprintf("%s-%d", id, n)
}

// Context returns the breadcrumb of headings enclosing offset. Headings must
// be in document order. A heading at exactly offset counts as enclosing.
func Context(headings []Heading, offset int) string {
	var stack []Heading
	for _, h := range headings {
		if h.Offset > offset {
			break
		}
		for len(stack) > 0 && stack[len(stack)-1].Level >= h.Level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, h)
	}

	parts := make([]string, len(stack))
	for i, h := range stack {
		parts[i] = h.Text
	}
	return strings.Join(parts, ContextSeparator)
}

// Comment renders the metadata comment for s.
func Comment(s Scheduled) string {
	return fmt.Sprintf("<!--SR:%s,%d,%d-->", schedule.FormatDue(s.Due), s.Interval, s.Ease)
}

// Serialize renders the card text carrying schedule s.
func (e *Extractor) Serialize(c Card, s Scheduled) string {
	var out string
	if c.SingleLine {
		sep := "\n"
		if e.opts.SameLineComment {
			sep = " "
		}
		out = c.Front + "::" + c.Back + sep + Comment(s)
	} else {
		out = c.Front + "\n?\n" + c.Back + "\n" + Comment(s)
	}
	// New multi-line cards match through the back's line break.
	if strings.HasSuffix(c.Match, "\n") {
		out += "\n"
	}
	return out
}

// Rewrite replaces the card's matched text in doc with its serialized form
// carrying s. It returns the new document and the change in length, which
// callers use to shift the offsets of later cards in the same document.
func (e *Extractor) Rewrite(doc string, c Card, s Scheduled) (string, int, error) {
	start := c.Offset
	end := start + len(c.Match)
	if start < 0 || end > len(doc) || doc[start:end] != c.Match {
		start = strings.Index(doc, c.Match)
		if c.Match == "" || start < 0 {
			return "", 0, fmt.Errorf("%w: %s", ErrStaleCard, c.Path)
		}
		end = start + len(c.Match)
	}
	repl := e.Serialize(c, s)
	return doc[:start] + repl + doc[end:], len(repl) - len(c.Match), nil
}
