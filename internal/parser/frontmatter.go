package parser

import (
	"strconv"
	"strings"

	"github.com/starford/recall/internal/models"
)

const fmDelim = "---"

// fmSpan locates a YAML frontmatter block. Leading blank lines are allowed
// before the opening delimiter and lines may end in "\n" or "\r\n".
type fmSpan struct {
	yamlStart int    // first byte after the opening delimiter line
	closeAt   int    // first byte of the closing delimiter line
	eol       string // line ending of the opening delimiter
}

// findFrontmatter reports where the frontmatter of text lies. Both Parse and
// SetSchedule go through it so they agree on what counts as a header.
func findFrontmatter(text string) (fmSpan, bool) {
	start := len(text) - len(strings.TrimLeft(text, "\r\n"))
	rest := text[start:]
	if !strings.HasPrefix(rest, fmDelim) {
		return fmSpan{}, false
	}
	var eol string
	switch {
	case strings.HasPrefix(rest[len(fmDelim):], "\r\n"):
		eol = "\r\n"
	case strings.HasPrefix(rest[len(fmDelim):], "\n"):
		eol = "\n"
	default:
		return fmSpan{}, false
	}

	yamlStart := start + len(fmDelim) + len(eol)
	block := text[yamlStart:]
	if strings.HasPrefix(block, fmDelim) {
		return fmSpan{yamlStart: yamlStart, closeAt: yamlStart, eol: eol}, true
	}
	idx := strings.Index(block, "\n"+fmDelim)
	if idx < 0 {
		return fmSpan{}, false
	}
	return fmSpan{yamlStart: yamlStart, closeAt: yamlStart + idx + 1, eol: eol}, true
}

// lineEnding returns the line ending used by the first line of text.
func lineEnding(text string) string {
	if i := strings.IndexByte(text, '\n'); i > 0 && text[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}

// SetSchedule writes the sr-due, sr-interval and sr-ease keys into the
// frontmatter of data. Existing keys are replaced in place; missing keys are
// appended before the closing delimiter. A document without frontmatter gets
// a new block followed by a blank line. Inserted lines use the document's
// line ending and everything else is left untouched.
func SetSchedule(data []byte, due string, interval, ease int) []byte {
	fields := [][2]string{
		{models.KeyDue, due},
		{models.KeyInterval, strconv.Itoa(interval)},
		{models.KeyEase, strconv.Itoa(ease)},
	}
	text := string(data)

	sp, ok := findFrontmatter(text)
	if !ok {
		eol := lineEnding(text)
		var sb strings.Builder
		sb.WriteString(fmDelim + eol)
		for _, f := range fields {
			sb.WriteString(f[0] + ": " + f[1] + eol)
		}
		sb.WriteString(fmDelim + eol + eol)
		sb.WriteString(text)
		return []byte(sb.String())
	}

	lines := strings.SplitAfter(text[sp.yamlStart:sp.closeAt], "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	written := make([]bool, len(fields))
	for i, line := range lines {
		for j, f := range fields {
			if strings.HasPrefix(line, f[0]+":") {
				lines[i] = f[0] + ": " + f[1] + sp.eol
				written[j] = true
			}
		}
	}
	for j, f := range fields {
		if !written[j] {
			lines = append(lines, f[0]+": "+f[1]+sp.eol)
		}
	}

	return []byte(text[:sp.yamlStart] + strings.Join(lines, "") + text[sp.closeAt:])
}
