// Package parser extracts frontmatter, weighted links, tags, headings and
// review schedule fields from Markdown content.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/recall/internal/models"
)

var (
	wikilinkRe = regexp.MustCompile(`!?\[\[(.*?)\]\]`)
	mdLinkRe   = regexp.MustCompile(`\[[^\]]*\]\(([^)\s]+)(?:\s+"[^"]*")?\)`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	headingRe  = regexp.MustCompile(`^(#{1,6})[ \t]+(.+)$`)
)

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	Links       []models.Link
	Tags        []string
	Headings    []models.Heading
	Schedule    models.ScheduleFields
	Title       string
}

// Parse extracts frontmatter, body, links, tags and headings from raw
// Markdown bytes. Heading offsets index into data, not Body.
func Parse(data []byte) (*Result, error) {
	fm, body, bodyStart, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Links:       extractLinks(body),
		Tags:        extractTags(body, fm),
		Headings:    extractHeadings(data, bodyStart),
		Schedule:    scheduleFields(fm),
		Title:       deriveTitle(fm, body),
	}, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body and reports where the body starts in data. If no
// frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]interface{}, string, int, error) {
	text := string(data)
	sp, ok := findFrontmatter(text)
	if !ok {
		return nil, text, 0, nil
	}

	body := strings.TrimLeft(text[sp.closeAt+len(fmDelim):], "\r\n")
	bodyStart := len(text) - len(body)

	var fm map[string]interface{}
	if err := yaml.Unmarshal([]byte(text[sp.yamlStart:sp.closeAt]), &fm); err != nil {
		// Invalid YAML: keep everything as body.
		return nil, text, 0, nil
	}

	return fm, body, bodyStart, nil
}

// extractLinks returns link targets in first-seen order with the number of
// times each is referenced. Wikilinks, embeds and relative Markdown links
// all count.
func extractLinks(body string) []models.Link {
	counts := make(map[string]int)
	var order []string
	add := func(target string) {
		target = strings.TrimSpace(target)
		if target == "" {
			return
		}
		if counts[target] == 0 {
			order = append(order, target)
		}
		counts[target]++
	}

	for _, m := range wikilinkRe.FindAllStringSubmatch(body, -1) {
		target := m[1]
		// [[Target|Alias]], [[Target#Heading]] and [[Target^block]] all point at Target.
		if i := strings.IndexAny(target, "|#^"); i >= 0 {
			target = target[:i]
		}
		add(target)
	}
	for _, m := range mdLinkRe.FindAllStringSubmatch(body, -1) {
		target := m[1]
		if strings.Contains(target, "://") || strings.HasPrefix(target, "mailto:") {
			continue
		}
		if i := strings.Index(target, "#"); i >= 0 {
			target = target[:i]
		}
		if dec, err := url.PathUnescape(target); err == nil {
			target = dec
		}
		add(target)
	}

	out := make([]models.Link, 0, len(order))
	for _, t := range order {
		out = append(out, models.Link{Target: t, Count: counts[t]})
	}
	return out
}

// extractTags collects #tags from body and from the frontmatter "tags" field.
// Tags are returned without the leading '#'.
func extractTags(body string, fm map[string]interface{}) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		s = strings.TrimPrefix(strings.TrimSpace(s), "#")
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	if fm != nil {
		switch v := fm["tags"].(type) {
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		case string:
			for _, s := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
				add(s)
			}
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// extractHeadings returns ATX headings from data[start:] in document order,
// skipping fenced code blocks.
func extractHeadings(data []byte, start int) []models.Heading {
	var out []models.Heading
	var fence string
	off := start
	for off < len(data) {
		end := bytes.IndexByte(data[off:], '\n')
		next := len(data)
		if end >= 0 {
			next = off + end + 1
			end = off + end
		} else {
			end = len(data)
		}
		line := strings.TrimRight(string(data[off:end]), "\r")
		trimmed := strings.TrimLeft(line, " ")

		switch {
		case fence != "":
			if strings.HasPrefix(trimmed, fence) {
				fence = ""
			}
		case strings.HasPrefix(trimmed, "```"):
			fence = "```"
		case strings.HasPrefix(trimmed, "~~~"):
			fence = "~~~"
		default:
			if m := headingRe.FindStringSubmatch(line); m != nil {
				text := strings.TrimSpace(strings.TrimRight(m[2], "#"))
				if text == "" {
					text = strings.TrimSpace(m[2])
				}
				out = append(out, models.Heading{Offset: off, Level: len(m[1]), Text: text})
			}
		}
		off = next
	}
	return out
}

// scheduleFields reads the sr-* keys from frontmatter.
func scheduleFields(fm map[string]interface{}) models.ScheduleFields {
	var f models.ScheduleFields
	if fm == nil {
		return f
	}
	if v, ok := fm[models.KeyDue]; ok && v != nil {
		switch d := v.(type) {
		case time.Time:
			f.Due = d.Format("2006-01-02")
		default:
			f.Due = fmt.Sprint(d)
		}
		f.HasDue = true
	}
	f.Interval, f.HasInterval = number(fm[models.KeyInterval])
	f.Ease, f.HasEase = number(fm[models.KeyEase])
	return f
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]interface{}, body string) string {
	if fm != nil {
		if s, ok := fm["title"].(string); ok && s != "" {
			return s
		}
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
