// Package knowledge turns provider output into a knowledge-base record.
// Structured parsing is best effort: when the response is not valid JSON the
// parser falls back to field extraction and finally to heuristics over the
// summary text, so a record is always produced.
package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/phrazzld/scry-notes/internal/domain"
)

// ErrParse is returned by ParseJSON when the response holds no usable record.
var ErrParse = errors.New("knowledge record could not be parsed")

const (
	maxTitleRunes   = 80
	maxPreviewRunes = 200
	dateLayout      = "2006-01-02"
)

var (
	codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	fieldRe     = map[string]*regexp.Regexp{
		"title":   regexp.MustCompile(`(?im)^\W*"?title"?\s*[:=]\s*"?([^"\n]+?)"?\s*,?\s*$`),
		"date":    regexp.MustCompile(`(?im)^\W*"?date"?\s*[:=]\s*"?([^"\n]*?)"?\s*,?\s*$`),
		"preview": regexp.MustCompile(`(?im)^\W*"?preview"?\s*[:=]\s*"?([^"\n]+?)"?\s*,?\s*$`),
	}
	isoDateRe    = regexp.MustCompile(`\b(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})\b`)
	markdownLead = regexp.MustCompile(`^[#>*\-\s]+`)
)

// Source identifies which parsing path produced a record.
type Source string

// Parsing paths, in order of preference.
const (
	SourceJSON      Source = "json"
	SourceFields    Source = "fields"
	SourceHeuristic Source = "heuristic"
)

type recordJSON struct {
	Title   string `json:"title"`
	Date    string `json:"date"`
	Preview string `json:"preview"`
}

// Parser extracts records from provider responses.
type Parser struct {
	now func() time.Time
}

// NewParser creates a Parser that stamps fallback records with today's date.
func NewParser() *Parser {
	return &Parser{now: time.Now}
}

// Parse returns a record for the response, falling back to heuristics over
// summary when the response is unusable. It never fails.
func (p *Parser) Parse(response, summary string) (domain.KnowledgeRecord, Source) {
	if rec, err := ParseJSON(response); err == nil {
		return p.complete(rec, summary), SourceJSON
	}

	if rec, ok := parseFields(response); ok {
		rec.Fallback = true
		return p.complete(rec, summary), SourceFields
	}

	rec := domain.KnowledgeRecord{Fallback: true}
	return p.complete(rec, summary), SourceHeuristic
}

// ParseJSON decodes a record from a response that may wrap the JSON object
// in a code fence or surrounding prose.
func ParseJSON(response string) (domain.KnowledgeRecord, error) {
	candidate := strings.TrimSpace(response)
	if m := codeFenceRe.FindStringSubmatch(candidate); m != nil {
		candidate = strings.TrimSpace(m[1])
	}
	if start, end := strings.Index(candidate, "{"), strings.LastIndex(candidate, "}"); start >= 0 && end > start {
		candidate = candidate[start : end+1]
	}

	var raw recordJSON
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return domain.KnowledgeRecord{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if strings.TrimSpace(raw.Title) == "" && strings.TrimSpace(raw.Preview) == "" {
		return domain.KnowledgeRecord{}, fmt.Errorf("%w: title and preview are empty", ErrParse)
	}

	return domain.KnowledgeRecord{
		Title:   strings.TrimSpace(raw.Title),
		Date:    strings.TrimSpace(raw.Date),
		Preview: strings.TrimSpace(raw.Preview),
	}, nil
}

func parseFields(response string) (domain.KnowledgeRecord, bool) {
	var rec domain.KnowledgeRecord
	if m := fieldRe["title"].FindStringSubmatch(response); m != nil {
		rec.Title = strings.TrimSpace(m[1])
	}
	if m := fieldRe["date"].FindStringSubmatch(response); m != nil {
		rec.Date = strings.TrimSpace(m[1])
	}
	if m := fieldRe["preview"].FindStringSubmatch(response); m != nil {
		rec.Preview = strings.TrimSpace(m[1])
	}
	return rec, rec.Title != "" || rec.Preview != ""
}

// complete fills missing fields from the summary and normalizes lengths.
func (p *Parser) complete(rec domain.KnowledgeRecord, summary string) domain.KnowledgeRecord {
	if rec.Title == "" {
		rec.Title = firstLine(summary)
	}
	if rec.Title == "" {
		rec.Title = "Untitled note"
	}
	rec.Title = truncate(rec.Title, maxTitleRunes)

	rec.Date = normalizeDate(rec.Date)
	if rec.Date == "" {
		rec.Date = normalizeDate(summary)
	}
	if rec.Date == "" {
		rec.Date = p.now().UTC().Format(dateLayout)
	}

	if rec.Preview == "" {
		rec.Preview = strings.Join(strings.Fields(summary), " ")
	}
	rec.Preview = truncate(rec.Preview, maxPreviewRunes)
	return rec
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(markdownLead.ReplaceAllString(line, ""))
		if line != "" {
			return line
		}
	}
	return ""
}

// normalizeDate finds the first y-m-d date in s and formats it as YYYY-MM-DD.
func normalizeDate(s string) string {
	m := isoDateRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	t, err := time.Parse("2006-1-2", m[1]+"-"+m[2]+"-"+m[3])
	if err != nil {
		return ""
	}
	return t.Format(dateLayout)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}
