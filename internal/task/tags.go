package task

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/phrazzld/scry-notes/internal/store"
)

var (
	tagListPrefix = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[.)])\s*`)
	tagSplitter   = regexp.MustCompile(`[,\n;]+`)
)

// ParseTags extracts at most max tags from a provider response. A JSON array
// of strings is accepted; otherwise the text is split on commas, semicolons
// and newlines with list markers removed.
func ParseTags(response string, max int) []string {
	response = strings.TrimSpace(response)

	var raw []string
	if start, end := strings.Index(response, "["), strings.LastIndex(response, "]"); start >= 0 && end > start {
		if err := json.Unmarshal([]byte(response[start:end+1]), &raw); err != nil {
			raw = nil
		}
	}
	if raw == nil {
		for _, part := range tagSplitter.Split(response, -1) {
			part = tagListPrefix.ReplaceAllString(part, "")
			raw = append(raw, strings.Trim(part, " \t\"'`[]"))
		}
	}

	tags := store.NormalizeTags(raw)
	if max > 0 && len(tags) > max {
		tags = tags[:max]
	}
	return tags
}
