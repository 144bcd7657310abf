package archivist

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ParsedContent is the raw shape extracted from the model's response
// before allow-list normalization.
type ParsedContent struct {
	Description string         `json:"description"`
	Keywords    []string       `json:"keywords"`
	Tags        []string       `json:"tags"`
	Spatial     map[string]any `json:"spatial"`
	Temporal    map[string]any `json:"temporal"`
}

var codeFenceRE = regexp.MustCompile("```(?:json)?")
var trailingCommaRE = regexp.MustCompile(`,\s*([\]}])`)

// ParseModelContent extracts and parses a JSON object embedded in the
// model's raw message content, per spec section 4.7 step 5: bound the
// input, strip code fences and trailing commas, slice between the first
// `{` and last `}`, and parse. Any failure yields an empty ParsedContent
// rather than an error -- the archivist pipeline never fails on a
// malformed model response. Content over maxBytes is rejected outright,
// not truncated -- slicing could cut oversized content down to exactly a
// valid, smaller JSON object and silently accept it.
func ParseModelContent(content string, maxBytes int64) ParsedContent {
	if maxBytes > 0 && int64(len(content)) > maxBytes {
		return ParsedContent{}
	}
	cleaned := codeFenceRE.ReplaceAllString(content, "")
	cleaned = trailingCommaRE.ReplaceAllString(cleaned, "$1")

	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start < 0 || end < 0 || end < start {
		return ParsedContent{}
	}
	slice := cleaned[start : end+1]

	var parsed ParsedContent
	if err := json.Unmarshal([]byte(slice), &parsed); err != nil {
		return ParsedContent{}
	}
	return parsed
}

const maxKeywords = 30

// Normalize intersects tags with the allow-list, caps keywords, and
// coerces the spatial/temporal blocks, per spec section 4.7 step 6.
func Normalize(parsed ParsedContent, allowedTags []string) ParsedContent {
	allowed := make(map[string]bool, len(allowedTags))
	for _, t := range allowedTags {
		allowed[strings.ToLower(strings.TrimSpace(t))] = true
	}

	tags := make([]string, 0, len(parsed.Tags))
	for _, t := range parsed.Tags {
		if norm := strings.ToLower(strings.TrimSpace(t)); allowed[norm] {
			tags = append(tags, norm)
		}
	}

	keywords := normalizeStrings(parsed.Keywords)
	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}

	return ParsedContent{
		Description: strings.TrimSpace(parsed.Description),
		Keywords:    keywords,
		Tags:        tags,
		Spatial:     coerceBlock(parsed.Spatial),
		Temporal:    coerceBlock(parsed.Temporal),
	}
}

func normalizeStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func coerceBlock(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
