package archivist

import (
	"strings"
	"testing"
)

func TestParseModelContentStripsCodeFencesAndTrailingCommas(t *testing.T) {
	raw := "```json\n{\"description\": \"a photo\", \"tags\": [\"portrait\",],}\n```"
	parsed := ParseModelContent(raw, 0)
	if parsed.Description != "a photo" {
		t.Fatalf("expected description to parse, got %q", parsed.Description)
	}
	if len(parsed.Tags) != 1 || parsed.Tags[0] != "portrait" {
		t.Fatalf("expected one tag 'portrait', got %v", parsed.Tags)
	}
}

func TestParseModelContentReturnsEmptyOnMalformedInput(t *testing.T) {
	parsed := ParseModelContent("not json at all", 0)
	if parsed.Description != "" || len(parsed.Tags) != 0 {
		t.Fatalf("expected empty ParsedContent, got %+v", parsed)
	}
}

func TestParseModelContentAcceptsExactlyMaxBytes(t *testing.T) {
	raw := `{"description": "fits"}`
	parsed := ParseModelContent(raw, int64(len(raw)))
	if parsed.Description != "fits" {
		t.Fatalf("expected content at exactly maxBytes to parse, got %+v", parsed)
	}
}

func TestParseModelContentRejectsOverMaxBytesInsteadOfTruncating(t *testing.T) {
	valid := `{"description": "fits"}`
	raw := valid + strings.Repeat("x", 50)
	parsed := ParseModelContent(raw, int64(len(valid)))
	if parsed.Description != "" || len(parsed.Tags) != 0 {
		t.Fatalf("expected oversized content to be rejected outright, got %+v", parsed)
	}
}

func TestNormalizeIntersectsTagsWithAllowList(t *testing.T) {
	parsed := ParsedContent{Tags: []string{"Portrait", "spaceship", "landscape"}}
	out := Normalize(parsed, []string{"portrait", "landscape"})
	if len(out.Tags) != 2 || out.Tags[0] != "portrait" || out.Tags[1] != "landscape" {
		t.Fatalf("expected only allow-listed tags, got %v", out.Tags)
	}
}

func TestNormalizeCapsKeywordsAtThirty(t *testing.T) {
	keywords := make([]string, 40)
	for i := range keywords {
		keywords[i] = "kw"
	}
	out := Normalize(ParsedContent{Keywords: keywords}, nil)
	if len(out.Keywords) != maxKeywords {
		t.Fatalf("expected keywords capped at %d, got %d", maxKeywords, len(out.Keywords))
	}
}
