package jobgroup

import (
	"encoding/json"
	"testing"
)

func TestSplitNonEmptyLinesDropsBlankLines(t *testing.T) {
	data := []byte("line-one\n\n  \nline-two\n")
	lines := splitNonEmptyLines(data)
	if len(lines) != 2 {
		t.Fatalf("expected 2 non-empty lines, got %d", len(lines))
	}
	if string(lines[0]) != "line-one" || string(lines[1]) != "line-two" {
		t.Fatalf("unexpected line contents: %q", lines)
	}
}

func TestOutputLineParsesSuccessRecord(t *testing.T) {
	raw := `{"custom_id":"asset-abc123","response":{"body":{"choices":[{"message":{"content":"hello"}}]}}}`
	var line outputLine
	if err := json.Unmarshal([]byte(raw), &line); err != nil {
		t.Fatalf("unexpected unmarshal error: %v", err)
	}
	if line.CustomID != "asset-abc123" {
		t.Fatalf("unexpected custom_id: %q", line.CustomID)
	}
	if line.Error != nil {
		t.Fatalf("expected no error field, got %+v", line.Error)
	}
	if len(line.Response.Body.Choices) != 1 || line.Response.Body.Choices[0].Message.Content != "hello" {
		t.Fatalf("unexpected response content: %+v", line.Response)
	}
}

func TestOutputLineParsesErrorRecord(t *testing.T) {
	raw := `{"custom_id":"asset-xyz","error":{"message":"rate limited"}}`
	var line outputLine
	if err := json.Unmarshal([]byte(raw), &line); err != nil {
		t.Fatalf("unexpected unmarshal error: %v", err)
	}
	if line.Error == nil || line.Error.Message != "rate limited" {
		t.Fatalf("expected error message to parse, got %+v", line.Error)
	}
}
