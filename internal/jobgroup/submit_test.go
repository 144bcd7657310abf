package jobgroup

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONLLineMarshalsExpectedShape(t *testing.T) {
	line := jsonlLine{
		CustomID: "asset-abc123",
		Method:   "POST",
		URL:      "/v1/chat/completions",
		Body: map[string]any{
			"model":    "gpt-test",
			"messages": []map[string]string{{"role": "user", "content": "describe asset abc123"}},
		},
	}
	encoded, err := json.Marshal(line)
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}
	if !strings.Contains(string(encoded), `"custom_id":"asset-abc123"`) {
		t.Fatalf("expected custom_id in encoded line, got %s", encoded)
	}
	if !strings.Contains(string(encoded), `"url":"/v1/chat/completions"`) {
		t.Fatalf("expected url in encoded line, got %s", encoded)
	}
}

func TestWebhookNotifierNoOpWithoutURL(t *testing.T) {
	n := newWebhookNotifier("", nil)
	// notify must return without panicking or dereferencing the nil logger
	// when url is empty, since it returns before ever touching it.
	n.notify(nil, "jobgroup.created", map[string]any{"id": "jg-1"})
}
