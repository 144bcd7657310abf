package archivist

import (
	"fmt"
	"strings"

	"archivehub/internal/modelapi"
	"archivehub/internal/models"
)

const systemPrompt = `You are a digital archivist. Given an image, produce a JSON object describing it with the following shape:
{"description": string, "keywords": [string], "tags": [string], "spatial": {"location": string}, "temporal": {"era": string}}
Use only tags from the provided allowed-tag list. Respond with JSON only, no commentary.`

// BuildPromptMessages assembles the static system message and the dynamic
// user message carrying identifiers and the allowed-tag list, per spec
// section 4.7 step 3. The caller appends the image content block.
func BuildPromptMessages(job models.ArchivistJob, allowedTags []string) []modelapi.ChatMessage {
	userText := fmt.Sprintf(
		"tenant_id=%s asset_id=%s batch_id=%s\nAllowed tags: %s",
		job.TenantID, job.AssetID, job.BatchID, strings.Join(allowedTags, ", "),
	)
	return []modelapi.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userText},
	}
}
