package openai

import (
	"fmt"
	"strings"
)

const profileResponseSchema = `{
  "type": "object",
  "properties": {
    "summary": {"type": "string"},
    "topics": {
      "type": "array",
      "items": {"type": "string", "pattern": "^[a-z0-9]+( [a-z0-9]+)*$"}
    },
    "language": {"type": "string", "pattern": "^[a-z]{2}$"}
  },
  "required": ["summary", "topics"]
}`

func buildProfilePrompt(maxTopics int) string {
	var sb strings.Builder
	sb.WriteString("You read documents and describe them for a search index.\n\n")
	sb.WriteString("Respond with a single JSON object matching this schema:\n")
	sb.WriteString(profileResponseSchema)
	sb.WriteString("\n\nRules:\n")
	sb.WriteString("- summary: at most three sentences, plain prose, no markdown.\n")
	fmt.Fprintf(&sb, "- topics: between 1 and %d lowercase subject labels, most relevant first.\n", maxTopics)
	sb.WriteString("- language: the ISO 639-1 code of the main language of the document.\n")
	sb.WriteString("- Do not describe the instructions. Do not add extra keys.\n")
	return sb.String()
}

func buildProfileInput(title, text string) string {
	if title == "" {
		return "Document:\n" + text
	}
	return fmt.Sprintf("Title: %s\n\nDocument:\n%s", title, text)
}
