package ingestion

import (
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/docflow/core"
)

// DocumentRequest ingests a file that needs text extraction.
type DocumentRequest struct {
	KnowledgeBaseID string `validate:"required"`
	SourceID        string
	Filename        string `validate:"required"`
	MimeType        string // Derived from Filename when empty
	Data            []byte `validate:"required,min=1"`
	SourceHash      string
	Title           string
	Metadata        map[string]string
	ForceReingest   bool
}

// TextRequest ingests text that needs no extraction.
type TextRequest struct {
	KnowledgeBaseID string `validate:"required"`
	SourceID        string
	Title           string
	Content         string `validate:"required"`
	SourceHash      string
	Metadata        map[string]string
	ForceReingest   bool
}

// ThreadMessage is one message of a conversation thread.
type ThreadMessage struct {
	Author string `validate:"required"`
	SentAt time.Time
	Body   string `validate:"required"`
}

// ThreadRequest ingests a conversation rendered to a single text body.
type ThreadRequest struct {
	KnowledgeBaseID string `validate:"required"`
	SourceID        string
	Title           string
	Messages        []ThreadMessage `validate:"required,min=1,dive"`
	SourceHash      string
	Metadata        map[string]string
	ForceReingest   bool
}

// EmailRequest ingests an email. It is processed synchronously.
type EmailRequest struct {
	KnowledgeBaseID string `validate:"required"`
	SourceID        string
	Subject         string
	Sender          string   `validate:"required"`
	Recipients      []string `validate:"dive,required"`
	SentAt          time.Time
	BodyText        string `validate:"required"`
	SourceHash      string
	Metadata        map[string]string
	ForceReingest   bool
}

// Result reports what an ingestion call did.
type Result struct {
	DocumentID string
	Status     core.ProcessingStatus
	Skipped    bool
	JobID      string // Empty when nothing was enqueued
}

// renderThread flattens messages into one text body, one paragraph per message.
func renderThread(messages []ThreadMessage) string {
	var sb strings.Builder
	for i, m := range messages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if m.SentAt.IsZero() {
			fmt.Fprintf(&sb, "%s:\n", m.Author)
		} else {
			fmt.Fprintf(&sb, "[%s] %s:\n", m.SentAt.UTC().Format(time.RFC3339), m.Author)
		}
		sb.WriteString(strings.TrimSpace(m.Body))
	}
	return sb.String()
}

// renderEmail builds the indexed text of an email with its headers.
func renderEmail(req *EmailRequest) string {
	var sb strings.Builder
	if req.Subject != "" {
		fmt.Fprintf(&sb, "Subject: %s\n", req.Subject)
	}
	fmt.Fprintf(&sb, "From: %s\n", req.Sender)
	if len(req.Recipients) > 0 {
		fmt.Fprintf(&sb, "To: %s\n", strings.Join(req.Recipients, ", "))
	}
	if !req.SentAt.IsZero() {
		fmt.Fprintf(&sb, "Date: %s\n", req.SentAt.UTC().Format(time.RFC1123Z))
	}
	sb.WriteString("\n")
	sb.WriteString(strings.TrimSpace(req.BodyText))
	return sb.String()
}

func mergeMetadata(base map[string]string, kv ...string) map[string]string {
	out := make(map[string]string, len(base)+len(kv)/2)
	for k, v := range base {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = kv[i+1]
	}
	return out
}
