package relay

import (
	"fmt"
	"strings"
)

// SummarizePrompt asks the assistant to summarise what it has retained.
const SummarizePrompt = "Summarize all the memories that you have"

const rememberSuffix = "Please remember this information for future queries about onboarding, meetings, and project context."

// UploadText wraps an uploaded text document for submission.
func UploadText(title, content string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Uploaded Content"
	}
	return fmt.Sprintf("Document: %s\n\n%s\n\n%s", title, strings.TrimSpace(content), rememberSuffix)
}
