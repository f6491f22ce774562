package askai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"text/template"
	"time"

	"sandwich/pkg/llm/config"
	"sandwich/pkg/sandwich"
)

const maxAttachmentBytes = 1 << 20

// textAttachmentTypes are the attachment MIME types read into prompts.
var textAttachmentTypes = map[string]struct{}{
	"text/plain":    {},
	"text/markdown": {},
	"text/x-python": {},
}

// promptError carries a reply for prompts that cannot be assembled.
type promptError struct {
	reply string
	cause error
}

func (e *promptError) Error() string {
	if e.cause == nil {
		return e.reply
	}

	return e.reply + ": " + e.cause.Error()
}

func (e *promptError) Unwrap() error {
	return e.cause
}

// buildPrompt joins the command text with every readable text attachment.
func (m *Module) buildPrompt(ctx context.Context, event *sandwich.Event) (string, error) {
	prompt := strings.TrimSpace(event.Command.Value)

	for _, media := range event.Message.Media {
		if !isTextAttachment(media) {
			continue
		}
		body, err := m.downloadAttachment(ctx, media)
		if err != nil {
			return "", &promptError{reply: fmt.Sprintf("Failed to read attachment %q.", media.FileName), cause: err}
		}
		prompt += "\n\n" + body
	}

	if strings.TrimSpace(prompt) == "" {
		return "", &promptError{reply: "Usage: !askai <prompt>"}
	}

	return prompt, nil
}

func isTextAttachment(media sandwich.MediaAttachment) bool {
	if media.URI == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(media.MIMEType)
	if err != nil {
		return false
	}
	_, ok := textAttachmentTypes[strings.ToLower(mediaType)]

	return ok
}

func (m *Module) downloadAttachment(ctx context.Context, media sandwich.MediaAttachment) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, media.URI, nil)
	if err != nil {
		return "", fmt.Errorf("download attachment %s: %w", media.ID, err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download attachment %s: %w", media.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download attachment %s: status %d", media.ID, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes+1))
	if err != nil {
		return "", fmt.Errorf("download attachment %s: %w", media.ID, err)
	}
	if len(body) > maxAttachmentBytes {
		return "", fmt.Errorf("download attachment %s: larger than %d bytes", media.ID, maxAttachmentBytes)
	}

	return string(body), nil
}

// renderSystemPrompt executes the profile's system prompt template for one event.
func renderSystemPrompt(profile config.TextProfile, event *sandwich.Event, now time.Time) (string, error) {
	tmpl, err := template.New("system_prompt").Option("missingkey=error").Parse(profile.SystemPromptTemplate)
	if err != nil {
		return "", fmt.Errorf("parse system prompt template: %w", err)
	}

	now = now.UTC()
	data := map[string]any{
		"Now":               now,
		"DateTimeUTC":       now.Format(time.RFC3339),
		"DateUTC":           now.Format("2006-01-02"),
		"TimeUTC":           now.Format("15:04:05"),
		"Platform":          string(event.Source.Platform),
		"ConversationID":    event.Conversation.ID,
		"ConversationTitle": event.Conversation.Title,
		"ActorUsername":     event.Actor.Username,
		"ActorDisplayName":  event.Actor.DisplayName,
		"ActorID":           event.Actor.ID,
		"TemplateVariables": profile.TemplateVariables,
	}
	for key, value := range profile.TemplateVariables {
		data[key] = value
	}

	var rendered bytes.Buffer
	if err := tmpl.Execute(&rendered, data); err != nil {
		return "", fmt.Errorf("execute system prompt template: %w", err)
	}

	result := strings.TrimSpace(rendered.String())
	if result == "" {
		return "", fmt.Errorf("rendered system prompt is empty")
	}

	return result, nil
}
