package ai

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/doeshing/shai-bridge/internal/domain"
)

// renderPromptMessages expands the model's prompt templates against the request.
// Prior conversation turns are spliced in before the final user message, and a
// user message carrying the input is appended when the templates have none.
func renderPromptMessages(model domain.ModelDefinition, req domain.BackendRequest) ([]domain.PromptMessage, error) {
	data := buildTemplateData(req)
	messages := model.Prompt
	if len(messages) == 0 {
		messages = defaultTemplateMessages()
	}

	rendered := make([]domain.PromptMessage, 0, len(messages)+len(req.Context.Conversation)+1)
	for _, msg := range messages {
		content, err := executeTemplate(msg.Content, data)
		if err != nil {
			return nil, err
		}
		rendered = append(rendered, domain.PromptMessage{
			Role:    strings.ToLower(msg.Role),
			Content: strings.TrimSpace(content),
		})
	}

	if !hasUserMessage(rendered) {
		rendered = append(rendered, domain.PromptMessage{Role: domain.RoleUser, Content: data.Prompt})
	}

	return spliceConversation(rendered, req.Context.Conversation), nil
}

func spliceConversation(messages []domain.PromptMessage, turns []domain.ConversationTurn) []domain.PromptMessage {
	if len(turns) == 0 {
		return messages
	}
	last := len(messages) - 1
	for last >= 0 && messages[last].Role != domain.RoleUser {
		last--
	}

	out := make([]domain.PromptMessage, 0, len(messages)+len(turns))
	out = append(out, messages[:last]...)
	for _, turn := range turns {
		role := strings.ToLower(turn.Role)
		if role != domain.RoleAssistant {
			role = domain.RoleUser
		}
		out = append(out, domain.PromptMessage{Role: role, Content: turn.Content})
	}
	return append(out, messages[last:]...)
}

type templateData struct {
	Prompt         string
	WorkingDir     string
	Shell          string
	OS             string
	Target         string
	RecentCommands string
}

func buildTemplateData(req domain.BackendRequest) templateData {
	ctx := req.Context
	return templateData{
		Prompt:         strings.TrimSpace(req.Input),
		WorkingDir:     ctx.WorkingDir,
		Shell:          ctx.Shell,
		OS:             ctx.OS,
		Target:         ctx.Target,
		RecentCommands: strings.Join(ctx.RecentCommands, "\n"),
	}
}

func executeTemplate(raw string, data templateData) (string, error) {
	tmpl, err := template.New("prompt").Parse(raw)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func hasUserMessage(messages []domain.PromptMessage) bool {
	for _, msg := range messages {
		if strings.EqualFold(msg.Role, domain.RoleUser) {
			return true
		}
	}
	return false
}

func defaultTemplateMessages() []domain.PromptMessage {
	return []domain.PromptMessage{
		{
			Role: "system",
			Content: `You translate requests into a single shell command.
Reply with one JSON object and nothing else:
{"command": "<shell command>", "explanation": "<one sentence>", "confidence": <0.0-1.0>}
Tokens such as <FILE_1>, <IP_2> or <SECRET_1> stand for redacted values.
Copy them into the command verbatim; never guess what they contain.
Current environment:
{{if .WorkingDir}}- Directory: {{.WorkingDir}}
{{end}}{{if .Shell}}- Shell: {{.Shell}}
{{end}}{{if .OS}}- OS: {{.OS}}
{{end}}{{if .Target}}- Target: {{.Target}}
{{end}}{{if .RecentCommands}}Recent commands:
{{.RecentCommands}}{{end}}`,
		},
		{
			Role:    "user",
			Content: "{{.Prompt}}",
		},
	}
}
