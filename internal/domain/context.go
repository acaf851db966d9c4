package domain

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn is one prior exchange forwarded to the reasoning backend.
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CommandContext describes where the command will run and what came before it.
type CommandContext struct {
	WorkingDir     string             `json:"working_dir,omitempty"`
	Shell          string             `json:"shell,omitempty"`
	OS             string             `json:"os,omitempty"`
	Target         string             `json:"target,omitempty"`
	RecentCommands []string           `json:"recent_commands,omitempty"`
	Conversation   []ConversationTurn `json:"conversation,omitempty"`
}

// LastTurns returns at most n trailing conversation turns.
func (c CommandContext) LastTurns(n int) []ConversationTurn {
	if n <= 0 || len(c.Conversation) <= n {
		return c.Conversation
	}
	return c.Conversation[len(c.Conversation)-n:]
}
