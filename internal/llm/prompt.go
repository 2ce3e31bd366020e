package llm

import "strings"

// Roles a conversation turn can carry. Anything other than RoleAssistant is
// rendered as the user.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one prior exchange line used to prime the completion.
type Turn struct {
	Role    string
	Content string
}

// BuildPrompt renders the prompt the engine sees. With history it looks like:
//
//	Previous conversation:
//	User: how tall is the Eiffel Tower?
//	Assistant: About 330 meters.
//
//	Current message:
//	User: and the Empire State Building?
//	Assistant:
//
// Only the last maxTurns turns are kept (all of them when maxTurns <= 0).
// Without history the header block is omitted entirely.
func BuildPrompt(turns []Turn, message string, maxTurns int) string {
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}

	var b strings.Builder
	if len(turns) > 0 {
		b.WriteString("Previous conversation:\n")
		for _, t := range turns {
			if t.Role == RoleAssistant {
				b.WriteString("Assistant: ")
			} else {
				b.WriteString("User: ")
			}
			b.WriteString(t.Content)
			b.WriteByte('\n')
		}
		b.WriteString("\nCurrent message:\n")
	}
	b.WriteString("User: ")
	b.WriteString(message)
	b.WriteString("\nAssistant:")
	return b.String()
}
