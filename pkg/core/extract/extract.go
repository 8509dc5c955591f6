// Package extract defines the language-model collaborator used by both
// capture controllers to produce replies and decide when a memory is
// ready to save.
package extract

import (
	"context"
	"regexp"
	"strings"
)

// Role identifies who produced a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Reply is a completion result. SaveTitle is non-empty when the model
// embedded a save directive; the directive marker is already stripped
// from Text.
type Reply struct {
	Text      string
	SaveTitle string
}

// Completer produces conversational replies with optional save
// directives.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, history []Message, userMessage string) (Reply, error)
}

// TitleMaxLen bounds titles derived from user utterances.
const TitleMaxLen = 50

// TitleFromUtterance derives a memory title from a user utterance,
// truncating on a word boundary where possible. Truncation counts
// runes so multi-byte text is never split mid-character.
func TitleFromUtterance(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= TitleMaxLen {
		return text
	}
	cut := string(runes[:TitleMaxLen])
	if i := strings.LastIndex(cut, " "); i > TitleMaxLen/2 {
		cut = cut[:i]
	}
	return cut + "..."
}

// saveDirective matches the structured marker a model embeds in its
// reply to signal that a memory should be saved.
var saveDirective = regexp.MustCompile(`\[SAVE_MEMORY:\s*([^\]]+)\]`)

// ParseReply extracts the save directive from raw model output and
// strips the marker from the user-visible text.
func ParseReply(raw string) Reply {
	reply := Reply{Text: raw}
	if m := saveDirective.FindStringSubmatch(raw); m != nil {
		reply.SaveTitle = strings.TrimSpace(m[1])
		reply.Text = strings.TrimSpace(saveDirective.ReplaceAllString(raw, ""))
	}
	return reply
}
