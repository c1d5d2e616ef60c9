package prompt

import (
	"fmt"
	"strings"
)

const (
	// ChatHistoryTurns is how many prior messages the in-process chat prompt keeps
	ChatHistoryTurns = 1
	// ServerChatHistoryTurns is how many messages the server chat prompt keeps
	ServerChatHistoryTurns = 12
)

// ChatPrompt builds the plain-text chat prompt for a completion engine:
// the system line, the most recent history, then the new user message.
func ChatPrompt(history []Message, userMessage string) string {
	var b strings.Builder
	b.WriteString(tables.Chat.System)
	b.WriteString("\n\n")

	for _, msg := range lastN(history, ChatHistoryTurns) {
		label := "User"
		if normalizeRole(msg.Role) == "assistant" {
			label = "Model"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, msg.Content)
	}

	fmt.Fprintf(&b, "User: %s\nModel:", userMessage)
	return b.String()
}

// ServerChatPrompt builds the chat-template prompt used by the /chat
// endpoint. Only the last ServerChatHistoryTurns messages are kept.
func ServerChatPrompt(messages []Message) string {
	parts := []string{tables.Chat.ServerSystem}
	for _, msg := range lastN(messages, ServerChatHistoryTurns) {
		role := normalizeRole(msg.Role)
		parts = append(parts, fmt.Sprintf("<|%s|>\n%s\n<|end|>", role, strings.TrimSpace(msg.Content)))
	}
	parts = append(parts, "<|assistant|>")
	return strings.Join(parts, "\n")
}

func normalizeRole(role string) string {
	if strings.EqualFold(strings.TrimSpace(role), "assistant") {
		return "assistant"
	}
	return "user"
}

func lastN(messages []Message, n int) []Message {
	if len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}
