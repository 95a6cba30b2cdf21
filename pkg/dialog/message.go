package dialog

import (
	"fmt"
	"slices"
	"strings"
)

// Role identifies the speaker of a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"    yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// UserMessage returns a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage returns an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// SystemMessage returns a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// Conversation is an ordered, append-only record of messages.
// The zero value is an empty conversation ready for use.
type Conversation struct {
	messages []Message
}

// NewConversation returns a conversation holding a copy of msgs.
func NewConversation(msgs ...Message) *Conversation {
	return &Conversation{messages: slices.Clone(msgs)}
}

// Append adds msg to the end of the conversation.
func (c *Conversation) Append(msg Message) {
	c.messages = append(c.messages, msg)
}

// Messages returns a copy of the messages in order. Mutating the copy does not
// affect the conversation.
func (c *Conversation) Messages() []Message {
	return slices.Clone(c.messages)
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Last returns the most recent message, or false when the conversation is empty.
func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Clear resets the conversation to empty so it can be reused for an independent exchange.
func (c *Conversation) Clear() {
	c.messages = nil
}

// String renders the conversation one "role: content" line per message.
func (c *Conversation) String() string {
	var b strings.Builder
	b.WriteString("Conversation:")
	for _, m := range c.messages {
		fmt.Fprintf(&b, "\n%s: %s", m.Role, m.Content)
	}
	return b.String()
}
