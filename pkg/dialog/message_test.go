package dialog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationAppendAndCopy(t *testing.T) {
	var conv Conversation
	assert.Equal(t, 0, conv.Len())
	_, ok := conv.Last()
	assert.False(t, ok)

	conv.Append(UserMessage("hello"))
	conv.Append(AssistantMessage("hi"))
	require.Equal(t, 2, conv.Len())

	msgs := conv.Messages()
	msgs[0].Content = "mutated"
	assert.Equal(t, "hello", conv.Messages()[0].Content, "Messages must return a copy")

	last, ok := conv.Last()
	require.True(t, ok)
	assert.Equal(t, AssistantMessage("hi"), last)
}

func TestNewConversationCopiesInput(t *testing.T) {
	src := []Message{UserMessage("a")}
	conv := NewConversation(src...)
	src[0].Content = "b"
	assert.Equal(t, "a", conv.Messages()[0].Content)
}

func TestConversationClear(t *testing.T) {
	conv := NewConversation(UserMessage("a"), AssistantMessage("b"))
	conv.Clear()
	assert.Equal(t, 0, conv.Len())
	conv.Append(UserMessage("c"))
	assert.Equal(t, []Message{UserMessage("c")}, conv.Messages())
}

func TestConversationString(t *testing.T) {
	conv := NewConversation(UserMessage("What is Rust?"), AssistantMessage("A language."))
	assert.Equal(t, "Conversation:\nuser: What is Rust?\nassistant: A language.", conv.String())
	assert.Equal(t, "Conversation:", (&Conversation{}).String())
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.True(t, RoleSystem.Valid())
	assert.False(t, Role("tool").Valid())
	assert.False(t, Role("").Valid())
}

func TestOutcomeConstructors(t *testing.T) {
	assert.Equal(t, Outcome{Kind: OutcomeProduce, Message: UserMessage("x")}, Say("x"))
	assert.Equal(t, OutcomeDone, Done().Kind)

	f := Failf(Recoverable, "attempt %d", 2)
	assert.Equal(t, OutcomeFail, f.Kind)
	assert.Equal(t, Recoverable, f.Classification)
	assert.Equal(t, "attempt 2", f.Detail)

	assert.Equal(t, "Produce", OutcomeProduce.String())
	assert.Equal(t, "OutcomeKind(0)", OutcomeKind(0).String())
	assert.Equal(t, "recoverable", Recoverable.String())
	assert.Equal(t, "unrecoverable", Unrecoverable.String())
}
