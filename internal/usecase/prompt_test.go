package usecase

import (
	"testing"

	"github.com/stretchr/testify/require"

	"referee-agent/internal/domain"
)

func TestBuildPromptMessages_OrderAndRoles(t *testing.T) {
	window := []domain.Message{
		{Role: domain.RoleUser, Content: "Was that offside?"},
		{Role: domain.RoleAssistant, Content: "Yes, Law 11 applies."},
	}

	msgs := buildPromptMessages("Calm referee.", window, "And if the keeper touches it?")
	require.Len(t, msgs, 5)
	require.Equal(t, "system", msgs[0].Role)
	require.Equal(t, "system", msgs[1].Role)
	require.Equal(t, "user", msgs[2].Role)
	require.Equal(t, "Was that offside?", msgs[2].Content)
	require.Equal(t, "assistant", msgs[3].Role)
	require.Equal(t, "user", msgs[4].Role)
	require.Equal(t, "And if the keeper touches it?", msgs[4].Content)
}

func TestBuildPromptMessages_SkipsEmptyHistoryContent(t *testing.T) {
	window := []domain.Message{
		{Role: domain.RoleUser, Content: "   "},
		{Role: domain.RoleAssistant, Content: "Play on."},
	}

	msgs := buildPromptMessages("Calm referee.", window, "What now?")
	require.Len(t, msgs, 4)
	require.Equal(t, "Play on.", msgs[2].Content)
}

func TestBuildPolicyPrompt_IncludesRules(t *testing.T) {
	content := buildPolicyPrompt()
	require.Contains(t, content, "Role:")
	require.Contains(t, content, "Laws of the Game")
	require.Contains(t, content, "Approved Sources:")
	require.Contains(t, content, "Behavior Rules:")
	require.Contains(t, content, "Answer only the current user question")
}

func TestBuildPersonaPrompt_TrimsAndLabels(t *testing.T) {
	content := buildPersonaPrompt("  Strict but fair.  ")
	require.Equal(t, "Persona Brief:\nStrict but fair.", content)
}
