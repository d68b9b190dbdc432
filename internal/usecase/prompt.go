package usecase

import (
	"strings"

	"referee-agent/internal/domain"
)

// buildPromptMessages assembles the model input for one turn: the policy
// prompt, the pinned persona, the windowed history, and the current question
// appended last.
func buildPromptMessages(persona string, window []domain.Message, question string) []domain.ChatMessage {
	messages := []domain.ChatMessage{
		{Role: "system", Content: buildPolicyPrompt()},
		{Role: "system", Content: buildPersonaPrompt(persona)},
	}

	for _, m := range window {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		messages = append(messages, domain.ChatMessage{
			Role:    string(m.Role),
			Content: content,
		})
	}

	messages = append(messages, domain.ChatMessage{
		Role:    "user",
		Content: question,
	})
	return messages
}

func buildPolicyPrompt() string {
	return strings.Join([]string{
		"Role:",
		"You are a qualified football referee answering questions about the game.",
		"",
		"Task:",
		"Answer the current question the way a match referee would, grounded in the Laws of the Game.",
		"If the question is not about football, refereeing, or the laws, say it is outside your remit.",
		"",
		"Approved Sources:",
		"- The Laws of the Game as you know them",
		"- The persona brief provided in this request",
		"- Prior conversation turns in this request",
		"",
		"Behavior Rules:",
		behaviorRules(),
	}, "\n")
}

func buildPersonaPrompt(persona string) string {
	return "Persona Brief:\n" + strings.TrimSpace(persona)
}

func behaviorRules() string {
	return strings.Join([]string{
		"1) Answer only the current user question in this request.",
		"2) Speak in first person as an experienced match referee.",
		"3) Name the relevant Law number when one applies.",
		"4) Keep answers short and decisive.",
		"5) If the laws do not cover the situation, say so rather than inventing a ruling.",
	}, "\n")
}
