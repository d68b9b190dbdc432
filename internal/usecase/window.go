package usecase

import (
	"errors"
	"strings"
	"time"

	"referee-agent/internal/domain"
)

// extractText concatenates the text-bearing parts of an inbound message in
// order. Non-text parts are ignored; a message with no text parts yields "".
func extractText(msg domain.InboundMessage) string {
	var b strings.Builder
	for _, p := range msg.Parts {
		if p.Kind == domain.PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// selectLatestInbound scans the batch newest-first and returns the first
// message whose extracted text is non-empty after trimming, together with
// that text. ok is false when nothing in the batch is processable.
func selectLatestInbound(batch []domain.InboundMessage) (msg domain.InboundMessage, text string, ok bool) {
	for i := len(batch) - 1; i >= 0; i-- {
		text := strings.TrimSpace(extractText(batch[i]))
		if text != "" {
			return batch[i], text, true
		}
	}
	return domain.InboundMessage{}, "", false
}

// isDuplicate reports whether any stored user message carries exactly the
// given text. Matching ignores timestamps, so a phrase the user repeats on
// purpose in a later turn is still treated as a retry of the earlier one.
func isDuplicate(log []domain.Message, text string) bool {
	for _, m := range log {
		if m.Role == domain.RoleUser && m.Content == text {
			return true
		}
	}
	return false
}

// windowForContext returns the most recent max entries of the log, or the
// log unchanged when it already fits.
func windowForContext(log []domain.Message, max int) []domain.Message {
	return lastN(log, max)
}

// trimForStorage bounds the log to its most recent max entries before it is
// persisted. Oldest entries are dropped first.
func trimForStorage(log []domain.Message, max int) []domain.Message {
	return lastN(log, max)
}

func lastN(log []domain.Message, n int) []domain.Message {
	if n <= 0 || len(log) <= n {
		return log
	}
	return log[len(log)-n:]
}

// appendExchange appends a completed user/assistant pair to the log and
// applies the storage trim. The input slice is left unmodified.
func appendExchange(log []domain.Message, user, assistant domain.Message, max int) []domain.Message {
	updated := make([]domain.Message, 0, len(log)+2)
	updated = append(updated, log...)
	updated = append(updated, user, assistant)
	return trimForStorage(updated, max)
}

// newStoredMessage builds a persistable Message from extracted text. Content
// that is empty after trimming is never stored.
func newStoredMessage(role domain.Role, content string, at time.Time) (domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Message{}, errors.New("usecase: message content is empty")
	}
	return domain.Message{Role: role, Content: content, CreatedAt: at.UTC()}, nil
}
