package domain

import (
	"errors"
	"strings"
)

// ErrInvalidQuestion rejects blank questions before they reach the pipeline.
var ErrInvalidQuestion = errors.New("invalid question")

// MaxQuestionLen caps question length; anything longer is almost certainly a
// pasted document, which belongs on the upload path.
const MaxQuestionLen = 8192

// ValidateDocument checks a document before ingestion.
func ValidateDocument(doc Document) error {
	if strings.TrimSpace(doc.Text) == "" {
		return NewValidationError("text", "", ErrEmptyDocument)
	}
	if doc.ID == "" {
		return NewValidationError("id", "", errors.New("document id is empty"))
	}
	if doc.Source == "" {
		return NewValidationError("source", "", errors.New("document source is empty"))
	}
	return nil
}

// ValidateQuestion checks a user question before orchestration.
func ValidateQuestion(q string) error {
	trimmed := strings.TrimSpace(q)
	if trimmed == "" {
		return NewValidationError("question", q, ErrInvalidQuestion)
	}
	if len(q) > MaxQuestionLen {
		return NewValidationError("question", q[:32]+"...", ErrInvalidQuestion)
	}
	return nil
}

// ValidateConversation checks that a conversation is a legal orchestrator
// input: non-empty, ending in a user message with content.
func ValidateConversation(c Conversation) error {
	if strings.TrimSpace(c.Question()) == "" {
		return ErrNoQuestion
	}
	if err := ValidateQuestion(c.Question()); err != nil {
		return err
	}
	for _, m := range c.Messages {
		if !m.Role.Valid() {
			return NewValidationError("role", string(m.Role), errors.New("unknown message role"))
		}
	}
	return nil
}
