package store

import "github.com/askdocs/askdocs-backend/engine/domain"

// AsMessages flattens stored turns into the alternating user/assistant
// sequence the answer pipeline consumes. Turns with an empty answer
// contribute only the question.
func AsMessages(turns []ChatTurn) []domain.Message {
	msgs := make([]domain.Message, 0, len(turns)*2)
	for _, turn := range turns {
		msgs = append(msgs, domain.User(turn.Question))
		if turn.Answer != "" {
			msgs = append(msgs, domain.Assistant(turn.Answer))
		}
	}
	return msgs
}
