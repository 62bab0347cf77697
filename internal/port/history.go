package port

import "docchat/internal/domain"

// History persists answered queries for later review and feedback.
type History interface {
	SaveAnswer(a domain.Answer) error
	Answer(id string) (domain.Answer, error)
	Recent(limit int) ([]domain.Answer, error)
	Feedback(id, rating string) error
}
