package repository

import (
	"context"

	"prepdeck/internal/domain"
)

// AnswerRepository persists per-question answers keyed by
// (username, question, session time).
type AnswerRepository interface {
	Init(ctx context.Context) error
	// Upsert inserts the answer, or replaces the answer payload in place
	// when a row with the same compound key already exists.
	Upsert(ctx context.Context, answer *domain.Answer) error
	Get(ctx context.Context, username string, question int, sessionTime int64) (*domain.Answer, error)
	ListBySession(ctx context.Context, username string, sessionTime int64) ([]domain.Answer, error)
}
