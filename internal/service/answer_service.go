package service

import (
	"context"
	"errors"
	"fmt"

	"prepdeck/internal/domain"
	"prepdeck/internal/repository"
)

// ErrInvalidQuestion is returned when a question ordinal falls outside the
// configured range. Question numbers come straight from the client and are
// part of a storage key, so they are range-checked before use.
var ErrInvalidQuestion = errors.New("invalid question number")

// AnswerService coordinates ledger writes for one session identity. Typed
// answers and transcripts share the same path; only the payload source differs.
type AnswerService interface {
	Save(ctx context.Context, identity domain.SessionIdentity, question int, answer string) error
	ListSession(ctx context.Context, identity domain.SessionIdentity) ([]domain.Answer, error)
}

type answerService struct {
	answers     repository.AnswerRepository
	maxQuestion int
}

func NewAnswerService(answers repository.AnswerRepository, maxQuestion int) AnswerService {
	if maxQuestion <= 0 {
		maxQuestion = 100
	}
	return &answerService{
		answers:     answers,
		maxQuestion: maxQuestion,
	}
}

func (s *answerService) Save(ctx context.Context, identity domain.SessionIdentity, question int, answer string) error {
	if question < 1 || question > s.maxQuestion {
		return fmt.Errorf("%w: %d", ErrInvalidQuestion, question)
	}

	return s.answers.Upsert(ctx, &domain.Answer{
		Username:    identity.Username,
		Question:    question,
		Answer:      answer,
		SessionTime: identity.SessionTime,
	})
}

func (s *answerService) ListSession(ctx context.Context, identity domain.SessionIdentity) ([]domain.Answer, error) {
	return s.answers.ListBySession(ctx, identity.Username, identity.SessionTime)
}
