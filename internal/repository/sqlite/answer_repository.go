package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"prepdeck/internal/domain"
	"prepdeck/internal/repository"
)

const createAnswersTable = `
CREATE TABLE IF NOT EXISTS answers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL,
	question INTEGER NOT NULL,
	answer TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	UNIQUE(username, question, timestamp)
);
`

type AnswerRepository struct {
	db *sql.DB
}

func NewAnswerRepository(db *sql.DB) repository.AnswerRepository {
	return &AnswerRepository{db: db}
}

func (r *AnswerRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createAnswersTable); err != nil {
		return fmt.Errorf("create answers table: %w", err)
	}
	return nil
}

// Upsert relies on sqlite's row-level conflict resolution, so concurrent
// saves for the same key cannot produce duplicate rows or lost updates.
func (r *AnswerRepository) Upsert(ctx context.Context, answer *domain.Answer) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO answers (username, question, answer, timestamp)
VALUES (?, ?, ?, ?)
ON CONFLICT(username, question, timestamp)
DO UPDATE SET answer = excluded.answer`,
		answer.Username,
		answer.Question,
		answer.Answer,
		answer.SessionTime,
	)
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	return nil
}

func (r *AnswerRepository) Get(ctx context.Context, username string, question int, sessionTime int64) (*domain.Answer, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, username, question, answer, timestamp
FROM answers
WHERE username = ? AND question = ? AND timestamp = ?`,
		username, question, sessionTime,
	)

	var a domain.Answer
	if err := row.Scan(&a.ID, &a.Username, &a.Question, &a.Answer, &a.SessionTime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("answer not found")
		}
		return nil, fmt.Errorf("scan answer: %w", err)
	}
	return &a, nil
}

func (r *AnswerRepository) ListBySession(ctx context.Context, username string, sessionTime int64) ([]domain.Answer, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, username, question, answer, timestamp
FROM answers
WHERE username = ? AND timestamp = ?
ORDER BY question ASC`,
		username, sessionTime,
	)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	var answers []domain.Answer
	for rows.Next() {
		var a domain.Answer
		if err := rows.Scan(&a.ID, &a.Username, &a.Question, &a.Answer, &a.SessionTime); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers = append(answers, a)
	}

	return answers, rows.Err()
}
