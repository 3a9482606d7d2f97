package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-quiz-service/internal/domain"
)

// QuestionSource draws a random batch from the trivia_questions table.
type QuestionSource struct {
	pool *pgxpool.Pool
}

func NewQuestionSource(pool *pgxpool.Pool) *QuestionSource {
	return &QuestionSource{pool: pool}
}

func (s *QuestionSource) FetchQuestions(ctx context.Context, amount int) ([]domain.RawQuestion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT category, type, difficulty, question, correct_answer, incorrect_answers
		FROM trivia_questions
		ORDER BY random()
		LIMIT $1`, amount)
	if err != nil {
		return nil, fmt.Errorf("%w: query questions: %v", domain.ErrFetch, err)
	}
	defer rows.Close()

	var out []domain.RawQuestion
	for rows.Next() {
		var q domain.RawQuestion
		if err := rows.Scan(&q.Category, &q.Type, &q.Difficulty, &q.Question, &q.CorrectAnswer, &q.IncorrectAnswers); err != nil {
			return nil, fmt.Errorf("%w: scan question: %v", domain.ErrFetch, err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read questions: %v", domain.ErrFetch, err)
	}
	if len(out) == 0 {
		return nil, domain.ErrEmptyResult
	}
	return out, nil
}
