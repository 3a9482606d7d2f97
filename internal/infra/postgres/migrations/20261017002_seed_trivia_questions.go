package migrations

import (
	"context"

	"github.com/uptrace/bun"

	"trivia-quiz-service/internal/infra/memory"
)

type triviaQuestion struct {
	bun.BaseModel `bun:"table:trivia_questions"`

	ID               int64    `bun:"id,pk,autoincrement"`
	Category         string   `bun:"category"`
	Type             string   `bun:"type"`
	Difficulty       string   `bun:"difficulty"`
	Question         string   `bun:"question"`
	CorrectAnswer    string   `bun:"correct_answer"`
	IncorrectAnswers []string `bun:"incorrect_answers,array"`
}

// The seed is the built-in bank so a fresh database can serve a full quiz offline.
func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			bank := memory.DefaultQuestions()
			rows := make([]triviaQuestion, 0, len(bank))
			for _, q := range bank {
				rows = append(rows, triviaQuestion{
					Category:         q.Category,
					Type:             q.Type,
					Difficulty:       q.Difficulty,
					Question:         q.Question,
					CorrectAnswer:    q.CorrectAnswer,
					IncorrectAnswers: q.IncorrectAnswers,
				})
			}
			_, err := db.NewInsert().Model(&rows).Exec(ctx)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `TRUNCATE trivia_questions`)
			return err
		},
	)
}
