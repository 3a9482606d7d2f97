package app

import "trivia-quiz-service/internal/domain"

// Score compares answers against each question's correct answer. Matching is
// exact; unanswered questions count as skipped and incorrect.
func Score(questions []domain.Question, answers map[int]string) domain.Report {
	report := domain.Report{
		Total:       len(questions),
		PerQuestion: make([]domain.Verdict, 0, len(questions)),
	}
	for _, q := range questions {
		verdict := domain.Verdict{Question: q, Correct: q.CorrectAnswer}
		given, ok := answers[q.ID]
		switch {
		case !ok:
			verdict.Skipped = true
			report.Skipped++
		case given == q.CorrectAnswer:
			verdict.Given = given
			verdict.IsCorrect = true
			report.Correct++
		default:
			verdict.Given = given
		}
		report.PerQuestion = append(report.PerQuestion, verdict)
	}
	report.Incorrect = report.Total - report.Correct
	return report
}
