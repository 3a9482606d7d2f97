package memory

import (
	"context"

	"trivia-quiz-service/internal/domain"
)

// StaticQuestionSource serves questions from an in-memory bank (useful for tests/demos
// and when the trivia API is unreachable).
type StaticQuestionSource struct {
	questions []domain.RawQuestion
}

func NewStaticQuestionSource(questions []domain.RawQuestion) *StaticQuestionSource {
	return &StaticQuestionSource{questions: questions}
}

// FetchQuestions returns up to amount questions from the bank in order.
func (s *StaticQuestionSource) FetchQuestions(_ context.Context, amount int) ([]domain.RawQuestion, error) {
	if len(s.questions) == 0 || amount <= 0 {
		return nil, domain.ErrEmptyResult
	}
	if amount > len(s.questions) {
		amount = len(s.questions)
	}
	out := make([]domain.RawQuestion, amount)
	copy(out, s.questions[:amount])
	return out, nil
}

// DefaultQuestions is the built-in general knowledge bank.
func DefaultQuestions() []domain.RawQuestion {
	bank := []struct {
		question string
		answer   string
		wrong    []string
	}{
		{"What is the capital of France?", "Paris", []string{"London", "Berlin", "Madrid"}},
		{"Which planet is known as the Red Planet?", "Mars", []string{"Venus", "Jupiter", "Saturn"}},
		{"What is the largest mammal in the world?", "Blue Whale", []string{"African Elephant", "Giraffe", "Hippopotamus"}},
		{"Who wrote &#039;Romeo and Juliet&#039;?", "William Shakespeare", []string{"Charles Dickens", "Jane Austen", "Mark Twain"}},
		{"What is the chemical symbol for Gold?", "Au", []string{"Ag", "Fe", "Cu"}},
		{"In which year did World War II end?", "1945", []string{"1943", "1944", "1946"}},
		{"What is the fastest land animal?", "Cheetah", []string{"Lion", "Gazelle", "Leopard"}},
		{"Which element has the atomic number 1?", "Hydrogen", []string{"Helium", "Oxygen", "Carbon"}},
		{"What is the currency of Japan?", "Yen", []string{"Yuan", "Won", "Dollar"}},
		{"Who painted the Mona Lisa?", "Leonardo da Vinci", []string{"Vincent van Gogh", "Pablo Picasso", "Claude Monet"}},
		{"What is the hardest natural substance on Earth?", "Diamond", []string{"Gold", "Iron", "Platinum"}},
		{"How many continents are there?", "7", []string{"5", "6", "8"}},
		{"Which organ pumps blood throughout the human body?", "Heart", []string{"Brain", "Lungs", "Kidneys"}},
		{"What is the square root of 64?", "8", []string{"6", "7", "9"}},
		{"Which gas do plants absorb from the atmosphere?", "Carbon Dioxide", []string{"Oxygen", "Nitrogen", "Hydrogen"}},
	}

	out := make([]domain.RawQuestion, 0, len(bank))
	for _, b := range bank {
		out = append(out, domain.RawQuestion{
			Category:         "General Knowledge",
			Type:             string(domain.QuestionTypeMultiple),
			Difficulty:       string(domain.DifficultyEasy),
			Question:         b.question,
			CorrectAnswer:    b.answer,
			IncorrectAnswers: append([]string(nil), b.wrong...),
		})
	}
	return out
}
