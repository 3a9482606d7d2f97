package domain

import "fmt"

// Difficulty is the trivia API's difficulty rating.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// QuestionType distinguishes four-option questions from true/false ones.
type QuestionType string

const (
	QuestionTypeMultiple QuestionType = "multiple"
	QuestionTypeBoolean  QuestionType = "boolean"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	return t == QuestionTypeMultiple || t == QuestionTypeBoolean
}

// RawQuestion is a question record as returned by the trivia API.
// Text fields may contain HTML entities.
type RawQuestion struct {
	Category         string   `json:"category"`
	Type             string   `json:"type"`
	Difficulty       string   `json:"difficulty"`
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

// Question is a normalized, immutable quiz question.
type Question struct {
	ID            int          `json:"id"`
	Text          string       `json:"text"`
	Options       []string     `json:"options"`
	CorrectAnswer string       `json:"correctAnswer"`
	Category      string       `json:"category"`
	Difficulty    Difficulty   `json:"difficulty"`
	Type          QuestionType `json:"type"`
}

// HasOption reports whether option is one of the question's options.
func (q Question) HasOption(option string) bool {
	for _, o := range q.Options {
		if o == option {
			return true
		}
	}
	return false
}

// QuestionView is the client-facing shape of a question. CorrectAnswer is
// only populated once the session is finished.
type QuestionView struct {
	ID            int          `json:"id"`
	Text          string       `json:"text"`
	Options       []string     `json:"options"`
	CorrectAnswer string       `json:"correctAnswer,omitempty"`
	Category      string       `json:"category"`
	Difficulty    Difficulty   `json:"difficulty"`
	Type          QuestionType `json:"type"`
}

// SessionView is a read-only snapshot of a quiz session for presentation.
type SessionView struct {
	ClientID         string         `json:"clientId"`
	UserLabel        string         `json:"email"`
	Questions        []QuestionView `json:"questions"`
	CurrentIndex     int            `json:"currentQuestionIndex"`
	Answers          map[int]string `json:"answers"`
	Visited          []int          `json:"visited"`
	RemainingSeconds int            `json:"timeRemaining"`
	Clock            string         `json:"clock"`
	LowTime          bool           `json:"lowTime"`
	Finished         bool           `json:"isFinished"`
	Loading          bool           `json:"loading"`
	Error            string         `json:"error,omitempty"`
}

// FormatClock renders seconds as MM:SS.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// Verdict is the per-question outcome in a report.
type Verdict struct {
	Question  Question `json:"question"`
	Given     string   `json:"given,omitempty"`
	Skipped   bool     `json:"skipped"`
	Correct   string   `json:"correct"`
	IsCorrect bool     `json:"isCorrect"`
}

// Report is the scored result of a finished session.
type Report struct {
	UserLabel   string    `json:"email,omitempty"`
	Correct     int       `json:"correct"`
	Incorrect   int       `json:"incorrect"`
	Skipped     int       `json:"skipped"`
	Total       int       `json:"total"`
	PerQuestion []Verdict `json:"perQuestion"`
}
