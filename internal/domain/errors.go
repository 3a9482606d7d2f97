package domain

import "errors"

var (
	// ErrFetch is returned when the question source fails (network, status, malformed body).
	ErrFetch = errors.New("failed to fetch questions")
	// ErrEmptyResult is returned when the question source yields no questions.
	ErrEmptyResult = errors.New("no questions returned")
	// ErrParse indicates a persisted session snapshot could not be decoded or validated.
	ErrParse = errors.New("invalid session snapshot")
	// ErrInvalidQuestion indicates a raw question record cannot be normalized.
	ErrInvalidQuestion = errors.New("invalid question record")
	// ErrInvalidLabel is returned when a session is started without a valid email.
	ErrInvalidLabel = errors.New("invalid user email")
	// ErrSessionNotFound is returned when a client has no open session.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionFinished is returned for mutations attempted after submission.
	ErrSessionFinished = errors.New("quiz session already finished")
	// ErrSessionNotFinished is returned when a report is requested too early.
	ErrSessionNotFinished = errors.New("quiz session not finished")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option is not one of the question's options.
	ErrOptionNotFound = errors.New("option not found")
)

// Retryable reports whether err should be surfaced as a retry affordance.
func Retryable(err error) bool {
	return errors.Is(err, ErrFetch) || errors.Is(err, ErrEmptyResult)
}
