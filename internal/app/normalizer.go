package app

import (
	"fmt"
	"html"
	"math/rand"
	"strings"
	"sync"
	"time"

	"trivia-quiz-service/internal/domain"
)

// Normalizer converts raw trivia records into questions. It is safe for
// concurrent use; the shuffle source is shared behind a mutex.
type Normalizer struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewNormalizer() *Normalizer {
	return NewNormalizerWithSeed(time.Now().UnixNano())
}

// NewNormalizerWithSeed is used by tests for deterministic shuffles.
func NewNormalizerWithSeed(seed int64) *Normalizer {
	return &Normalizer{rnd: rand.New(rand.NewSource(seed))}
}

// Normalize decodes HTML entities, merges and shuffles the options of each
// record and assigns ids by input position.
func (n *Normalizer) Normalize(raw []domain.RawQuestion) ([]domain.Question, error) {
	if len(raw) == 0 {
		return nil, domain.ErrEmptyResult
	}
	questions := make([]domain.Question, 0, len(raw))
	for i, r := range raw {
		q, err := n.normalizeOne(i, r)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func (n *Normalizer) normalizeOne(id int, r domain.RawQuestion) (domain.Question, error) {
	correct := html.UnescapeString(r.CorrectAnswer)
	if strings.TrimSpace(correct) == "" {
		return domain.Question{}, fmt.Errorf("%w: question %d has no correct answer", domain.ErrInvalidQuestion, id)
	}
	difficulty := domain.Difficulty(r.Difficulty)
	if !difficulty.Valid() {
		return domain.Question{}, fmt.Errorf("%w: question %d has difficulty %q", domain.ErrInvalidQuestion, id, r.Difficulty)
	}
	qtype := domain.QuestionType(r.Type)
	if !qtype.Valid() {
		return domain.Question{}, fmt.Errorf("%w: question %d has type %q", domain.ErrInvalidQuestion, id, r.Type)
	}

	// The correct answer must appear exactly once, so decoded duplicates are dropped.
	seen := map[string]struct{}{correct: {}}
	options := make([]string, 0, len(r.IncorrectAnswers)+1)
	for _, a := range r.IncorrectAnswers {
		decoded := html.UnescapeString(a)
		if _, dup := seen[decoded]; dup {
			continue
		}
		seen[decoded] = struct{}{}
		options = append(options, decoded)
	}
	if len(options) == 0 {
		return domain.Question{}, fmt.Errorf("%w: question %d has no incorrect answers", domain.ErrInvalidQuestion, id)
	}
	options = append(options, correct)
	n.shuffle(options)

	return domain.Question{
		ID:            id,
		Text:          html.UnescapeString(r.Question),
		Options:       options,
		CorrectAnswer: correct,
		Category:      html.UnescapeString(r.Category),
		Difficulty:    difficulty,
		Type:          qtype,
	}, nil
}

func (n *Normalizer) shuffle(options []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rnd.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
}
