package app

import (
	"encoding/json"
	"fmt"
	"sort"

	"trivia-quiz-service/internal/domain"
)

const snapshotVersion = 1

// state is the persistable part of a session. Transient flags (loading,
// last error) live on Session itself.
type state struct {
	questions []domain.Question
	current   int
	answers   map[int]string
	visited   map[int]struct{}
	remaining int
	finished  bool
}

func emptyState() state {
	return state{
		answers:   make(map[int]string),
		visited:   make(map[int]struct{}),
		remaining: QuizDuration,
	}
}

func newState(questions []domain.Question) state {
	st := emptyState()
	st.questions = questions
	st.visited[0] = struct{}{}
	return st
}

func (st state) question(id int) (domain.Question, bool) {
	for _, q := range st.questions {
		if q.ID == id {
			return q, true
		}
	}
	return domain.Question{}, false
}

func (st state) visitedList() []int {
	out := make([]int, 0, len(st.visited))
	for idx := range st.visited {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// snapshot is the versioned wire shape written to storage.
type snapshot struct {
	Version              int               `json:"version"`
	Questions            []domain.Question `json:"questions"`
	CurrentQuestionIndex int               `json:"currentQuestionIndex"`
	Answers              map[int]string    `json:"answers"`
	Visited              []int             `json:"visited"`
	TimeRemaining        int               `json:"timeRemaining"`
	IsFinished           bool              `json:"isFinished"`
}

func encodeSnapshot(st state) ([]byte, error) {
	answers := make(map[int]string, len(st.answers))
	for id, option := range st.answers {
		answers[id] = option
	}
	return json.Marshal(snapshot{
		Version:              snapshotVersion,
		Questions:            st.questions,
		CurrentQuestionIndex: st.current,
		Answers:              answers,
		Visited:              st.visitedList(),
		TimeRemaining:        st.remaining,
		IsFinished:           st.finished,
	})
}

// decodeSnapshot parses and validates a persisted snapshot. Every failure
// wraps domain.ErrParse.
func decodeSnapshot(data []byte) (state, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return state{}, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	if snap.Version != snapshotVersion {
		return state{}, fmt.Errorf("%w: unsupported version %d", domain.ErrParse, snap.Version)
	}
	if snap.TimeRemaining < 0 || snap.TimeRemaining > QuizDuration {
		return state{}, fmt.Errorf("%w: time remaining %d out of range", domain.ErrParse, snap.TimeRemaining)
	}

	st := emptyState()
	st.remaining = snap.TimeRemaining
	st.finished = snap.IsFinished

	if len(snap.Questions) == 0 {
		if len(snap.Answers) > 0 || snap.CurrentQuestionIndex != 0 {
			return state{}, fmt.Errorf("%w: progress without questions", domain.ErrParse)
		}
		return st, nil
	}

	ids := make(map[int]struct{}, len(snap.Questions))
	for _, q := range snap.Questions {
		if err := validateQuestion(q); err != nil {
			return state{}, err
		}
		if _, dup := ids[q.ID]; dup {
			return state{}, fmt.Errorf("%w: duplicate question id %d", domain.ErrParse, q.ID)
		}
		ids[q.ID] = struct{}{}
	}
	st.questions = snap.Questions

	if snap.CurrentQuestionIndex < 0 || snap.CurrentQuestionIndex >= len(snap.Questions) {
		return state{}, fmt.Errorf("%w: current index %d out of range", domain.ErrParse, snap.CurrentQuestionIndex)
	}
	st.current = snap.CurrentQuestionIndex

	for id, option := range snap.Answers {
		q, ok := st.question(id)
		if !ok {
			return state{}, fmt.Errorf("%w: answer for unknown question %d", domain.ErrParse, id)
		}
		if !q.HasOption(option) {
			return state{}, fmt.Errorf("%w: answer %q not an option of question %d", domain.ErrParse, option, id)
		}
		st.answers[id] = option
	}

	for _, idx := range snap.Visited {
		if idx < 0 || idx >= len(snap.Questions) {
			return state{}, fmt.Errorf("%w: visited index %d out of range", domain.ErrParse, idx)
		}
		st.visited[idx] = struct{}{}
	}
	if _, ok := st.visited[0]; !ok {
		return state{}, fmt.Errorf("%w: first question not visited", domain.ErrParse)
	}
	if _, ok := st.visited[st.current]; !ok {
		return state{}, fmt.Errorf("%w: current question not visited", domain.ErrParse)
	}

	if st.remaining == 0 && !st.finished {
		return state{}, fmt.Errorf("%w: expired session not finished", domain.ErrParse)
	}
	return st, nil
}

func validateQuestion(q domain.Question) error {
	if len(q.Options) == 0 {
		return fmt.Errorf("%w: question %d has no options", domain.ErrParse, q.ID)
	}
	if !q.Difficulty.Valid() || !q.Type.Valid() {
		return fmt.Errorf("%w: question %d has unknown difficulty or type", domain.ErrParse, q.ID)
	}
	seen := make(map[string]struct{}, len(q.Options))
	matches := 0
	for _, o := range q.Options {
		if _, dup := seen[o]; dup {
			return fmt.Errorf("%w: question %d repeats option %q", domain.ErrParse, q.ID, o)
		}
		seen[o] = struct{}{}
		if o == q.CorrectAnswer {
			matches++
		}
	}
	if matches != 1 {
		return fmt.Errorf("%w: question %d correct answer not among options", domain.ErrParse, q.ID)
	}
	return nil
}
