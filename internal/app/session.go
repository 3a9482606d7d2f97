package app

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"trivia-quiz-service/internal/domain"
)

const (
	// BatchSize is the number of questions requested per load.
	BatchSize = 15
	// QuizDuration is the countdown length in seconds.
	QuizDuration = 1800
	// LowTimeThreshold marks the final minutes of a quiz.
	LowTimeThreshold = 300

	persistTimeout = 2 * time.Second
)

// Storage is the durable key-value collaborator (browser storage analogue).
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// QuestionSource fetches raw trivia questions.
type QuestionSource interface {
	FetchQuestions(ctx context.Context, amount int) ([]domain.RawQuestion, error)
}

// IdentityKey is the storage key holding a client's email.
func IdentityKey(clientID string) string {
	return "quiz:" + clientID + ":user_email"
}

// SessionKey is the storage key holding a client's session snapshot.
func SessionKey(clientID string) string {
	return "quiz:" + clientID + ":session"
}

// Session owns the state of one quiz attempt for one client. All mutation
// goes through its methods; countdown ticks and user actions serialize on mu.
type Session struct {
	id         string
	storage    Storage
	source     QuestionSource
	normalizer *Normalizer
	countdown  *Countdown
	logger     *zap.Logger
	sf         singleflight.Group

	mu          sync.RWMutex
	label       string
	st          state
	loading     bool
	lastErr     error
	clients     int
	subscribers map[chan domain.SessionView]struct{}
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

func WithNormalizer(n *Normalizer) SessionOption {
	return func(s *Session) { s.normalizer = n }
}

func WithCountdown(c *Countdown) SessionOption {
	return func(s *Session) { s.countdown = c }
}

func WithLogger(l *zap.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

func NewSession(id string, storage Storage, source QuestionSource, opts ...SessionOption) *Session {
	s := &Session{
		id:          id,
		storage:     storage,
		source:      source,
		st:          emptyState(),
		subscribers: make(map[chan domain.SessionView]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.normalizer == nil {
		s.normalizer = NewNormalizer()
	}
	if s.countdown == nil {
		s.countdown = NewCountdown(time.Second)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.With(zap.String("client_id", id))
	return s
}

// ID returns the client id the session belongs to.
func (s *Session) ID() string {
	return s.id
}

// Load fetches a fresh batch of questions and resets progress. On failure
// the previous state is left untouched and the error is returned for retry.
// Concurrent calls share one fetch.
func (s *Session) Load(ctx context.Context) error {
	_, err, _ := s.sf.Do("load", func() (interface{}, error) {
		return nil, s.load(ctx)
	})
	if err == nil {
		s.resumeCountdown()
	}
	return err
}

func (s *Session) load(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.lastErr = nil
	s.broadcastLocked()
	s.mu.Unlock()

	questions, err := s.fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.lastErr = err
		s.logger.Warn("question load failed", zap.Error(err))
		s.broadcastLocked()
		return err
	}
	s.st = newState(questions)
	s.persistLocked(ctx)
	s.broadcastLocked()
	s.logger.Info("questions loaded", zap.Int("count", len(questions)))
	return nil
}

func (s *Session) fetch(ctx context.Context) ([]domain.Question, error) {
	raw, err := s.source.FetchQuestions(ctx, BatchSize)
	if err != nil {
		if domain.Retryable(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrFetch, err)
	}
	questions, err := s.normalizer.Normalize(raw)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidQuestion) {
			return nil, fmt.Errorf("%w: %w", domain.ErrFetch, err)
		}
		return nil, err
	}
	return questions, nil
}

// Start records the user's email, clears any persisted progress and loads
// a new batch. An empty label reuses the remembered email. If the load
// fails the session stays empty rather than showing stale questions.
func (s *Session) Start(ctx context.Context, label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		s.mu.RLock()
		label = s.label
		s.mu.RUnlock()
	}
	// A rejected start must leave a running quiz and its timer alone.
	if !validLabel(label) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidLabel, label)
	}

	s.countdown.Stop()

	s.mu.Lock()
	s.label = label
	s.st = emptyState()
	s.lastErr = nil
	if err := s.storage.Set(ctx, IdentityKey(s.id), label); err != nil {
		s.logger.Warn("persist identity failed", zap.Error(err))
	}
	if err := s.storage.Delete(ctx, SessionKey(s.id)); err != nil {
		s.logger.Warn("clear persisted session failed", zap.Error(err))
	}
	s.broadcastLocked()
	s.mu.Unlock()

	return s.Load(ctx)
}

func validLabel(label string) bool {
	if label == "" {
		return false
	}
	addr, err := mail.ParseAddress(label)
	return err == nil && addr.Address == label
}

// Answer records option as the answer to question id, overwriting any
// earlier answer.
func (s *Session) Answer(ctx context.Context, id int, option string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.finished {
		return domain.ErrSessionFinished
	}
	q, ok := s.st.question(id)
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrQuestionNotFound, id)
	}
	if !q.HasOption(option) {
		return fmt.Errorf("%w: %q", domain.ErrOptionNotFound, option)
	}
	s.st.answers[id] = option
	s.persistLocked(ctx)
	s.broadcastLocked()
	return nil
}

// JumpTo moves to question index and marks it visited. Out-of-range
// indexes and jumps after finishing are ignored.
func (s *Session) JumpTo(ctx context.Context, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.finished || index < 0 || index >= len(s.st.questions) {
		return
	}
	s.st.current = index
	s.st.visited[index] = struct{}{}
	s.persistLocked(ctx)
	s.broadcastLocked()
}

// Tick decrements the remaining time by one second and finishes the
// session when it reaches zero. Ticks on an empty or finished session are no-ops.
func (s *Session) Tick() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.finished || len(s.st.questions) == 0 {
		return s.st.remaining, s.st.finished
	}
	if s.st.remaining > 0 {
		s.st.remaining--
	}
	if s.st.remaining == 0 {
		s.finishLocked()
		s.logger.Info("countdown expired, quiz submitted")
	}
	s.persistLocked(context.Background())
	s.broadcastLocked()
	return s.st.remaining, s.st.finished
}

// Finish submits the quiz. It reports whether this call changed the state.
func (s *Session) Finish(ctx context.Context) bool {
	s.mu.Lock()
	changed := s.finishLocked()
	if changed {
		s.persistLocked(ctx)
		s.broadcastLocked()
	}
	s.mu.Unlock()

	s.countdown.Stop()
	return changed
}

func (s *Session) finishLocked() bool {
	if s.st.finished {
		return false
	}
	s.st.finished = true
	return true
}

// Restore replaces the in-memory state with the persisted snapshot. A
// missing or invalid snapshot leaves the default empty session and is
// logged, never returned.
func (s *Session) Restore(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	label, ok, err := s.storage.Get(ctx, IdentityKey(s.id))
	switch {
	case err != nil:
		s.logger.Warn("read identity failed", zap.Error(err))
	case ok:
		s.label = label
	}

	raw, ok, err := s.storage.Get(ctx, SessionKey(s.id))
	if err != nil {
		s.logger.Warn("read persisted session failed", zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	st, err := decodeSnapshot([]byte(raw))
	if err != nil {
		s.logger.Warn("discarding persisted session", zap.Error(err))
		s.st = emptyState()
		if err := s.storage.Delete(ctx, SessionKey(s.id)); err != nil {
			s.logger.Warn("clear persisted session failed", zap.Error(err))
		}
		return false
	}
	s.st = st
	s.broadcastLocked()
	return true
}

// Logout forgets the user and their progress, both in memory and in storage.
func (s *Session) Logout(ctx context.Context) error {
	s.countdown.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.label = ""
	s.st = emptyState()
	s.lastErr = nil
	s.broadcastLocked()
	if err := s.storage.Delete(ctx, IdentityKey(s.id), SessionKey(s.id)); err != nil {
		return fmt.Errorf("clear storage: %w", err)
	}
	return nil
}

// Report scores the session. It is only available once finished.
func (s *Session) Report() (domain.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.st.finished {
		return domain.Report{}, domain.ErrSessionNotFinished
	}
	report := Score(s.st.questions, s.st.answers)
	report.UserLabel = s.label
	return report, nil
}

// View returns a copy of the session for presentation.
func (s *Session) View() domain.SessionView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewLocked()
}

// Attach registers a presentation client and resumes the countdown of an
// in-progress quiz.
func (s *Session) Attach() {
	s.mu.Lock()
	s.clients++
	s.mu.Unlock()
	s.resumeCountdown()
}

// Detach unregisters a presentation client; the countdown stops with the last one.
func (s *Session) Detach() {
	s.mu.Lock()
	if s.clients > 0 {
		s.clients--
	}
	idle := s.clients == 0
	s.mu.Unlock()
	if idle {
		s.countdown.Stop()
	}
}

// IsIdle reports whether no presentation client is attached.
func (s *Session) IsIdle() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clients == 0
}

// Close stops the countdown regardless of attached clients.
func (s *Session) Close() {
	s.countdown.Stop()
}

// CountdownRunning reports whether the session's timer is active.
func (s *Session) CountdownRunning() bool {
	return s.countdown.Running()
}

func (s *Session) resumeCountdown() {
	s.mu.RLock()
	eligible := s.clients > 0 && !s.st.finished && len(s.st.questions) > 0
	s.mu.RUnlock()
	if eligible {
		s.countdown.Start(context.Background(), s)
	}
}

// Subscribe returns a channel of session views, starting with the current one.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan domain.SessionView, func()) {
	ch := make(chan domain.SessionView, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := s.viewLocked()
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked() {
	if len(s.subscribers) == 0 {
		return
	}
	view := s.viewLocked()
	for ch := range s.subscribers {
		select {
		case ch <- view:
		default:
			// Slow reader: drop its oldest update so the latest state always lands.
			select {
			case <-ch:
			default:
			}
			ch <- view
		}
	}
}

func (s *Session) persistLocked(ctx context.Context) {
	data, err := encodeSnapshot(s.st)
	if err != nil {
		s.logger.Error("encode session snapshot", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.storage.Set(ctx, SessionKey(s.id), string(data)); err != nil {
		s.logger.Warn("persist session failed", zap.Error(err))
	}
}

func (s *Session) viewLocked() domain.SessionView {
	questions := make([]domain.QuestionView, 0, len(s.st.questions))
	for _, q := range s.st.questions {
		qv := domain.QuestionView{
			ID:         q.ID,
			Text:       q.Text,
			Options:    append([]string(nil), q.Options...),
			Category:   q.Category,
			Difficulty: q.Difficulty,
			Type:       q.Type,
		}
		if s.st.finished {
			qv.CorrectAnswer = q.CorrectAnswer
		}
		questions = append(questions, qv)
	}
	answers := make(map[int]string, len(s.st.answers))
	for id, option := range s.st.answers {
		answers[id] = option
	}
	view := domain.SessionView{
		ClientID:         s.id,
		UserLabel:        s.label,
		Questions:        questions,
		CurrentIndex:     s.st.current,
		Answers:          answers,
		Visited:          s.st.visitedList(),
		RemainingSeconds: s.st.remaining,
		Clock:            domain.FormatClock(s.st.remaining),
		LowTime:          s.st.remaining < LowTimeThreshold,
		Finished:         s.st.finished,
		Loading:          s.loading,
	}
	if s.lastErr != nil {
		view.Error = s.lastErr.Error()
	}
	return view
}
