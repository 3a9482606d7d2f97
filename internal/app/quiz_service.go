package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"trivia-quiz-service/internal/domain"
)

// SessionRepository abstracts where live sessions are kept (in-memory, Redis-marked, etc).
type SessionRepository interface {
	// GetOrCreate returns the client's session, calling create under the
	// repository lock when none exists yet.
	GetOrCreate(clientID string, create func() *Session) *Session
	// Acquire is GetOrCreate plus Attach as one step, so DeleteIfIdle can
	// never drop a session between lookup and attach.
	Acquire(clientID string, create func() *Session) *Session
	Get(clientID string) (*Session, bool)
	DeleteIfIdle(clientID string)
	List() []*Session
}

// QuizService exposes the quiz use cases to the presentation layer.
type QuizService struct {
	sessions     SessionRepository
	storage      Storage
	source       QuestionSource
	normalizer   *Normalizer
	newCountdown func() *Countdown
	logger       *zap.Logger
}

// ServiceOption customizes a QuizService.
type ServiceOption func(*QuizService)

// WithCountdownFactory controls how each session's timer is built.
func WithCountdownFactory(f func() *Countdown) ServiceOption {
	return func(s *QuizService) { s.newCountdown = f }
}

// WithServiceNormalizer shares n across all sessions.
func WithServiceNormalizer(n *Normalizer) ServiceOption {
	return func(s *QuizService) { s.normalizer = n }
}

func NewQuizService(sessions SessionRepository, storage Storage, source QuestionSource, logger *zap.Logger, opts ...ServiceOption) *QuizService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &QuizService{
		sessions:   sessions,
		storage:    storage,
		source:     source,
		normalizer: NewNormalizer(),
		newCountdown: func() *Countdown {
			return NewCountdown(time.Second)
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// session returns the client's live session, restoring it from storage on first use.
func (s *QuizService) session(ctx context.Context, clientID string) *Session {
	return s.sessions.GetOrCreate(clientID, s.restorer(ctx, clientID))
}

func (s *QuizService) restorer(ctx context.Context, clientID string) func() *Session {
	return func() *Session {
		session := NewSession(clientID, s.storage, s.source,
			WithNormalizer(s.normalizer),
			WithCountdown(s.newCountdown()),
			WithLogger(s.logger),
		)
		session.Restore(ctx)
		return session
	}
}

// Open attaches a presentation client to its session, restoring persisted
// progress and resuming the countdown of an unfinished quiz.
func (s *QuizService) Open(ctx context.Context, clientID string) domain.SessionView {
	session := s.sessions.Acquire(clientID, s.restorer(ctx, clientID))
	return session.View()
}

// State returns the client's session without attaching to it.
func (s *QuizService) State(ctx context.Context, clientID string) domain.SessionView {
	session := s.session(ctx, clientID)
	defer s.sessions.DeleteIfIdle(clientID)
	return session.View()
}

// Start begins a new attempt for the given email.
func (s *QuizService) Start(ctx context.Context, clientID, email string) (domain.SessionView, error) {
	session, ok := s.sessions.Get(clientID)
	if !ok {
		return domain.SessionView{}, domain.ErrSessionNotFound
	}
	err := session.Start(ctx, email)
	return session.View(), err
}

// Retry reloads questions after a failed load.
func (s *QuizService) Retry(ctx context.Context, clientID string) (domain.SessionView, error) {
	session, ok := s.sessions.Get(clientID)
	if !ok {
		return domain.SessionView{}, domain.ErrSessionNotFound
	}
	err := session.Load(ctx)
	return session.View(), err
}

// Answer records the selected option for a question.
func (s *QuizService) Answer(ctx context.Context, clientID string, questionID int, option string) (domain.SessionView, error) {
	session, ok := s.sessions.Get(clientID)
	if !ok {
		return domain.SessionView{}, domain.ErrSessionNotFound
	}
	err := session.Answer(ctx, questionID, option)
	return session.View(), err
}

// JumpTo navigates to a question; out-of-range indexes are ignored.
func (s *QuizService) JumpTo(ctx context.Context, clientID string, index int) (domain.SessionView, error) {
	session, ok := s.sessions.Get(clientID)
	if !ok {
		return domain.SessionView{}, domain.ErrSessionNotFound
	}
	session.JumpTo(ctx, index)
	return session.View(), nil
}

// Finish submits the quiz.
func (s *QuizService) Finish(ctx context.Context, clientID string) (domain.SessionView, error) {
	session, ok := s.sessions.Get(clientID)
	if !ok {
		return domain.SessionView{}, domain.ErrSessionNotFound
	}
	session.Finish(ctx)
	return session.View(), nil
}

// Report scores a finished session, restoring it from storage if needed.
func (s *QuizService) Report(ctx context.Context, clientID string) (domain.Report, error) {
	session := s.session(ctx, clientID)
	defer s.sessions.DeleteIfIdle(clientID)
	return session.Report()
}

// Subscribe returns a channel that receives the session view after every change.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(_ context.Context, clientID string) (<-chan domain.SessionView, func(), error) {
	session, ok := s.sessions.Get(clientID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := session.Subscribe()
	return ch, cancel, nil
}

// Leave detaches a presentation client and drops the session once idle.
func (s *QuizService) Leave(_ context.Context, clientID string) {
	session, ok := s.sessions.Get(clientID)
	if !ok {
		return
	}
	session.Detach()
	if session.IsIdle() {
		s.sessions.DeleteIfIdle(clientID)
	}
}

// Logout forgets the client's email and progress.
func (s *QuizService) Logout(ctx context.Context, clientID string) error {
	session := s.session(ctx, clientID)
	defer s.sessions.DeleteIfIdle(clientID)
	return session.Logout(ctx)
}

// Close stops every running countdown.
func (s *QuizService) Close() {
	for _, session := range s.sessions.List() {
		session.Close()
	}
}
