package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"trivia-quiz-service/internal/domain"
)

// mapStorage is a minimal Storage for tests in this package.
type mapStorage struct {
	mu     sync.Mutex
	values map[string]string
	sets   int
}

func newMapStorage() *mapStorage {
	return &mapStorage{values: make(map[string]string)}
}

func (m *mapStorage) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *mapStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	m.sets++
	return nil
}

func (m *mapStorage) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

// stubSource returns a fixed batch or error and counts calls.
type stubSource struct {
	mu    sync.Mutex
	raw   []domain.RawQuestion
	err   error
	calls int
}

func (s *stubSource) FetchQuestions(_ context.Context, amount int) ([]domain.RawQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if amount < len(s.raw) {
		return s.raw[:amount], nil
	}
	return s.raw, nil
}

func (s *stubSource) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func batch(n int) []domain.RawQuestion {
	out := make([]domain.RawQuestion, n)
	for i := range out {
		out[i] = rawQuestion("Q", "right", "w1", "w2", "w3")
	}
	return out
}

// manualCountdown never ticks on its own.
func manualCountdown() *Countdown {
	return NewCountdownWithTicker(time.Second, func(time.Duration) (<-chan time.Time, func()) {
		return make(chan time.Time), func() {}
	})
}

func newTestSession(t *testing.T, storage Storage, source QuestionSource) *Session {
	t.Helper()
	s := NewSession("client-1", storage, source,
		WithNormalizer(NewNormalizerWithSeed(1)),
		WithCountdown(manualCountdown()),
	)
	t.Cleanup(s.Close)
	return s
}

func loadedSession(t *testing.T) (*Session, *mapStorage) {
	t.Helper()
	storage := newMapStorage()
	s := newTestSession(t, storage, &stubSource{raw: batch(BatchSize)})
	if err := s.Start(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("start: %v", err)
	}
	return s, storage
}

func TestStartLoadsFreshSession(t *testing.T) {
	s, storage := loadedSession(t)

	view := s.View()
	if len(view.Questions) != BatchSize {
		t.Fatalf("expected %d questions, got %d", BatchSize, len(view.Questions))
	}
	if view.CurrentIndex != 0 || len(view.Answers) != 0 || view.Finished || view.RemainingSeconds != QuizDuration {
		t.Fatalf("unexpected fresh state %+v", view)
	}
	if len(view.Visited) != 1 || view.Visited[0] != 0 {
		t.Fatalf("expected visited {0}, got %v", view.Visited)
	}
	if view.Clock != "30:00" || view.LowTime {
		t.Fatalf("unexpected clock %q low=%v", view.Clock, view.LowTime)
	}
	if v, _, _ := storage.Get(context.Background(), IdentityKey("client-1")); v != "alice@example.com" {
		t.Fatalf("expected identity persisted, got %q", v)
	}
	if _, ok, _ := storage.Get(context.Background(), SessionKey("client-1")); !ok {
		t.Fatalf("expected session persisted")
	}
}

func TestStartRejectsInvalidEmail(t *testing.T) {
	source := &stubSource{raw: batch(3)}
	s := newTestSession(t, newMapStorage(), source)

	for _, label := range []string{"", "not-an-email", "Alice <alice@example.com>"} {
		if err := s.Start(context.Background(), label); !errors.Is(err, domain.ErrInvalidLabel) {
			t.Fatalf("label %q: expected invalid label, got %v", label, err)
		}
	}
	if source.calls != 0 {
		t.Fatalf("expected no fetch for invalid labels, got %d", source.calls)
	}
}

func TestInvalidStartKeepsRunningCountdown(t *testing.T) {
	storage := newMapStorage()
	s := NewSession("client-1", storage, &stubSource{raw: batch(3)},
		WithNormalizer(NewNormalizerWithSeed(1)),
		WithCountdown(NewCountdownWithTicker(time.Second, (&fakeTicks{ch: make(chan time.Time)}).factory)),
	)
	defer s.Close()
	ctx := context.Background()

	s.Attach()
	defer s.Detach()
	if err := s.Start(ctx, "alice@example.com"); err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = s.Answer(ctx, 1, "right")
	if !s.CountdownRunning() {
		t.Fatalf("expected countdown running after start")
	}

	if err := s.Start(ctx, "not-an-email"); !errors.Is(err, domain.ErrInvalidLabel) {
		t.Fatalf("expected invalid label, got %v", err)
	}
	if !s.CountdownRunning() {
		t.Fatalf("expected countdown still running after rejected start")
	}
	view := s.View()
	if view.UserLabel != "alice@example.com" || view.Answers[1] != "right" || view.Finished {
		t.Fatalf("expected quiz untouched by rejected start, got %+v", view)
	}
}

func TestStartWithEmptyLabelReusesIdentity(t *testing.T) {
	s, _ := loadedSession(t)
	s.Finish(context.Background())

	if err := s.Start(context.Background(), ""); err != nil {
		t.Fatalf("restart: %v", err)
	}
	view := s.View()
	if view.UserLabel != "alice@example.com" || view.Finished {
		t.Fatalf("expected restarted session for alice, got %+v", view)
	}
}

func TestStartFailureLeavesEmptySession(t *testing.T) {
	source := &stubSource{raw: batch(3)}
	storage := newMapStorage()
	s := newTestSession(t, storage, source)
	if err := s.Start(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("start: %v", err)
	}

	source.fail(errors.New("connection refused"))
	err := s.Start(context.Background(), "bob@example.com")
	if !errors.Is(err, domain.ErrFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	view := s.View()
	if len(view.Questions) != 0 {
		t.Fatalf("expected no stale questions, got %d", len(view.Questions))
	}
	if view.Error == "" || view.Loading {
		t.Fatalf("expected surfaced error, got %+v", view)
	}
	if _, ok, _ := storage.Get(context.Background(), SessionKey("client-1")); ok {
		t.Fatalf("expected persisted session cleared")
	}
}

func TestLoadFailureKeepsPriorState(t *testing.T) {
	s, _ := loadedSession(t)
	ctx := context.Background()
	if err := s.Answer(ctx, 2, "right"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	s.JumpTo(ctx, 4)
	before := s.View()

	source := s.source.(*stubSource)
	source.mu.Lock()
	source.raw = nil
	source.mu.Unlock()

	if err := s.Load(ctx); !errors.Is(err, domain.ErrEmptyResult) {
		t.Fatalf("expected empty result error, got %v", err)
	}
	after := s.View()
	if len(after.Questions) != len(before.Questions) || after.CurrentIndex != 4 || after.Answers[2] != "right" {
		t.Fatalf("expected prior state untouched, got %+v", after)
	}
	if !strings.Contains(after.Error, "no questions") {
		t.Fatalf("expected error surfaced in view, got %q", after.Error)
	}

	source.mu.Lock()
	source.raw = batch(BatchSize)
	source.mu.Unlock()
	if err := s.Load(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if view := s.View(); view.Error != "" || view.CurrentIndex != 0 || len(view.Answers) != 0 {
		t.Fatalf("expected clean state after retry, got %+v", view)
	}
}

func TestLoadWrapsMalformedQuestionsAsFetchError(t *testing.T) {
	source := &stubSource{raw: []domain.RawQuestion{rawQuestion("Q", "A")}}
	s := newTestSession(t, newMapStorage(), source)

	err := s.Start(context.Background(), "alice@example.com")
	if !errors.Is(err, domain.ErrFetch) || !errors.Is(err, domain.ErrInvalidQuestion) {
		t.Fatalf("expected fetch+invalid question error, got %v", err)
	}
	if !domain.Retryable(err) {
		t.Fatalf("expected retryable error")
	}
}

func TestAnswerValidation(t *testing.T) {
	s, _ := loadedSession(t)
	ctx := context.Background()

	if err := s.Answer(ctx, 99, "right"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
	if err := s.Answer(ctx, 0, "nope"); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("expected option not found, got %v", err)
	}
	if err := s.Answer(ctx, 0, "w1"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := s.Answer(ctx, 0, "right"); err != nil {
		t.Fatalf("overwrite answer: %v", err)
	}
	if got := s.View().Answers[0]; got != "right" {
		t.Fatalf("expected overwritten answer, got %q", got)
	}
}

func TestJumpToIgnoresOutOfRange(t *testing.T) {
	s, _ := loadedSession(t)
	ctx := context.Background()

	s.JumpTo(ctx, 5)
	s.JumpTo(ctx, -1)
	s.JumpTo(ctx, BatchSize)

	view := s.View()
	if view.CurrentIndex != 5 {
		t.Fatalf("expected index 5, got %d", view.CurrentIndex)
	}
	if len(view.Visited) != 2 || view.Visited[0] != 0 || view.Visited[1] != 5 {
		t.Fatalf("expected visited [0 5], got %v", view.Visited)
	}
}

func TestTickCountsDownToFinish(t *testing.T) {
	s, _ := loadedSession(t)

	finishedAt := -1
	for i := 1; i <= QuizDuration; i++ {
		remaining, finished := s.Tick()
		if remaining != QuizDuration-i {
			t.Fatalf("tick %d: expected %d remaining, got %d", i, QuizDuration-i, remaining)
		}
		if finished && finishedAt < 0 {
			finishedAt = i
		}
	}
	if finishedAt != QuizDuration {
		t.Fatalf("expected finish on tick %d, got %d", QuizDuration, finishedAt)
	}

	remaining, finished := s.Tick()
	if remaining != 0 || !finished {
		t.Fatalf("expected extra tick to be a no-op, got %d %v", remaining, finished)
	}
	if view := s.View(); view.Clock != "00:00" || !view.LowTime {
		t.Fatalf("unexpected final clock %q", view.Clock)
	}
}

func TestTickWithoutQuestionsIsNoop(t *testing.T) {
	s := newTestSession(t, newMapStorage(), &stubSource{})
	if remaining, finished := s.Tick(); remaining != QuizDuration || finished {
		t.Fatalf("expected untouched timer, got %d %v", remaining, finished)
	}
}

func TestFinishIsIdempotentAndFreezesSession(t *testing.T) {
	s, _ := loadedSession(t)
	ctx := context.Background()
	_ = s.Answer(ctx, 0, "right")

	if !s.Finish(ctx) {
		t.Fatalf("expected first finish to change state")
	}
	once := s.View()
	if s.Finish(ctx) {
		t.Fatalf("expected second finish to be a no-op")
	}
	twice := s.View()
	if once.Finished != twice.Finished || once.RemainingSeconds != twice.RemainingSeconds || len(once.Answers) != len(twice.Answers) {
		t.Fatalf("expected identical state, got %+v vs %+v", once, twice)
	}

	if err := s.Answer(ctx, 1, "right"); !errors.Is(err, domain.ErrSessionFinished) {
		t.Fatalf("expected finished error, got %v", err)
	}
	s.JumpTo(ctx, 3)
	if got := s.View().CurrentIndex; got != 0 {
		t.Fatalf("expected navigation ignored after finish, got %d", got)
	}
	if remaining, _ := s.Tick(); remaining != once.RemainingSeconds {
		t.Fatalf("expected tick ignored after finish")
	}

	report, err := s.Report()
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Correct != 1 || report.Total != BatchSize || report.UserLabel != "alice@example.com" {
		t.Fatalf("unexpected report %+v", report)
	}
	if twice.Questions[0].CorrectAnswer != "right" {
		t.Fatalf("expected correct answers revealed after finish")
	}
}

func TestReportRequiresFinish(t *testing.T) {
	s, _ := loadedSession(t)
	if _, err := s.Report(); !errors.Is(err, domain.ErrSessionNotFinished) {
		t.Fatalf("expected not finished error, got %v", err)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	s, storage := loadedSession(t)
	ctx := context.Background()
	_ = s.Answer(ctx, 1, "w2")
	_ = s.Answer(ctx, 3, "right")
	s.JumpTo(ctx, 7)
	s.JumpTo(ctx, 2)
	for i := 0; i < 10; i++ {
		s.Tick()
	}
	want := s.View()

	restored := newTestSession(t, storage, &stubSource{})
	if !restored.Restore(ctx) {
		t.Fatalf("expected restore to succeed")
	}
	got := restored.View()

	if got.UserLabel != want.UserLabel || got.CurrentIndex != want.CurrentIndex ||
		got.RemainingSeconds != want.RemainingSeconds || got.Finished != want.Finished {
		t.Fatalf("restored %+v, want %+v", got, want)
	}
	if len(got.Questions) != len(want.Questions) {
		t.Fatalf("expected %d questions, got %d", len(want.Questions), len(got.Questions))
	}
	for i := range want.Questions {
		if strings.Join(got.Questions[i].Options, "|") != strings.Join(want.Questions[i].Options, "|") {
			t.Fatalf("question %d options differ", i)
		}
	}
	if len(got.Answers) != 2 || got.Answers[1] != "w2" || got.Answers[3] != "right" {
		t.Fatalf("unexpected answers %v", got.Answers)
	}
	if fmt.Sprint(got.Visited) != "[0 2 7]" {
		t.Fatalf("unexpected visited %v", got.Visited)
	}
}

func TestRestoreDegradesOnCorruptSnapshot(t *testing.T) {
	storage := newMapStorage()
	ctx := context.Background()
	_ = storage.Set(ctx, IdentityKey("client-1"), "alice@example.com")
	_ = storage.Set(ctx, SessionKey("client-1"), `{"version":1,"questions":[{"id":0`)

	s := newTestSession(t, storage, &stubSource{})
	if s.Restore(ctx) {
		t.Fatalf("expected restore to fail")
	}
	view := s.View()
	if len(view.Questions) != 0 || view.RemainingSeconds != QuizDuration || view.Finished {
		t.Fatalf("expected default state, got %+v", view)
	}
	if view.UserLabel != "alice@example.com" {
		t.Fatalf("expected identity restored independently, got %q", view.UserLabel)
	}
	if _, ok, _ := storage.Get(ctx, SessionKey("client-1")); ok {
		t.Fatalf("expected corrupt snapshot removed")
	}
}

func TestRestoreMissingSnapshot(t *testing.T) {
	s := newTestSession(t, newMapStorage(), &stubSource{})
	if s.Restore(context.Background()) {
		t.Fatalf("expected nothing to restore")
	}
}

func TestLogoutClearsStorage(t *testing.T) {
	s, storage := loadedSession(t)
	ctx := context.Background()

	if err := s.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if len(storage.values) != 0 {
		t.Fatalf("expected storage cleared, got %v", storage.values)
	}
	if view := s.View(); view.UserLabel != "" || len(view.Questions) != 0 {
		t.Fatalf("expected empty session, got %+v", view)
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	s, _ := loadedSession(t)
	ch, cancel := s.Subscribe()
	defer cancel()

	initial := <-ch
	if initial.CurrentIndex != 0 {
		t.Fatalf("expected initial index 0, got %d", initial.CurrentIndex)
	}

	s.JumpTo(context.Background(), 6)
	update := <-ch
	if update.CurrentIndex != 6 {
		t.Fatalf("expected update with index 6, got %d", update.CurrentIndex)
	}
}

func TestPersistsAfterEveryMutation(t *testing.T) {
	s, storage := loadedSession(t)
	ctx := context.Background()

	storage.mu.Lock()
	base := storage.sets
	storage.mu.Unlock()

	_ = s.Answer(ctx, 0, "right")
	s.JumpTo(ctx, 1)
	s.Tick()
	s.Finish(ctx)

	storage.mu.Lock()
	defer storage.mu.Unlock()
	if storage.sets-base != 4 {
		t.Fatalf("expected 4 writes, got %d", storage.sets-base)
	}
}
