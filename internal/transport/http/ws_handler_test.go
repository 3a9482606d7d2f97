package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/domain"
	"trivia-quiz-service/internal/infra/memory"
)

func TestWebSocketQuizFlow(t *testing.T) {
	server := httptest.NewServer(NewRouter(newTestService(), []string{"*"}, zap.NewNop()))
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws?clientId=c1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	welcome := readUntil(t, conn, "welcome", nil)
	var w welcomePayload
	_ = json.Unmarshal(welcome, &w)
	if w.ClientID != "c1" {
		t.Fatalf("expected client id c1, got %q", w.ClientID)
	}

	send(t, conn, "start", map[string]any{"email": "alice@example.com"})
	var view domain.SessionView
	readUntil(t, conn, "state", func(raw json.RawMessage) bool {
		view = domain.SessionView{}
		_ = json.Unmarshal(raw, &view)
		return len(view.Questions) == app.BatchSize && !view.Loading
	})
	if view.UserLabel != "alice@example.com" || view.RemainingSeconds != app.QuizDuration {
		t.Fatalf("unexpected state after start: %+v", view)
	}
	if view.Questions[0].CorrectAnswer != "" {
		t.Fatalf("correct answer leaked before finish")
	}

	send(t, conn, "answer", map[string]any{"questionId": 0, "option": "Paris"})
	readUntil(t, conn, "state", func(raw json.RawMessage) bool {
		view = domain.SessionView{}
		_ = json.Unmarshal(raw, &view)
		return view.Answers[0] == "Paris"
	})

	send(t, conn, "jump", map[string]any{"index": 3})
	readUntil(t, conn, "state", func(raw json.RawMessage) bool {
		view = domain.SessionView{}
		_ = json.Unmarshal(raw, &view)
		return view.CurrentIndex == 3
	})

	send(t, conn, "finish", nil)
	readUntil(t, conn, "state", func(raw json.RawMessage) bool {
		view = domain.SessionView{}
		_ = json.Unmarshal(raw, &view)
		return view.Finished
	})

	send(t, conn, "report", nil)
	raw := readUntil(t, conn, "report", nil)
	var report domain.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Correct != 1 || report.Total != app.BatchSize || report.Skipped != app.BatchSize-1 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestWebSocketRejectsAnswerForUnknownQuestion(t *testing.T) {
	server := httptest.NewServer(NewRouter(newTestService(), []string{"*"}, zap.NewNop()))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+server.URL[len("http"):]+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readUntil(t, conn, "welcome", nil)
	send(t, conn, "answer", map[string]any{"questionId": 42, "option": "x"})
	raw := readUntil(t, conn, "error", nil)
	var payload errorPayload
	_ = json.Unmarshal(raw, &payload)
	if payload.Retryable || payload.Message == "" {
		t.Fatalf("unexpected error payload %+v", payload)
	}
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readUntil reads messages until one of type typ satisfies match (nil matches any).
func readUntil(t *testing.T, conn *websocket.Conn, typ string, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	for i := 0; i < 50; i++ {
		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json: %v", err)
		}
		if msg.Type == typ && (match == nil || match(msg.Payload)) {
			return msg.Payload
		}
	}
	t.Fatalf("no %s message received", typ)
	return nil
}

func newTestService() *app.QuizService {
	return app.NewQuizService(
		memory.NewSessionStore(),
		memory.NewStorage(),
		memory.NewStaticQuestionSource(memory.DefaultQuestions()),
		zap.NewNop(),
	)
}

func TestWebSocketEnforcesAllowedOrigins(t *testing.T) {
	server := httptest.NewServer(NewRouter(newTestService(), []string{"https://quiz.example.com"}, zap.NewNop()))
	defer server.Close()
	u := "ws" + server.URL[len("http"):] + "/ws?clientId=c1"

	_, resp, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": {"https://evil.example.com"}})
	if err == nil {
		t.Fatalf("expected handshake from foreign origin to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign origin, got %v", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": {"https://quiz.example.com"}})
	if err != nil {
		t.Fatalf("dial from allowed origin: %v", err)
	}
	defer conn.Close()
	readUntil(t, conn, "welcome", nil)
}
