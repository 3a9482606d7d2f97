package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"trivia-quiz-service/internal/app"
)

// NewRouter wires health, websocket and REST routes behind CORS for the browser client.
func NewRouter(service *app.QuizService, allowedOrigins []string, logger *zap.Logger) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/ws", NewWSHandler(service, allowedOrigins, logger).ServeWS)
	NewAPIHandler(service, logger).Register(r)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}
