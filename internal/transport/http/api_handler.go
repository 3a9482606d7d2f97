package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/domain"
)

// APIHandler serves read-only session state and reports over REST, for
// pages that render without a live socket (e.g. the report page on reload).
type APIHandler struct {
	service *app.QuizService
	logger  *zap.Logger
}

func NewAPIHandler(service *app.QuizService, logger *zap.Logger) *APIHandler {
	return &APIHandler{service: service, logger: logger}
}

// Register mounts the API routes on r.
func (h *APIHandler) Register(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/sessions/{clientId}", h.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{clientId}/report", h.GetReport).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{clientId}", h.DeleteSession).Methods(http.MethodDelete)
}

func (h *APIHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	clientID := mux.Vars(r)["clientId"]
	h.writeJSON(w, http.StatusOK, h.service.State(r.Context(), clientID))
}

func (h *APIHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	clientID := mux.Vars(r)["clientId"]
	report, err := h.service.Report(r.Context(), clientID)
	if errors.Is(err, domain.ErrSessionNotFinished) {
		h.writeJSON(w, http.StatusConflict, errorPayload{Message: err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("build report", zap.String("client_id", clientID), zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, errorPayload{Message: "internal error"})
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *APIHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	clientID := mux.Vars(r)["clientId"]
	if err := h.service.Logout(r.Context(), clientID); err != nil {
		h.logger.Error("logout", zap.String("client_id", clientID), zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, errorPayload{Message: "internal error"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("write response", zap.Error(err))
	}
}
