package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"hedge_copier/internal/auth"
	"hedge_copier/internal/copier"
	"hedge_copier/internal/terminal"
)

// Handler обрабатывает API запросы панели оператора
type Handler struct {
	engine      *copier.Engine
	dispatcher  *copier.Dispatcher
	terminals   *terminal.Manager
	authService *auth.Service
	logger      *slog.Logger
}

func New(
	engine *copier.Engine,
	dispatcher *copier.Dispatcher,
	terminals *terminal.Manager,
	authService *auth.Service,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		engine:      engine,
		dispatcher:  dispatcher,
		terminals:   terminals,
		authService: authService,
		logger:      logger,
	}
}

// Helper функции для JSON ответов

type ErrorResponse struct {
	Error string `json:"error"`
}

type SuccessResponse struct {
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, ErrorResponse{Error: message})
}

func (h *Handler) respondSuccess(w http.ResponseWriter, message string, data any) {
	h.respondJSON(w, http.StatusOK, SuccessResponse{
		Message: message,
		Data:    data,
	})
}
