package api

import (
	"encoding/json"
	"net/http"

	"hedge_copier/internal/models"

	"github.com/gorilla/mux"
)

// HandleGetTerminals возвращает идентификаторы настроенных терминалов
func (h *Handler) HandleGetTerminals(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.terminals.TerminalIDs())
}

// HandleUpdateTerminals приводит набор соединений к переданному списку
func (h *Handler) HandleUpdateTerminals(w http.ResponseWriter, r *http.Request) {
	var specs []models.TerminalSpec
	if err := json.NewDecoder(r.Body).Decode(&specs); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	for _, spec := range specs {
		if spec.ID == "" {
			h.respondError(w, http.StatusBadRequest, "Terminal id is required")
			return
		}
	}

	if err := h.terminals.Configure(specs); err != nil {
		h.logger.Error("Failed to configure terminals", "error", err)
		h.respondError(w, http.StatusInternalServerError, err.Error())

		return
	}

	h.respondSuccess(w, "Terminals configured", h.terminals.TerminalIDs())
}

// HandleTerminalCommand отправляет управляющую команду терминалу.
// В пути принимается как транспортный, так и постоянный идентификатор.
func (h *Handler) HandleTerminalCommand(w http.ResponseWriter, r *http.Request) {
	terminalID := mux.Vars(r)["id"]

	var cmd models.TerminalCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.dispatcher.Dispatch(r.Context(), terminalID, cmd)
	if err != nil {
		h.respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}
