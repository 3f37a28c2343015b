package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"hedge_copier/internal/copier"
	"hedge_copier/internal/models"

	"github.com/gorilla/mux"
)

// HandleGetGroups возвращает текущую конфигурацию групп
func (h *Handler) HandleGetGroups(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.engine.Groups())
}

// HandleUpdateGroups заменяет полный набор групп копирования
func (h *Handler) HandleUpdateGroups(w http.ResponseWriter, r *http.Request) {
	var groups []models.CopierGroup
	if err := json.NewDecoder(r.Body).Decode(&groups); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.engine.UpdateGroups(groups); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondSuccess(w, "Groups updated", nil)
}

// HandleUpdateAccountMap обновляет карту соответствия аккаунтов
func (h *Handler) HandleUpdateAccountMap(w http.ResponseWriter, r *http.Request) {
	var accountMap map[string]string
	if err := json.NewDecoder(r.Body).Decode(&accountMap); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.engine.UpdateAccountMap(accountMap)
	h.respondSuccess(w, "Account map updated", nil)
}

type EnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// HandleSetEnabled включает/выключает зеркалирование целиком
func (h *Handler) HandleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var req EnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.engine.SetGlobalEnabled(req.Enabled)
	h.respondSuccess(w, "Copier flag updated", EnabledRequest{Enabled: req.Enabled})
}

// HandleGetEnabled возвращает состояние глобального флага
func (h *Handler) HandleGetEnabled(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, EnabledRequest{Enabled: h.engine.IsGlobalEnabled()})
}

type LicenseRequest struct {
	Valid       bool `json:"valid"`
	Connections int  `json:"connections"`
}

// HandleSetLicense принимает сигнал лицензионного шлюза
func (h *Handler) HandleSetLicense(w http.ResponseWriter, r *http.Request) {
	var req LicenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.engine.SetLicense(req.Valid, req.Connections)
	h.respondSuccess(w, "License state updated", nil)
}

// HandleGroupStats возвращает агрегированную статистику группы
func (h *Handler) HandleGroupStats(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["id"]

	stats, err := h.engine.GroupStats(groupID)
	if err != nil {
		if errors.Is(err, copier.ErrGroupNotFound) {
			h.respondError(w, http.StatusNotFound, "Group not found")
			return
		}

		h.logger.Error("Failed to get group stats", "error", err)
		h.respondError(w, http.StatusInternalServerError, "Internal server error")

		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

// HandleActivity возвращает последние записи журнала активности
func (h *Handler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.respondError(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = parsed
	}

	h.respondJSON(w, http.StatusOK, h.engine.ActivityLog(limit))
}

// HandleHedgePnL возвращает накопленный P&L хеджа по каждому leader-аккаунту
func (h *Handler) HandleHedgePnL(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.engine.HedgePnLByLeader())
}

// HandleResetBreaker - явный сброс предохранителя оператором
func (h *Handler) HandleResetBreaker(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	groupID := vars["gid"]
	followerID := vars["fid"]

	if err := h.engine.ResetCircuitBreaker(groupID, followerID); err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}

	h.respondSuccess(w, "Circuit breaker reset", h.engine.BreakerState(groupID, followerID))
}
