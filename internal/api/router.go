package api

import (
	"net/http"

	"hedge_copier/internal/api/middleware"

	"github.com/gorilla/mux"
)

// SetupRouter настраивает роутинг для API
func (h *Handler) SetupRouter() *mux.Router {
	r := mux.NewRouter()

	// Применяем CORS middleware ко всем маршрутам
	r.Use(middleware.CORSMiddleware)

	// Публичные маршруты (не требуют аутентификации)
	r.HandleFunc("/api/auth/login", h.HandleLogin).Methods("POST", "OPTIONS")
	r.HandleFunc("/health", h.HandleHealth).Methods("GET")

	// Защищенные маршруты (требуют аутентификации)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.AuthMiddleware(h.authService))

	// Copier
	api.HandleFunc("/copier/groups", h.HandleGetGroups).Methods("GET")
	api.HandleFunc("/copier/groups", h.HandleUpdateGroups).Methods("PUT")
	api.HandleFunc("/copier/groups/{id}/stats", h.HandleGroupStats).Methods("GET")
	api.HandleFunc("/copier/groups/{gid}/followers/{fid}/reset-breaker", h.HandleResetBreaker).Methods("POST")
	api.HandleFunc("/copier/account-map", h.HandleUpdateAccountMap).Methods("PUT")
	api.HandleFunc("/copier/enabled", h.HandleSetEnabled).Methods("PUT")
	api.HandleFunc("/copier/enabled", h.HandleGetEnabled).Methods("GET")
	api.HandleFunc("/copier/activity", h.HandleActivity).Methods("GET")
	api.HandleFunc("/copier/hedge-pnl", h.HandleHedgePnL).Methods("GET")
	api.HandleFunc("/copier/events", h.HandleEvents).Methods("GET")

	// Terminals
	api.HandleFunc("/terminals", h.HandleGetTerminals).Methods("GET")
	api.HandleFunc("/terminals", h.HandleUpdateTerminals).Methods("PUT")
	api.HandleFunc("/terminals/{id}/command", h.HandleTerminalCommand).Methods("POST")

	// License
	api.HandleFunc("/license", h.HandleSetLicense).Methods("PUT")

	return r
}

// HandleHealth возвращает статус здоровья сервиса
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondSuccess(w, "OK", map[string]string{
		"status": "healthy",
	})
}
