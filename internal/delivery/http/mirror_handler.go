package http

import (
	"encoding/json"
	"net/http"
	"time"

	"mirror-backend/internal/domain"
	"mirror-backend/internal/usecase"
)

// MirrorHandler exposes the mirror loop's settings, live pairs and history.
type MirrorHandler struct {
	service *usecase.MirrorService
}

// NewMirrorHandler creates a new handler
func NewMirrorHandler(service *usecase.MirrorService) *MirrorHandler {
	return &MirrorHandler{service: service}
}

// HandleSettings handles GET/POST /api/mirror/settings
func (h *MirrorHandler) HandleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(h.service.Settings())

	case http.MethodPost:
		var settings domain.MirrorSettings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		h.service.UpdateSettings(&settings)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"message": "Settings updated successfully",
		})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// GetActivePairs handles GET /api/mirror/active
func (h *MirrorHandler) GetActivePairs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.service.ActivePairs())
}

// GetHistory handles GET /api/mirror/history?period=1d|7d|30d
func (h *MirrorHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	period := r.URL.Query().Get("period")
	var fromTime time.Time

	switch period {
	case "7d":
		fromTime = time.Now().Add(-7 * 24 * time.Hour)
	case "30d":
		fromTime = time.Now().Add(-30 * 24 * time.Hour)
	default: // "1d"
		fromTime = time.Now().Add(-24 * time.Hour)
	}

	response := map[string]interface{}{
		"history": h.service.History(fromTime),
		"stats":   h.service.GetStatistics(fromTime),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
