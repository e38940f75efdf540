package websocket

import (
	"log"
	"net/http"
	"time"

	"mirror-backend/internal/domain"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

type Handler struct {
	repo domain.MirrorRepository
}

func NewHandler(repo domain.MirrorRepository) *Handler {
	return &Handler{
		repo: repo,
	}
}

// Handle upgrades the connection and streams the active mirror pair snapshot.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	defer conn.Close()

	log.Println("New Client Connected")

	// Send initial snapshot immediately
	pairs := h.repo.GetActivePairs()
	if err := conn.WriteJSON(pairs); err != nil {
		log.Println("Write error:", err)
		return
	}

	ticker := time.NewTicker(2 * time.Second) // A little slower than the poll loop
	defer ticker.Stop()

	for range ticker.C {
		currentPairs := h.repo.GetActivePairs()
		if err := conn.WriteJSON(currentPairs); err != nil {
			log.Println("Write error:", err)
			return
		}
	}
}
