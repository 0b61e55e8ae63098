package http

import (
	"log"
	"net/http"
	"time"

	"competition-engine/internal/domain"

	"github.com/gorilla/websocket"
)

const leaderboardPushInterval = 5 * time.Second

// LeaderboardStream pushes periodic leaderboard snapshots for one round over
// a websocket, so feed clients can render a live board without polling.
type LeaderboardStream struct {
	handler  *Handler
	upgrader websocket.Upgrader
	interval time.Duration
}

func NewLeaderboardStream(handler *Handler) *LeaderboardStream {
	return &LeaderboardStream{
		handler: handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		interval: leaderboardPushInterval,
	}
}

type snapshotMessage struct {
	Type    string                 `json:"type"`
	Payload domain.LeaderboardPage `json:"payload"`
}

// ServeWS upgrades the request and streams snapshots until the client leaves.
func (s *LeaderboardStream) ServeWS(w http.ResponseWriter, r *http.Request) {
	roundID := r.URL.Query().Get("roundId")
	if roundID == "" {
		http.Error(w, "missing roundId", http.StatusBadRequest)
		return
	}

	// Reject unknown rounds before upgrading.
	page, err := s.handler.service.BuildLeaderboard(r.Context(), roundID, "", 50)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(snapshotMessage{Type: "leaderboard", Payload: page}); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Reads are discarded; the loop only notices the client closing.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			page, err := s.handler.service.BuildLeaderboard(r.Context(), roundID, "", 50)
			if err != nil {
				log.Printf("leaderboard snapshot for %s failed: %v", roundID, err)
				continue
			}
			if err := conn.WriteJSON(snapshotMessage{Type: "leaderboard", Payload: page}); err != nil {
				return
			}
		}
	}
}
