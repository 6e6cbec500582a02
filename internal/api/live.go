package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/rotation.report/internal/units"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dashboards
	},
}

// LiveUpdate is one websocket frame on /api/live.
type LiveUpdate struct {
	StatusResponse
	UnixNanos int64 `json:"ts"`
}

// streamLive pushes detector snapshots over a websocket at a
// client-tunable interval (?interval_ms=, default 200, minimum 50).
func (s *Server) streamLive(w http.ResponseWriter, r *http.Request) {
	interval := 200 * time.Millisecond
	if ms := r.URL.Query().Get("interval_ms"); ms != "" {
		parsed, err := strconv.Atoi(ms)
		if err != nil || parsed < 50 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'interval_ms' parameter (min 50)")
			return
		}
		interval = time.Duration(parsed) * time.Millisecond
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Live] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	log.Printf("[Live] client connected from %s (interval %v)", r.RemoteAddr, interval)

	// Reader goroutine: the client sends nothing meaningful, but reading
	// is how close frames and dead connections are noticed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			log.Printf("[Live] client %s disconnected", r.RemoteAddr)
			return
		case <-ticker.C:
			snap := s.manager.Snapshot()
			update := LiveUpdate{
				StatusResponse: StatusResponse{
					Snapshot:   snap,
					PhaseAngle: units.ConvertAngle(snap.PhaseAngle, s.units),
					Units:      s.units,
				},
				UnixNanos: time.Now().UnixNano(),
			}
			if s.sessions != nil {
				update.Session = s.sessions.Active()
			}

			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(update); err != nil {
				log.Printf("[Live] write to %s failed: %v", r.RemoteAddr, err)
				return
			}
		}
	}
}
