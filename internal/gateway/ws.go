package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"conductor/internal/events"
	"conductor/pkg/logging"
)

// wireEvent is the JSON shape of one engine event on the websocket stream.
type wireEvent struct {
	Name      string                 `json:"name"`
	TaskID    string                 `json:"taskId,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// handleEvents streams every engine event to the client until it disconnects.
// Events are buffered per connection; a client that cannot keep up is
// dropped rather than blocking the bus.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logging.Warn("Gateway", "websocket accept failed: %v", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	buf := make(chan events.Event, 256)
	subID := s.bus.On("*", func(ev events.Event) {
		select {
		case buf <- ev:
		default:
			// Slow consumer: drop the event, the writer below will notice a
			// stalled connection soon enough through write errors.
		}
	})
	defer s.bus.Off(subID)
	logging.Debug("Gateway", "event stream client connected: %s", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case ev := <-buf:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, wireEvent{
				Name:      ev.Name,
				TaskID:    ev.TaskID,
				Timestamp: ev.Timestamp,
				Data:      ev.Data,
			})
			cancel()
			if err != nil {
				logging.Debug("Gateway", "event stream client gone: %v", err)
				return
			}
		}
	}
}
