package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmelo/convd/internal/bus"
)

// eventEnvelope is the SSE data payload.
type eventEnvelope struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Timestamp int64  `json:"timestamp"`
	Payload   any    `json:"payload,omitempty"`
}

// streamEvents streams conversation and daemon events over SSE until
// the client disconnects. Events dropped by a slow client are lost;
// clients resynchronize with a fresh conversation list.
func (s *Server) streamEvents(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	conversations, unsubConversations := s.bus.Subscribe("conversation.", 64)
	daemon, unsubDaemon := s.bus.Subscribe("daemon.", 16)
	defer unsubConversations()
	defer unsubDaemon()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	flusher.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case evt := <-conversations:
			s.writeEvent(c, flusher, evt)
		case evt := <-daemon:
			s.writeEvent(c, flusher, evt)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) writeEvent(c *gin.Context, flusher http.Flusher, evt bus.Event) {
	env := eventEnvelope{
		ID:        uuid.NewString(),
		Kind:      evt.Kind,
		Timestamp: evt.Timestamp.UnixMilli(),
		Payload:   evt.Payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		s.logger.Warn("failed to marshal event", zap.Error(err))
		return
	}
	fmt.Fprintf(c.Writer, "id: %s\nevent: %s\ndata: %s\n\n", env.ID, evt.Kind, data)
	flusher.Flush()
}
