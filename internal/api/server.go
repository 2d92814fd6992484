// Package api exposes the conversation index over HTTP. Mutations are
// written to the store here and announced on the bus; the ingest
// engine picks them up and refreshes the index, so handlers never call
// refresh logic directly for message writes.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dmelo/convd/internal/bus"
	"github.com/dmelo/convd/internal/conversation"
	"github.com/dmelo/convd/internal/status"
	"github.com/dmelo/convd/internal/store"
)

// Server holds the handler dependencies.
type Server struct {
	db      *store.DB
	index   *conversation.Index
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
}

// NewServer creates the HTTP API server.
func NewServer(db *store.DB, index *conversation.Index, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Server {
	return &Server{
		db:      db,
		index:   index,
		bus:     b,
		machine: machine,
		logger:  logger,
	}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/v1")

	v1.GET("/status", s.getStatus)
	v1.GET("/events", s.streamEvents)

	v1.GET("/conversations", s.listConversations)
	v1.GET("/conversations/archived", s.listArchived)
	v1.GET("/conversations/archived/count", s.archivedCount)
	v1.POST("/conversations/:kind/:id/archive", s.archiveConversation)
	v1.POST("/conversations/:kind/:id/unarchive", s.unarchiveConversation)
	v1.POST("/conversations/:kind/:id/read", s.markConversationRead)
	v1.POST("/conversations/:kind/:id/empty", s.emptyConversation)
	v1.POST("/conversations/:kind/:id/pin", s.pinConversation)
	v1.DELETE("/conversations/:kind/:id/pin", s.unpinConversation)
	v1.POST("/conversations/:kind/:id/unread", s.markConversationUnread)
	v1.POST("/conversations/:kind/:id/private", s.markConversationPrivate)
	v1.DELETE("/conversations/:kind/:id/private", s.unmarkConversationPrivate)
	v1.POST("/conversations/:kind/:id/typing", s.setTyping)
	v1.DELETE("/conversations/contact/:id", s.deleteContactConversation)

	v1.PUT("/contacts/:identity", s.upsertContact)
	v1.POST("/groups", s.createGroup)
	v1.PUT("/groups/:id", s.updateGroup)
	v1.POST("/distribution-lists", s.createDistributionList)
	v1.PUT("/distribution-lists/:id", s.updateDistributionList)

	v1.POST("/messages", s.addMessage)
	v1.POST("/messages/:kind/:id/read", s.markMessageRead)
	v1.DELETE("/messages/:kind/:id", s.deleteMessage)

	v1.POST("/maintenance/recalculate-last-updates", s.recalculateLastUpdates)

	return r
}

func (s *Server) getStatus(c *gin.Context) {
	hasConversations := s.index.HasConversations()
	c.JSON(http.StatusOK, gin.H{
		"state":             string(s.machine.Current()),
		"has_conversations": hasConversations,
		"archived_count":    s.index.ArchivedCount(),
	})
}

// parseKind validates the :kind path parameter.
func parseKind(c *gin.Context) (store.Kind, bool) {
	kind := store.Kind(c.Param("kind"))
	switch kind {
	case store.KindContact, store.KindGroup, store.KindDistributionList:
		return kind, true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "unknown conversation kind"})
	return "", false
}

func parseTrigger(c *gin.Context) store.TriggerSource {
	if c.Query("source") == string(store.TriggerSync) {
		return store.TriggerSync
	}
	return store.TriggerLocal
}

func (s *Server) handleError(c *gin.Context, err error) {
	s.logger.Error("request failed",
		zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
