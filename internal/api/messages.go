package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmelo/convd/internal/bus"
	"github.com/dmelo/convd/internal/store"
)

type messageRequest struct {
	Kind               string `json:"kind"`
	Identity           string `json:"identity"`
	GroupID            int64  `json:"group_id"`
	DistributionListID int64  `json:"distribution_list_id"`
	Body               string `json:"body"`
	Type               string `json:"type"`
	IsStatus           bool   `json:"is_status"`
	IsOutbox           bool   `json:"is_outbox"`
	IsRead             bool   `json:"is_read"`
	CreatedAt          int64  `json:"created_at"`
}

func (s *Server) addMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind := store.Kind(req.Kind)
	switch kind {
	case store.KindContact, store.KindGroup, store.KindDistributionList:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown conversation kind"})
		return
	}
	if req.Type == "" {
		req.Type = store.MessageTypeText
	}
	if req.CreatedAt == 0 {
		req.CreatedAt = time.Now().UnixMilli()
	}

	m := &store.Message{
		Kind:               kind,
		Identity:           req.Identity,
		GroupID:            req.GroupID,
		DistributionListID: req.DistributionListID,
		Body:               req.Body,
		Type:               req.Type,
		IsStatus:           req.IsStatus,
		IsSaved:            true,
		IsRead:             req.IsRead,
		IsOutbox:           req.IsOutbox,
		IsDownloaded:       true,
		CreatedAt:          req.CreatedAt,
	}
	if _, err := s.db.InsertMessage(m); err != nil {
		s.handleError(c, err)
		return
	}
	if err := s.bumpReceiverLastUpdate(m); err != nil {
		s.handleError(c, err)
		return
	}

	s.bus.Emit(bus.KindMessageAdded, m)
	c.JSON(http.StatusCreated, gin.H{"id": m.ID})
}

// bumpReceiverLastUpdate advances the receiver's lastUpdate to the
// message timestamp so the conversation surfaces at its new position.
func (s *Server) bumpReceiverLastUpdate(m *store.Message) error {
	switch m.Kind {
	case store.KindContact:
		return s.db.SetContactLastUpdate(m.Identity, m.CreatedAt)
	case store.KindGroup:
		return s.db.SetGroupLastUpdate(m.GroupID, m.CreatedAt)
	case store.KindDistributionList:
		return s.db.SetDistributionListLastUpdate(m.DistributionListID, m.CreatedAt)
	}
	return nil
}

func (s *Server) markMessageRead(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	id, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	m, err := s.db.GetMessage(kind, id)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	if err := s.db.MarkMessageRead(kind, id); err != nil {
		s.handleError(c, err)
		return
	}
	m.IsRead = true

	s.bus.Emit(bus.KindMessageRead, m)
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteMessage(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	id, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	m, err := s.db.GetMessage(kind, id)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	if err := s.db.DeleteMessage(kind, id); err != nil {
		s.handleError(c, err)
		return
	}

	s.bus.Emit(bus.KindMessageDeleted, m)
	c.Status(http.StatusNoContent)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
