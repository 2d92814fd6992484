package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmelo/convd/internal/bus"
	"github.com/dmelo/convd/internal/store"
)

type contactRequest struct {
	Name              string `json:"name"`
	State             string `json:"state"`
	AcquaintanceLevel int    `json:"acquaintance_level"`
	IsBlocked         bool   `json:"is_blocked"`
	LastUpdate        *int64 `json:"last_update"`
}

func (s *Server) upsertContact(c *gin.Context) {
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.State == "" {
		req.State = store.StateActive
	}

	contact := &store.Contact{
		Identity:          c.Param("identity"),
		Name:              req.Name,
		State:             req.State,
		AcquaintanceLevel: req.AcquaintanceLevel,
		IsBlocked:         req.IsBlocked,
		LastUpdate:        req.LastUpdate,
		CreatedAt:         time.Now().UnixMilli(),
	}
	if err := s.db.UpsertContact(contact); err != nil {
		s.handleError(c, err)
		return
	}
	s.bus.Emit(bus.KindReceiverUpdated,
		bus.ReceiverRef{Kind: string(store.KindContact), Identifier: contact.Identity})
	c.Status(http.StatusNoContent)
}

type groupRequest struct {
	Name            string `json:"name"`
	CreatorIdentity string `json:"creator_identity"`
	IsMember        *bool  `json:"is_member"`
	LastUpdate      *int64 `json:"last_update"`
}

func (s *Server) createGroup(c *gin.Context) {
	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	isMember := true
	if req.IsMember != nil {
		isMember = *req.IsMember
	}
	g := &store.Group{
		Name:            req.Name,
		CreatorIdentity: req.CreatorIdentity,
		IsMember:        isMember,
		LastUpdate:      req.LastUpdate,
		CreatedAt:       time.Now().UnixMilli(),
	}
	id, err := s.db.InsertGroup(g)
	if err != nil {
		s.handleError(c, err)
		return
	}
	s.bus.Emit(bus.KindReceiverUpdated,
		bus.ReceiverRef{Kind: string(store.KindGroup), Identifier: formatID(id)})
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) updateGroup(c *gin.Context) {
	id, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}
	g, err := s.db.GetGroup(id)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if g == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return
	}

	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name != "" {
		g.Name = req.Name
	}
	if req.IsMember != nil {
		g.IsMember = *req.IsMember
	}
	if req.LastUpdate != nil {
		g.LastUpdate = req.LastUpdate
	}
	if err := s.db.UpdateGroup(g); err != nil {
		s.handleError(c, err)
		return
	}
	s.bus.Emit(bus.KindReceiverUpdated,
		bus.ReceiverRef{Kind: string(store.KindGroup), Identifier: formatID(id)})
	c.Status(http.StatusNoContent)
}

type distributionListRequest struct {
	Name       string `json:"name"`
	IsHidden   *bool  `json:"is_hidden"`
	LastUpdate *int64 `json:"last_update"`
}

func (s *Server) createDistributionList(c *gin.Context) {
	var req distributionListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d := &store.DistributionList{
		Name:      req.Name,
		IsHidden:  req.IsHidden != nil && *req.IsHidden,
		CreatedAt: time.Now().UnixMilli(),
	}
	if req.LastUpdate != nil {
		d.LastUpdate = req.LastUpdate
	}
	id, err := s.db.InsertDistributionList(d)
	if err != nil {
		s.handleError(c, err)
		return
	}
	s.bus.Emit(bus.KindReceiverUpdated,
		bus.ReceiverRef{Kind: string(store.KindDistributionList), Identifier: formatID(id)})
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) updateDistributionList(c *gin.Context) {
	id, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}
	d, err := s.db.GetDistributionList(id)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if d == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "distribution list not found"})
		return
	}

	var req distributionListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name != "" {
		d.Name = req.Name
	}
	if req.IsHidden != nil {
		d.IsHidden = *req.IsHidden
	}
	if req.LastUpdate != nil {
		d.LastUpdate = req.LastUpdate
	}
	if err := s.db.UpdateDistributionList(d); err != nil {
		s.handleError(c, err)
		return
	}
	s.bus.Emit(bus.KindReceiverUpdated,
		bus.ReceiverRef{Kind: string(store.KindDistributionList), Identifier: formatID(id)})
	c.Status(http.StatusNoContent)
}
