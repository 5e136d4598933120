// Package rest exposes a RecordStore over HTTP with gin.
package rest

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	ballots "github.com/jicksta/case-ballots"
)

// NewRouter wires every store operation to a route. host decides which code
// hashes PUT /code may switch to.
func NewRouter(store ballots.RecordStore, host ballots.CodeHost) *gin.Engine {
	r := gin.Default()
	h := &handlers{store: store, host: host}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/voters", h.listVoters)
	r.POST("/voters", h.insertVoter)
	r.GET("/voters/:id", h.getVoter)
	r.PUT("/voters/:id", h.updateVoter)
	r.DELETE("/voters/:id", h.deleteVoter)

	r.GET("/votes", h.listVotes)
	r.POST("/votes", h.insertVote)
	r.GET("/votes/:id", h.getVote)
	r.PUT("/votes/:id", h.updateVote)
	r.DELETE("/votes/:id", h.deleteVote)

	r.GET("/evidence/:id/votes", h.listVotesForEvidence)

	r.GET("/code", h.getCode)
	r.PUT("/code", h.migrateCode)

	return r
}

type handlers struct {
	store ballots.RecordStore
	host  ballots.CodeHost
}

type codeRequest struct {
	CodeHash ballots.CodeHash `json:"code_hash" binding:"required"`
}

// pathID parses :id, answering 400 itself when it is malformed.
func pathID(c *gin.Context) (ballots.Identifier, bool) {
	id, err := ballots.ParseIdentifier(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return 0, false
	}
	return id, true
}

// fail maps store errors to status codes.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ballots.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case ballots.IsFatal(err):
		log.Printf("aborted %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		log.Printf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *handlers) listVoters(c *gin.Context) {
	voters, err := h.store.ListVoters(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, voters)
}

func (h *handlers) insertVoter(c *gin.Context) {
	var voter ballots.Voter
	if err := c.ShouldBindJSON(&voter); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	id, err := h.store.InsertVoter(c.Request.Context(), voter)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *handlers) getVoter(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	voter, found, err := h.store.GetVoter(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cannot find voter with ID " + c.Param("id")})
		return
	}
	c.JSON(http.StatusOK, voter)
}

func (h *handlers) updateVoter(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var voter ballots.Voter
	if err := c.ShouldBindJSON(&voter); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.UpdateVoter(c.Request.Context(), id, voter); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) deleteVoter(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteVoter(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) listVotes(c *gin.Context) {
	votes, err := h.store.ListVotes(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, votes)
}

func (h *handlers) insertVote(c *gin.Context) {
	var vote ballots.Vote
	if err := c.ShouldBindJSON(&vote); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	id, err := h.store.InsertVote(c.Request.Context(), vote)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *handlers) getVote(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	vote, found, err := h.store.GetVote(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cannot find vote with ID " + c.Param("id")})
		return
	}
	c.JSON(http.StatusOK, vote)
}

func (h *handlers) updateVote(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var vote ballots.Vote
	if err := c.ShouldBindJSON(&vote); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.UpdateVote(c.Request.Context(), id, vote); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) deleteVote(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteVote(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) listVotesForEvidence(c *gin.Context) {
	evidenceID, ok := pathID(c)
	if !ok {
		return
	}
	votes, err := h.store.ListVotesForEvidence(c.Request.Context(), evidenceID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, votes)
}

func (h *handlers) getCode(c *gin.Context) {
	hash, found, err := h.store.CodeHash(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no code hash recorded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code_hash": hash})
}

func (h *handlers) migrateCode(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.MigrateCode(c.Request.Context(), h.host, req.CodeHash); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
