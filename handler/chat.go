package handler

import (
	"errors"
	"net/http"

	"github.com/AnTengye/legalease/backend/service"
	"github.com/gin-gonic/gin"
)

type ChatRequest struct {
	Question string `json:"question"`
}

// Chat asks a follow-up question about the session's document. A model
// failure still answers 200 with the fallback reply appended to the log.
func (h *SessionHandler) Chat(c *gin.Context) {
	sess := h.lookup(c)
	if sess == nil {
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	msg, err := sess.Ask(c.Request.Context(), req.Question)
	switch {
	case errors.Is(err, service.ErrEmptyQuestion):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Question cannot be empty"})
	case errors.Is(err, service.ErrNoAnalysis):
		c.JSON(http.StatusConflict, gin.H{"error": "Analyze a document before asking questions"})
	case errors.Is(err, service.ErrAwaitingReply):
		c.JSON(http.StatusConflict, gin.H{"error": "Please wait for the previous answer"})
	case errors.Is(err, service.ErrConversationFull):
		c.JSON(http.StatusConflict, gin.H{"error": "This conversation is full. Reset the session to start over."})
	case errors.Is(err, service.ErrSessionReset):
		c.JSON(http.StatusConflict, gin.H{"error": "Session was reset while waiting for the answer"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		snap := sess.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"message":         msg,
			"messages":        snap.Messages,
			"last_error_kind": snap.LastErrorKind,
		})
	}
}

// Messages returns the conversation log
func (h *SessionHandler) Messages(c *gin.Context) {
	sess := h.lookup(c)
	if sess == nil {
		return
	}
	snap := sess.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"messages": snap.Messages,
		"awaiting": snap.Awaiting,
	})
}
