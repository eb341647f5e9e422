package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListMessages(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	id, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	messages, err := s.chatSvc.List(c.Request.Context(), id, actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": messages})
}

type sendMessageRequest struct {
	Body string `json:"body"`
}

func (s *Server) SendMessage(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	id, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		AbortWithError(c, newValidationError("body", "invalid_body", "message body is required"))
		return
	}

	message, err := s.chatSvc.Send(c.Request.Context(), id, actor, req.Body)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": message})
}
