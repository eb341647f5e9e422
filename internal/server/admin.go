package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/roamlabs/fieldtrip/internal/admin"
)

type adminActionRequest struct {
	Token       string `json:"token"`
	ConfirmText string `json:"confirm_text"`
}

func (s *Server) ExecuteAdminAction(c *gin.Context) {
	var req adminActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.adminSvc.Execute(c.Request.Context(), admin.ExecuteRequest{
		Token:       strings.TrimSpace(req.Token),
		ConfirmText: strings.TrimSpace(req.ConfirmText),
	})
	if err != nil && result == nil {
		AbortWithError(c, err)
		return
	}

	// Partial failures still report what went through; the failed ids
	// stay actionable with a fresh token.
	c.JSON(http.StatusOK, gin.H{"data": result})
}
