package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) HostBalance(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	balances, err := s.payoutCalc.HostBalances(c.Request.Context(), actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": balances})
}

func (s *Server) HostOpenDisputes(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	reports, err := s.disputeSvc.ListOpenByHost(c.Request.Context(), actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": reports})
}
