package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// StripeWebhook feeds raw provider deliveries into the ingestor. A 2xx
// acknowledges the event; anything else makes the provider redeliver.
func (s *Server) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.ingestor.Ingest(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
