package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	bookingdomain "github.com/roamlabs/fieldtrip/internal/booking/domain"
)

// actorID reads the authenticated user id the gateway injects upstream.
func actorID(c *gin.Context) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.GetHeader("X-User-ID"))
	if raw == "" {
		return 0, ErrUnauthorized
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, ErrUnauthorized
	}
	return id, nil
}

func pathID(c *gin.Context) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		return 0, newValidationError("id", "invalid_id", "invalid id")
	}
	return id, nil
}

type createBookingRequest struct {
	ExperienceID string `json:"experience_id"`
	Quantity     int    `json:"quantity"`
}

func (s *Server) CreateBooking(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	experienceID, err := snowflake.ParseString(strings.TrimSpace(req.ExperienceID))
	if err != nil {
		AbortWithError(c, newValidationError("experience_id", "invalid_experience_id", "invalid experience_id"))
		return
	}

	resp, err := s.bookingSvc.Create(c.Request.Context(), bookingdomain.CreateBookingRequest{
		ExperienceID: experienceID,
		ExplorerID:   actor,
		Quantity:     req.Quantity,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"booking":      resp.Booking,
		"checkout_url": resp.CheckoutURL,
	}})
}

func (s *Server) ListBookings(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var (
		bookings []bookingdomain.Booking
		listErr  error
	)
	switch strings.TrimSpace(c.Query("role")) {
	case "host":
		bookings, listErr = s.bookingSvc.ListByHost(c.Request.Context(), actor)
	case "", "explorer":
		bookings, listErr = s.bookingSvc.ListByExplorer(c.Request.Context(), actor)
	default:
		AbortWithError(c, newValidationError("role", "invalid_role", "invalid role"))
		return
	}
	if listErr != nil {
		AbortWithError(c, listErr)
		return
	}

	views := make([]bookingView, 0, len(bookings))
	for _, b := range bookings {
		views = append(views, bookingView{Booking: b, CanReview: b.Status.ReviewEligible()})
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}

type bookingView struct {
	bookingdomain.Booking
	CanReview bool `json:"can_review"`
}

func (s *Server) GetBooking(c *gin.Context) {
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

	booking, err := s.bookingSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if actor != booking.ExplorerID && actor != booking.HostID {
		AbortWithError(c, bookingdomain.ErrForbidden)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": booking})
}

func (s *Server) CancelBooking(c *gin.Context) {
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

	if err := s.bookingSvc.Cancel(c.Request.Context(), id, actor); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"status": "cancelled"}})
}

func (s *Server) ConfirmAttendance(c *gin.Context) {
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

	if err := s.bookingSvc.ConfirmAttendance(c.Request.Context(), id, actor); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"status": "completed"}})
}

func (s *Server) MarkNoShow(c *gin.Context) {
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

	if err := s.bookingSvc.MarkNoShow(c.Request.Context(), id, actor); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"status": "no_show"}})
}

type openDisputeRequest struct {
	Reason  string `json:"reason"`
	Comment string `json:"comment"`
}

func (s *Server) OpenDispute(c *gin.Context) {
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

	var req openDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.bookingSvc.OpenDispute(c.Request.Context(), bookingdomain.OpenDisputeRequest{
		BookingID:  id,
		ReporterID: actor,
		Reason:     strings.TrimSpace(req.Reason),
		Comment:    strings.TrimSpace(req.Comment),
	}); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"status": "disputed"}})
}
