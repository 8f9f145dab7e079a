package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/splitpay/internal/store"
	"github.com/smallbiznis/splitpay/internal/sweeper"
	"go.uber.org/zap"
)

type markPaidRequest struct {
	PaidAt string `json:"paidAt"`
}

func (s *Server) UpdatePayment(c *gin.Context) {
	var patch store.PaymentPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	payment, err := s.store.UpdatePayment(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payment})
}

func (s *Server) MarkPaymentPaid(c *gin.Context) {
	var req markPaidRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	paidAt, err := parseOptionalTime(req.PaidAt)
	if err != nil {
		AbortWithError(c, newValidationError("paidAt", "invalid_time", "paidAt must be RFC 3339 or YYYY-MM-DD"))
		return
	}
	at := s.clock.Now()
	if paidAt != nil {
		at = *paidAt
	}

	payment, err := s.store.MarkPaymentPaid(c.Request.Context(), c.Param("id"), at)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payment})
}

// UnmarkPaymentPaid reopens a payment and sweeps, since it may already be
// past due.
func (s *Server) UnmarkPaymentPaid(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := s.store.UnmarkPaymentPaid(ctx, c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	if _, err := s.sweeper.RunOnce(ctx, sweeper.TriggerUnmark); err != nil {
		s.log.Warn("sweep after unmark failed", zap.Error(err))
	}

	payment, err := s.store.Payments.Get(ctx, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payment})
}
