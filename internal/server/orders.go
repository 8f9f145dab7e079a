package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/splitpay/internal/statement"
	"github.com/smallbiznis/splitpay/internal/store"
)

func (s *Server) CreateOrder(c *gin.Context) {
	var req store.NewOrder
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	order, payments, err := s.store.CreateOrder(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": gin.H{
		"order":    order,
		"payments": payments,
	}})
}

func (s *Server) UpdateOrder(c *gin.Context) {
	var patch store.OrderPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	order, err := s.store.UpdateOrder(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}

func (s *Server) DeleteOrder(c *gin.Context) {
	if err := s.store.DeleteOrder(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) OrderStatement(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	order, err := s.store.Orders.Get(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if order == nil {
		AbortWithError(c, fmt.Errorf("order %q: %w", id, ErrNotFound))
		return
	}
	payments, err := s.store.Payments.GetByIndex(ctx, "byOrder", id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	platform, err := s.store.Platforms.Get(ctx, order.PlatformID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.statements.Render(ctx, statement.Data{
		Order:     *order,
		Platform:  platform,
		Payments:  payments,
		Generated: s.clock.Now(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	body, err := io.ReadAll(doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="order-%s.pdf"`, id))
	c.Data(http.StatusOK, "application/pdf", body)
}
