package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/splitpay/internal/domain"
)

type limitChangeRequest struct {
	CreditLimit *int64 `json:"creditLimit"`
}

func (s *Server) AddPlatform(c *gin.Context) {
	var req domain.Platform
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	platform, err := s.store.AddPlatform(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": platform})
}

func (s *Server) RecordLimitChange(c *gin.Context) {
	var req limitChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CreditLimit == nil {
		AbortWithError(c, newValidationError("creditLimit", "required", "creditLimit is required"))
		return
	}

	change, err := s.store.RecordLimitChange(c.Request.Context(), c.Param("id"), *req.CreditLimit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": change})
}
