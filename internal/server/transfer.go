package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/splitpay/internal/sweeper"
)

const maxImportBytes = 32 << 20

func (s *Server) Export(c *gin.Context) {
	snap, err := s.store.Export(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	name := fmt.Sprintf("splitpay-export-%s.json", snap.ExportedAt.Format(dateOnlyLayout))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.JSON(http.StatusOK, snap)
}

func (s *Server) Import(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes+1))
	if err != nil || len(raw) == 0 {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(raw) > maxImportBytes {
		AbortWithError(c, newValidationError("body", "too_large", "import file is too large"))
		return
	}

	res, err := s.store.Import(c.Request.Context(), raw)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

// Dataset returns every collection after load-time migration.
func (s *Server) Dataset(c *gin.Context) {
	data, err := s.store.Load(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"orders":        data.Orders,
		"payments":      data.Payments,
		"platforms":     data.Platforms,
		"subscriptions": data.Subscriptions,
		"limitHistory":  data.LimitHistory,
	}})
}

func (s *Server) Sweep(c *gin.Context) {
	promoted, err := s.sweeper.RunOnce(c.Request.Context(), sweeper.TriggerManual)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"promoted": promoted}})
}
