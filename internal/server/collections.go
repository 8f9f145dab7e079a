package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/splitpay/internal/store"
)

// listHandler serves a whole collection, or one secondary index when a query
// parameter named in filters is present.
func listHandler[T any](coll *store.Collection[T], filters map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		for param, index := range filters {
			value, ok := c.GetQuery(param)
			if !ok {
				continue
			}
			items, err := coll.GetByIndex(ctx, index, value)
			if err != nil {
				AbortWithError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"data": items})
			return
		}

		items, err := coll.GetAll(ctx)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": items})
	}
}

func getHandler[T any](coll *store.Collection[T], param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		item, err := coll.Get(c.Request.Context(), c.Param(param))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if item == nil {
			AbortWithError(c, fmt.Errorf("%s %q: %w", coll.Name(), c.Param(param), ErrNotFound))
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": item})
	}
}

// putHandler upserts the request body. The key in the body must match the
// path.
func putHandler[T any](coll *store.Collection[T], param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var item T
		if err := c.ShouldBindJSON(&item); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		if coll.Key(&item) != c.Param(param) {
			AbortWithError(c, newValidationError(param, "key_mismatch", "body key does not match path"))
			return
		}
		if err := coll.Put(c.Request.Context(), item); err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": item})
	}
}

func deleteHandler[T any](coll *store.Collection[T], param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := coll.Delete(c.Request.Context(), c.Param(param)); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
