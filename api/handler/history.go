package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/courtfetch/models"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// QueryLog lists logged queries. *store.Store implements it.
type QueryLog interface {
	Recent(ctx context.Context, limit int) ([]models.QueryRecord, error)
}

// Queries returns a handler for GET /api/v1/queries?limit=N.
func Queries(ql QueryLog) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultHistoryLimit
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, models.ErrorResponse{
					Success: false,
					Error: &models.ErrorDetail{
						Code:    models.ErrCodeInvalidInput,
						Message: "limit must be a positive integer",
					},
				})
				return
			}
			limit = min(n, maxHistoryLimit)
		}

		records, err := ql.Recent(c.Request.Context(), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.QueryHistoryResponse{
			Success: true,
			Queries: records,
		})
	}
}
