package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/courtfetch/models"
)

// CaseService is the portal workflow behind the case endpoints.
// *workflow.Workflow implements it.
type CaseService interface {
	FetchCaptcha(ctx context.Context) (string, error)
	RefreshCaptcha(ctx context.Context) (string, error)
	ListCaseTypes(ctx context.Context) []models.CaseTypeOption
	RunCaseQuery(ctx context.Context, q models.CaseQuery) (*models.CaseResult, error)
	OrderLinks(ordersHTML string) []models.OrderLink
}

// Captcha returns a handler for GET /api/v1/captcha.
func Captcha(svc CaseService) gin.HandlerFunc {
	return captchaHandler(svc.FetchCaptcha)
}

// RefreshCaptcha returns a handler for POST /api/v1/captcha/refresh.
// It is also the way back to the search form after a query.
func RefreshCaptcha(svc CaseService) gin.HandlerFunc {
	return captchaHandler(svc.RefreshCaptcha)
}

func captchaHandler(read func(context.Context) (string, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		captcha, err := read(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.CaptchaResponse{
			Success: true,
			Captcha: captcha,
		})
	}
}

// CaseTypes returns a handler for GET /api/v1/case-types. An empty list with
// success=false means the portal's selector could not be read.
func CaseTypes(svc CaseService) gin.HandlerFunc {
	return func(c *gin.Context) {
		types := svc.ListCaseTypes(c.Request.Context())
		c.JSON(http.StatusOK, models.CaseTypesResponse{
			Success:   len(types) > 0,
			CaseTypes: types,
		})
	}
}
