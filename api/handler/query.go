package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/courtfetch/extract"
	"github.com/use-agent/courtfetch/models"
)

// CaseQuery returns a handler for POST /api/v1/cases/query.
//
// Flow:
//  1. Bind and validate the query (400 on bad input).
//  2. Run it on the portal through the captcha-bound session.
//  3. Sanitize both fragments and attach the parsed order links.
//
// A query the portal rejected still answers 200: the error fragment in
// result_html is the renderable outcome, error carries its code.
func CaseQuery(svc CaseService) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		var q models.CaseQuery
		if err := c.ShouldBind(&q); err != nil {
			invalidInput(c, err)
			return
		}

		browserStart := time.Now()
		res, err := svc.RunCaseQuery(c.Request.Context(), q)
		browserMs := time.Since(browserStart).Milliseconds()
		if err != nil {
			respondError(c, err)
			return
		}

		resp := models.CaseQueryResponse{
			Success:    res.Success,
			QueryID:    res.QueryID,
			ResultHTML: extract.Sanitize(res.ResultHTML),
			OrdersHTML: extract.Sanitize(res.OrdersHTML),
			Orders:     res.Orders,
			Timing: models.TimingInfo{
				TotalMs:   time.Since(totalStart).Milliseconds(),
				BrowserMs: browserMs,
			},
		}
		if !res.Success {
			resp.Error = &models.ErrorDetail{
				Code:    res.ErrorCode,
				Message: "case query failed, see result_html",
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}
