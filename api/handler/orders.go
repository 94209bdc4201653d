package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/courtfetch/downloader"
	"github.com/use-agent/courtfetch/models"
)

// ArchiveBuilder bundles order documents. *downloader.Downloader implements it.
type ArchiveBuilder interface {
	BuildArchive(ctx context.Context, links []models.OrderLink) (*downloader.Archive, error)
}

// OrderLinks returns a handler for POST /api/v1/orders/links.
func OrderLinks(svc CaseService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.OrderLinksRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidInput(c, err)
			return
		}
		c.JSON(http.StatusOK, models.OrderLinksResponse{
			Success: true,
			Orders:  svc.OrderLinks(req.OrdersHTML),
		})
	}
}

// OrdersArchive returns a handler for POST /api/v1/orders/archive.
//
// The body names the documents either as explicit links or as an orders
// fragment to parse. The response is the zip itself; the scratch directory
// is removed once it has been written.
func OrdersArchive(svc CaseService, builder ArchiveBuilder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ArchiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidInput(c, err)
			return
		}

		links := req.Links
		if len(links) == 0 && req.OrdersHTML != "" {
			links = svc.OrderLinks(req.OrdersHTML)
		}

		archive, err := builder.BuildArchive(c.Request.Context(), links)
		if err != nil {
			respondError(c, err)
			return
		}
		defer func() {
			if err := archive.Cleanup(); err != nil {
				slog.Warn("failed to remove archive scratch directory", "dir", archive.Dir, "error", err)
			}
		}()

		c.Header("X-Archive-Documents", strconv.Itoa(len(archive.Entries)))
		c.Header("X-Archive-Failed", strconv.Itoa(len(archive.Failures)))
		c.Header("Content-Type", "application/zip")
		c.FileAttachment(archive.Path, downloader.ArchiveName)
	}
}
