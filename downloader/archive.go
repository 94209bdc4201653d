// Package downloader fetches order documents and bundles them into a single
// zip archive.
package downloader

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/use-agent/courtfetch/config"
	"github.com/use-agent/courtfetch/extract"
	"github.com/use-agent/courtfetch/models"
)

// ArchiveName is the download name of every archive.
const ArchiveName = "all_orders.zip"

// Archive is a zip file in its own scratch directory. The caller must call
// Cleanup once the file has been served.
type Archive struct {
	ID       string
	Path     string
	Dir      string
	Entries  []models.ArchiveEntry
	Failures []models.DownloadFailure
}

// Cleanup removes the archive and its scratch directory.
func (a *Archive) Cleanup() error {
	if a == nil || a.Dir == "" {
		return nil
	}
	return os.RemoveAll(a.Dir)
}

// Downloader builds order archives.
type Downloader struct {
	fetcher *fetcher
	timeout time.Duration
	tempDir string
}

// New creates a Downloader from cfg.
func New(cfg config.DownloadConfig) *Downloader {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 50 << 20
	}
	return &Downloader{
		fetcher: newFetcher(cfg.Proxy, maxBody),
		timeout: cfg.Timeout,
		tempDir: cfg.TempDir,
	}
}

// BuildArchive downloads every link in order and writes the successful ones
// into a zip. Individual failures are skipped and recorded; the call only
// fails when no link was given or none could be fetched.
func (d *Downloader) BuildArchive(ctx context.Context, links []models.OrderLink) (*Archive, error) {
	if len(links) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeNoLinksProvided, "no order links to download", nil)
	}

	dir, err := os.MkdirTemp(d.tempDir, "courtfetch-orders-")
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInternal, "failed to create scratch directory", err)
	}
	archive := &Archive{
		ID:   uuid.NewString(),
		Dir:  dir,
		Path: filepath.Join(dir, ArchiveName),
	}

	if err := d.writeArchive(ctx, archive, links); err != nil {
		_ = archive.Cleanup()
		return nil, err
	}

	if len(archive.Entries) == 0 {
		_ = archive.Cleanup()
		return nil, models.NewScrapeError(models.ErrCodeAllDownloadsFailed,
			fmt.Sprintf("none of the %d orders could be downloaded", len(links)), nil)
	}

	slog.Info("order archive built",
		"archiveID", archive.ID,
		"documents", len(archive.Entries),
		"failed", len(archive.Failures),
	)
	return archive, nil
}

func (d *Downloader) writeArchive(ctx context.Context, archive *Archive, links []models.OrderLink) error {
	f, err := os.Create(archive.Path)
	if err != nil {
		return models.NewScrapeError(models.ErrCodeInternal, "failed to create archive", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	used := make(map[string]int, len(links))

	for i, link := range links {
		body, err := d.fetchOne(ctx, link.URL)
		if err != nil {
			slog.Warn("order download failed",
				"archiveID", archive.ID,
				"url", link.URL,
				"error", err,
			)
			archive.Failures = append(archive.Failures, models.DownloadFailure{URL: link.URL, Reason: err.Error()})
			continue
		}

		name := uniqueName(extract.ArchiveFilename(link.URL, i+1), used)
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: time.Now(),
		})
		if err != nil {
			return models.NewScrapeError(models.ErrCodeInternal, "failed to add "+name+" to archive", err)
		}
		if _, err := w.Write(body); err != nil {
			return models.NewScrapeError(models.ErrCodeInternal, "failed to write "+name+" to archive", err)
		}

		archive.Entries = append(archive.Entries, models.ArchiveEntry{
			Name:  name,
			URL:   link.URL,
			Bytes: len(body),
			Pages: pageCount(body),
		})
	}

	if err := zw.Close(); err != nil {
		return models.NewScrapeError(models.ErrCodeInternal, "failed to finish archive", err)
	}
	return nil
}

func (d *Downloader) fetchOne(ctx context.Context, rawURL string) ([]byte, error) {
	fctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.fetcher.fetch(fctx, rawURL)
}

// uniqueName suffixes repeated names: a.pdf, a-2.pdf, a-3.pdf.
func uniqueName(name string, used map[string]int) string {
	used[name]++
	n := used[name]
	if n == 1 {
		return name
	}
	ext := path.Ext(name)
	candidate := fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n, ext)
	return uniqueName(candidate, used)
}

// pageCount returns the page count of a PDF body, or 0 for anything else.
func pageCount(body []byte) (pages int) {
	if !bytes.HasPrefix(body, []byte("%PDF")) {
		return 0
	}
	// pdfcpu can panic on malformed input.
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("pdf page count panicked", "panic", r)
			pages = 0
		}
	}()

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(body), model.NewDefaultConfiguration())
	if err != nil {
		slog.Debug("pdf page count failed", "error", err)
		return 0
	}
	return ctx.PageCount
}
