// Package workflow composes the browser session, the request log and the
// link extractor into the operations the API exposes.
package workflow

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/use-agent/courtfetch/cache"
	"github.com/use-agent/courtfetch/config"
	"github.com/use-agent/courtfetch/extract"
	"github.com/use-agent/courtfetch/models"
)

// Browser is the captcha-bound portal session. *scraper.Session implements it.
type Browser interface {
	ReadCaptcha(ctx context.Context) (string, error)
	RefreshCaptcha(ctx context.Context) (string, error)
	ListCaseTypes(ctx context.Context) []models.CaseTypeOption
	RunQuery(ctx context.Context, q models.CaseQuery) models.ScrapeResult
}

// LogStore records queries and their results. *store.Store implements it.
type LogStore interface {
	LogQuery(ctx context.Context, q models.CaseQuery) (int64, error)
	LogResult(ctx context.Context, requestID int64, resultHTML string) error
}

// Workflow runs case lookups end to end.
type Workflow struct {
	browser Browser
	log     LogStore
	origin  string
	keep    extract.LinkFilter

	caseTypes *cache.Cache[[]models.CaseTypeOption]
	typesKey  string
}

// New creates a Workflow. log may be nil, in which case nothing is recorded.
func New(browser Browser, log LogStore, portal config.PortalConfig) *Workflow {
	return &Workflow{
		browser: browser,
		log:     log,
		origin:  portal.Origin,
		keep:    extract.KeywordFilter(portal.LinkKeywords...),

		caseTypes: cache.New[[]models.CaseTypeOption](1, portal.CaseTypesTTL),
		typesKey:  portal.SearchURL(),
	}
}

// FetchCaptcha returns the captcha currently displayed by the session.
func (w *Workflow) FetchCaptcha(ctx context.Context) (string, error) {
	return w.browser.ReadCaptcha(ctx)
}

// RefreshCaptcha returns a new captcha, restarting the session if needed.
func (w *Workflow) RefreshCaptcha(ctx context.Context) (string, error) {
	return w.browser.RefreshCaptcha(ctx)
}

// ListCaseTypes returns the case types the live portal accepts. With a
// positive Portal.CaseTypesTTL a non-empty list is reused until it expires;
// an empty one is never cached.
func (w *Workflow) ListCaseTypes(ctx context.Context) []models.CaseTypeOption {
	if types, ok := w.caseTypes.Get(w.typesKey); ok {
		return slices.Clone(types)
	}
	types := w.browser.ListCaseTypes(ctx)
	if len(types) > 0 {
		w.caseTypes.Set(w.typesKey, slices.Clone(types))
	}
	return types
}

// RunCaseQuery validates q, logs it, runs it on the portal and parses the
// order links out of the orders listing. The only error is INVALID_INPUT;
// portal failures come back as an unsuccessful CaseResult.
func (w *Workflow) RunCaseQuery(ctx context.Context, q models.CaseQuery) (*models.CaseResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var queryID int64
	if w.log != nil {
		id, err := w.log.LogQuery(ctx, q)
		if err != nil {
			slog.Warn("failed to log case query", "error", err)
		} else {
			queryID = id
		}
	}

	start := time.Now()
	res := w.browser.RunQuery(ctx, q)
	slog.Debug("portal query returned",
		"success", res.Success,
		"elapsed", time.Since(start).String(),
	)

	if w.log != nil && queryID != 0 {
		// The request may be gone by now; the log entry should still land.
		if err := w.log.LogResult(context.WithoutCancel(ctx), queryID, res.ResultHTML); err != nil {
			slog.Warn("failed to log case result", "queryID", queryID, "error", err)
		}
	}

	return &models.CaseResult{
		QueryID:      queryID,
		ScrapeResult: res,
		Orders:       w.OrderLinks(res.OrdersHTML),
	}, nil
}

// OrderLinks lists the downloadable orders in an orders listing.
func (w *Workflow) OrderLinks(ordersHTML string) []models.OrderLink {
	return extract.OrderLinks(ordersHTML, w.origin, w.keep)
}
