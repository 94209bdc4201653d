package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/use-agent/courtfetch/extract"
	"github.com/use-agent/courtfetch/models"
)

// maxListedOptions bounds the case types named in an invalid-type message.
const maxListedOptions = 10

// RunQuery fills and submits the search form with q on the tab that showed
// the captcha, then follows the Orders link when the result has one.
//
// It never returns an error: failures before the result page is captured
// come back as an HTML error fragment with Success false, and a failure
// while fetching the orders listing is reported inline in OrdersHTML.
//
// The tab must still be on the search page. Reloading it here would replace
// the captcha the user typed, so a query against any other page fails and
// the caller must fetch a fresh captcha first.
func (s *Session) RunQuery(ctx context.Context, q models.CaseQuery) models.ScrapeResult {
	ctx = context.WithoutCancel(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	if err := s.ensureStartedLocked(ctx); err != nil {
		return s.failedLocked(err)
	}
	if s.state != StateSearchPage {
		return s.failedLocked(models.NewScrapeError(models.ErrCodeElementNotFound,
			"search form is not loaded, fetch a fresh captcha and retry", ErrElementNotFound))
	}

	if err := s.checkCaseTypeLocked(ctx, q.CaseType); err != nil {
		return s.failedLocked(err)
	}
	if err := s.submitLocked(ctx, q); err != nil {
		return s.failedLocked(err)
	}

	page, err := s.pageLocked(ctx)
	if err != nil {
		return s.failedLocked(err)
	}
	result := models.ScrapeResult{
		ResultHTML: extract.ResultRegion(page, s.sel.ResultContainer),
		OrdersHTML: s.ordersLocked(ctx, page),
		Success:    true,
	}
	s.health.recordSuccess()

	slog.Info("case query completed",
		"caseType", q.CaseType,
		"caseNumber", q.CaseNumber,
		"caseYear", q.CaseYear,
		"hasOrders", result.OrdersHTML != "",
		"elapsed", time.Since(start).String(),
	)
	return result
}

// failedLocked turns err into a failed ScrapeResult.
func (s *Session) failedLocked(err error) models.ScrapeResult {
	code := models.CodeOf(err)
	if code != models.ErrCodeInvalidCaseType && s.health != nil {
		s.health.recordFailure()
	}
	slog.Warn("case query failed", "code", code, "error", err, "state", s.state.String())
	return models.ScrapeResult{
		ResultHTML: extract.ErrorFragment(failureMessage(err)),
		Success:    false,
		ErrorCode:  code,
	}
}

// checkCaseTypeLocked verifies caseType against the live selector options
// before anything is typed into the form.
func (s *Session) checkCaseTypeLocked(ctx context.Context, caseType string) error {
	wctx, cancel := s.elementCtx(ctx)
	err := s.driver.WaitFor(wctx, s.sel.CaseType)
	cancel()
	if err != nil {
		return categorizeError(err, "case type selector "+s.sel.CaseType)
	}

	page, err := s.pageLocked(ctx)
	if err != nil {
		return err
	}
	values, ok := extract.OptionValues(page, s.sel.CaseType)
	if !ok {
		return models.NewScrapeError(models.ErrCodeElementNotFound,
			"case type selector "+s.sel.CaseType, ErrElementNotFound)
	}
	if slices.Contains(values, caseType) {
		return nil
	}

	available := make([]string, 0, maxListedOptions)
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		available = append(available, v)
		if len(available) == maxListedOptions {
			break
		}
	}
	return models.NewScrapeError(models.ErrCodeInvalidCaseType,
		fmt.Sprintf("Case type '%s' not found. Available options: %s", caseType, strings.Join(available, ", ")),
		nil)
}

// submitLocked fills the form fields in page order and clicks search.
func (s *Session) submitLocked(ctx context.Context, q models.CaseQuery) error {
	steps := []struct {
		desc string
		run  func(context.Context) error
	}{
		{"case type " + s.sel.CaseType, func(c context.Context) error {
			return s.driver.SelectValue(c, s.sel.CaseType, q.CaseType)
		}},
		{"case number " + s.sel.CaseNumber, func(c context.Context) error {
			return s.driver.Fill(c, s.sel.CaseNumber, q.CaseNumber)
		}},
		{"case year " + s.sel.CaseYear, func(c context.Context) error {
			return s.driver.SelectValue(c, s.sel.CaseYear, q.CaseYear)
		}},
		{"captcha input " + s.sel.CaptchaInput, func(c context.Context) error {
			return s.driver.Fill(c, s.sel.CaptchaInput, q.CaptchaEntered)
		}},
		{"search button " + s.sel.Submit, func(c context.Context) error {
			return s.driver.Click(c, s.sel.Submit)
		}},
	}

	for _, step := range steps {
		wctx, cancel := s.elementCtx(ctx)
		err := step.run(wctx)
		cancel()
		if err != nil {
			return categorizeError(err, step.desc)
		}
	}

	// The click may already have started a navigation.
	s.state = StateUnknown
	time.Sleep(s.timing.SubmitSettle)
	s.state = StateResultPage
	return nil
}

// ordersLocked follows the Orders link on the result page and returns the
// orders table. Every failure is reported as an inline error fragment.
func (s *Session) ordersLocked(ctx context.Context, resultPage string) string {
	href, ok := extract.AnchorHref(resultPage, s.portal.OrdersLinkText)
	if !ok {
		return ""
	}
	target, ok := extract.ResolveURL(s.portal.Origin, href)
	if !ok {
		return extract.InlineError("Could not fetch Orders content: invalid link " + href)
	}

	if err := s.navigateLocked(ctx, target, StateOrdersPage, s.timing.OrdersSettle); err != nil {
		slog.Warn("failed to open orders listing", "url", target, "error", err)
		return extract.InlineError("Could not fetch Orders content: " + err.Error())
	}
	page, err := s.pageLocked(ctx)
	if err != nil {
		return extract.InlineError("Could not fetch Orders content: " + err.Error())
	}
	table := extract.OrdersTable(page, s.sel.OrdersTable)
	if table == "" {
		return extract.InlineError("Orders table not found on the page.")
	}
	return table
}
