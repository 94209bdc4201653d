// Package scraper owns the long-lived browser session that drives the
// portal's search form. The portal binds a captcha to the browser that
// displayed it, so the same tab must show the captcha and submit the query.
package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/use-agent/courtfetch/config"
	"github.com/use-agent/courtfetch/extract"
	"github.com/use-agent/courtfetch/models"
)

// PageState is what the session tab is currently showing.
type PageState int

const (
	StateUnknown PageState = iota
	StateSearchPage
	StateResultPage
	StateOrdersPage
)

func (s PageState) String() string {
	switch s {
	case StateSearchPage:
		return "search"
	case StateResultPage:
		return "result"
	case StateOrdersPage:
		return "orders"
	default:
		return "unknown"
	}
}

// Session is the single shared browser handle. All operations are serialized
// by one mutex and run to completion even if the caller goes away, so the
// tab is never left half-way through a form submission.
type Session struct {
	mu sync.Mutex

	launch LaunchFunc
	portal config.PortalConfig
	sel    config.Selectors
	timing config.SessionConfig

	driver   Driver
	state    PageState
	health   *handleHealth
	restarts int
}

// NewSession creates a session. No browser is started until first use.
func NewSession(cfg *config.Config, launch LaunchFunc) *Session {
	return &Session{
		launch: launch,
		portal: cfg.Portal,
		sel:    cfg.Selectors,
		timing: cfg.Session,
	}
}

// ReadCaptcha starts the browser if needed and returns the captcha text
// currently displayed on the search page.
func (s *Session) ReadCaptcha(ctx context.Context) (string, error) {
	ctx = context.WithoutCancel(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.retireIfWornLocked()
	return s.readCaptchaLocked(ctx)
}

// RefreshCaptcha asks the portal for a new captcha on the existing tab. If
// that fails for any reason the browser is discarded and a fresh one is
// started, which also yields a new captcha.
func (s *Session) RefreshCaptcha(ctx context.Context) (string, error) {
	ctx = context.WithoutCancel(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.retireIfWornLocked()
	if s.driver == nil {
		return s.readCaptchaLocked(ctx)
	}

	captcha, err := s.refreshLocked(ctx)
	if err == nil {
		s.health.recordSuccess()
		return captcha, nil
	}

	slog.Warn("captcha refresh failed, restarting browser session",
		"error", err,
		"state", s.state.String(),
	)
	s.discardLocked()
	s.restarts++
	return s.readCaptchaLocked(ctx)
}

// ListCaseTypes returns the options of the case-type selector. Any failure
// is logged and reported as an empty list.
func (s *Session) ListCaseTypes(ctx context.Context) []models.CaseTypeOption {
	ctx = context.WithoutCancel(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	opts, err := s.listCaseTypesLocked(ctx)
	if err != nil {
		slog.Warn("failed to list case types", "error", err)
		if s.health != nil {
			s.health.recordFailure()
		}
		return []models.CaseTypeOption{}
	}
	return opts
}

// Stats reports the session's state without waiting behind a running
// operation.
func (s *Session) Stats() models.SessionStats {
	if !s.mu.TryLock() {
		return models.SessionStats{Started: true, State: "busy"}
	}
	defer s.mu.Unlock()

	stats := models.SessionStats{
		Started:  s.driver != nil,
		State:    s.state.String(),
		Restarts: s.restarts,
	}
	if s.health != nil {
		stats.Uses = s.health.uses
		stats.Failures = s.health.failures
		stats.Age = s.health.age().Round(time.Second).String()
	}
	return stats
}

// Close shuts the browser down. The session starts a new one on next use.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	slog.Info("browser session shutting down")
	s.discardLocked()
}

// ensureStartedLocked launches a browser and opens the search page when no
// handle exists yet.
func (s *Session) ensureStartedLocked(ctx context.Context) error {
	if s.driver != nil {
		return nil
	}

	lctx, cancel := context.WithTimeout(ctx, s.timing.NavigationTimeout)
	d, err := s.launch(lctx)
	cancel()
	if err != nil {
		return models.NewScrapeError(models.ErrCodeSessionUnrecoverable, "failed to launch browser", err)
	}
	s.driver = d
	s.health = newHandleHealth()
	s.state = StateUnknown

	if err := s.navigateLocked(ctx, s.portal.SearchURL(), StateSearchPage, s.timing.StartSettle); err != nil {
		s.discardLocked()
		return models.NewScrapeError(models.ErrCodeSessionUnrecoverable, "failed to open the search page", err)
	}
	slog.Info("browser session started", "url", s.portal.SearchURL())
	return nil
}

// discardLocked closes the current handle, if any. Close errors are only
// logged: the handle is unusable either way.
func (s *Session) discardLocked() {
	if s.driver != nil {
		if err := s.driver.Close(); err != nil {
			slog.Debug("closing browser handle failed", "error", err)
		}
	}
	s.driver = nil
	s.health = nil
	s.state = StateUnknown
}

func (s *Session) retireIfWornLocked() {
	if s.health == nil || !s.health.shouldRetire(s.timing.MaxUses, s.timing.MaxAge) {
		return
	}
	slog.Info("retiring browser handle",
		"uses", s.health.uses,
		"failures", s.health.failures,
		"age", s.health.age().String(),
	)
	s.discardLocked()
	s.restarts++
}

// navigateLocked loads url, waits the settle interval and records state.
func (s *Session) navigateLocked(ctx context.Context, url string, state PageState, settle time.Duration) error {
	nctx, cancel := context.WithTimeout(ctx, s.timing.NavigationTimeout)
	defer cancel()

	s.state = StateUnknown
	if err := s.driver.Navigate(nctx, url); err != nil {
		return categorizeError(err, "navigation to "+url+" failed")
	}
	time.Sleep(settle)
	s.state = state
	return nil
}

func (s *Session) elementCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timing.ElementWait)
}

// pageLocked returns the current page source.
func (s *Session) pageLocked(ctx context.Context) (string, error) {
	hctx, cancel := context.WithTimeout(ctx, s.timing.NavigationTimeout)
	defer cancel()
	page, err := s.driver.HTML(hctx)
	if err != nil {
		return "", categorizeError(err, "failed to read page HTML")
	}
	return page, nil
}

func (s *Session) readCaptchaLocked(ctx context.Context) (string, error) {
	if err := s.ensureStartedLocked(ctx); err != nil {
		return "", err
	}

	wctx, cancel := s.elementCtx(ctx)
	ok, err := s.driver.Has(wctx, s.sel.Captcha)
	cancel()
	if err != nil {
		s.health.recordFailure()
		return "", categorizeError(err, "captcha lookup failed")
	}
	if !ok {
		s.health.recordFailure()
		return "", models.NewScrapeError(models.ErrCodeElementNotFound,
			"captcha "+s.sel.Captcha+" is not on the current page", ErrElementNotFound)
	}
	return s.captchaTextLocked(ctx)
}

// captchaTextLocked reads the captcha element's text from the page source.
func (s *Session) captchaTextLocked(ctx context.Context) (string, error) {
	page, err := s.pageLocked(ctx)
	if err != nil {
		return "", err
	}
	text, ok := extract.Captcha(page, s.sel.Captcha)
	if !ok {
		return "", models.NewScrapeError(models.ErrCodeElementNotFound,
			"captcha "+s.sel.Captcha+" is not on the current page", ErrElementNotFound)
	}
	s.health.recordSuccess()
	return text, nil
}

// refreshLocked clicks the portal's refresh control, or reloads the page when
// the control is missing or the click fails, and reads the new captcha.
func (s *Session) refreshLocked(ctx context.Context) (string, error) {
	if s.state != StateSearchPage {
		if err := s.navigateLocked(ctx, s.portal.SearchURL(), StateSearchPage, s.timing.StartSettle); err != nil {
			return "", err
		}
	}

	wctx, cancel := s.elementCtx(ctx)
	has, err := s.driver.Has(wctx, s.sel.RefreshCaptcha)
	if err == nil && has {
		err = s.driver.Click(wctx, s.sel.RefreshCaptcha)
	}
	cancel()

	if err == nil && has {
		time.Sleep(s.timing.RefreshSettle)
	} else {
		if err != nil {
			slog.Debug("captcha refresh control failed, reloading", "error", err)
		}
		rctx, rcancel := context.WithTimeout(ctx, s.timing.NavigationTimeout)
		s.state = StateUnknown
		err := s.driver.Reload(rctx)
		rcancel()
		if err != nil {
			return "", categorizeError(err, "reloading the search page failed")
		}
		time.Sleep(s.timing.ReloadSettle)
		s.state = StateSearchPage
	}

	wctx, cancel = s.elementCtx(ctx)
	err = s.driver.WaitFor(wctx, s.sel.Captcha)
	cancel()
	if err != nil {
		return "", categorizeError(err, "captcha "+s.sel.Captcha)
	}

	page, err := s.pageLocked(ctx)
	if err != nil {
		return "", err
	}
	text, ok := extract.Captcha(page, s.sel.Captcha)
	if !ok {
		return "", models.NewScrapeError(models.ErrCodeElementNotFound,
			"captcha "+s.sel.Captcha+" is not on the current page", ErrElementNotFound)
	}
	return text, nil
}

func (s *Session) listCaseTypesLocked(ctx context.Context) ([]models.CaseTypeOption, error) {
	if err := s.ensureStartedLocked(ctx); err != nil {
		return nil, err
	}
	if s.state != StateSearchPage {
		if err := s.navigateLocked(ctx, s.portal.SearchURL(), StateSearchPage, s.timing.StartSettle); err != nil {
			return nil, err
		}
	}

	wctx, cancel := s.elementCtx(ctx)
	err := s.driver.WaitFor(wctx, s.sel.CaseType)
	cancel()
	if err != nil {
		return nil, categorizeError(err, "case type selector "+s.sel.CaseType)
	}

	page, err := s.pageLocked(ctx)
	if err != nil {
		return nil, err
	}
	return extract.CaseTypeOptions(page, s.sel.CaseType), nil
}
