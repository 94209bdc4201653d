package scraper

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/use-agent/courtfetch/config"
	"github.com/use-agent/courtfetch/models"
)

const (
	testOrigin = "https://court.test"
	searchURL  = testOrigin + "/app/get-case-type-status"
	ordersURL  = testOrigin + "/app/case-orders/123"
)

func testConfig() *config.Config {
	return &config.Config{
		Portal: config.PortalConfig{
			Origin:         testOrigin,
			SearchPath:     "/app/get-case-type-status",
			OrdersLinkText: "Orders",
			LinkKeywords:   []string{"pdf", "order"},
		},
		Selectors: config.DefaultSelectors(),
		Session: config.SessionConfig{
			ElementWait:       50 * time.Millisecond,
			NavigationTimeout: time.Second,
		},
	}
}

const refreshControl = `<button id="refresh-captcha" type="button">refresh</button>`

func searchPage(captcha string) string {
	return `<html><body><form>
<span id="captcha-code"> ` + captcha + ` </span>` + refreshControl + `
<select id="case_type">
  <option value="">Select</option>
  <option value="W.P.(C)">W.P.(C)</option>
  <option value="CRL.A.">CRL.A.</option>
</select>
<input id="case_number">
<select id="case_year"><option value="2024">2024</option></select>
<input id="captchaInput">
<button id="search">Submit</button>
</form></body></html>`
}

func searchPageNoRefresh(captcha string) string {
	return strings.Replace(searchPage(captcha), refreshControl, "", 1)
}

const resultPage = `<html><body><h1>Portal</h1>
<div class="table-responsive"><table><tr>
  <td>W.P.(C) 123/2024</td><td><a href="/app/case-orders/123">Orders</a></td>
</tr></table></div></body></html>`

const ordersPage = `<html><body><table id="caseTable"><tr>
  <td><a href="/files/o1.pdf">1</a></td>
</tr></table></body></html>`

type launchStub struct {
	mu       sync.Mutex
	drivers  []*fakeDriver
	launches int
}

func (l *launchStub) launch(context.Context) (Driver, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	if l.launches > len(l.drivers) {
		return nil, errors.New("chromium not available")
	}
	return l.drivers[l.launches-1], nil
}

func (l *launchStub) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

func portalDriver(captcha string) *fakeDriver {
	d := newFakeDriver(map[string]string{
		searchURL: searchPage(captcha),
		ordersURL: ordersPage,
	})
	d.onClick["#search"] = resultPage
	return d
}

func newTestSession(drivers ...*fakeDriver) (*Session, *launchStub) {
	stub := &launchStub{drivers: drivers}
	return NewSession(testConfig(), stub.launch), stub
}

func validQuery(captcha string) models.CaseQuery {
	return models.CaseQuery{
		CaseType:       "W.P.(C)",
		CaseNumber:     "123",
		CaseYear:       "2024",
		CaptchaEntered: captcha,
	}
}

func TestReadCaptcha_StartsLazily(t *testing.T) {
	s, stub := newTestSession(portalDriver("7XK2"))
	require.False(t, s.Stats().Started)
	require.Equal(t, 0, stub.count())

	captcha, err := s.ReadCaptcha(context.Background())
	require.NoError(t, err)
	require.Equal(t, "7XK2", captcha)

	captcha, err = s.ReadCaptcha(context.Background())
	require.NoError(t, err)
	require.Equal(t, "7XK2", captcha)
	require.Equal(t, 1, stub.count())

	stats := s.Stats()
	require.True(t, stats.Started)
	require.Equal(t, "search", stats.State)
}

func TestReadCaptcha_MissingElement(t *testing.T) {
	d := newFakeDriver(map[string]string{searchURL: "<html><body>Under maintenance</body></html>"})
	s, _ := newTestSession(d)

	_, err := s.ReadCaptcha(context.Background())
	require.Error(t, err)
	require.Equal(t, models.ErrCodeElementNotFound, models.CodeOf(err))
}

func TestReadCaptcha_LaunchFails(t *testing.T) {
	s, _ := newTestSession()

	_, err := s.ReadCaptcha(context.Background())
	require.Equal(t, models.ErrCodeSessionUnrecoverable, models.CodeOf(err))
	require.False(t, s.Stats().Started)
}

func TestReadCaptcha_InitialNavigationFails(t *testing.T) {
	d := portalDriver("7XK2")
	d.navErr[searchURL] = errors.New("net::ERR_NAME_NOT_RESOLVED")
	s, _ := newTestSession(d)

	_, err := s.ReadCaptcha(context.Background())
	require.Equal(t, models.ErrCodeSessionUnrecoverable, models.CodeOf(err))
	require.Equal(t, 1, d.closeCount)
	require.False(t, s.Stats().Started)
}

func TestReadCaptcha_IgnoresCallerCancellation(t *testing.T) {
	s, _ := newTestSession(portalDriver("7XK2"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	captcha, err := s.ReadCaptcha(ctx)
	require.NoError(t, err)
	require.Equal(t, "7XK2", captcha)
}

func TestRefreshCaptcha_FreshSessionMatchesRead(t *testing.T) {
	dRead := portalDriver("AB12")
	dRefresh := portalDriver("AB12")
	readSession, _ := newTestSession(dRead)
	refreshSession, _ := newTestSession(dRefresh)

	read, readErr := readSession.ReadCaptcha(context.Background())
	refreshed, refreshErr := refreshSession.RefreshCaptcha(context.Background())

	require.NoError(t, readErr)
	require.NoError(t, refreshErr)
	require.Equal(t, read, refreshed)
	require.Equal(t, dRead.callLog(), dRefresh.callLog())
}

func TestRefreshCaptcha_ClicksRefreshControl(t *testing.T) {
	d := portalDriver("OLD1")
	d.onClick["#refresh-captcha"] = searchPage("NEW1")
	s, stub := newTestSession(d)

	_, err := s.ReadCaptcha(context.Background())
	require.NoError(t, err)

	captcha, err := s.RefreshCaptcha(context.Background())
	require.NoError(t, err)
	require.Equal(t, "NEW1", captcha)
	require.False(t, d.hasCallPrefix("reload"))
	require.Equal(t, 1, stub.count())
}

func TestRefreshCaptcha_ReloadsWithoutControl(t *testing.T) {
	d := newFakeDriver(map[string]string{searchURL: searchPageNoRefresh("OLD1")})
	d.onReload = searchPageNoRefresh("RLD1")
	s, _ := newTestSession(d)

	_, err := s.ReadCaptcha(context.Background())
	require.NoError(t, err)

	captcha, err := s.RefreshCaptcha(context.Background())
	require.NoError(t, err)
	require.Equal(t, "RLD1", captcha)
	require.True(t, d.hasCallPrefix("reload"))
}

func TestRefreshCaptcha_ReturnsToSearchPage(t *testing.T) {
	d := portalDriver("7XK2")
	d.onClick["#refresh-captcha"] = searchPage("NEXT")
	s, _ := newTestSession(d)

	res := s.RunQuery(context.Background(), validQuery("7XK2"))
	require.True(t, res.Success)
	require.Equal(t, "orders", s.Stats().State)

	captcha, err := s.RefreshCaptcha(context.Background())
	require.NoError(t, err)
	require.Equal(t, "NEXT", captcha)
	require.Equal(t, "search", s.Stats().State)
}

func TestRefreshCaptcha_RestartsOnFailure(t *testing.T) {
	broken := newFakeDriver(map[string]string{searchURL: searchPageNoRefresh("OLD1")})
	broken.onReload = "<html><body>Service Unavailable</body></html>"
	fresh := portalDriver("FRSH")
	s, stub := newTestSession(broken, fresh)

	_, err := s.ReadCaptcha(context.Background())
	require.NoError(t, err)

	captcha, err := s.RefreshCaptcha(context.Background())
	require.NoError(t, err)
	require.Equal(t, "FRSH", captcha)
	require.Equal(t, 1, broken.closeCount)
	require.Equal(t, 2, stub.count())
	require.Equal(t, 1, s.Stats().Restarts)
}

func TestRefreshCaptcha_Unrecoverable(t *testing.T) {
	d := newFakeDriver(map[string]string{searchURL: searchPageNoRefresh("OLD1")})
	d.reloadErr = errors.New("target closed")
	s, _ := newTestSession(d)

	_, err := s.ReadCaptcha(context.Background())
	require.NoError(t, err)

	_, err = s.RefreshCaptcha(context.Background())
	require.Equal(t, models.ErrCodeSessionUnrecoverable, models.CodeOf(err))
	require.False(t, s.Stats().Started)
}

func TestListCaseTypes(t *testing.T) {
	s, _ := newTestSession(portalDriver("7XK2"))

	got := s.ListCaseTypes(context.Background())
	require.Equal(t, []models.CaseTypeOption{
		{Value: "W.P.(C)", Label: "W.P.(C)"},
		{Value: "CRL.A.", Label: "CRL.A."},
	}, got)
}

func TestListCaseTypes_FailuresYieldEmptyList(t *testing.T) {
	t.Run("launch fails", func(t *testing.T) {
		s, _ := newTestSession()
		got := s.ListCaseTypes(context.Background())
		require.NotNil(t, got)
		require.Empty(t, got)
	})

	t.Run("selector missing", func(t *testing.T) {
		d := newFakeDriver(map[string]string{searchURL: `<span id="captcha-code">X</span>`})
		s, _ := newTestSession(d)
		got := s.ListCaseTypes(context.Background())
		require.NotNil(t, got)
		require.Empty(t, got)
	})
}

func TestRunQuery_Success(t *testing.T) {
	d := portalDriver("7XK2")
	s, _ := newTestSession(d)

	_, err := s.ReadCaptcha(context.Background())
	require.NoError(t, err)

	res := s.RunQuery(context.Background(), validQuery("7XK2"))
	require.True(t, res.Success)
	require.Empty(t, res.ErrorCode)
	require.True(t, strings.HasPrefix(res.ResultHTML, `<div class="table-responsive">`), res.ResultHTML)
	require.NotContains(t, res.ResultHTML, "Portal")
	require.Contains(t, res.OrdersHTML, `id="caseTable"`)
	require.Contains(t, res.OrdersHTML, "/files/o1.pdf")
	require.Equal(t, "orders", s.Stats().State)

	// Fields are filled in page order before the search click.
	want := []string{
		"select #case_type=W.P.(C)",
		"fill #case_number=123",
		"select #case_year=2024",
		"fill #captchaInput=7XK2",
		"click #search",
		"navigate " + ordersURL,
	}
	calls := d.callLog()
	last := -1
	for _, w := range want {
		idx := -1
		for i := last + 1; i < len(calls); i++ {
			if calls[i] == w {
				idx = i
				break
			}
		}
		require.NotEqual(t, -1, idx, "missing or out of order: %s in %v", w, calls)
		last = idx
	}
}

func TestRunQuery_StartsBrowserWhenNeeded(t *testing.T) {
	s, stub := newTestSession(portalDriver("7XK2"))

	res := s.RunQuery(context.Background(), validQuery("7XK2"))
	require.True(t, res.Success)
	require.Equal(t, 1, stub.count())
}

func TestRunQuery_InvalidCaseType(t *testing.T) {
	d := portalDriver("7XK2")
	s, _ := newTestSession(d)

	q := validQuery("7XK2")
	q.CaseType = "WP(C)"
	res := s.RunQuery(context.Background(), q)

	require.False(t, res.Success)
	require.Equal(t, models.ErrCodeInvalidCaseType, res.ErrorCode)
	require.Empty(t, res.OrdersHTML)
	require.Contains(t, res.ResultHTML, "WP(C)")
	require.Contains(t, res.ResultHTML, "W.P.(C), CRL.A.")
	require.Contains(t, res.ResultHTML, "<h3>Error</h3>")
	require.False(t, d.hasCallPrefix("fill"))
	require.False(t, d.hasCallPrefix("select"))
	require.False(t, d.hasCallPrefix("click"))
}

func TestRunQuery_NoOrdersLink(t *testing.T) {
	d := portalDriver("7XK2")
	d.onClick["#search"] = `<div class="table-responsive"><p>No record found</p></div>`
	s, _ := newTestSession(d)

	res := s.RunQuery(context.Background(), validQuery("7XK2"))
	require.True(t, res.Success)
	require.Contains(t, res.ResultHTML, "No record found")
	require.Empty(t, res.OrdersHTML)
	require.False(t, d.hasCallPrefix("navigate "+ordersURL))
}

func TestRunQuery_OrdersNavigationFails(t *testing.T) {
	d := portalDriver("7XK2")
	d.navErr[ordersURL] = errors.New("net::ERR_CONNECTION_RESET")
	s, _ := newTestSession(d)

	res := s.RunQuery(context.Background(), validQuery("7XK2"))
	require.True(t, res.Success)
	require.Contains(t, res.ResultHTML, "table-responsive")
	require.Contains(t, res.OrdersHTML, "Could not fetch Orders content")
	require.True(t, strings.HasPrefix(res.OrdersHTML, "<p style='color:red;'>"))
}

func TestRunQuery_OrdersTableMissing(t *testing.T) {
	d := portalDriver("7XK2")
	d.pages[ordersURL] = "<html><body><p>No orders uploaded</p></body></html>"
	s, _ := newTestSession(d)

	res := s.RunQuery(context.Background(), validQuery("7XK2"))
	require.True(t, res.Success)
	require.Contains(t, res.OrdersHTML, "Orders table not found on the page.")
}

func TestRunQuery_OrdersLinkResolvedAgainstOrigin(t *testing.T) {
	d := portalDriver("7XK2")
	d.onClick["#search"] = `<div class="table-responsive"><a href="case-orders/5">Orders</a></div>`
	d.pages[testOrigin+"/case-orders/5"] = ordersPage
	s, _ := newTestSession(d)

	res := s.RunQuery(context.Background(), validQuery("7XK2"))
	require.True(t, res.Success)
	require.Contains(t, res.OrdersHTML, `id="caseTable"`)
	require.True(t, d.hasCallPrefix("navigate "+testOrigin+"/case-orders/5"))
}

func TestRunQuery_SubmitButtonTimesOut(t *testing.T) {
	d := portalDriver("7XK2")
	d.pages[searchURL] = strings.Replace(searchPage("7XK2"), `<button id="search">Submit</button>`, "", 1)
	s, _ := newTestSession(d)

	res := s.RunQuery(context.Background(), validQuery("7XK2"))
	require.False(t, res.Success)
	require.Equal(t, models.ErrCodeNavigationTimeout, res.ErrorCode)
	require.Contains(t, res.ResultHTML, "Timeout waiting for element")
	require.Empty(t, res.OrdersHTML)
}

func TestRunQuery_FieldNotFound(t *testing.T) {
	d := portalDriver("7XK2")
	d.fillErr["#case_number"] = ErrElementNotFound
	s, _ := newTestSession(d)

	res := s.RunQuery(context.Background(), validQuery("7XK2"))
	require.False(t, res.Success)
	require.Equal(t, models.ErrCodeElementNotFound, res.ErrorCode)
	require.Contains(t, res.ResultHTML, "Element not found")
	require.False(t, d.hasCallPrefix("click #search"))
}

func TestRunQuery_RequiresSearchPage(t *testing.T) {
	d := portalDriver("7XK2")
	s, _ := newTestSession(d)

	first := s.RunQuery(context.Background(), validQuery("7XK2"))
	require.True(t, first.Success)

	second := s.RunQuery(context.Background(), validQuery("7XK2"))
	require.False(t, second.Success)
	require.Equal(t, models.ErrCodeElementNotFound, second.ErrorCode)
	require.Contains(t, second.ResultHTML, "fresh captcha")

	navigations := 0
	for _, c := range d.callLog() {
		if c == "navigate "+searchURL {
			navigations++
		}
	}
	require.Equal(t, 1, navigations)
}

func TestSession_SerializesOperations(t *testing.T) {
	d := portalDriver("7XK2")
	d.onClick["#refresh-captcha"] = searchPage("NEXT")
	s, _ := newTestSession(d)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, _ = s.RefreshCaptcha(context.Background())
		}()
		go func() {
			defer wg.Done()
			s.ListCaseTypes(context.Background())
		}()
		go func() {
			defer wg.Done()
			s.RunQuery(context.Background(), validQuery("7XK2"))
		}()
	}
	wg.Wait()

	require.False(t, d.overlapped.Load(), "driver calls overlapped")
}

func TestSession_RetiresWornHandle(t *testing.T) {
	first := portalDriver("AAAA")
	second := portalDriver("BBBB")
	s, stub := newTestSession(first, second)
	s.timing.MaxUses = 2

	for i := 0; i < 2; i++ {
		captcha, err := s.ReadCaptcha(context.Background())
		require.NoError(t, err)
		require.Equal(t, "AAAA", captcha)
	}

	captcha, err := s.ReadCaptcha(context.Background())
	require.NoError(t, err)
	require.Equal(t, "BBBB", captcha)
	require.Equal(t, 1, first.closeCount)
	require.Equal(t, 2, stub.count())
	require.Equal(t, 1, s.Stats().Restarts)
}

func TestSession_CloseThenReuse(t *testing.T) {
	first := portalDriver("AAAA")
	second := portalDriver("BBBB")
	s, stub := newTestSession(first, second)

	_, err := s.ReadCaptcha(context.Background())
	require.NoError(t, err)

	s.Close()
	require.Equal(t, 1, first.closeCount)
	require.False(t, s.Stats().Started)

	captcha, err := s.ReadCaptcha(context.Background())
	require.NoError(t, err)
	require.Equal(t, "BBBB", captcha)
	require.Equal(t, 2, stub.count())
}
