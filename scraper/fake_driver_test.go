package scraper

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// fakeDriver serves canned pages keyed by URL and swaps the current page on
// configured clicks and reloads.
type fakeDriver struct {
	mu sync.Mutex

	pages      map[string]string // url -> html
	onClick    map[string]string // selector -> html shown after the click
	onReload   string            // html shown after Reload, "" keeps the page
	navErr     map[string]error
	reloadErr  error
	fillErr    map[string]error
	closeCount int

	current string
	calls   []string

	inFlight   atomic.Int32
	overlapped atomic.Bool
}

func newFakeDriver(pages map[string]string) *fakeDriver {
	return &fakeDriver{
		pages:   pages,
		onClick: map[string]string{},
		navErr:  map[string]error{},
		fillErr: map[string]error{},
	}
}

// enter flags any two driver calls running at the same time.
func (d *fakeDriver) enter(call string) func() {
	if d.inFlight.Add(1) > 1 {
		d.overlapped.Store(true)
	}
	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()
	time.Sleep(time.Millisecond)
	return func() { d.inFlight.Add(-1) }
}

func (d *fakeDriver) has(selector string) bool {
	d.mu.Lock()
	page := d.current
	d.mu.Unlock()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return false
	}
	return doc.Find(selector).Length() > 0
}

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	defer d.enter("navigate " + url)()
	if err := d.navErr[url]; err != nil {
		return err
	}
	d.mu.Lock()
	d.current = d.pages[url]
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) Reload(context.Context) error {
	defer d.enter("reload")()
	if d.reloadErr != nil {
		return d.reloadErr
	}
	if d.onReload != "" {
		d.mu.Lock()
		d.current = d.onReload
		d.mu.Unlock()
	}
	return nil
}

func (d *fakeDriver) Has(_ context.Context, selector string) (bool, error) {
	defer d.enter("has " + selector)()
	return d.has(selector), nil
}

func (d *fakeDriver) WaitFor(_ context.Context, selector string) error {
	defer d.enter("wait " + selector)()
	if !d.has(selector) {
		return context.DeadlineExceeded
	}
	return nil
}

func (d *fakeDriver) Click(_ context.Context, selector string) error {
	defer d.enter("click " + selector)()
	if !d.has(selector) {
		return context.DeadlineExceeded
	}
	if next, ok := d.onClick[selector]; ok {
		d.mu.Lock()
		d.current = next
		d.mu.Unlock()
	}
	return nil
}

func (d *fakeDriver) Fill(_ context.Context, selector, value string) error {
	defer d.enter("fill " + selector + "=" + value)()
	if err := d.fillErr[selector]; err != nil {
		return err
	}
	if !d.has(selector) {
		return context.DeadlineExceeded
	}
	return nil
}

func (d *fakeDriver) SelectValue(_ context.Context, selector, value string) error {
	defer d.enter("select " + selector + "=" + value)()
	if !d.has(selector) {
		return context.DeadlineExceeded
	}
	return nil
}

func (d *fakeDriver) HTML(context.Context) (string, error) {
	defer d.enter("html")()
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current, nil
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeCount++
	return nil
}

func (d *fakeDriver) callLog() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// hasCallPrefix reports whether any recorded call starts with prefix.
func (d *fakeDriver) hasCallPrefix(prefix string) bool {
	for _, c := range d.callLog() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}
