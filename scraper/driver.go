package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// ErrElementNotFound is returned by a Driver when a selector matches nothing
// and the driver can tell that without waiting.
var ErrElementNotFound = errors.New("element not found")

// Driver is the small set of page operations the session needs. Every
// blocking call honours ctx; a wait that expires returns an error wrapping
// context.DeadlineExceeded.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	Has(ctx context.Context, selector string) (bool, error)
	WaitFor(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	SelectValue(ctx context.Context, selector, value string) error
	HTML(ctx context.Context) (string, error)
	Close() error
}

// LaunchFunc starts a browser and returns a driver bound to a single tab.
type LaunchFunc func(ctx context.Context) (Driver, error)

// rodDriver drives one tab of a browser process it owns.
type rodDriver struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
	router   *rod.HijackRouter
}

func (d *rodDriver) Navigate(ctx context.Context, url string) error {
	p := d.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}

func (d *rodDriver) Reload(ctx context.Context) error {
	p := d.page.Context(ctx)
	if err := p.Reload(); err != nil {
		return err
	}
	return p.WaitLoad()
}

func (d *rodDriver) Has(ctx context.Context, selector string) (bool, error) {
	has, _, err := d.page.Context(ctx).Has(selector)
	return has, err
}

func (d *rodDriver) WaitFor(ctx context.Context, selector string) error {
	_, err := d.element(ctx, selector)
	return err
}

func (d *rodDriver) Click(ctx context.Context, selector string) error {
	el, err := d.element(ctx, selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// Fill replaces the content of a text input.
func (d *rodDriver) Fill(ctx context.Context, selector, value string) error {
	el, err := d.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(value)
}

// SelectValue picks the <option> whose value attribute equals value.
func (d *rodDriver) SelectValue(ctx context.Context, selector, value string) error {
	el, err := d.element(ctx, selector)
	if err != nil {
		return err
	}
	opt := fmt.Sprintf(`option[value="%s"]`, cssQuote(value))
	return el.Select([]string{opt}, true, rod.SelectorTypeCSSSector)
}

func (d *rodDriver) HTML(ctx context.Context) (string, error) {
	return d.page.Context(ctx).HTML()
}

// Close shuts the browser down and removes its profile directory.
func (d *rodDriver) Close() error {
	if d.router != nil {
		_ = d.router.Stop()
	}
	err := d.browser.Close()
	if d.launcher != nil {
		d.launcher.Kill()
		d.launcher.Cleanup()
	}
	return err
}

// element waits for selector to appear, bounded by ctx.
func (d *rodDriver) element(ctx context.Context, selector string) (*rod.Element, error) {
	el, err := d.page.Context(ctx).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", selector, err)
	}
	return el, nil
}

// cssQuote escapes a value for use inside a double-quoted CSS string.
func cssQuote(v string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v)
}
