package extract

import "github.com/microcosm-cc/bluemonday"

// scrapedPolicy keeps tables, links and the id/class hooks the orders
// table is located by, and drops scripts, handlers and inline styles other
// than the colour and box styles of ErrorFragment and InlineError.
var scrapedPolicy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("id", "class").Globally()
	p.AllowStyles("color", "padding", "border").OnElements("div", "p")
	return p
}()

// Sanitize strips active content from scraped markup before it is handed
// to a browser-facing client.
func Sanitize(rawHTML string) string {
	return scrapedPolicy.Sanitize(rawHTML)
}
