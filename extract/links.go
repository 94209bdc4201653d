package extract

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/courtfetch/models"
)

// LinkFilter decides whether an anchor href points at a downloadable order.
type LinkFilter func(href string) bool

// KeywordFilter keeps hrefs containing any of the keywords, ignoring case.
// It is deliberately loose: it matches document URLs as well as pages
// merely named after orders.
func KeywordFilter(keywords ...string) LinkFilter {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	return func(href string) bool {
		h := strings.ToLower(href)
		for _, k := range lowered {
			if strings.Contains(h, k) {
				return true
			}
		}
		return false
	}
}

// DefaultLinkFilter matches "pdf" or "order".
var DefaultLinkFilter = KeywordFilter("pdf", "order")

// ResolveURL makes href absolute against origin. Hrefs that are already
// absolute are returned unchanged. The boolean is false for hrefs that
// cannot be parsed.
func ResolveURL(origin, href string) (string, bool) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if ref.IsAbs() {
		return href, true
	}
	base, err := url.Parse(origin)
	if err != nil || !base.IsAbs() {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}

// OrderLinks scans every anchor with a non-empty href, keeps those accepted
// by keep, and resolves them against origin. Titles and filenames fall back
// to the link's 1-based position among the kept links.
func OrderLinks(rawHTML, origin string, keep LinkFilter) []models.OrderLink {
	links := []models.OrderLink{}
	if keep == nil {
		keep = DefaultLinkFilter
	}

	doc, err := newDocument(rawHTML)
	if err != nil {
		return links
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || !keep(href) {
			return
		}

		abs, ok := ResolveURL(origin, href)
		if !ok {
			return
		}

		pos := len(links) + 1
		title := strings.TrimSpace(s.Text())
		if title == "" {
			title = fmt.Sprintf("Order %d", pos)
		}
		filename := lastSegment(abs)
		if filename == "" {
			filename = positionalName(pos)
		}

		links = append(links, models.OrderLink{
			Title:    title,
			URL:      abs,
			Filename: filename,
		})
	})
	return links
}

// ArchiveFilename names a downloaded document inside the archive: the
// path's base name when the URL is a direct .pdf path, else order_<pos>.pdf.
func ArchiveFilename(rawURL string, pos int) string {
	if strings.Contains(strings.ToLower(rawURL), "pdf") {
		if u, err := url.Parse(rawURL); err == nil && strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
			if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
				return base
			}
		}
	}
	return positionalName(pos)
}

func positionalName(pos int) string {
	return fmt.Sprintf("order_%d.pdf", pos)
}

// lastSegment returns the final path segment, "" for directory-like paths.
func lastSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	p := u.Path
	return p[strings.LastIndex(p, "/")+1:]
}
