// Package extract holds the pure HTML functions used on portal pages:
// captcha text, case-type options, the result region, the orders table
// and the order links inside it. Nothing here touches the network.
package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/courtfetch/models"
	"golang.org/x/net/html"
)

func newDocument(rawHTML string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
}

// ResultRegion returns the outer HTML of the first element matching
// containerSel, or rawHTML unchanged when there is none.
func ResultRegion(rawHTML, containerSel string) string {
	doc, err := newDocument(rawHTML)
	if err != nil {
		return rawHTML
	}
	sel := doc.Find(containerSel).First()
	if sel.Length() == 0 {
		return rawHTML
	}
	out, err := goquery.OuterHtml(sel)
	if err != nil {
		return rawHTML
	}
	return out
}

// OrdersTable returns the outer HTML of the element matching tableSel,
// or "" when the page has no such element.
func OrdersTable(rawHTML, tableSel string) string {
	sel, err := cascadia.Parse(tableSel)
	if err != nil {
		return ""
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	node := cascadia.Query(doc, sel)
	if node == nil {
		return ""
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, node); err != nil {
		return ""
	}
	return buf.String()
}

// Captcha returns the trimmed text of the captcha element. The boolean is
// false when the element is absent.
func Captcha(rawHTML, captchaSel string) (string, bool) {
	doc, err := newDocument(rawHTML)
	if err != nil {
		return "", false
	}
	sel := doc.Find(captchaSel).First()
	if sel.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(sel.Text()), true
}

// CaseTypeOptions lists the options of the case-type select whose value is
// not blank, in page order and unique by value.
func CaseTypeOptions(rawHTML, selectSel string) []models.CaseTypeOption {
	options := []models.CaseTypeOption{}

	doc, err := newDocument(rawHTML)
	if err != nil {
		return options
	}

	seen := make(map[string]struct{})
	doc.Find(selectSel).First().Find("option").Each(func(_ int, s *goquery.Selection) {
		value := optionValue(s)
		if strings.TrimSpace(value) == "" {
			return
		}
		if _, dup := seen[value]; dup {
			return
		}
		seen[value] = struct{}{}
		options = append(options, models.CaseTypeOption{
			Value: value,
			Label: strings.TrimSpace(s.Text()),
		})
	})
	return options
}

// OptionValues returns every option value of the select, blanks included.
// The second result is false when the select itself is missing.
func OptionValues(rawHTML, selectSel string) ([]string, bool) {
	doc, err := newDocument(rawHTML)
	if err != nil {
		return nil, false
	}
	sel := doc.Find(selectSel).First()
	if sel.Length() == 0 {
		return nil, false
	}
	var values []string
	sel.Find("option").Each(func(_ int, s *goquery.Selection) {
		values = append(values, optionValue(s))
	})
	return values, true
}

// optionValue mirrors the DOM: an option without a value attribute
// submits its text.
func optionValue(s *goquery.Selection) string {
	if v, ok := s.Attr("value"); ok {
		return v
	}
	return strings.TrimSpace(s.Text())
}

// AnchorHref finds the first anchor whose trimmed text is exactly label
// and returns its href.
func AnchorHref(rawHTML, label string) (string, bool) {
	doc, err := newDocument(rawHTML)
	if err != nil {
		return "", false
	}

	var href string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.TrimSpace(s.Text()) != label {
			return true
		}
		v, _ := s.Attr("href")
		if strings.TrimSpace(v) == "" {
			return true
		}
		href = strings.TrimSpace(v)
		return false
	})
	return href, href != ""
}
