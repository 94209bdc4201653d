package models

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

// CaseTypeOption is one entry of the portal's case-type selector.
type CaseTypeOption struct {
	// Value is the site-internal identifier submitted with the form.
	Value string `json:"value"`

	// Label is the human-readable option text.
	Label string `json:"label"`
}

// CaseQuery is the caller-supplied input of a single case lookup.
type CaseQuery struct {
	CaseType       string `json:"case_type" form:"case_type" binding:"required"`
	CaseNumber     string `json:"case_number" form:"case_number" binding:"required"`
	CaseYear       string `json:"case_year" form:"case_year" binding:"required"`
	CaptchaEntered string `json:"captcha_entered" form:"captcha_entered" binding:"required"`
}

// Validate rejects queries the portal could never accept.
func (q CaseQuery) Validate() error {
	switch {
	case strings.TrimSpace(q.CaseType) == "":
		return NewScrapeError(ErrCodeInvalidInput, "case type is required", nil)
	case strings.TrimSpace(q.CaptchaEntered) == "":
		return NewScrapeError(ErrCodeInvalidInput, "captcha is required", nil)
	case !isCaseNumber(q.CaseNumber):
		return NewScrapeError(ErrCodeInvalidInput, "case number must be 1-20 letters or digits and contain a digit", nil)
	case !isCaseYear(q.CaseYear, time.Now()):
		return NewScrapeError(ErrCodeInvalidInput, "case year must be a four-digit year between 1900 and the current year", nil)
	}
	return nil
}

func isCaseNumber(s string) bool {
	if s == "" || len(s) > 20 {
		return false
	}
	hasDigit := false
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case r > unicode.MaxASCII || !unicode.IsLetter(r):
			return false
		}
	}
	return hasDigit
}

func isCaseYear(s string, now time.Time) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s >= "1900" && s <= strconv.Itoa(now.Year())
}

// ScrapeResult is the renderable outcome of one case query. On failure
// ResultHTML holds an HTML error fragment and OrdersHTML is empty.
type ScrapeResult struct {
	ResultHTML string `json:"result_html"`
	OrdersHTML string `json:"orders_html"`
	Success    bool   `json:"success"`
	ErrorCode  string `json:"error_code,omitempty"`
}

// OrderLink is a downloadable order discovered on the orders listing.
type OrderLink struct {
	Title    string `json:"title"`
	URL      string `json:"url" binding:"required"`
	Filename string `json:"filename"`
}

// CaseResult is a logged query together with its parsed orders.
type CaseResult struct {
	QueryID int64 `json:"query_id"`
	ScrapeResult
	Orders []OrderLink `json:"orders"`
}

// DownloadFailure records one order that could not be fetched.
type DownloadFailure struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// ArchiveEntry describes one document written to an archive.
type ArchiveEntry struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Bytes int    `json:"bytes"`

	// Pages is the PDF page count, or 0 when the body is not a readable PDF.
	Pages int `json:"pages,omitempty"`
}

// QueryRecord is one row of the request log.
type QueryRecord struct {
	ID         int64     `json:"id"`
	CaseType   string    `json:"case_type"`
	CaseNumber string    `json:"case_number"`
	CaseYear   string    `json:"case_year"`
	Timestamp  time.Time `json:"timestamp"`
	HasResult  bool      `json:"has_result"`
}
