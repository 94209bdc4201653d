package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Selectors are the CSS selectors the session and extractor depend on.
// They follow the portal's markup and are expected to change with it.
type Selectors struct {
	Captcha         string `yaml:"captcha"`
	RefreshCaptcha  string `yaml:"refresh_captcha"`
	CaseType        string `yaml:"case_type"`
	CaseNumber      string `yaml:"case_number"`
	CaseYear        string `yaml:"case_year"`
	CaptchaInput    string `yaml:"captcha_input"`
	Submit          string `yaml:"submit"`
	ResultContainer string `yaml:"result_container"`
	OrdersTable     string `yaml:"orders_table"`
}

// DefaultSelectors matches the portal's markup at the time of writing.
func DefaultSelectors() Selectors {
	return Selectors{
		Captcha:         "#captcha-code",
		RefreshCaptcha:  "#refresh-captcha",
		CaseType:        "#case_type",
		CaseNumber:      "#case_number",
		CaseYear:        "#case_year",
		CaptchaInput:    "#captchaInput",
		Submit:          "#search",
		ResultContainer: "div.table-responsive",
		OrdersTable:     "table#caseTable",
	}
}

func loadSelectors() Selectors {
	d := DefaultSelectors()
	return Selectors{
		Captcha:         envOr("COURTFETCH_SEL_CAPTCHA", d.Captcha),
		RefreshCaptcha:  envOr("COURTFETCH_SEL_REFRESH_CAPTCHA", d.RefreshCaptcha),
		CaseType:        envOr("COURTFETCH_SEL_CASE_TYPE", d.CaseType),
		CaseNumber:      envOr("COURTFETCH_SEL_CASE_NUMBER", d.CaseNumber),
		CaseYear:        envOr("COURTFETCH_SEL_CASE_YEAR", d.CaseYear),
		CaptchaInput:    envOr("COURTFETCH_SEL_CAPTCHA_INPUT", d.CaptchaInput),
		Submit:          envOr("COURTFETCH_SEL_SUBMIT", d.Submit),
		ResultContainer: envOr("COURTFETCH_SEL_RESULT_CONTAINER", d.ResultContainer),
		OrdersTable:     envOr("COURTFETCH_SEL_ORDERS_TABLE", d.OrdersTable),
	}
}

// MergeFile overlays the non-empty selectors found in a YAML file.
func (s *Selectors) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read selectors file: %w", err)
	}
	var overlay Selectors
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("config: parse selectors file %s: %w", path, err)
	}
	s.merge(overlay)
	return nil
}

func (s *Selectors) merge(o Selectors) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&s.Captcha, o.Captcha)
	set(&s.RefreshCaptcha, o.RefreshCaptcha)
	set(&s.CaseType, o.CaseType)
	set(&s.CaseNumber, o.CaseNumber)
	set(&s.CaseYear, o.CaseYear)
	set(&s.CaptchaInput, o.CaptchaInput)
	set(&s.Submit, o.Submit)
	set(&s.ResultContainer, o.ResultContainer)
	set(&s.OrdersTable, o.OrdersTable)
}

type namedSelector struct {
	name, value string
}

func (s Selectors) named() []namedSelector {
	return []namedSelector{
		{"captcha", s.Captcha},
		{"refresh_captcha", s.RefreshCaptcha},
		{"case_type", s.CaseType},
		{"case_number", s.CaseNumber},
		{"case_year", s.CaseYear},
		{"captcha_input", s.CaptchaInput},
		{"submit", s.Submit},
		{"result_container", s.ResultContainer},
		{"orders_table", s.OrdersTable},
	}
}
