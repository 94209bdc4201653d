package models

// CaptchaResponse is the response for the captcha endpoints.
type CaptchaResponse struct {
	Success bool         `json:"success"`
	Captcha string       `json:"captcha,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// CaseTypesResponse is the response for GET /api/v1/case-types.
// An empty list means the options could not be read right now.
type CaseTypesResponse struct {
	Success   bool             `json:"success"`
	CaseTypes []CaseTypeOption `json:"case_types"`
}

// CaseQueryResponse is the response for POST /api/v1/cases/query.
type CaseQueryResponse struct {
	// Success is false when ResultHTML carries an error fragment.
	Success bool `json:"success"`

	// QueryID is the request-log id, 0 when logging failed.
	QueryID int64 `json:"query_id,omitempty"`

	// ResultHTML is the sanitized case-status region (or error fragment).
	ResultHTML string `json:"result_html"`

	// OrdersHTML is the sanitized orders table, an inline error, or empty.
	OrdersHTML string `json:"orders_html"`

	// Orders are the downloadable links found in OrdersHTML.
	Orders []OrderLink `json:"orders"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// Error is populated for input errors and failed queries.
	Error *ErrorDetail `json:"error,omitempty"`
}

// OrderLinksResponse is the response for POST /api/v1/orders/links.
type OrderLinksResponse struct {
	Success bool         `json:"success"`
	Orders  []OrderLink  `json:"orders"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// ErrorResponse is the body written for any failed request without a
// more specific response shape.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// QueryHistoryResponse is the response for GET /api/v1/queries.
type QueryHistoryResponse struct {
	Success bool          `json:"success"`
	Queries []QueryRecord `json:"queries"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// BrowserMs is the time spent driving the portal.
	BrowserMs int64 `json:"browser_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string       `json:"status"` // "healthy" or "degraded"
	Uptime  string       `json:"uptime"`
	Session SessionStats `json:"session"`
	Version string       `json:"version"`
}

// SessionStats reports the state of the browser session.
type SessionStats struct {
	Started  bool   `json:"started"`
	State    string `json:"state"`
	Uses     int    `json:"uses"`
	Failures int    `json:"failures"`
	Restarts int    `json:"restarts"`
	Age      string `json:"age,omitempty"`
}
