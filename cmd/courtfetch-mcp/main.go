package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/courtfetch/extract"
	"github.com/use-agent/courtfetch/models"
)

// client talks to a running courtfetch API.
type client struct {
	http   *http.Client
	apiURL string
	apiKey string
	origin string
}

func main() {
	apiURL := os.Getenv("COURTFETCH_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	origin := os.Getenv("COURTFETCH_PORTAL_ORIGIN")
	if origin == "" {
		origin = "https://delhihighcourt.nic.in"
	}

	c := &client{
		http:   &http.Client{Timeout: 5 * time.Minute},
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: os.Getenv("COURTFETCH_API_KEY"),
		origin: origin,
	}

	s := server.NewMCPServer(
		"courtfetch",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("fetch_captcha",
		mcp.WithDescription("Return the captcha currently shown on the Delhi High Court case-status form. A user must read it and pass it to query_case."),
		mcp.WithBoolean("refresh",
			mcp.Description("Request a new captcha instead of the one already displayed. Required after a query, to return to the search form."),
		),
	), c.handleFetchCaptcha)

	s.AddTool(mcp.NewTool("list_case_types",
		mcp.WithDescription("List the case types the portal accepts, e.g. W.P.(C)."),
	), c.handleListCaseTypes)

	s.AddTool(mcp.NewTool("query_case",
		mcp.WithDescription("Look up a case by type, number and year. Returns the case status and its orders table as Markdown."),
		mcp.WithString("case_type", mcp.Required(), mcp.Description("Case type value as returned by list_case_types")),
		mcp.WithString("case_number", mcp.Required(), mcp.Description("Case number, e.g. 1234")),
		mcp.WithString("case_year", mcp.Required(), mcp.Description("Four-digit filing year")),
		mcp.WithString("captcha", mcp.Required(), mcp.Description("The captcha text returned by fetch_captcha")),
	), c.handleQueryCase)

	s.AddTool(mcp.NewTool("download_orders",
		mcp.WithDescription("Download order documents into a single zip file on local disk."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("Order document URLs, as listed by query_case"),
		),
		mcp.WithString("output_dir",
			mcp.Description("Directory to write all_orders.zip into (default: current directory)"),
		),
	), c.handleDownloadOrders)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func (c *client) handleFetchCaptcha(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	method, path := http.MethodGet, "/api/v1/captcha"
	if request.GetBool("refresh", false) {
		method, path = http.MethodPost, "/api/v1/captcha/refresh"
	}

	var resp models.CaptchaResponse
	if err := c.callJSON(ctx, method, path, nil, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Captcha: " + resp.Captcha), nil
}

func (c *client) handleListCaseTypes(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var resp models.CaseTypesResponse
	if err := c.callJSON(ctx, http.MethodGet, "/api/v1/case-types", nil, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !resp.Success {
		return mcp.NewToolResultError("case types are unavailable right now, fetch a new captcha and retry"), nil
	}

	var sb strings.Builder
	for _, ct := range resp.CaseTypes {
		if ct.Label != "" && ct.Label != ct.Value {
			fmt.Fprintf(&sb, "%s (%s)\n", ct.Value, ct.Label)
		} else {
			fmt.Fprintln(&sb, ct.Value)
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (c *client) handleQueryCase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var q models.CaseQuery
	var err error
	if q.CaseType, err = request.RequireString("case_type"); err != nil {
		return mcp.NewToolResultError("case_type is required"), nil
	}
	if q.CaseNumber, err = request.RequireString("case_number"); err != nil {
		return mcp.NewToolResultError("case_number is required"), nil
	}
	if q.CaseYear, err = request.RequireString("case_year"); err != nil {
		return mcp.NewToolResultError("case_year is required"), nil
	}
	if q.CaptchaEntered, err = request.RequireString("captcha"); err != nil {
		return mcp.NewToolResultError("captcha is required"), nil
	}

	var resp models.CaseQueryResponse
	if err := c.callJSON(ctx, http.MethodPost, "/api/v1/cases/query", q, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := extract.ToMarkdown(resp.ResultHTML, c.origin)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to convert result: %v", err)), nil
	}
	if !resp.Success {
		return mcp.NewToolResultError(result), nil
	}

	var sb strings.Builder
	sb.WriteString("## Case status\n\n")
	sb.WriteString(result)

	if resp.OrdersHTML != "" {
		orders, err := extract.ToMarkdown(resp.OrdersHTML, c.origin)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to convert orders: %v", err)), nil
		}
		sb.WriteString("\n\n## Orders\n\n")
		sb.WriteString(orders)
	}

	if len(resp.Orders) > 0 {
		sb.WriteString("\n\n## Documents\n\n")
		for i, o := range resp.Orders {
			fmt.Fprintf(&sb, "%d. %s: %s\n", i+1, o.Title, o.URL)
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (c *client) handleDownloadOrders(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	urls, err := request.RequireStringSlice("urls")
	if err != nil || len(urls) == 0 {
		return mcp.NewToolResultError("urls is required and must be a non-empty array of strings"), nil
	}
	outDir := request.GetString("output_dir", ".")

	req := models.ArchiveRequest{Links: make([]models.OrderLink, 0, len(urls))}
	for _, u := range urls {
		req.Links = append(req.Links, models.OrderLink{URL: u})
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/v1/orders/archive", req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return mcp.NewToolResultError(apiError(resp)), nil
	}

	path := filepath.Join(outDir, "all_orders.zip")
	f, err := os.Create(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create %s: %v", path, err)), nil
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to write %s: %v", path, err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Wrote %s (%d bytes): %s documents, %s failed.",
		path, n, resp.Header.Get("X-Archive-Documents"), resp.Header.Get("X-Archive-Failed"))), nil
}

// do sends a request to the API with an optional JSON body.
func (c *client) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	return resp, nil
}

// callJSON decodes a 200 response into out, and any other status into an
// error carrying the API's error code.
func (c *client) callJSON(ctx context.Context, method, path string, payload, out any) error {
	resp, err := c.do(ctx, method, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s", apiError(resp))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func apiError(resp *http.Response) string {
	var e models.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == nil {
		return fmt.Sprintf("API returned HTTP %d", resp.StatusCode)
	}
	return fmt.Sprintf("[%s] %s", e.Error.Code, e.Error.Message)
}
