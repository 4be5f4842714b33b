// Package tooling retrieves flow definitions from the Salesforce Tooling API.
package tooling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rendis/flowlens/pkg/schema"
)

const (
	// DefaultAPIVersion is the Tooling API version used when none is configured.
	DefaultAPIVersion = "v42.0"

	defaultTimeout         = 30 * time.Second
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
)

// Config configures a Client.
type Config struct {
	// Instance is the org host ("acme.my.salesforce.com") or a base URL with
	// scheme. A bare host is reached over https.
	Instance        string
	SessionID       string
	APIVersion      string
	Timeout         time.Duration
	MaxResponseBody int64
	HTTPClient      *http.Client
	// Retry applies to 429, 502-504 and transport errors. Nil means
	// DefaultRetryPolicy; use &RetryPolicy{} to disable.
	Retry *RetryPolicy
}

// Client fetches Flow records.
type Client struct {
	base    *url.URL
	session string
	version string
	maxBody int64
	http    *http.Client
	retry   RetryPolicy
}

// New creates a Client. Instance and SessionID are required.
func New(cfg Config) (*Client, error) {
	if cfg.Instance == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "tooling: instance is required")
	}
	if cfg.SessionID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "tooling: session id is required")
	}

	raw := cfg.Instance
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || base.Host == "" {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "tooling: invalid instance %q", cfg.Instance)
	}

	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if !strings.HasPrefix(cfg.APIVersion, "v") {
		cfg.APIVersion = "v" + cfg.APIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	retry := DefaultRetryPolicy
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	return &Client{
		base:    base,
		session: cfg.SessionID,
		version: cfg.APIVersion,
		maxBody: cfg.MaxResponseBody,
		http:    client,
		retry:   retry,
	}, nil
}

// Endpoint returns the Flow record URL for id.
func (c *Client) Endpoint(id string) string {
	return fmt.Sprintf("%s/services/data/%s/tooling/sobjects/Flow/%s", c.base.String(), c.version, url.PathEscape(id))
}

// FetchFlow returns the raw Flow record for id. The body is the whole
// Tooling API response, with the definition under Metadata.
func (c *Client) FetchFlow(ctx context.Context, id string) ([]byte, error) {
	if id == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "tooling: flow id is required")
	}

	for attempt := 0; ; attempt++ {
		body, status, err := c.get(ctx, id)
		final := attempt >= c.retry.Max
		if errors.Is(err, errBodyTooLarge) {
			return nil, schema.NewErrorf(schema.ErrCodeFetch, "tooling: flow %s: response larger than %d bytes", id, c.maxBody).
				WithCause(err).WithDetails(map[string]any{"flow_id": id, "max_response_body": c.maxBody})
		}
		if err != nil {
			if final || !retryableError(err) {
				return nil, schema.NewErrorf(schema.ErrCodeFetch, "tooling: request failed: %v", err).WithCause(err)
			}
		} else if status == http.StatusOK {
			return body, nil
		} else if final || !retryableStatus(status) {
			code := schema.ErrCodeFetch
			if status == http.StatusNotFound {
				code = schema.ErrCodeNotFound
			}
			return nil, schema.NewErrorf(code, "tooling: flow %s: %s", id, apiMessage(fmt.Sprintf("%d %s", status, http.StatusText(status)), body)).
				WithDetails(map[string]any{"status_code": status, "flow_id": id, "attempts": attempt + 1})
		}
		if err := wait(ctx, c.retry.backoff(attempt)); err != nil {
			return nil, schema.NewError(schema.ErrCodeFetch, "tooling: request cancelled").WithCause(err)
		}
	}
}

var errBodyTooLarge = errors.New("response body exceeds limit")

// get performs one request. A non-nil error means no response was read.
func (c *Client) get(ctx context.Context, id string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint(id), nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.session)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, 0, err
	}
	if int64(len(body)) > c.maxBody {
		return nil, 0, errBodyTooLarge
	}
	return body, resp.StatusCode, nil
}

// apiMessage extracts the first Salesforce error message from body, falling
// back to the HTTP status.
func apiMessage(status string, body []byte) string {
	var errs []struct {
		Message   string `json:"message"`
		ErrorCode string `json:"errorCode"`
	}
	if json.Unmarshal(body, &errs) == nil && len(errs) > 0 && errs[0].Message != "" {
		if errs[0].ErrorCode != "" {
			return errs[0].ErrorCode + ": " + errs[0].Message
		}
		return errs[0].Message
	}
	return status
}

var (
	flowIDParam = regexp.MustCompile(`flowId=([^&#]*)`)
	bareFlowID  = regexp.MustCompile(`^301[a-zA-Z0-9]{12}([a-zA-Z0-9]{3})?$`)
)

// ParseFlowID extracts the flowId query value from a Flow Builder URL. A bare
// Flow record id (prefix 301) is returned unchanged.
func ParseFlowID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if bareFlowID.MatchString(raw) {
		return raw, nil
	}
	m := flowIDParam.FindStringSubmatch(raw)
	if m == nil || m[1] == "" {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "no flowId in %q", raw)
	}
	id, err := url.QueryUnescape(m[1])
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "invalid flowId in %q", raw).WithCause(err)
	}
	return id, nil
}
