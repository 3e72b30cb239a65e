package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/AlexYaroshenko/hades/internal/metrics"
)

// DefaultServerURL is the public Bot API server.
const DefaultServerURL = "https://api.telegram.org"

// Params are the arguments of a Bot API method. Strings, numbers and bools
// are sent as-is; anything else is JSON-encoded. Nil values are skipped.
type Params map[string]any

// Encode renders p as a URL query string.
func (p Params) Encode() (string, error) {
	v := url.Values{}
	for k, val := range p {
		s, ok, err := formatParam(val)
		if err != nil {
			return "", fmt.Errorf("param %s: %w", k, err)
		}
		if ok {
			v.Set(k, s)
		}
	}
	return v.Encode(), nil
}

func formatParam(val any) (string, bool, error) {
	switch x := val.(type) {
	case nil:
		return "", false, nil
	case string:
		return x, true, nil
	case bool:
		return strconv.FormatBool(x), true, nil
	case int:
		return strconv.Itoa(x), true, nil
	case int32:
		return strconv.FormatInt(int64(x), 10), true, nil
	case int64:
		return strconv.FormatInt(x, 10), true, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true, nil
	case json.RawMessage:
		return string(x), true, nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "", false, err
		}
		// typed nil pointers, maps and slices marshal to null and are skipped like nil
		if string(b) == "null" {
			return "", false, nil
		}
		return string(b), true, nil
	}
}

// Client issues Bot API calls as HTTP GET requests with a query string.
type Client struct {
	httpClient *http.Client
	server     string
	token      string
	baseURL    string
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Its timeout must exceed the
// long-poll timeout passed to getUpdates.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithServerURL points the client at another Bot API server (local server, tests).
func WithServerURL(u string) Option {
	return func(c *Client) { c.server = u }
}

func NewClient(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, errors.New("telegram: bot token is empty")
	}
	c := &Client{
		httpClient: &http.Client{Timeout: 70 * time.Second},
		server:     DefaultServerURL,
		token:      token,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.baseURL = strings.TrimRight(c.server, "/") + "/bot" + token + "/"
	return c, nil
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Fetch calls endpoint with params and returns the "result" member of the
// Bot API envelope. Every failure is a *TransportError. Nothing is retried.
func (c *Client) Fetch(ctx context.Context, endpoint string, params Params) (json.RawMessage, error) {
	res, err := c.fetch(ctx, endpoint, params)
	if err != nil {
		metrics.IncTransportError(endpoint)
	}
	return res, err
}

func (c *Client) fetch(ctx context.Context, endpoint string, params Params) (json.RawMessage, error) {
	query, err := params.Encode()
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	apiURL := c.baseURL + endpoint
	if query != "" {
		apiURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: c.redact(err)}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: c.redact(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	var r apiResponse
	if err := json.Unmarshal(body, &r); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &TransportError{Endpoint: endpoint, StatusCode: resp.StatusCode, Description: snippet(body)}
		}
		return nil, &TransportError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !r.OK {
		return nil, &TransportError{
			Endpoint:    endpoint,
			StatusCode:  resp.StatusCode,
			ErrorCode:   r.ErrorCode,
			Description: r.Description,
		}
	}
	return r.Result, nil
}

// redact keeps the bot token out of error messages; url.Error embeds the URL.
func (c *Client) redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = strings.ReplaceAll(ue.URL, c.token, "<token>")
	}
	return err
}

func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
