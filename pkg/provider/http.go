package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"
)

// HTTPClient speaks the neutral JSON request/response shape over HTTP.
// Requests are POSTed to Endpoint; the reply body must decode into
// Response. Vendor adapters that need a different wire shape implement
// Client themselves.
type HTTPClient struct {
	Endpoint string
	APIKey   string
	HTTPC    *http.Client
}

// NewHTTPClient builds a client with a 120s request timeout.
func NewHTTPClient(endpoint, apiKey string) *HTTPClient {
	return &HTTPClient{
		Endpoint: endpoint,
		APIKey:   apiKey,
		HTTPC:    &http.Client{Timeout: 120 * time.Second},
	}
}

// Send implements Client.
func (c *HTTPClient) Send(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Message: "encode request", Err: err}
	}
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Message: "build request", Err: err}
	}
	hr.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		hr.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPC.Do(hr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Kind: KindTimeout, Message: "request cancelled", Err: err}
		}
		return nil, &Error{Kind: KindTransient, Message: "transport failure", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &Error{Kind: KindTransient, Message: "decode response", Err: err}
	}
	if out.RateLimit == nil {
		out.RateLimit = parseRateLimit(resp.Header)
	}
	return &out, nil
}

// classifyStatus maps a non-200 reply to the typed error taxonomy.
func classifyStatus(resp *http.Response) error {
	msg := readErrorBody(resp.Body)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		rl := &RateLimitError{Message: msg}
		if h := parseRateLimit(resp.Header); h != nil {
			rl.RequestsRemaining = h.RequestsRemaining
			rl.TokensRemaining = h.TokensRemaining
			rl.ResetAt = h.ResetAt
		}
		return rl
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &Error{Kind: KindAuth, Status: resp.StatusCode, Message: msg}
	case resp.StatusCode == http.StatusRequestTimeout:
		return &Error{Kind: KindTimeout, Status: resp.StatusCode, Message: msg}
	case resp.StatusCode >= 500:
		return &Error{Kind: KindTransient, Status: resp.StatusCode, Message: msg}
	default:
		return &Error{Kind: KindInvalidRequest, Status: resp.StatusCode, Message: msg}
	}
}

func readErrorBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(b) == 0 {
		return "no error body"
	}
	var wrapped struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &wrapped) == nil && wrapped.Error != "" {
		return wrapped.Error
	}
	return string(b)
}

// parseRateLimit extracts quota headers; nil when absent.
func parseRateLimit(h http.Header) *RateLimitHeaders {
	reqRem := h.Get("X-RateLimit-Requests-Remaining")
	tokRem := h.Get("X-RateLimit-Tokens-Remaining")
	reset := h.Get("X-RateLimit-Reset")
	if reqRem == "" && tokRem == "" && reset == "" {
		return nil
	}
	out := &RateLimitHeaders{}
	out.RequestsRemaining, _ = strconv.Atoi(reqRem)
	out.TokensRemaining, _ = strconv.Atoi(tokRem)
	if reset != "" {
		if t, err := time.Parse(time.RFC3339, reset); err == nil {
			out.ResetAt = t
		} else if secs, err := strconv.Atoi(reset); err == nil {
			out.ResetAt = time.Now().UTC().Add(time.Duration(secs) * time.Second)
		}
	}
	return out
}
