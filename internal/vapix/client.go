package vapix

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the device-local API root.
	DefaultBaseURL = "http://127.0.0.12/axis-cgi"

	defaultTimeout = 10 * time.Second

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 4 << 20

	mimeJSON = "application/json"
)

// Request is the body of a JSON API call.
type Request struct {
	APIVersion string `json:"apiVersion,omitempty"`
	Method     string `json:"method"`
	Params     any    `json:"params,omitempty"`
}

// envelope is the JSON response wrapper.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Connector creates per-domain clients that share one HTTP client.
type Connector struct {
	baseURL    string
	httpClient *http.Client
	source     CredentialSource
}

// NewConnector creates a Connector for the API at baseURL. A zero timeout
// uses the default of 10s.
func NewConnector(baseURL string, timeout time.Duration, source CredentialSource) *Connector {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Connector{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		source:     source,
	}
}

// Client returns a client authenticated as the service account of domain.
func (c *Connector) Client(ctx context.Context, domain string) (*Client, error) {
	creds, err := c.source.Credentials(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("credentials for %s: %w", domain, err)
	}
	return &Client{
		baseURL:    c.baseURL,
		httpClient: c.httpClient,
		creds:      creds,
	}, nil
}

// Client performs authenticated calls against the device API.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      Credentials
}

// PostJSON posts req to endpoint and decodes the data member of the response
// envelope into out. out may be nil when only success matters.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - endpoint: CGI path below the base URL (e.g., "io/portmanagement.cgi")
//   - req: Method call
//   - out: Destination for the envelope's data, or nil
//
// Returns:
//   - error: ErrStatus, *APIError (matches ErrAPI), ErrMalformedResponse, or
//     ErrRequestFailed
func (c *Client) PostJSON(ctx context.Context, endpoint string, req Request, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", req.Method, err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", mimeJSON)
	httpReq.Header.Set("Accept", mimeJSON)

	raw, err := c.do(httpReq, endpoint)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformedResponse, req.Method, err)
	}
	if env.Error != nil {
		return &APIError{Method: req.Method, Code: env.Error.Code, Message: env.Error.Message}
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s: no data in response", ErrMalformedResponse, req.Method)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %s data: %w", ErrMalformedResponse, req.Method, err)
	}
	return nil
}

// Get issues a GET to endpoint with query and returns the raw body.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return nil, err
	}
	return c.do(httpReq, endpoint)
}

// GetXML issues a GET and decodes the XML body into out.
func (c *Client) GetXML(ctx context.Context, endpoint string, query url.Values, out any) error {
	raw, err := c.Get(ctx, endpoint, query)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformedResponse, endpoint, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	target := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRequestFailed, endpoint, err)
	}
	req.SetBasicAuth(c.creds.Username, c.creds.Password)
	return req, nil
}

func (c *Client) do(req *http.Request, endpoint string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRequestFailed, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrRequestFailed, endpoint, err)
	}
	// Drain the rest to allow connection reuse.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d from %s: %s", ErrStatus, resp.StatusCode, endpoint, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}
