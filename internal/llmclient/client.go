// Package llmclient provides the HTTP call layer shared by provider clients:
// - Request marshaling, with provider-specific extra parameters merged in
// - Credential and header attachment
// - Mapping of failures onto the gateway error taxonomy
//
// Every call is a single attempt. Retries are left to the caller.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/sjson"

	"llmgate/internal/core"
	"llmgate/internal/httpclient"
)

// maxErrorBody caps how much of a non-success response is kept.
const maxErrorBody = 1 << 20

// Config holds configuration for the LLM client
type Config struct {
	// ProviderName identifies the provider for error messages and metrics
	ProviderName string

	// BaseURL is the API base URL
	BaseURL string

	Hooks Hooks
}

// RequestInfo describes an upstream call for hooks.
type RequestInfo struct {
	Provider string
	Model    string
	Method   string
	Endpoint string
	Stream   bool
}

// ResponseInfo is passed to Hooks.OnRequestEnd.
type ResponseInfo struct {
	RequestInfo
	StatusCode int
	Duration   time.Duration
	Err        error
}

// Hooks observe upstream calls. Either func may be nil.
type Hooks struct {
	OnRequestStart func(ctx context.Context, info RequestInfo) context.Context
	// OnRequestEnd runs once the response status is known. For streams
	// that is when the event stream opens, not when it ends.
	OnRequestEnd func(ctx context.Context, info ResponseInfo)
}

// HeaderSetter sets provider headers on an outgoing request. A returned
// error aborts the call before anything is sent.
type HeaderSetter func(req *http.Request) error

// Client is a base HTTP client for LLM providers
type Client struct {
	httpClient   *http.Client
	config       Config
	headerSetter HeaderSetter
}

// New creates a new LLM client with the default HTTP client
func New(config Config, headerSetter HeaderSetter) *Client {
	return NewWithHTTPClient(httpclient.NewHTTPClient(nil), config, headerSetter)
}

// NewWithHTTPClient creates a new LLM client with a custom HTTP client
func NewWithHTTPClient(httpClient *http.Client, config Config, headerSetter HeaderSetter) *Client {
	if httpClient == nil {
		httpClient = httpclient.NewHTTPClient(nil)
	}
	return &Client{
		httpClient:   httpClient,
		config:       config,
		headerSetter: headerSetter,
	}
}

// SetBaseURL updates the base URL
func (c *Client) SetBaseURL(url string) {
	c.config.BaseURL = url
}

// BaseURL returns the current base URL
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Request represents an HTTP request to be made
type Request struct {
	Method   string
	Endpoint string
	// Body is JSON marshaled if not nil
	Body any
	// ExtraParams are set as top-level fields of the marshaled body.
	ExtraParams map[string]any
	Headers     map[string]string
	// Model labels the call for hooks and errors.
	Model  string
	Stream bool
	// Check, when set, rejects a successful body that decoded but does not
	// have the expected shape. Do reports the rejection as a decode error.
	Check func(body []byte) error
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Body       []byte
}

// Do executes a request and unmarshals a successful response into result.
// Hooks see the call end after decoding, so a decode failure is reported as such.
func (c *Client) Do(ctx context.Context, req Request, result any) error {
	resp, finish, err := c.doRaw(ctx, req)
	if err != nil {
		return err
	}

	err = c.decode(resp.Body, req, result)
	finish(resp.StatusCode, err)
	return err
}

// DoRaw executes a request and returns the raw body of a successful response
func (c *Client) DoRaw(ctx context.Context, req Request) (*Response, error) {
	resp, finish, err := c.doRaw(ctx, req)
	if err != nil {
		return nil, err
	}
	finish(resp.StatusCode, nil)
	return resp, nil
}

// doRaw reads a successful response. On success the returned finish func has
// not run yet and the caller must call it.
func (c *Client) doRaw(ctx context.Context, req Request) (*Response, func(int, error), error) {
	ctx, finish := c.begin(ctx, req)

	httpResp, err := c.send(ctx, req)
	if err != nil {
		finish(0, err)
		return nil, nil, err
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	if !isSuccess(httpResp.StatusCode) {
		err := c.providerError(httpResp, req)
		finish(httpResp.StatusCode, err)
		return nil, nil, err
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		err := c.annotate(core.NewTransportError(c.config.ProviderName, "failed to read response: "+err.Error(), err), req)
		finish(httpResp.StatusCode, err)
		return nil, nil, err
	}

	return &Response{StatusCode: httpResp.StatusCode, Body: body}, finish, nil
}

func (c *Client) decode(body []byte, req Request, result any) error {
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return c.annotate(core.NewDecodeError(c.config.ProviderName, "failed to unmarshal response: "+err.Error(), body, err), req)
	}
	if req.Check != nil {
		if err := req.Check(body); err != nil {
			return c.annotate(core.NewDecodeError(c.config.ProviderName, "unexpected response: "+err.Error(), body, err), req)
		}
	}
	return nil
}

// DoStream executes a streaming request and returns the open response body.
// The caller owns the body and must close it.
func (c *Client) DoStream(ctx context.Context, req Request) (io.ReadCloser, error) {
	req.Stream = true
	ctx, finish := c.begin(ctx, req)

	httpResp, err := c.send(ctx, req)
	if err != nil {
		finish(0, err)
		return nil, err
	}

	if !isSuccess(httpResp.StatusCode) {
		err := c.providerError(httpResp, req)
		_ = httpResp.Body.Close()
		finish(httpResp.StatusCode, err)
		return nil, err
	}

	finish(httpResp.StatusCode, nil)
	return httpResp.Body, nil
}

// send builds and issues a single HTTP request.
func (c *Client) send(ctx context.Context, req Request) (*http.Response, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, c.annotate(err, req)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.annotate(core.NewTransportError(c.config.ProviderName, "failed to send request: "+transportReason(err), err), req)
	}
	return resp, nil
}

// buildRequest creates an HTTP request from a Request
func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	url := c.config.BaseURL + req.Endpoint

	var bodyReader io.Reader
	if req.Body != nil {
		bodyBytes, err := marshalBody(req.Body, req.ExtraParams)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bodyReader)
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to create request", err)
	}

	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	if c.headerSetter != nil {
		if err := c.headerSetter(httpReq); err != nil {
			return nil, err
		}
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	return httpReq, nil
}

// marshalBody encodes body and sets each extra parameter as a top-level field.
func marshalBody(body any, extra map[string]any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to marshal request", err)
	}
	if len(extra) == 0 {
		return data, nil
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		data, err = sjson.SetBytes(data, escapePath(k), extra[k])
		if err != nil {
			return nil, core.NewInvalidRequestError("invalid extra parameter "+k, err)
		}
	}
	return data, nil
}

var pathEscaper = strings.NewReplacer(`\`, `\\`, ".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`, ":", `\:`)

// escapePath makes key a literal sjson path so it is never split into nested fields.
func escapePath(key string) string {
	return pathEscaper.Replace(key)
}

func (c *Client) providerError(resp *http.Response, req Request) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return c.annotate(core.ParseProviderError(c.config.ProviderName, resp.StatusCode, body), req)
}

func (c *Client) annotate(err error, req Request) error {
	var gatewayErr *core.GatewayError
	if req.Model != "" && errors.As(err, &gatewayErr) && gatewayErr.Model == "" {
		gatewayErr.WithModel(req.Model)
	}
	return err
}

// begin runs OnRequestStart and returns a func that runs OnRequestEnd.
func (c *Client) begin(ctx context.Context, req Request) (context.Context, func(status int, err error)) {
	info := RequestInfo{
		Provider: c.config.ProviderName,
		Model:    req.Model,
		Method:   req.Method,
		Endpoint: req.Endpoint,
		Stream:   req.Stream,
	}
	if c.config.Hooks.OnRequestStart != nil {
		if hookCtx := c.config.Hooks.OnRequestStart(ctx, info); hookCtx != nil {
			ctx = hookCtx
		}
	}
	start := time.Now()
	return ctx, func(status int, err error) {
		if c.config.Hooks.OnRequestEnd == nil {
			return
		}
		c.config.Hooks.OnRequestEnd(ctx, ResponseInfo{
			RequestInfo: info,
			StatusCode:  status,
			Duration:    time.Since(start),
			Err:         err,
		})
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// transportReason shortens the *url.Error text for deadline and cancellation.
func transportReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	case errors.Is(err, context.Canceled):
		return "request canceled"
	}
	return err.Error()
}
