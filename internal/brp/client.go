package brp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// maxResponseSize bounds a non-streaming response body.
const maxResponseSize = 64 << 20

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	Host           string
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	Logger         *zap.Logger
}

// Client talks to BRP apps. It is safe for concurrent use; one Client
// serves every port.
type Client struct {
	host   string
	calls  *http.Client
	stream *http.Client
	log    *zap.Logger
	nextID atomic.Uint64
}

// NewClient creates a Client. Plain calls are bounded by RequestTimeout;
// streams only by ConnectTimeout and their context.
func NewClient(opts Options) *Client {
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	dialer := &net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
	}

	return &Client{
		host:   opts.Host,
		calls:  &http.Client{Transport: transport, Timeout: opts.RequestTimeout},
		stream: &http.Client{Transport: transport},
		log:    opts.Logger.Named("brp"),
	}
}

// URL returns the JSON-RPC endpoint for port.
func (c *Client) URL(port int) string {
	return "http://" + net.JoinHostPort(c.host, strconv.Itoa(port)) + EndpointPath
}

// Request is the JSON-RPC request envelope.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is the JSON-RPC response envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ProtocolError  `json:"error,omitempty"`
}

// Call invokes method on the app listening on port and returns the raw
// result. A JSON null result comes back as the literal "null".
func (c *Client) Call(ctx context.Context, method string, params any, port int) (json.RawMessage, error) {
	url := c.URL(port)
	req, err := c.newRequest(ctx, url, method, params)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.calls.Do(req)
	if err != nil {
		return nil, &ConnectionError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &ConnectionError{URL: url, Err: fmt.Errorf("reading response: %w", err)}
	}

	c.log.Debug("call",
		zap.String("method", method),
		zap.Int("port", port),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	result, decodeErr := decodeResponse(body)
	if decodeErr == nil {
		return result, nil
	}
	// BRP reports JSON-RPC errors with non-2xx statuses too; a readable
	// error envelope wins over the status line.
	if _, ok := AsProtocolError(decodeErr); ok {
		return nil, decodeErr
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ConnectionError{URL: url, Err: fmt.Errorf("HTTP %s", resp.Status)}
	}
	return nil, decodeErr
}

func (c *Client) newRequest(ctx context.Context, url, method string, params any) (*http.Request, error) {
	if method == "" {
		return nil, errors.New("brp: method is required")
	}
	body, err := json.Marshal(Request{
		JSONRPC: jsonrpcVersion,
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("brp: encoding params for %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("brp: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// decodeResponse turns one JSON-RPC response body into a result or error.
func decodeResponse(body []byte) (json.RawMessage, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newDecodeError(body, err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	if resp.Result == nil {
		return nil, newDecodeError(body, errors.New("response has neither result nor error"))
	}
	return resp.Result, nil
}
