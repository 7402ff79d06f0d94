package brp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// maxLineSize bounds a single event line on a watch stream.
const maxLineSize = 10 << 20

var dataPrefix = []byte("data:")

// Stream is an open watch request. Each call to Next blocks until the
// remote pushes the next response, the stream ends, or the context that
// opened it is cancelled.
//
// A Stream is owned by one goroutine; only Close may be called concurrently.
type Stream struct {
	url     string
	method  string
	body    io.ReadCloser
	scanner *bufio.Scanner
	ctx     context.Context
	once    sync.Once
}

// OpenStream calls the watching variant of method and returns once the
// remote accepted the request. The stream lives until ctx is cancelled,
// the remote closes it, or Close is called.
func (c *Client) OpenStream(ctx context.Context, method string, params any, port int) (*Stream, error) {
	url := c.URL(port)
	method = WatchMethod(method)

	req, err := c.newRequest(ctx, url, method, params)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, &ConnectionError{URL: url, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody*4))
		if _, decodeErr := decodeResponse(body); decodeErr != nil {
			if _, ok := AsProtocolError(decodeErr); ok {
				return nil, decodeErr
			}
		}
		return nil, &ConnectionError{URL: url, Err: fmt.Errorf("HTTP %s", resp.Status)}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	c.log.Debug("stream opened", zap.String("method", method), zap.Int("port", port))

	return &Stream{
		url:     url,
		method:  method,
		body:    resp.Body,
		scanner: scanner,
		ctx:     ctx,
	}, nil
}

// Method returns the streaming method this stream was opened with.
func (s *Stream) Method() string { return s.method }

// Next returns the next result pushed by the remote.
//
// It returns io.EOF when the remote ended the stream cleanly, the context
// error once the stream's context is done, a *ProtocolError when the remote
// pushed an error object, a *DecodeError for unreadable payloads, and a
// *ConnectionError when the connection broke.
func (s *Stream) Next() (json.RawMessage, error) {
	for s.scanner.Scan() {
		line := bytes.TrimRight(s.scanner.Bytes(), "\r")
		payload, ok := eventPayload(line)
		if !ok {
			continue
		}
		return decodeResponse(payload)
	}

	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	err := s.scanner.Err()
	switch {
	case err == nil:
		return nil, io.EOF
	case errors.Is(err, bufio.ErrTooLong):
		return nil, newDecodeError(nil, fmt.Errorf("event exceeds %d bytes", maxLineSize))
	default:
		return nil, &ConnectionError{URL: s.url, Err: err}
	}
}

// Close releases the connection. It is safe to call more than once and
// from another goroutine; a blocked Next returns with an error.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() { err = s.body.Close() })
	return err
}

// eventPayload extracts the JSON carried by one stream line. Server-sent
// event "data:" lines carry a response; a bare JSON object line is accepted
// for apps that answer a watch with a plain body. Everything else (blank
// lines, comments, event names) is skipped.
func eventPayload(line []byte) ([]byte, bool) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return nil, false
	}
	if bytes.HasPrefix(trimmed, dataPrefix) {
		data := bytes.TrimSpace(trimmed[len(dataPrefix):])
		return data, len(data) > 0
	}
	if trimmed[0] == '{' {
		return trimmed, true
	}
	return nil, false
}
