package brp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sse writes one server-sent event carrying a JSON-RPC response and flushes it.
func sse(w http.ResponseWriter, body string) {
	_, _ = fmt.Fprintf(w, "data: %s\n\n", body)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func TestOpenStream_YieldsEvents(t *testing.T) {
	methods := make(chan string, 1)
	client, port := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		methods <- readRequest(t, r).Method
		w.Header().Set("Content-Type", "text/event-stream")
		sse(w, `{"jsonrpc":"2.0","id":1,"result":{"added":["A"],"removed":[]}}`)
		_, _ = io.WriteString(w, ": keep-alive comment\n")
		sse(w, `{"jsonrpc":"2.0","id":1,"result":{"added":[],"removed":["A"]}}`)
	})

	stream, err := client.OpenStream(context.Background(), MethodList, map[string]any{"entity": 9}, port)
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, "bevy/list+watch", <-methods)
	assert.Equal(t, "bevy/list+watch", stream.Method())

	first, err := stream.Next()
	require.NoError(t, err)
	assert.JSONEq(t, `{"added":["A"],"removed":[]}`, string(first))

	second, err := stream.Next()
	require.NoError(t, err)
	assert.JSONEq(t, `{"added":[],"removed":["A"]}`, string(second))

	_, err = stream.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpenStream_PlainJSONBody(t *testing.T) {
	client, port := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-23401,"message":"gone"}}`)
	})

	stream, err := client.OpenStream(context.Background(), MethodGet, nil, port)
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Next()
	assert.True(t, IsEntityGone(err), "got %v", err)
}

func TestOpenStream_HTTPError(t *testing.T) {
	client, port := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	})

	_, err := client.OpenStream(context.Background(), MethodGet, nil, port)
	assert.True(t, IsConnectionError(err))
}

func TestOpenStream_HTTPErrorWithEnvelope(t *testing.T) {
	client, port := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":-32602,"message":"missing entity"}}`)
	})

	_, err := client.OpenStream(context.Background(), MethodGet, nil, port)
	pe, ok := AsProtocolError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidParams, pe.Code)
}

func TestStream_MalformedEvent(t *testing.T) {
	client, port := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		sse(w, `{not json`)
	})

	stream, err := client.OpenStream(context.Background(), MethodGet, nil, port)
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Next()
	var de *DecodeError
	assert.ErrorAs(t, err, &de)
}

func TestStream_ContextCancelUnblocksNext(t *testing.T) {
	release := make(chan struct{})
	client, port := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		sse(w, `{"result":{}}`)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := client.OpenStream(ctx, MethodGet, nil, port)
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Next()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := stream.Next()
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after cancel")
	}
}

func TestStream_CloseIsIdempotent(t *testing.T) {
	client, port := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		sse(w, `{"result":{}}`)
	})

	stream, err := client.OpenStream(context.Background(), MethodGet, nil, port)
	require.NoError(t, err)
	assert.NoError(t, stream.Close())
	assert.NoError(t, stream.Close())
}

func TestEventPayload(t *testing.T) {
	tests := []struct {
		line string
		want string
		ok   bool
	}{
		{`data: {"result":1}`, `{"result":1}`, true},
		{`data:{"result":1}`, `{"result":1}`, true},
		{`{"result":1}`, `{"result":1}`, true},
		{`data:`, ``, false},
		{``, ``, false},
		{`: comment`, ``, false},
		{`event: update`, ``, false},
	}
	for _, tt := range tests {
		got, ok := eventPayload([]byte(tt.line))
		assert.Equal(t, tt.ok, ok, "line %q", tt.line)
		if tt.ok {
			assert.Equal(t, tt.want, string(got))
		}
	}
}
