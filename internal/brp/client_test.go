package brp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer starts a fake BRP app and returns a client pointed at it
// together with the port it listens on.
func newTestServer(t *testing.T, h http.HandlerFunc) (*Client, int) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return NewClient(Options{Host: host, RequestTimeout: 2 * time.Second}), port
}

// readRequest decodes the JSON-RPC envelope a handler received.
func readRequest(t *testing.T, r *http.Request) Request {
	t.Helper()
	var req Request
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	return req
}

func TestWatchMethod(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{MethodGet, "bevy/get+watch"},
		{MethodList, "bevy/list+watch"},
		{"bevy/get+watch", "bevy/get+watch"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WatchMethod(tt.in))
	}
	assert.True(t, IsWatchMethod("bevy/list+watch"))
	assert.False(t, IsWatchMethod(MethodQuery))
}

func TestClient_URL(t *testing.T) {
	c := NewClient(Options{})
	assert.Equal(t, "http://localhost:15702/jsonrpc", c.URL(DefaultPort))
}

func TestCall_Success(t *testing.T) {
	received := make(chan Request, 1)
	client, port := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, EndpointPath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		received <- readRequest(t, r)
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":{"components":{"Position":[1,2]}}}`)
	})

	result, err := client.Call(context.Background(), MethodGet, map[string]any{"entity": 42}, port)
	require.NoError(t, err)
	assert.JSONEq(t, `{"components":{"Position":[1,2]}}`, string(result))

	got := <-received
	assert.Equal(t, "2.0", got.JSONRPC)
	assert.Equal(t, MethodGet, got.Method)
	assert.NotZero(t, got.ID)
	params, ok := got.Params.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 42, params["entity"])
}

func TestCall_NullResult(t *testing.T) {
	client, port := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":null}`)
	})

	result, err := client.Call(context.Background(), MethodDestroy, map[string]any{"entity": 1}, port)
	require.NoError(t, err)
	assert.Equal(t, "null", string(result))
}

func TestCall_ProtocolError(t *testing.T) {
	client, port := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-23401,"message":"entity 7 not found"}}`)
	})

	_, err := client.Call(context.Background(), MethodGet, nil, port)
	require.Error(t, err)

	pe, ok := AsProtocolError(err)
	require.True(t, ok, "want ProtocolError, got %T", err)
	assert.Equal(t, CodeEntityNotFound, pe.Code)
	assert.Equal(t, "entity 7 not found", pe.Message)
	assert.True(t, IsEntityGone(err))
}

func TestCall_ProtocolErrorWithHTTPStatus(t *testing.T) {
	client, port := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`)
	})

	_, err := client.Call(context.Background(), "bevy/nope", nil, port)
	pe, ok := AsProtocolError(err)
	require.True(t, ok)
	assert.Equal(t, CodeMethodNotFound, pe.Code)
}

func TestCall_HTTPErrorWithoutEnvelope(t *testing.T) {
	client, port := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.Call(context.Background(), MethodList, nil, port)
	assert.True(t, IsConnectionError(err), "got %T: %v", err, err)
}

func TestCall_MalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>nope</html>`},
		{"empty object", `{}`},
		{"truncated", `{"result":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, port := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := client.Call(context.Background(), MethodList, nil, port)
			var de *DecodeError
			require.ErrorAs(t, err, &de)
		})
	}
}

func TestCall_ConnectionRefused(t *testing.T) {
	// Grab a free port and close it so nothing listens there.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	client := NewClient(Options{Host: "127.0.0.1", ConnectTimeout: time.Second})
	_, err = client.Call(context.Background(), MethodList, nil, port)

	var ce *ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.URL, strconv.Itoa(port))
}

func TestCall_EmptyMethod(t *testing.T) {
	client := NewClient(Options{})
	_, err := client.Call(context.Background(), "", nil, DefaultPort)
	require.Error(t, err)
	assert.False(t, IsConnectionError(err))
}

func TestCall_RequestIDsIncrease(t *testing.T) {
	received := make(chan uint64, 3)
	client, port := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		received <- readRequest(t, r).ID
		_, _ = io.WriteString(w, `{"result":[]}`)
	})

	for i := 0; i < 3; i++ {
		_, err := client.Call(context.Background(), MethodList, nil, port)
		require.NoError(t, err)
	}
	ids := []uint64{<-received, <-received, <-received}
	assert.Less(t, ids[0], ids[1])
	assert.Less(t, ids[1], ids[2])
}

func TestDecodeError_TruncatesBody(t *testing.T) {
	long := make([]byte, maxErrorBody*2)
	for i := range long {
		long[i] = 'x'
	}
	err := newDecodeError(long, errors.New("bad"))
	assert.Len(t, err.Body, maxErrorBody+3)
}
