package history

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/HendryAvila/bevy-brp-mcp/internal/watch"
)

// blockingTransport opens streams that yield nothing until closed.
type blockingTransport struct{}

func (blockingTransport) OpenStream(context.Context, string, any, int) (watch.Stream, error) {
	return &blockingStream{closed: make(chan struct{})}, nil
}

type blockingStream struct {
	closed chan struct{}
	once   sync.Once
}

func (s *blockingStream) Next() (json.RawMessage, error) {
	<-s.closed
	return nil, errors.New("closed")
}

func (s *blockingStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
