package client

import (
	"sync"

	"nakula/internal/ws"
	"nakula/pkg/core"
)

// Stream is one live topic subscription. Messages arrive on C until the
// stream is closed or the client shuts down; both close C so consumers
// observe end-of-stream. A connection drop is invisible here beyond a
// possible gap while the connection recovers.
type Stream struct {
	// C delivers the subscription's messages.
	C <-chan core.Message

	topic string
	conn  *ws.Conn
	id    ws.SubID
	once  sync.Once
}

// Topic returns the subscribed topic key.
func (s *Stream) Topic() string { return s.topic }

// Close drops the subscription. Dropping the last subscription for a
// topic sends the wire unsubscribe. Close is idempotent and does not
// wait for in-flight deliveries.
func (s *Stream) Close() error {
	s.once.Do(func() {
		s.conn.Unsubscribe(s.id)
	})
	return nil
}
