package exchange

import (
	"nakula/pkg/client"
	"nakula/pkg/core"
)

// Subscription delivers typed market data decoded from a raw stream
// subscription. The channel closes when the underlying subscription
// ends. Delivery is lossy under backpressure: when the consumer falls
// behind, the newest value is dropped rather than blocking the decoder.
type Subscription[T any] struct {
	C <-chan T

	topic string
	stop  func() error
}

// NewSubscription wraps a raw stream with a decoder that yields one
// value per frame. Frames the decoder rejects are skipped.
func NewSubscription[T any](stream *client.Stream, decode func(core.Message) (T, bool)) *Subscription[T] {
	return NewBatchSubscription(stream, func(msg core.Message) []T {
		v, ok := decode(msg)
		if !ok {
			return nil
		}
		return []T{v}
	})
}

// NewBatchSubscription wraps a raw stream with a decoder that may yield
// several values per frame. Venues that batch updates into one frame
// use this form.
func NewBatchSubscription[T any](stream *client.Stream, decode func(core.Message) []T) *Subscription[T] {
	return newSubscription(stream.C, stream.Topic(), stream.Close, decode)
}

func newSubscription[T any](msgs <-chan core.Message, topic string, stop func() error, decode func(core.Message) []T) *Subscription[T] {
	ch := make(chan T, cap(msgs))
	sub := &Subscription[T]{C: ch, topic: topic, stop: stop}

	go func() {
		defer close(ch)
		for msg := range msgs {
			for _, v := range decode(msg) {
				select {
				case ch <- v:
				default:
				}
			}
		}
	}()

	return sub
}

// Topic returns the venue-native topic this subscription is bound to.
func (s *Subscription[T]) Topic() string {
	return s.topic
}

// Close tears down the underlying stream subscription. It is safe to
// call more than once.
func (s *Subscription[T]) Close() error {
	return s.stop()
}
