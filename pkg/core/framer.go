package core

// Kind classifies one inbound stream frame after the framer has decoded
// it.
type Kind int

const (
	// KindData is a payload frame tagged with a topic.
	KindData Kind = iota
	// KindPong is a heartbeat acknowledgement. Absorbed.
	KindPong
	// KindAck is a subscribe or unsubscribe confirmation. Absorbed.
	KindAck
	// KindError is an exchange-reported stream error. Logged and dropped;
	// stream errors never terminate subscriber channels.
	KindError
)

// String returns the string representation of the frame kind.
func (k Kind) String() string {
	return [...]string{"data", "pong", "ack", "error"}[k]
}

// Inbound is one classified frame. Topic is set only for KindData frames
// and matches the topic keys used when subscribing.
type Inbound struct {
	Topic   string
	Kind    Kind
	Payload []byte
}

// Framer supplies the exchange dialect for one stream endpoint: how to
// build outbound control frames and how to classify inbound ones. A
// framer is invoked from a single goroutine and needs no internal
// synchronization.
type Framer interface {
	// OpenFrames returns frames sent immediately after every successful
	// handshake, before subscriptions are replayed. Used for endpoints
	// that require an authentication frame. May return nil.
	OpenFrames() [][]byte

	// SubscribeFrame builds the wire subscribe message for one topic.
	SubscribeFrame(topic string) ([]byte, error)

	// UnsubscribeFrame builds the wire unsubscribe message for one topic.
	UnsubscribeFrame(topic string) ([]byte, error)

	// PingFrame returns the keep-alive message for this dialect, or nil
	// when the endpoint uses protocol-level pings instead.
	PingFrame() []byte

	// Classify decodes one inbound frame. Frames that cannot be matched
	// to a topic are returned as KindData with an empty Topic and are
	// dropped by the dispatcher.
	Classify(payload []byte) Inbound
}
