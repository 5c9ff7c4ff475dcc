package core

// Message is one data frame delivered to a stream subscriber, tagged with
// the topic that matched it. Payload is owned by the receiver.
type Message struct {
	Topic   string
	Payload []byte
}
