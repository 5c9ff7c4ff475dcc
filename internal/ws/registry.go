package ws

import "nakula/pkg/core"

// SubID identifies one subscriber registration on one connection.
type SubID uint64

type subscriber struct {
	id SubID
	ch chan core.Message
}

type topicEntry struct {
	topic string
	subs  []subscriber
}

// registry maps topic keys to their delivery channels, preserving the
// order in which topics were first added so that replay after a reconnect
// is deterministic. It is owned exclusively by the connection's run loop
// and is not safe for concurrent use.
type registry struct {
	order  []*topicEntry
	byKey  map[string]*topicEntry
	byID   map[SubID]*topicEntry
	nextID SubID
}

func newRegistry() *registry {
	return &registry{
		byKey: make(map[string]*topicEntry),
		byID:  make(map[SubID]*topicEntry),
	}
}

// add registers a delivery channel for a topic. The returned bool is true
// when this is the first subscriber for the topic, meaning a wire
// subscribe is needed. The registry owns the channel from this point and
// closes it on remove or closeAll.
func (r *registry) add(topic string, ch chan core.Message) (SubID, bool) {
	r.nextID++
	id := r.nextID

	entry, ok := r.byKey[topic]
	if !ok {
		entry = &topicEntry{topic: topic}
		r.byKey[topic] = entry
		r.order = append(r.order, entry)
	}
	entry.subs = append(entry.subs, subscriber{id: id, ch: ch})
	r.byID[id] = entry
	return id, !ok
}

// remove drops one subscriber. It returns the topic, the channel to
// close, and whether this was the topic's last subscriber, meaning a wire
// unsubscribe is needed.
func (r *registry) remove(id SubID) (topic string, ch chan core.Message, last, ok bool) {
	entry, ok := r.byID[id]
	if !ok {
		return "", nil, false, false
	}
	delete(r.byID, id)

	for i, sub := range entry.subs {
		if sub.id == id {
			ch = sub.ch
			entry.subs = append(entry.subs[:i], entry.subs[i+1:]...)
			break
		}
	}

	last = len(entry.subs) == 0
	if last {
		delete(r.byKey, entry.topic)
		for i, e := range r.order {
			if e == entry {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	return entry.topic, ch, last, true
}

// channels returns the delivery channels for a topic, nil when the topic
// has no subscribers.
func (r *registry) channels(topic string) []subscriber {
	entry, ok := r.byKey[topic]
	if !ok {
		return nil
	}
	return entry.subs
}

// topics returns all subscribed topic keys in first-added order.
func (r *registry) topics() []string {
	out := make([]string, len(r.order))
	for i, entry := range r.order {
		out[i] = entry.topic
	}
	return out
}

// closeAll closes every delivery channel and empties the registry.
// Consumers observe end-of-stream.
func (r *registry) closeAll() {
	for _, entry := range r.order {
		for _, sub := range entry.subs {
			close(sub.ch)
		}
	}
	r.order = nil
	r.byKey = make(map[string]*topicEntry)
	r.byID = make(map[SubID]*topicEntry)
}

// size returns the number of live subscriber registrations.
func (r *registry) size() int {
	return len(r.byID)
}
