package ws

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lxzan/gws"
	"github.com/rs/zerolog"

	"nakula/pkg/core"
)

// Config describes one managed connection to a stream endpoint.
type Config struct {
	// URL is the websocket endpoint to connect to.
	URL string
	// Framer supplies the endpoint's frame dialect.
	Framer core.Framer
	// Stream holds reconnect, heartbeat and buffering knobs. Zero-valued
	// reconnect and handshake fields fall back to defaults; zero-valued
	// PingInterval, IdleTimeout and RefreshAfter disable the feature.
	Stream core.StreamConfig
	// Logger records connection lifecycle events. Pass zerolog.Nop() to
	// disable.
	Logger zerolog.Logger
}

// Conn is one managed websocket connection. A single background goroutine
// owns the physical socket, the subscription registry and the state
// machine; external callers interact only through intents and atomic
// state reads. The connection survives transient failures by
// reconnecting with exponential backoff and replaying its subscriptions,
// and only Close ends it.
type Conn struct {
	url    string
	framer core.Framer
	cfg    core.StreamConfig
	logger zerolog.Logger

	state    State
	openGate atomic.Pointer[chan struct{}]

	subscribeCh   chan subscribeIntent
	unsubscribeCh chan unsubscribeIntent
	events        chan socketEvent
	frames        chan inboundFrame

	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

type subscribeIntent struct {
	topic string
	ch    chan core.Message
	reply chan subscribeReply
}

type subscribeReply struct {
	id  SubID
	err error
}

type unsubscribeIntent struct {
	id SubID
}

type eventKind int

const (
	eventDialed eventKind = iota
	eventDialFailed
	eventSocketClosed
)

type socketEvent struct {
	gen    uuid.UUID
	kind   eventKind
	socket *gws.Conn
	err    error
}

type inboundFrame struct {
	gen     uuid.UUID
	control bool
	payload []byte
}

// Dial starts a managed connection and returns immediately in
// StateConnecting. Connection failures are handled internally; only
// configuration problems are reported here.
func Dial(config Config) (*Conn, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("websocket url required")
	}
	if config.Framer == nil {
		return nil, fmt.Errorf("framer required")
	}

	cfg := config.Stream
	if cfg.ReconnectBaseWait == 0 {
		cfg.ReconnectBaseWait = 300 * time.Millisecond
	}
	if cfg.ReconnectMaxWait == 0 {
		cfg.ReconnectMaxWait = 30 * time.Second
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 100
	}

	c := &Conn{
		url:           config.URL,
		framer:        config.Framer,
		cfg:           cfg,
		logger:        config.Logger,
		subscribeCh:   make(chan subscribeIntent),
		unsubscribeCh: make(chan unsubscribeIntent, 16),
		events:        make(chan socketEvent, 8),
		frames:        make(chan inboundFrame, 256),
		closing:       make(chan struct{}),
		done:          make(chan struct{}),
	}

	gate := make(chan struct{})
	c.openGate.Store(&gate)
	c.state.Store(StateConnecting)

	go c.run(uuid.New())
	return c, nil
}

// State returns the connection state. It may lag the run loop by one
// transition.
func (c *Conn) State() ConnState {
	return c.state.Load()
}

// WaitOpen blocks until the connection completes a handshake, the context
// ends, or the connection closes.
func (c *Conn) WaitOpen(ctx context.Context) error {
	for {
		gate := c.openGate.Load()
		switch c.state.Load() {
		case StateOpen:
			return nil
		case StateClosed:
			return core.ErrStreamClosed
		}
		select {
		case <-*gate:
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return core.ErrStreamClosed
		}
	}
}

// Subscribe registers interest in a topic and returns the delivery
// channel. The first subscriber for a topic triggers the wire subscribe;
// when the connection is not open yet, the frame is sent on the next
// successful handshake instead. The channel is closed on Unsubscribe or
// when the connection closes.
func (c *Conn) Subscribe(ctx context.Context, topic string) (SubID, <-chan core.Message, error) {
	ch := make(chan core.Message, c.cfg.BufferSize)
	in := subscribeIntent{topic: topic, ch: ch, reply: make(chan subscribeReply, 1)}

	select {
	case c.subscribeCh <- in:
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case <-c.done:
		return 0, nil, core.ErrStreamClosed
	}

	select {
	case reply := <-in.reply:
		if reply.err != nil {
			return 0, nil, reply.err
		}
		return reply.id, ch, nil
	case <-ctx.Done():
		// The run loop may have registered the subscription already.
		select {
		case reply := <-in.reply:
			if reply.err == nil {
				c.Unsubscribe(reply.id)
			}
		default:
		}
		return 0, nil, ctx.Err()
	case <-c.done:
		return 0, nil, core.ErrStreamClosed
	}
}

// Unsubscribe drops one registration. The last registration for a topic
// triggers the wire unsubscribe. The delivery channel is closed by the
// run loop.
func (c *Conn) Unsubscribe(id SubID) {
	select {
	case c.unsubscribeCh <- unsubscribeIntent{id: id}:
	case <-c.done:
	}
}

// Close shuts the connection down permanently and waits for the run loop
// to finish. Every delivery channel is closed so consumers observe
// end-of-stream. Close is idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closing)
	})
	<-c.done
	return nil
}

// run owns the socket, the registry and the state machine. Nothing else
// touches them.
func (c *Conn) run(gen uuid.UUID) {
	defer close(c.done)

	reg := newRegistry()

	var (
		socket      *gws.Conn
		current     = gen
		attempt     int
		everOpened  bool
		lastInbound time.Time

		reconnectC <-chan time.Time
		refreshC   <-chan time.Time
		heartbeat  *time.Ticker
		heartbeatC <-chan time.Time
	)

	stopTimers := func() {
		if heartbeat != nil {
			heartbeat.Stop()
			heartbeat = nil
			heartbeatC = nil
		}
		refreshC = nil
	}

	// scheduleRedial tears the current socket down, rotates the
	// generation so late events from it are ignored, and arms the
	// backoff timer.
	scheduleRedial := func() {
		stopTimers()
		if socket != nil {
			_ = socket.NetConn().Close()
			socket = nil
		}
		current = uuid.Nil
		if everOpened {
			gate := make(chan struct{})
			c.openGate.Store(&gate)
			c.state.Store(StateReconnecting)
		}
		wait := backoffWait(c.cfg.ReconnectBaseWait, c.cfg.ReconnectMaxWait, attempt)
		c.logger.Info().
			Dur("wait", wait).
			Int("attempt", attempt+1).
			Str("url", c.url).
			Msg("scheduling reconnect")
		attempt++
		reconnectC = time.After(wait)
	}

	go c.dial(current)

	for {
		select {
		case <-c.closing:
			stopTimers()
			if socket != nil {
				_ = socket.NetConn().Close()
			}
			reg.closeAll()
			c.state.Store(StateClosed)
			return

		case in := <-c.subscribeCh:
			id, first := reg.add(in.topic, in.ch)
			if first && socket != nil {
				frame, err := c.framer.SubscribeFrame(in.topic)
				if err != nil {
					reg.remove(id)
					in.reply <- subscribeReply{err: err}
					continue
				}
				in.reply <- subscribeReply{id: id}
				c.logger.Debug().Str("topic", in.topic).Msg("subscribing")
				if err := socket.WriteMessage(gws.OpcodeText, frame); err != nil {
					c.logger.Warn().Err(err).Str("topic", in.topic).Msg("subscribe write failed")
					scheduleRedial()
				}
				continue
			}
			in.reply <- subscribeReply{id: id}

		case in := <-c.unsubscribeCh:
			topic, ch, last, ok := reg.remove(in.id)
			if !ok {
				continue
			}
			close(ch)
			if last && socket != nil {
				if err := c.writeUnsubscribe(socket, topic); err != nil {
					c.logger.Warn().Err(err).Str("topic", topic).Msg("unsubscribe write failed")
					scheduleRedial()
				}
			}

		case ev := <-c.events:
			switch ev.kind {
			case eventDialed:
				if ev.gen != current {
					_ = ev.socket.NetConn().Close()
					continue
				}
				socket = ev.socket
				if err := c.openSocket(socket, reg); err != nil {
					c.logger.Warn().Err(err).Msg("connection setup failed")
					scheduleRedial()
					continue
				}
				everOpened = true
				attempt = 0
				lastInbound = time.Now()
				c.state.Store(StateOpen)
				close(*c.openGate.Load())
				if interval := c.heartbeatInterval(); interval > 0 {
					heartbeat = time.NewTicker(interval)
					heartbeatC = heartbeat.C
				}
				if c.cfg.RefreshAfter > 0 {
					refreshC = time.After(c.cfg.RefreshAfter)
				}
				c.logger.Info().Str("url", c.url).Msg("websocket connected")

			case eventDialFailed:
				if ev.gen != current {
					continue
				}
				c.logger.Warn().Err(ev.err).Str("url", c.url).Msg("websocket connect failed")
				scheduleRedial()

			case eventSocketClosed:
				if ev.gen != current {
					continue
				}
				c.logger.Warn().Err(ev.err).Str("url", c.url).Msg("websocket disconnected")
				scheduleRedial()
			}

		case f := <-c.frames:
			if f.gen != current {
				continue
			}
			lastInbound = time.Now()
			if f.control {
				continue
			}
			c.dispatch(reg, f.payload)

		case now := <-heartbeatC:
			if socket == nil {
				continue
			}
			if c.cfg.IdleTimeout > 0 && now.Sub(lastInbound) >= c.cfg.IdleTimeout {
				c.logger.Warn().
					Dur("idle", now.Sub(lastInbound)).
					Msg("idle timeout, forcing reconnect")
				scheduleRedial()
				continue
			}
			if c.cfg.PingInterval > 0 && now.Sub(lastInbound) >= c.cfg.PingInterval {
				if err := c.writePing(socket); err != nil {
					c.logger.Warn().Err(err).Msg("ping write failed")
					scheduleRedial()
				}
			}

		case <-refreshC:
			refreshC = nil
			if socket == nil {
				continue
			}
			c.logger.Info().Dur("after", c.cfg.RefreshAfter).Msg("refreshing connection")
			scheduleRedial()

		case <-reconnectC:
			reconnectC = nil
			current = uuid.New()
			go c.dial(current)
		}
	}
}

// dial performs one handshake attempt and then pumps the socket's read
// loop until it dies. Outcomes are reported to the run loop tagged with
// the attempt's generation.
func (c *Conn) dial(gen uuid.UUID) {
	handler := &eventHandler{conn: c, gen: gen, deadline: c.readDeadline()}
	socket, _, err := gws.NewClient(handler, &gws.ClientOption{
		Addr:             c.url,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	})
	if err != nil {
		c.sendEvent(socketEvent{gen: gen, kind: eventDialFailed, err: err})
		return
	}
	if !c.sendEvent(socketEvent{gen: gen, kind: eventDialed, socket: socket}) {
		_ = socket.NetConn().Close()
		return
	}
	socket.ReadLoop()
}

// openSocket sends the framer's open frames and replays every subscribed
// topic in first-added order. The connection is not observable as open
// until this completes.
func (c *Conn) openSocket(socket *gws.Conn, reg *registry) error {
	for _, frame := range c.framer.OpenFrames() {
		if err := socket.WriteMessage(gws.OpcodeText, frame); err != nil {
			return fmt.Errorf("write open frame: %w", err)
		}
	}
	for _, topic := range reg.topics() {
		frame, err := c.framer.SubscribeFrame(topic)
		if err != nil {
			return fmt.Errorf("build subscribe frame for %s: %w", topic, err)
		}
		c.logger.Debug().Str("topic", topic).Msg("replaying subscription")
		if err := socket.WriteMessage(gws.OpcodeText, frame); err != nil {
			return fmt.Errorf("replay subscribe for %s: %w", topic, err)
		}
	}
	return nil
}

func (c *Conn) writeUnsubscribe(socket *gws.Conn, topic string) error {
	frame, err := c.framer.UnsubscribeFrame(topic)
	if err != nil {
		return fmt.Errorf("build unsubscribe frame for %s: %w", topic, err)
	}
	c.logger.Debug().Str("topic", topic).Msg("unsubscribing")
	return socket.WriteMessage(gws.OpcodeText, frame)
}

func (c *Conn) writePing(socket *gws.Conn) error {
	if frame := c.framer.PingFrame(); frame != nil {
		return socket.WriteMessage(gws.OpcodeText, frame)
	}
	return socket.WritePing(nil)
}

// dispatch classifies one payload frame and fans it out to the topic's
// delivery channels. Sends never block: a full buffer drops the message
// for that subscriber only.
func (c *Conn) dispatch(reg *registry, payload []byte) {
	in := c.framer.Classify(payload)
	switch in.Kind {
	case core.KindPong, core.KindAck:
		return
	case core.KindError:
		c.logger.Warn().Str("payload", string(in.Payload)).Msg("stream error frame")
		return
	}

	subs := reg.channels(in.Topic)
	if len(subs) == 0 {
		c.logger.Debug().Str("topic", in.Topic).Msg("unmatched frame, dropping")
		return
	}

	msg := core.Message{Topic: in.Topic, Payload: in.Payload}
	for _, sub := range subs {
		select {
		case sub.ch <- msg:
		default:
			c.logger.Warn().Str("topic", in.Topic).Msg("delivery buffer full, dropping message")
		}
	}
}

func (c *Conn) heartbeatInterval() time.Duration {
	if c.cfg.PingInterval > 0 {
		return c.cfg.PingInterval
	}
	return c.cfg.IdleTimeout
}

// readDeadline is the transport-level read deadline refreshed on every
// inbound frame. Zero disables it.
func (c *Conn) readDeadline() time.Duration {
	if c.cfg.IdleTimeout > 0 {
		return c.cfg.IdleTimeout
	}
	if c.cfg.PingInterval > 0 {
		return 2 * c.cfg.PingInterval
	}
	return 0
}

func (c *Conn) sendEvent(ev socketEvent) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *Conn) sendFrame(f inboundFrame) {
	select {
	case c.frames <- f:
	case <-c.done:
	}
}

// backoffWait is the reconnect delay for one attempt: the base doubled
// per attempt, capped at max.
func backoffWait(base, max time.Duration, attempt int) time.Duration {
	if attempt > 30 {
		return max
	}
	wait := base << uint(attempt)
	if wait > max {
		return max
	}
	return wait
}

// eventHandler adapts gws callbacks into run loop events. Apart from
// answering protocol pings and refreshing the read deadline it does no
// work of its own.
type eventHandler struct {
	conn     *Conn
	gen      uuid.UUID
	deadline time.Duration
}

func (h *eventHandler) OnOpen(socket *gws.Conn) {
	h.refresh(socket)
}

func (h *eventHandler) OnClose(socket *gws.Conn, err error) {
	h.conn.sendEvent(socketEvent{gen: h.gen, kind: eventSocketClosed, err: err})
}

func (h *eventHandler) OnPing(socket *gws.Conn, payload []byte) {
	h.refresh(socket)
	_ = socket.WritePong(payload)
	h.conn.sendFrame(inboundFrame{gen: h.gen, control: true})
}

func (h *eventHandler) OnPong(socket *gws.Conn, payload []byte) {
	h.refresh(socket)
	h.conn.sendFrame(inboundFrame{gen: h.gen, control: true})
}

func (h *eventHandler) OnMessage(socket *gws.Conn, message *gws.Message) {
	h.refresh(socket)

	// gws recycles message buffers after Close, so the payload must be
	// copied before it crosses the channel.
	payload := make([]byte, len(message.Bytes()))
	copy(payload, message.Bytes())
	message.Close()

	if len(payload) == 0 {
		return
	}
	h.conn.sendFrame(inboundFrame{gen: h.gen, payload: payload})
}

func (h *eventHandler) refresh(socket *gws.Conn) {
	if h.deadline > 0 {
		_ = socket.SetDeadline(time.Now().Add(h.deadline))
	}
}
