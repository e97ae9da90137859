// SPDX-License-Identifier: MIT

package relay

import (
	"context"
	"log"
	"strconv"
	"sync"
	stdlibtime "time"

	"github.com/gobwas/ws"
	"github.com/gookit/goutil/errorx"
	"github.com/nbd-wtf/go-nostr"

	"github.com/nostrpool/nostrpool/model"
)

type (
	// Connection owns one socket to one relay. It reconnects forever with a
	// fixed delay, verifies every inbound event before any consumer sees it,
	// and demultiplexes EVENT/EOSE frames to per-subscription listeners.
	// Close is the only terminal transition.
	Connection struct {
		dialer         Dialer
		conn           Conn
		subs           map[string]*Subscription
		listeners      map[uint64]*listener
		closed         chan struct{}
		loopDone       chan struct{}
		redialCtx      context.Context
		redialCancel   context.CancelFunc
		url            string
		subSeq         uint64
		listenerSeq    uint64
		reconnectDelay stdlibtime.Duration
		opened         bool
		mx             sync.Mutex
		closeOnce      sync.Once
	}

	// listener observes every verified inbound envelope, EVENT included.
	listener struct {
		ch   chan model.Envelope
		done chan struct{}
		stop sync.Once
	}
)

func NewConnection(url string, dialer Dialer) *Connection {
	redialCtx, redialCancel := context.WithCancel(context.Background())

	return &Connection{
		dialer:         dialer,
		url:            url,
		subs:           make(map[string]*Subscription),
		listeners:      make(map[uint64]*listener),
		closed:         make(chan struct{}),
		loopDone:       make(chan struct{}),
		redialCtx:      redialCtx,
		redialCancel:   redialCancel,
		reconnectDelay: reconnectDelay,
	}
}

// Open dials the relay once, synchronously, then hands the socket to the
// read/reconnect loop. A failed first dial is surfaced to the caller; every
// later failure is retried by the loop itself.
func (c *Connection) Open(ctx context.Context) error {
	conn, err := c.dialer.DialContext(ctx, c.url)
	if err != nil {
		return errorx.Withf(err, "failed to establish relay connection %q", c.url)
	}
	c.mx.Lock()
	c.conn = conn
	c.opened = true
	c.mx.Unlock()
	go c.loop(conn)

	return nil
}

func (c *Connection) URL() string {
	return c.url
}

func (c *Connection) loop(conn Conn) {
	defer close(c.loopDone)
	for {
		log.Printf("connected %v", c.url)
		c.readFrames(conn)
		c.mx.Lock()
		c.conn = nil
		c.mx.Unlock()
		if err := conn.Close(); err != nil {
			log.Printf("WARN: failed to close %v: %v", c.url, err)
		}
		log.Printf("disconnected %v", c.url)

		for {
			select {
			case <-c.closed:
				c.teardown()

				return
			case <-stdlibtime.After(c.reconnectDelay):
			}
			redialed, err := c.dialer.DialContext(c.redialCtx, c.url)
			if err != nil {
				select {
				case <-c.closed:
					c.teardown()

					return
				default:
				}
				log.Printf("WARN: failed to reconnect to %v: %v", c.url, err)

				continue
			}
			conn = redialed

			break
		}

		select {
		case <-c.closed:
			if err := conn.Close(); err != nil {
				log.Printf("WARN: failed to close %v: %v", c.url, err)
			}
			c.teardown()

			return
		default:
		}

		c.mx.Lock()
		c.conn = conn
		resubs := make([]*Subscription, 0, len(c.subs))
		for _, sub := range c.subs {
			resubs = append(resubs, sub)
		}
		c.mx.Unlock()
		for _, sub := range resubs {
			// Re-REQ with the ratcheted filter so already-seen events are
			// not replayed by the relay.
			if err := c.sendReq(sub); err != nil {
				log.Printf("WARN: failed to re-subscribe %v on %v: %v", sub.id, c.url, err)
			}
		}
	}
}

func (c *Connection) readFrames(conn Conn) {
	for {
		op, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				log.Printf("WARN: read failed on %v: %v", c.url, err)
			}

			return
		}
		if op != int(ws.OpText) || len(data) == 0 {
			continue
		}
		c.dispatch(data)
	}
}

// dispatch parses, verifies and fans out one frame. Malformed frames and
// events failing verification are dropped here and never observable
// downstream; an error on one frame never affects the next.
func (c *Connection) dispatch(data []byte) {
	envelope, err := model.ParseMessage(data)
	if err != nil {
		log.Printf("WARN: discarding frame from %v: %v", c.url, err)

		return
	}

	switch e := envelope.(type) {
	case *nostr.EventEnvelope:
		event := &model.Event{Event: e.Event}
		if vErr := event.Verify(); vErr != nil {
			log.Printf("WARN: dropping event from %v: %v", c.url, vErr)

			return
		}
		c.mx.Lock()
		if e.SubscriptionID != nil {
			if sub, found := c.subs[*e.SubscriptionID]; found {
				sub.ratchetLocked(event.CreatedAt)
				sub.deliverLocked(Message{Type: model.EnvelopeTypeEvent, SubscriptionID: sub.id, Event: event})
			}
		}
		c.notifyListenersLocked(envelope)
		c.mx.Unlock()
	case *nostr.EOSEEnvelope:
		subID := string(*e)
		c.mx.Lock()
		if sub, found := c.subs[subID]; found {
			sub.deliverLocked(Message{Type: model.EnvelopeTypeEOSE, SubscriptionID: sub.id})
		}
		c.notifyListenersLocked(envelope)
		c.mx.Unlock()
	default:
		// OK, NOTICE, CLOSED, AUTH: passed through unmodified.
		c.mx.Lock()
		c.notifyListenersLocked(envelope)
		c.mx.Unlock()
	}
}

func (c *Connection) notifyListenersLocked(envelope model.Envelope) {
	for _, l := range c.listeners {
		select {
		case l.ch <- envelope:
		case <-l.done:
		case <-c.closed:
		}
	}
}

// Subscribe binds the filter to this connection under a fresh subscription
// id and requests matching events. The REQ send is best-effort: when the
// socket is down the reconnect loop re-sends it on the next connect.
func (c *Connection) Subscribe(filter model.Filter) *Subscription {
	c.mx.Lock()
	subID := strconv.FormatUint(c.subSeq, 16)
	c.subSeq++
	sub := &Subscription{
		id:     subID,
		conn:   c,
		filter: filter,
		ch:     make(chan Message, subscriptionBuffer),
		done:   make(chan struct{}),
	}
	c.subs[subID] = sub
	c.mx.Unlock()

	log.Printf("sub %v %v", subID, c.url)
	if err := c.sendReq(sub); err != nil {
		log.Printf("WARN: failed to send REQ %v to %v: %v", subID, c.url, err)
	}

	return sub
}

// Listen exposes the shared verified inbound stream: every envelope of every
// type, after verification. The returned cancel unregisters the listener.
func (c *Connection) Listen() (<-chan model.Envelope, func()) {
	l := &listener{ch: make(chan model.Envelope, listenerBuffer), done: make(chan struct{})}
	c.mx.Lock()
	id := c.listenerSeq
	c.listenerSeq++
	c.listeners[id] = l
	c.mx.Unlock()

	cancel := func() {
		l.stop.Do(func() {
			close(l.done)
			c.mx.Lock()
			delete(c.listeners, id)
			c.mx.Unlock()
			close(l.ch)
		})
	}

	return l.ch, cancel
}

// Publish writes the signed event to the socket. There is no outbound
// buffering: when the relay is unreachable the caller gets ErrNotConnected
// and decides whether to retry.
func (c *Connection) Publish(event *model.Event) error {
	data, err := event.EventMessage()
	if err != nil {
		return err
	}

	return c.Send(data)
}

func (c *Connection) Send(data []byte) error {
	c.mx.Lock()
	conn := c.conn
	c.mx.Unlock()
	if conn == nil {
		return errorx.Withf(ErrNotConnected, "%v", c.url)
	}

	return conn.WriteMessage(int(ws.OpText), data)
}

func (c *Connection) sendReq(sub *Subscription) error {
	c.mx.Lock()
	req, err := model.ReqMessage(sub.id, sub.filter)
	c.mx.Unlock()
	if err != nil {
		return err
	}

	return c.Send(req)
}

// Close tears the connection down: the socket is closed, the loop ends and
// every remaining subscription and listener is completed. Idempotent.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.redialCancel()
		c.mx.Lock()
		conn := c.conn
		opened := c.opened
		c.mx.Unlock()
		if conn != nil {
			// Unblocks the read loop, which then observes c.closed.
			if err := conn.Close(); err != nil {
				log.Printf("WARN: failed to close %v: %v", c.url, err)
			}
		}
		if opened {
			<-c.loopDone
		} else {
			// Open never succeeded, there is no loop to wait for.
			c.teardown()
		}
	})
}

// teardown completes all subscriptions and listeners once the loop exits.
func (c *Connection) teardown() {
	c.mx.Lock()
	subs := c.subs
	listeners := c.listeners
	c.subs = make(map[string]*Subscription)
	c.listeners = make(map[uint64]*listener)
	c.mx.Unlock()

	for _, sub := range subs {
		sub.completeLocal()
	}
	for _, l := range listeners {
		l.stop.Do(func() {
			close(l.done)
			close(l.ch)
		})
	}
}
