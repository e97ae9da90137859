// SPDX-License-Identifier: MIT

package relay

import (
	"log"
	"sync"

	"github.com/nostrpool/nostrpool/model"
)

type (
	// Subscription is one live filter bound to a connection. Its filter's
	// since bound only ever ratchets upward: every observed event raises it
	// to max(current, created_at), so the re-REQ after a reconnect never
	// redelivers events the listener already saw.
	Subscription struct {
		conn      *Connection
		ch        chan Message
		done      chan struct{}
		id        string
		filter    model.Filter // guarded by conn.mx
		closeOnce sync.Once
	}
)

func (s *Subscription) ID() string {
	return s.id
}

// Messages delivers verified EVENT and EOSE frames for this subscription,
// in relay send order. The channel is closed on cancellation.
func (s *Subscription) Messages() <-chan Message {
	return s.ch
}

// Filter returns a snapshot of the current (ratcheted) filter.
func (s *Subscription) Filter() model.Filter {
	s.conn.mx.Lock()
	defer s.conn.mx.Unlock()

	return s.filter
}

// Close cancels the subscription: delivery stops immediately, the CLOSE
// control message goes out best-effort in the background. Other
// subscriptions on the same connection are unaffected. Idempotent.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.mx.Lock()
		delete(s.conn.subs, s.id)
		s.conn.mx.Unlock()
		close(s.ch)
		log.Printf("unsub %v %v", s.id, s.conn.url)
		go s.sendClose()
	})
}

func (s *Subscription) ratchetLocked(createdAt model.Timestamp) {
	if s.filter.Since == nil || *s.filter.Since < createdAt {
		since := createdAt
		s.filter.Since = &since
	}
}

// deliverLocked blocks on a full buffer (backpressure on the read loop) but
// never outlives the connection: Close must be able to take c.mx even when
// the consumer stopped draining.
func (s *Subscription) deliverLocked(msg Message) {
	select {
	case s.ch <- msg:
	case <-s.done:
	case <-s.conn.closed:
	}
}

// completeLocal ends delivery without a CLOSE message; used when the whole
// connection is torn down and the socket is gone anyway.
func (s *Subscription) completeLocal() {
	s.closeOnce.Do(func() {
		close(s.done)
		close(s.ch)
	})
}

func (s *Subscription) sendClose() {
	msg, err := model.CloseMessage(s.id)
	if err != nil {
		return
	}
	// The connection may already be down; cancellation succeeded regardless.
	_ = s.conn.Send(msg)
}
