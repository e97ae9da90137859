// SPDX-License-Identifier: MIT

package relay

import (
	"context"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gobwas/ws"
	"github.com/nbd-wtf/go-nostr"

	"github.com/nostrpool/nostrpool/model"
)

type (
	// fakeConn is an in-memory relay socket: frames pushed via serverSend
	// come out of ReadMessage, everything written by the engine is recorded.
	fakeConn struct {
		inbound   chan []byte
		closed    chan struct{}
		sent      [][]byte
		mx        sync.Mutex
		closeOnce sync.Once
	}

	// fakeDialer hands out one fakeConn per dial and can be told to fail
	// dials for specific urls.
	fakeDialer struct {
		conns   map[string][]*fakeConn
		failing map[string]error
		dials   int
		mx      sync.Mutex
	}
)

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(map[string][]*fakeConn), failing: make(map[string]error)}
}

func (d *fakeDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.dials++
	if err, found := d.failing[url]; found {
		return nil, err
	}
	conn := &fakeConn{inbound: make(chan []byte, 256), closed: make(chan struct{})}
	d.conns[url] = append(d.conns[url], conn)

	return conn, nil
}

func (d *fakeDialer) failWith(url string, err error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err == nil {
		delete(d.failing, url)
	} else {
		d.failing[url] = err
	}
}

func (d *fakeDialer) dialCount() int {
	d.mx.Lock()
	defer d.mx.Unlock()

	return d.dials
}

func (d *fakeDialer) connCount(url string) int {
	d.mx.Lock()
	defer d.mx.Unlock()

	return len(d.conns[url])
}

// latest returns the most recent socket dialed for url, or nil.
func (d *fakeDialer) latest(url string) *fakeConn {
	d.mx.Lock()
	defer d.mx.Unlock()
	if len(d.conns[url]) == 0 {
		return nil
	}

	return d.conns[url][len(d.conns[url])-1]
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.inbound:
		return int(ws.OpText), data, nil
	case <-c.closed:
		return 0, nil, errors.Wrap(io.EOF, "connection closed")
	}
}

func (c *fakeConn) WriteMessage(opCode int, data []byte) error {
	select {
	case <-c.closed:
		return errors.Wrap(io.ErrClosedPipe, "connection closed")
	default:
	}
	c.mx.Lock()
	defer c.mx.Unlock()
	c.sent = append(c.sent, append([]byte(nil), data...))

	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })

	return nil
}

func (c *fakeConn) serverSend(data []byte) {
	c.inbound <- data
}

func (c *fakeConn) sentFrames() [][]byte {
	c.mx.Lock()
	defer c.mx.Unlock()

	return append([][]byte(nil), c.sent...)
}

func helperEventFrame(subID string, event *model.Event) []byte {
	ev := event.Event
	ev.ID = event.GetID()
	envelope := nostr.EventEnvelope{SubscriptionID: &subID, Event: ev}
	data, err := envelope.MarshalJSON()
	if err != nil {
		panic(err)
	}

	return data
}
