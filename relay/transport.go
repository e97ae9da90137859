// SPDX-License-Identifier: MIT

package relay

import (
	"context"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gobwas/ws"
)

type (
	websocketDialer struct{}

	websocketConn struct {
		conn    io.ReadWriteCloser
		r       io.Reader
		writeMx sync.Mutex
	}
)

// NewWebsocketDialer dials relays over websocket (gobwas/ws client side).
func NewWebsocketDialer() Dialer {
	return &websocketDialer{}
}

func (*websocketDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	conn, br, _, err := ws.DefaultDialer.Dial(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial relay %q", url)
	}
	var r io.Reader = conn
	if br != nil {
		// The relay pushed data right after the handshake; it sits buffered
		// in br and must be drained before reading the socket itself.
		r = io.MultiReader(br, conn)
	}

	return &websocketConn{conn: conn, r: r}, nil
}

// ReadMessage returns the next complete data message, transparently replying
// to pings and reassembling fragmented frames.
func (w *websocketConn) ReadMessage() (int, []byte, error) {
	var msg []byte
	var op ws.OpCode
	for {
		hdr, err := ws.ReadHeader(w.r)
		if err != nil {
			return 0, nil, errors.Wrap(err, "failed to read websocket frame header")
		}
		payload := make([]byte, hdr.Length)
		if _, err = io.ReadFull(w.r, payload); err != nil {
			return 0, nil, errors.Wrap(err, "failed to read websocket frame payload")
		}
		if hdr.Masked {
			ws.Cipher(payload, hdr.Mask, 0)
		}
		switch hdr.OpCode {
		case ws.OpClose:
			return 0, nil, errors.Wrap(io.EOF, "close frame received")
		case ws.OpPing:
			if err = w.writeFrame(ws.NewPongFrame(payload)); err != nil {
				return 0, nil, err
			}

			continue
		case ws.OpPong:
			continue
		case ws.OpContinuation:
		default:
			op = hdr.OpCode
		}
		msg = append(msg, payload...)
		if hdr.Fin {
			return int(op), msg, nil
		}
	}
}

func (w *websocketConn) WriteMessage(opCode int, data []byte) error {
	return w.writeFrame(ws.NewFrame(ws.OpCode(opCode), true, data))
}

// writeFrame holds the write lock for the whole frame so pong replies from
// the read loop never interleave with outbound REQ/CLOSE/EVENT frames.
func (w *websocketConn) writeFrame(frame ws.Frame) error {
	w.writeMx.Lock()
	defer w.writeMx.Unlock()

	return errors.Wrap(ws.WriteFrame(w.conn, ws.MaskFrame(frame)), "failed to write websocket frame")
}

func (w *websocketConn) Close() error {
	return errors.Wrap(w.conn.Close(), "failed to close websocket")
}
