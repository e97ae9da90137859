// SPDX-License-Identifier: MIT

package relay

import (
	"context"
	stdlibtime "time"

	"github.com/cockroachdb/errors"

	"github.com/nostrpool/nostrpool/model"
)

type (
	// Conn is one established socket to a relay. Implementations carry text
	// frames; reads surface the opcode so the loop can skip non-text data.
	Conn interface {
		ReadMessage() (opCode int, data []byte, err error)
		WriteMessage(opCode int, data []byte) error
		Close() error
	}

	// Dialer establishes relay sockets. The production implementation rides
	// gobwas/ws; tests substitute an in-memory transport.
	Dialer interface {
		DialContext(ctx context.Context, url string) (Conn, error)
	}

	// Message is one demultiplexed frame delivered to a subscription:
	// a verified EVENT or the EOSE replay marker.
	Message struct {
		Event          *model.Event
		SubscriptionID string
		Type           model.EnvelopeType
	}
)

var ErrNotConnected = errors.New("relay is not connected")

const (
	reconnectDelay     = 1 * stdlibtime.Second
	subscriptionBuffer = 64
	listenerBuffer     = 64
)
