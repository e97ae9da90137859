// SPDX-License-Identifier: MIT

package relay

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"

	"github.com/nostrpool/nostrpool/model"
	"github.com/nostrpool/nostrpool/pool"
)

type (
	// Client deduplicates relay connections process-wide: one Connection per
	// url, shared by reference counting, dialed on first acquire and torn
	// down asynchronously when the last holder releases it.
	Client struct {
		connections *pool.Shared[string, *Connection]
	}
)

func NewClient(dialer Dialer) *Client {
	if dialer == nil {
		dialer = NewWebsocketDialer()
	}

	return &Client{
		connections: pool.NewShared(
			func(ctx context.Context, url string) (*Connection, error) {
				conn := NewConnection(url, dialer)
				if err := conn.Open(ctx); err != nil {
					return nil, err
				}

				return conn, nil
			},
			func(conn *Connection) { conn.Close() },
		),
	}
}

// GetConnection returns the shared connection for url. The caller must call
// release on every exit path; release never blocks on teardown.
func (c *Client) GetConnection(ctx context.Context, url string) (*Connection, func(), error) {
	return c.connections.Acquire(ctx, NormalizeURL(url))
}

// Subscribe acquires the shared connection for url and binds the filter to
// it. Cancelling the returned subscription also drops the connection ref.
func (c *Client) Subscribe(ctx context.Context, url string, filter model.Filter) (*Subscription, func(), error) {
	conn, release, err := c.GetConnection(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	sub := conn.Subscribe(filter)
	var once sync.Once

	return sub, func() {
		once.Do(func() {
			sub.Close()
			release()
		})
	}, nil
}

// PublishEvent fans the signed event out to every url concurrently and
// collects the per-url failures. One unreachable relay never blocks
// delivery to the others; an empty result means every relay accepted the
// write.
func (c *Client) PublishEvent(ctx context.Context, event *model.Event, urls []string) []error {
	var (
		wg   sync.WaitGroup
		mx   sync.Mutex
		mErr *multierror.Error
	)
	for _, url := range urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			if err := c.publishOne(ctx, event, url); err != nil {
				mx.Lock()
				mErr = multierror.Append(mErr, errors.Wrapf(err, "failed to publish event to %q", url))
				mx.Unlock()
			}
		}(url)
	}
	wg.Wait()
	if mErr == nil {
		return nil
	}

	return mErr.Errors
}

func (c *Client) publishOne(ctx context.Context, event *model.Event, url string) error {
	conn, release, err := c.GetConnection(ctx, url)
	if err != nil {
		return err
	}
	defer release()

	return conn.Publish(event)
}

// NormalizeURL canonicalizes a relay url so that equivalent spellings share
// one connection.
func NormalizeURL(url string) string {
	return strings.TrimRight(strings.TrimSpace(url), "/")
}
