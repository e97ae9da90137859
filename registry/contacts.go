// SPDX-License-Identifier: MIT

package registry

import (
	"sync"

	"github.com/nostrpool/nostrpool/model"
)

type (
	// Contacts projects verified kind-3 events into the current contact
	// list per author, last-write-wins by event timestamp. Out-of-order
	// arrival across relays and reconnects is absorbed here: a stale update
	// is a no-op and fires no notification.
	Contacts struct {
		data     map[string]*model.Event
		watchers map[uint64]*watcher[*model.Event]
		seq      uint64
		mx       sync.Mutex
	}

	watcher[T any] struct {
		ch     chan T
		done   chan struct{}
		author string
	}
)

func NewContacts() *Contacts {
	return &Contacts{
		data:     make(map[string]*model.Event),
		watchers: make(map[uint64]*watcher[*model.Event]),
	}
}

// Apply upserts a verified contact-list event. Events of any other kind and
// updates not strictly newer than the stored one are ignored.
func (c *Contacts) Apply(event *model.Event) {
	if event.Kind != model.KindContacts {
		return
	}
	c.mx.Lock()
	if stored, found := c.data[event.PubKey]; found && stored.CreatedAt >= event.CreatedAt {
		c.mx.Unlock()

		return
	}
	stored := *event
	c.data[event.PubKey] = &stored
	// Delivered under the lock so cancellation can synchronize on it and a
	// watcher never observes updates out of apply order.
	for _, w := range c.watchers {
		if w.author == event.PubKey {
			w.notify(&stored)
		}
	}
	c.mx.Unlock()
}

// Get returns a copy of the author's current contact-list event, or nil.
func (c *Contacts) Get(author string) *model.Event {
	c.mx.Lock()
	defer c.mx.Unlock()
	if stored, found := c.data[author]; found {
		event := *stored

		return &event
	}

	return nil
}

// Followers collects the authors of every stored contact list that
// references the given pubkey with a `p` tag. A linear scan over all stored
// events: contact lists change rarely relative to reads.
func (c *Contacts) Followers(author string) []string {
	c.mx.Lock()
	defer c.mx.Unlock()
	followers := make([]string, 0)
	for _, event := range c.data {
		if event.References(model.TagPubkeyRef, author) {
			followers = append(followers, event.PubKey)
		}
	}

	return followers
}

// Watch streams contact-list updates for one author: the current state (if
// any) is delivered first, then every subsequent newer update. The returned
// cancel stops delivery and closes the channel.
func (c *Contacts) Watch(author string) (<-chan *model.Event, func()) {
	w := &watcher[*model.Event]{ch: make(chan *model.Event, watchBuffer), done: make(chan struct{}), author: author}
	c.mx.Lock()
	id := c.seq
	c.seq++
	c.watchers[id] = w
	if stored, found := c.data[author]; found {
		event := *stored
		w.notify(&event)
	}
	c.mx.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(w.done)
			c.mx.Lock()
			delete(c.watchers, id)
			c.mx.Unlock()
			close(w.ch)
		})
	}

	return w.ch, cancel
}

func (w *watcher[T]) notify(value T) {
	select {
	case w.ch <- value:
	case <-w.done:
	}
}

const watchBuffer = 16
