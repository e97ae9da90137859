// SPDX-License-Identifier: MIT

package registry

import (
	"sync"

	"github.com/nostrpool/nostrpool/model"
)

type (
	// MetadataUpdate is one applied profile-metadata change.
	MetadataUpdate struct {
		Content   *model.ProfileMetadataContent
		Author    string
		CreatedAt model.Timestamp
	}

	// Metadata projects verified kind-0 events into the current profile
	// metadata per author, last-write-wins by event timestamp.
	Metadata struct {
		data     map[string]*MetadataUpdate
		watchers map[uint64]*watcher[*MetadataUpdate]
		seq      uint64
		mx       sync.Mutex
	}
)

func NewMetadata() *Metadata {
	return &Metadata{
		data:     make(map[string]*MetadataUpdate),
		watchers: make(map[uint64]*watcher[*MetadataUpdate]),
	}
}

// Apply upserts a verified profile-metadata event. Non kind-0 events, stale
// updates and unparseable content are ignored.
func (m *Metadata) Apply(event *model.Event) {
	if event.Kind != model.KindProfileMetadata {
		return
	}
	content, err := model.ParseProfileMetadata(event)
	if err != nil {
		return
	}
	m.mx.Lock()
	if stored, found := m.data[event.PubKey]; found && stored.CreatedAt >= event.CreatedAt {
		m.mx.Unlock()

		return
	}
	update := &MetadataUpdate{Author: event.PubKey, CreatedAt: event.CreatedAt, Content: content}
	m.data[event.PubKey] = update
	for _, w := range m.watchers {
		if w.author == event.PubKey {
			w.notify(update)
		}
	}
	m.mx.Unlock()
}

// Get returns a copy of the author's current profile metadata, or false.
func (m *Metadata) Get(author string) (model.ProfileMetadataContent, bool) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if stored, found := m.data[author]; found {
		return *stored.Content, true
	}

	return model.ProfileMetadataContent{}, false
}

// Watch streams metadata updates for one author, replay-then-live: current
// state first (if any), then every subsequent newer update.
func (m *Metadata) Watch(author string) (<-chan *MetadataUpdate, func()) {
	w := &watcher[*MetadataUpdate]{ch: make(chan *MetadataUpdate, watchBuffer), done: make(chan struct{}), author: author}
	m.mx.Lock()
	id := m.seq
	m.seq++
	m.watchers[id] = w
	if stored, found := m.data[author]; found {
		w.notify(stored)
	}
	m.mx.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(w.done)
			m.mx.Lock()
			delete(m.watchers, id)
			m.mx.Unlock()
			close(w.ch)
		})
	}

	return w.ch, cancel
}
