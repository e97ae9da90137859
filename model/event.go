// SPDX-License-Identifier: MIT

package model

import (
	"github.com/cockroachdb/errors"
	"github.com/nbd-wtf/go-nostr"
)

type (
	Event struct {
		nostr.Event
	}
)

// GetID recomputes the event id from the current field values on every
// call. The embedded ID field is never consulted: an event mutated after
// signing must not serve a stale id.
func (e *Event) GetID() string {
	return e.Event.GetID()
}

func (e *Event) Sign(secretKey string) error {
	if e.Tags == nil {
		e.Tags = make(Tags, 0)
	}
	e.ID = ""

	return errors.Wrap(e.Event.Sign(secretKey), "failed to sign event")
}

// Verify recomputes the id, rejects a claimed id that does not match the
// content, and checks the schnorr signature against the declared author.
func (e *Event) Verify() error {
	if id := e.Event.GetID(); e.ID != "" && e.ID != id {
		return errors.Wrapf(ErrInvalidID, "claimed %q, computed %q", e.ID, id)
	}
	ok, err := e.Event.CheckSignature()
	if err != nil {
		return errors.Wrap(err, "failed to check event signature")
	}
	if !ok {
		return ErrInvalidSignature
	}

	return nil
}

func (e *Event) GetTag(tagName string) Tag {
	for _, tag := range e.Tags {
		if tag.Key() == tagName {
			return tag
		}
	}

	return nil
}

func (e *Event) AddEventRef(eventID string) {
	e.Tags = append(e.Tags, Tag{TagEventRef, eventID})
}

func (e *Event) AddPubkeyRef(pubkey string) {
	e.Tags = append(e.Tags, Tag{TagPubkeyRef, pubkey})
}

// References reports whether any tag with the given name carries the value.
func (e *Event) References(tagName, value string) bool {
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == tagName && tag[1] == value {
			return true
		}
	}

	return false
}

// EventMessage renders the outbound `["EVENT", {...}]` wire form. The id is
// recomputed at serialization time so in-place edits after signing are never
// masked by a cached value.
func (e *Event) EventMessage() ([]byte, error) {
	ev := e.Event
	ev.ID = e.GetID()
	envelope := nostr.EventEnvelope{Event: ev}
	data, err := envelope.MarshalJSON()

	return data, errors.Wrapf(err, "failed to serialize %+v into json", envelope)
}
