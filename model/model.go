// SPDX-License-Identifier: MIT

package model

import (
	"github.com/cockroachdb/errors"
	"github.com/nbd-wtf/go-nostr"
)

type (
	TagMap    = nostr.TagMap
	Tag       = nostr.Tag
	Tags      = nostr.Tags
	Timestamp = nostr.Timestamp
	Kind      = int
	Filter    = nostr.Filter
	Filters   = nostr.Filters
	Envelope  interface {
		nostr.Envelope
	}
)

var (
	ErrInvalidSignature = errors.New("invalid event signature")
	ErrInvalidID        = errors.New("event id does not match content")
)

const (
	KindProfileMetadata Kind = 0
	KindTextNote        Kind = 1
	KindRecommendRelay  Kind = 2
	KindContacts        Kind = 3
)

const (
	TagEventRef  = "e"
	TagPubkeyRef = "p"
)
