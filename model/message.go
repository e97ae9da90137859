// SPDX-License-Identifier: MIT

package model

import (
	"github.com/cockroachdb/errors"
	"github.com/nbd-wtf/go-nostr"
	"github.com/tidwall/gjson"
)

type EnvelopeType string

const (
	EnvelopeTypeEvent  EnvelopeType = "EVENT"
	EnvelopeTypeReq    EnvelopeType = "REQ"
	EnvelopeTypeNotice EnvelopeType = "NOTICE"
	EnvelopeTypeEOSE   EnvelopeType = "EOSE"
	EnvelopeTypeOK     EnvelopeType = "OK"
	EnvelopeTypeAuth   EnvelopeType = "AUTH"
	EnvelopeTypeClosed EnvelopeType = "CLOSED"
	EnvelopeTypeClose  EnvelopeType = "CLOSE"
)

var (
	ErrUnknownMessage = errors.New("unknown message")
	ErrParseMessage   = errors.New("parse message")
)

// ParseMessage decodes one inbound frame. Frames that are not a json array
// with a string label are rejected with ErrUnknownMessage; the read loop
// discards those silently, per-frame.
func ParseMessage(message []byte) (Envelope, error) {
	parsed := gjson.ParseBytes(message)
	if !parsed.IsArray() {
		return nil, ErrUnknownMessage
	}
	arr := parsed.Array()
	if len(arr) == 0 || arr[0].Type != gjson.String {
		return nil, ErrUnknownMessage
	}

	e := nostr.ParseMessage(message)
	if e == nil {
		return nil, errors.Wrapf(ErrParseMessage, "label %q", arr[0].Str)
	}

	return e, nil
}

// ReqMessage renders `["REQ", subscriptionID, filter]`.
func ReqMessage(subscriptionID string, filter Filter) ([]byte, error) {
	envelope := nostr.ReqEnvelope{SubscriptionID: subscriptionID, Filters: Filters{filter}}
	data, err := envelope.MarshalJSON()

	return data, errors.Wrapf(err, "failed to serialize REQ %q", subscriptionID)
}

// CloseMessage renders `["CLOSE", subscriptionID]`.
func CloseMessage(subscriptionID string) ([]byte, error) {
	envelope := nostr.CloseEnvelope(subscriptionID)
	data, err := envelope.MarshalJSON()

	return data, errors.Wrapf(err, "failed to serialize CLOSE %q", subscriptionID)
}
