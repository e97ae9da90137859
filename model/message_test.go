// SPDX-License-Identifier: MIT

package model

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestParseMessage(t *testing.T) {
	t.Parallel()

	t.Run("Event", func(t *testing.T) {
		ev, _ := helperSignedEvent(t, KindTextNote, "hi", nil)
		envelope := nostr.EventEnvelope{Event: ev.Event}
		subID := "2a"
		envelope.SubscriptionID = &subID
		data, err := envelope.MarshalJSON()
		require.NoError(t, err)

		parsed, err := ParseMessage(data)
		require.NoError(t, err)
		e, ok := parsed.(*nostr.EventEnvelope)
		require.True(t, ok)
		require.Equal(t, &subID, e.SubscriptionID)
		require.Equal(t, ev.Content, e.Event.Content)
	})
	t.Run("EOSE", func(t *testing.T) {
		parsed, err := ParseMessage([]byte(`["EOSE","2a"]`))
		require.NoError(t, err)
		e, ok := parsed.(*nostr.EOSEEnvelope)
		require.True(t, ok)
		require.Equal(t, "2a", string(*e))
	})
	t.Run("Notice", func(t *testing.T) {
		parsed, err := ParseMessage([]byte(`["NOTICE","slow down"]`))
		require.NoError(t, err)
		require.Equal(t, string(EnvelopeTypeNotice), parsed.Label())
	})
	t.Run("OK", func(t *testing.T) {
		parsed, err := ParseMessage([]byte(`["OK","abcd",true,""]`))
		require.NoError(t, err)
		e, ok := parsed.(*nostr.OKEnvelope)
		require.True(t, ok)
		require.True(t, e.OK)
	})
	t.Run("Garbage", func(t *testing.T) {
		for _, frame := range []string{
			`not json at all`,
			`{"an":"object"}`,
			`42`,
			`[]`,
			`[42,"EVENT"]`,
			``,
		} {
			_, err := ParseMessage([]byte(frame))
			require.Errorf(t, err, "frame: %s", frame)
		}
	})
}

func TestReqMessage(t *testing.T) {
	t.Parallel()

	since := Timestamp(123)
	data, err := ReqMessage("1f", Filter{Kinds: []int{KindContacts}, Authors: []string{"aa"}, Since: &since})
	require.NoError(t, err)

	parsed := gjson.ParseBytes(data)
	require.True(t, parsed.IsArray())
	arr := parsed.Array()
	require.Len(t, arr, 3)
	require.Equal(t, "REQ", arr[0].Str)
	require.Equal(t, "1f", arr[1].Str)
	require.Equal(t, int64(123), arr[2].Get("since").Int())
	require.Equal(t, int64(KindContacts), arr[2].Get("kinds.0").Int())
	require.Equal(t, "aa", arr[2].Get("authors.0").Str)
}

func TestCloseMessage(t *testing.T) {
	t.Parallel()

	data, err := CloseMessage("1f")
	require.NoError(t, err)
	require.JSONEq(t, `["CLOSE","1f"]`, string(data))
}
