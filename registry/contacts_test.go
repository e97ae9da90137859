// SPDX-License-Identifier: MIT

package registry

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nostrpool/nostrpool/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func helperContactsEvent(t *testing.T, secretKey string, createdAt model.Timestamp, follows ...string) *model.Event {
	t.Helper()

	ev := &model.Event{Event: nostr.Event{Kind: model.KindContacts, CreatedAt: createdAt}}
	for _, follow := range follows {
		ev.AddPubkeyRef(follow)
	}
	require.NoError(t, ev.Sign(secretKey))

	return ev
}

func TestContactsLastWriteWins(t *testing.T) {
	t.Parallel()

	secretKey := nostr.GeneratePrivateKey()
	contacts := NewContacts()

	current := helperContactsEvent(t, secretKey, 5, "bob")
	contacts.Apply(current)
	author := current.PubKey

	t.Run("StaleUpdateIgnored", func(t *testing.T) {
		contacts.Apply(helperContactsEvent(t, secretKey, 3, "mallory"))
		stored := contacts.Get(author)
		require.NotNil(t, stored)
		require.Equal(t, model.Timestamp(5), stored.CreatedAt)
		require.True(t, stored.References(model.TagPubkeyRef, "bob"))
		require.False(t, stored.References(model.TagPubkeyRef, "mallory"))
	})
	t.Run("EqualTimestampIgnored", func(t *testing.T) {
		contacts.Apply(helperContactsEvent(t, secretKey, 5, "mallory"))
		require.True(t, contacts.Get(author).References(model.TagPubkeyRef, "bob"))
	})
	t.Run("NewerUpdateReplaces", func(t *testing.T) {
		contacts.Apply(helperContactsEvent(t, secretKey, 7, "carol"))
		stored := contacts.Get(author)
		require.Equal(t, model.Timestamp(7), stored.CreatedAt)
		require.True(t, stored.References(model.TagPubkeyRef, "carol"))
		require.False(t, stored.References(model.TagPubkeyRef, "bob"))
	})
	t.Run("WrongKindIgnored", func(t *testing.T) {
		note := &model.Event{Event: nostr.Event{Kind: model.KindTextNote, CreatedAt: 99}}
		require.NoError(t, note.Sign(secretKey))
		contacts.Apply(note)
		require.Equal(t, model.Timestamp(7), contacts.Get(author).CreatedAt)
	})
	t.Run("UnknownAuthor", func(t *testing.T) {
		require.Nil(t, contacts.Get("unknown"))
	})
}

func TestContactsGetReturnsCopy(t *testing.T) {
	t.Parallel()

	secretKey := nostr.GeneratePrivateKey()
	contacts := NewContacts()
	contacts.Apply(helperContactsEvent(t, secretKey, 1, "bob"))
	author := contacts.Followers("bob")[0]

	mutated := contacts.Get(author)
	mutated.Content = "scribbled"
	require.Empty(t, contacts.Get(author).Content)
}

func TestContactsFollowers(t *testing.T) {
	t.Parallel()

	contacts := NewContacts()
	aliceKey := nostr.GeneratePrivateKey()
	bobKey := nostr.GeneratePrivateKey()
	caroleKey := nostr.GeneratePrivateKey()

	alice := helperContactsEvent(t, aliceKey, 1, "target", "someone")
	bob := helperContactsEvent(t, bobKey, 1, "someone")
	carole := helperContactsEvent(t, caroleKey, 1, "target")
	contacts.Apply(alice)
	contacts.Apply(bob)
	contacts.Apply(carole)

	followers := contacts.Followers("target")
	require.ElementsMatch(t, []string{alice.PubKey, carole.PubKey}, followers)
	require.Empty(t, contacts.Followers("nobody"))

	// Unfollowing is a newer list without the tag.
	contacts.Apply(helperContactsEvent(t, aliceKey, 2, "someone"))
	require.ElementsMatch(t, []string{carole.PubKey}, contacts.Followers("target"))
}

func TestContactsWatchReplayThenLive(t *testing.T) {
	t.Parallel()

	secretKey := nostr.GeneratePrivateKey()
	contacts := NewContacts()
	initial := helperContactsEvent(t, secretKey, 5, "bob")
	contacts.Apply(initial)
	author := initial.PubKey

	updates, cancel := contacts.Watch(author)
	defer cancel()

	replayed := <-updates
	require.Equal(t, model.Timestamp(5), replayed.CreatedAt)

	// A stale apply fires nothing; a newer one fires exactly once.
	contacts.Apply(helperContactsEvent(t, secretKey, 3, "mallory"))
	contacts.Apply(helperContactsEvent(t, secretKey, 7, "carol"))
	live := <-updates
	require.Equal(t, model.Timestamp(7), live.CreatedAt)
	select {
	case unexpected := <-updates:
		t.Fatalf("unexpected update %+v", unexpected)
	default:
	}
}

func TestContactsWatchScopedToAuthor(t *testing.T) {
	t.Parallel()

	contacts := NewContacts()
	aliceKey := nostr.GeneratePrivateKey()
	bobKey := nostr.GeneratePrivateKey()
	alice := helperContactsEvent(t, aliceKey, 1, "x")

	updates, cancel := contacts.Watch(alice.PubKey)
	defer cancel()

	contacts.Apply(helperContactsEvent(t, bobKey, 1, "y"))
	contacts.Apply(alice)
	got := <-updates
	require.Equal(t, alice.PubKey, got.PubKey)
	select {
	case unexpected := <-updates:
		t.Fatalf("unexpected update %+v", unexpected)
	default:
	}
}

func TestContactsWatchCancel(t *testing.T) {
	t.Parallel()

	secretKey := nostr.GeneratePrivateKey()
	contacts := NewContacts()
	event := helperContactsEvent(t, secretKey, 1, "bob")

	updates, cancel := contacts.Watch(event.PubKey)
	cancel()
	cancel() // idempotent

	_, open := <-updates
	require.False(t, open)
	contacts.Apply(event) // must not panic on the closed channel
}
