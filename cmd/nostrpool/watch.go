// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nostrpool/nostrpool/model"
	"github.com/nostrpool/nostrpool/registry"
	"github.com/nostrpool/nostrpool/relay"
)

var (
	watchPubkey string
	watchCmd    = &cobra.Command{
		Use:   "watch",
		Short: "follow an author's profile metadata and contact list across the configured read relays",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			pubkey, err := decodeKey(watchPubkey)
			if err != nil {
				log.Panic(err)
			}
			watch(ctx, mustConfig(), pubkey)
		},
	}
)

func init() {
	watchCmd.Flags().StringVar(&watchPubkey, "pubkey", "", "author public key (hex or npub)")
	if err := watchCmd.MarkFlagRequired("pubkey"); err != nil {
		log.Panic(err)
	}
}

func watch(ctx context.Context, conf *config, pubkey string) {
	client := relay.NewClient(nil)
	contacts := registry.NewContacts()
	metadata := registry.NewMetadata()

	filters := []model.Filter{
		{Authors: []string{pubkey}, Kinds: []int{model.KindProfileMetadata}},
		{Authors: []string{pubkey}, Kinds: []int{model.KindContacts}},
		{Kinds: []int{model.KindContacts}, Tags: model.TagMap{model.TagPubkeyRef: []string{pubkey}}},
	}
	for _, raw := range conf.ExtraFilters {
		extra, pErr := model.ParseFilter([]byte(raw))
		if pErr != nil {
			log.Printf("WARN: skipping extra filter %v: %v", raw, pErr)

			continue
		}
		filters = append(filters, extra)
	}

	var wg sync.WaitGroup
	cancels := make([]func(), 0, len(conf.ReadRelays)*len(filters))
	for _, url := range conf.ReadRelays {
		for _, filter := range filters {
			sub, cancel, err := client.Subscribe(ctx, url, filter)
			if err != nil {
				log.Printf("ERROR: failed to subscribe on %v: %v", url, err)

				continue
			}
			cancels = append(cancels, cancel)
			wg.Add(1)
			go func(sub *relay.Subscription) {
				defer wg.Done()
				for msg := range sub.Messages() {
					if msg.Type != model.EnvelopeTypeEvent {
						continue
					}
					contacts.Apply(msg.Event)
					metadata.Apply(msg.Event)
				}
			}(sub)
		}
	}

	contactUpdates, cancelContacts := contacts.Watch(pubkey)
	defer cancelContacts()
	metadataUpdates, cancelMetadata := metadata.Watch(pubkey)
	defer cancelMetadata()

	for {
		select {
		case <-ctx.Done():
			for _, cancel := range cancels {
				cancel()
			}
			wg.Wait()

			return
		case event := <-contactUpdates:
			follows := 0
			for _, tag := range event.Tags {
				if tag.Key() == model.TagPubkeyRef {
					follows++
				}
			}
			log.Printf("contacts %v: %v follows, %v followers", event.PubKey, follows, len(contacts.Followers(pubkey)))
		case update := <-metadataUpdates:
			log.Printf("metadata %v: name=%q about=%q", update.Author, update.Content.Name, update.Content.About)
		}
	}
}
