// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"log"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/spf13/cobra"

	"github.com/nostrpool/nostrpool/model"
	"github.com/nostrpool/nostrpool/relay"
)

var (
	postKey     string
	postKind    int
	postContent string
	postTags    []string
	postCmd     = &cobra.Command{
		Use:   "post",
		Short: "sign an event and publish it to the configured write relays",
		Run: func(cmd *cobra.Command, args []string) {
			post(cmd.Context(), mustConfig())
		},
	}
)

func init() {
	postCmd.Flags().StringVar(&postKey, "key", "", "author secret key (hex or nsec)")
	postCmd.Flags().IntVar(&postKind, "kind", model.KindTextNote, "event kind")
	postCmd.Flags().StringVar(&postContent, "content", "", "event content")
	postCmd.Flags().StringArrayVar(&postTags, "tag", nil, "event tag as name=value, repeatable")
	if err := postCmd.MarkFlagRequired("key"); err != nil {
		log.Panic(err)
	}
}

func post(ctx context.Context, conf *config) {
	if ctx == nil {
		ctx = context.Background()
	}
	secretKey, err := decodeKey(postKey)
	if err != nil {
		log.Panic(err)
	}

	event := &model.Event{Event: nostr.Event{
		CreatedAt: nostr.Now(),
		Kind:      postKind,
		Content:   postContent,
	}}
	for _, raw := range postTags {
		name, value, found := strings.Cut(raw, "=")
		if !found {
			log.Panicf("invalid tag %q, want name=value", raw)
		}
		event.Tags = append(event.Tags, model.Tag{name, value})
	}
	if err = event.Sign(secretKey); err != nil {
		log.Panic(err)
	}

	client := relay.NewClient(nil)
	failures := client.PublishEvent(ctx, event, conf.WriteRelays)
	for _, fErr := range failures {
		log.Printf("ERROR: %v", fErr)
	}
	if len(failures) < len(conf.WriteRelays) {
		log.Printf("published %v to %v/%v relays", event.GetID(), len(conf.WriteRelays)-len(failures), len(conf.WriteRelays))
	}
}
