// SPDX-License-Identifier: MIT

package main

import (
	"log"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/spf13/cobra"

	"github.com/nostrpool/nostrpool/cfg"
)

type (
	config struct {
		ReadRelays   []string `yaml:"readRelays" mapstructure:"readRelays"`
		WriteRelays  []string `yaml:"writeRelays" mapstructure:"writeRelays"`
		ExtraFilters []string `yaml:"extraFilters" mapstructure:"extraFilters"`
	}
)

var (
	configPath string
	nostrpool  = &cobra.Command{
		Use:   "nostrpool",
		Short: "nostr relay client: shared connections, live subscriptions, contact/profile state",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if configPath != "" {
				cfg.MustInit(configPath)
			} else {
				cfg.MustInit()
			}
		},
	}
)

func init() {
	nostrpool.PersistentFlags().StringVar(&configPath, "config", "", "path to the yaml configuration file")
	nostrpool.AddCommand(watchCmd)
	nostrpool.AddCommand(postCmd)
}

func main() {
	if err := nostrpool.Execute(); err != nil {
		log.Panic(err)
	}
}

func mustConfig() *config {
	conf := cfg.MustGet[config]()
	if len(conf.ReadRelays) == 0 && len(conf.WriteRelays) == 0 {
		log.Panic(errors.New("no relays configured"))
	}

	return conf
}

// decodeKey accepts hex as-is and decodes bech32 (npub/nsec) values.
func decodeKey(value string) (string, error) {
	if !strings.HasPrefix(value, "npub") && !strings.HasPrefix(value, "nsec") {
		return value, nil
	}
	_, decoded, err := nip19.Decode(value)
	if err != nil {
		return "", errors.Wrapf(err, "failed to decode bech32 key %q", value)
	}
	hex, ok := decoded.(string)
	if !ok {
		return "", errors.Errorf("unexpected bech32 payload in %q", value)
	}

	return hex, nil
}
