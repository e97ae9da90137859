// SPDX-License-Identifier: MIT

package model

import (
	"github.com/cockroachdb/errors"
	"github.com/mailru/easyjson"
	"github.com/nbd-wtf/go-nostr"
)

func MatchAny(ff Filters, event *Event) bool {
	for i := range ff {
		if Matches(ff[i], event) {
			return true
		}
	}

	return false
}

// Matches applies the filter against the event with the derived (never
// cached) id, so id constraints see the up-to-date identity.
func Matches(f Filter, event *Event) bool {
	ev := event.Event
	ev.ID = event.GetID()

	return f.Matches(&ev)
}

// ParseFilter decodes a single json filter object, e.g. from configuration.
func ParseFilter(data []byte) (Filter, error) {
	var f nostr.Filter
	if err := easyjson.Unmarshal(data, &f); err != nil {
		return Filter{}, errors.Wrapf(err, "failed to parse filter %s", data)
	}

	return f, nil
}
