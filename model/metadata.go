// SPDX-License-Identifier: MIT

package model

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

type (
	// ProfileMetadataContent is the json payload of a kind-0 event (nip-01, nip-24).
	ProfileMetadataContent struct {
		Name        string `json:"name,omitempty"`
		About       string `json:"about,omitempty"`
		Picture     string `json:"picture,omitempty"`
		DisplayName string `json:"display_name,omitempty"`
		Website     string `json:"website,omitempty"`
		Banner      string `json:"banner,omitempty"`
		NIP05       string `json:"nip05,omitempty"`
		Bot         bool   `json:"bot,omitempty"`
	}
)

var ErrWrongEventParams = errors.New("wrong event params")

func ParseProfileMetadata(e *Event) (*ProfileMetadataContent, error) {
	if e.Kind != KindProfileMetadata {
		return nil, errors.Wrapf(ErrWrongEventParams, "kind %v is not profile metadata", e.Kind)
	}
	var content ProfileMetadataContent
	if err := json.Unmarshal([]byte(e.Content), &content); err != nil {
		return nil, errors.Wrapf(ErrWrongEventParams, "nip-01,nip-24: wrong json fields for: %+v", e)
	}

	return &content, nil
}
