// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package computed

import "github.com/bureau-foundation/ipcbridge/lib/channel"

// AdministrationChannelID is the reserved channel shared by every
// computed channel for observation announcements.
const AdministrationChannelID = "computed-channel-administration-channel"

// AdministrationChannel carries AdministrationMessages from observing
// sides to the owning side.
var AdministrationChannel = channel.Message[AdministrationMessage](AdministrationChannelID)

// Status is the observation state announced for a computed channel.
type Status string

const (
	StatusBecameObserved   Status = "became-observed"
	StatusBecameUnobserved Status = "became-unobserved"
)

// AdministrationMessage announces that ChannelID gained its first
// observer or lost its last one.
type AdministrationMessage struct {
	ChannelID string `cbor:"channelId" json:"channelId"`
	Status    Status `cbor:"status" json:"status"`
}
