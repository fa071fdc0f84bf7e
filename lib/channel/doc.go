// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package channel defines channel identity and the call contract shared
// by the host and client contexts.
//
// A channel is identified by a plain string id; the id is the wire
// contract, and two builds interoperate only if they agree on it. Go
// type parameters on [MessageChannel] and [RequestChannel] carry the
// payload types at compile time only. At runtime two descriptors with
// the same id are the same channel, and descriptors hold no live
// resources, so they can be declared once as package-level values and
// shared freely:
//
//	var BuildVersion = channel.Request[channel.Empty, string]("build-version")
//
// Message channels are fire-and-forget and multicast: any number of
// [MessageListener] values (with distinct ids) may handle one channel,
// and [Send] never fails because nobody is listening. Request channels
// have exactly one responder system-wide; [Call] fails with a
// [*NoResponderError] when none is enlisted and with a
// [*MultipleRespondersError] when the transport discovers more than one.
//
// Handlers registered here are transport-agnostic: a listener's
// Handler receives the encoded payload and decodes it with the
// channel's declared type. The transport package moves the bytes.
package channel
