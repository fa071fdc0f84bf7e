// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Ipcbridge runs one side of the channel bridge.
//
// In host mode it listens on the configured socket, serves the
// build-version and resolve-system-proxy-channel request channels, and
// publishes the connected-clients computed channel to every client
// that observes it. Each accepted connection gets its own listening
// orchestrators and computed-channel publisher, torn down when the
// client disconnects.
//
// In client mode it dials the host, fetches the host's version,
// optionally asks the host to resolve a proxy (--resolve), and with
// --watch observes connected-clients until interrupted.
//
// Configuration comes from --config or IPCBRIDGE_CONFIG; see
// lib/config.
package main
