// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the bridge
// binaries and the transport hello frame.
//
// Three package-level variables are injected at build time via
// -ldflags -X:
//
//   - [GitCommit] -- short git SHA of the build
//   - [BuildTime] -- UTC timestamp of the build
//   - [Version] -- semantic version string (set manually for releases)
//
// [Info] formats them for --version output, [Short] is the version
// number alone (announced to the other side of a connection and served
// on the build-version channel), and [SameRelease] compares two
// announced versions.
package version
