// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers. Fatal reports an
// error from run() to stderr, where the structured logger may not yet
// exist, and exits.
package process
