// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package listening keeps transport enlistments consistent with the
// set of listeners features have declared.
//
// Features declare listeners by adding them to a [Supply], an explicit
// registry passed to whoever needs it. Add returns a [Token]; removing
// the token withdraws the declaration. A Supply does not talk to any
// transport itself.
//
// An [Orchestrator] connects one message Supply and one request Supply
// to a transport. While started it reconciles after every change:
// listeners present in the current snapshot but not yet enlisted are
// enlisted, and enlisted listeners that left the snapshot are disposed.
// Message listeners are identified by listener id and request listeners
// by channel id, since a request channel has exactly one responder.
// Declaring a second listener under a key that is already live fails
// the Add that caused it, leaving the live listener untouched.
//
// Stopping disposes every enlistment exactly once. Changes made while
// stopped are not replayed: the next Start enlists whatever the supplies
// hold at that moment.
package listening
