// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec defines how channel payloads are represented on the
// wire between the host and client contexts.
//
// Every payload crossing the boundary is encoded as CBOR using Core
// Deterministic Encoding (RFC 8949 §4.2): sorted map keys, smallest
// integer encoding, no indefinite-length items. The same logical value
// always produces identical bytes, which is what lets [Fingerprint]
// detect that a computed value has not actually changed.
//
// Payloads must be plain data: booleans, numbers, strings, byte
// slices, slices, maps, and structs of those. Types may reduce
// themselves to plain data by implementing encoding.TextMarshaler or
// cbor.Marshaler. Functions, channels, unsafe pointers, complex
// numbers, and cyclic pointer graphs are rejected by [EncodePayload]
// with a [*PayloadError] naming the channel and rendering the value,
// rather than being silently dropped or truncated.
//
// Struct tags follow one rule: `json` tags on anything a channel
// carries (fxamacker/cbor reads them as a fallback, and channel
// payload types are frequently shared with JSON-facing code), `cbor`
// tags on transport-internal framing types only.
//
// Large frames may be compressed with [Compress] using LZ4 (fast,
// default for mixed data) or zstd (better ratio for text-heavy
// payloads). The compression tag travels in the frame header so the
// receiver can reverse it with [Decompress].
package codec
