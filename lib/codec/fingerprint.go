// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import "github.com/zeebo/blake3"

// Digest is a 32-byte BLAKE3 digest of an encoded payload.
type Digest [32]byte

// Fingerprint hashes an encoded payload. Because encoding is
// deterministic, two values with equal fingerprints are the same
// logical value.
func Fingerprint(data []byte) Digest {
	return Digest(blake3.Sum256(data))
}
