// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// versionPayload is shaped like a typical request-channel response:
// json tags, because channel payload types are shared with JSON-facing
// code.
type versionPayload struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
}

type linkedNode struct {
	Name string      `json:"name"`
	Next *linkedNode `json:"next,omitempty"`
}

// clusterRef has only unexported state and reduces itself to text.
type clusterRef struct {
	context string
}

func (r clusterRef) MarshalText() ([]byte, error) {
	return []byte("cluster:" + r.context), nil
}

func TestEncodePayloadRoundtrip(t *testing.T) {
	original := versionPayload{Version: "6.4.0", Commit: "abc1234"}

	data, err := EncodePayload("build-version", original)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}

	var decoded versionPayload
	if err := DecodePayload("build-version", data, &decoded); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestEncodePayloadDeterministic(t *testing.T) {
	value := map[string]any{"zeta": 1, "alpha": []string{"a", "b"}, "mid": true}

	first, err := EncodePayload("some-channel", value)
	if err != nil {
		t.Fatalf("first encode: %v", err)
	}
	second, err := EncodePayload("some-channel", value)
	if err != nil {
		t.Fatalf("second encode: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
	if Fingerprint(first) != Fingerprint(second) {
		t.Error("fingerprints of identical encodings differ")
	}
}

func TestEncodePayloadRejectsLiveValues(t *testing.T) {
	selfMap := map[string]any{"name": "loop"}
	selfMap["self"] = selfMap

	node := &linkedNode{Name: "head"}
	node.Next = node

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{name: "function", value: func() {}, want: "unsupported kind func"},
		{name: "channel", value: make(chan int), want: "unsupported kind chan"},
		{name: "nested function", value: map[string]any{"callback": func() {}}, want: "unsupported kind func"},
		{name: "struct field", value: struct{ Handler func() }{Handler: func() {}}, want: "field Handler"},
		{name: "cbor tag wins over json skip", value: struct {
			Handler func() `cbor:"handler" json:"-"`
		}{Handler: func() {}}, want: "field Handler"},
		{name: "cyclic map", value: selfMap, want: "cycle"},
		{name: "cyclic pointer", value: node, want: "cycle"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := EncodePayload("some-channel-id", test.value)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var payloadErr *PayloadError
			if !errors.As(err, &payloadErr) {
				t.Fatalf("expected *PayloadError, got %T: %v", err, err)
			}
			if payloadErr.ChannelID != "some-channel-id" {
				t.Errorf("ChannelID = %q, want some-channel-id", payloadErr.ChannelID)
			}
			if payloadErr.Rendering == "" {
				t.Error("Rendering is empty")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("error %q does not mention %q", err, test.want)
			}
		})
	}
}

func TestEncodePayloadAcceptsTextMarshaler(t *testing.T) {
	data, err := EncodePayload("some-channel", map[string]any{"cluster": clusterRef{context: "minikube"}})
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}

	var decoded map[string]any
	if err := DecodePayload("some-channel", data, &decoded); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if decoded["cluster"] != "cluster:minikube" {
		t.Errorf("cluster = %v (%T), want text reduction", decoded["cluster"], decoded["cluster"])
	}
}

func TestEncodePayloadSkipsOmittedFields(t *testing.T) {
	type settings struct {
		Theme    string       `cbor:"theme"`
		OnChange func(string) `cbor:"-"`
		Updates  chan string  `json:"-"`
	}
	value := settings{Theme: "dark", OnChange: func(string) {}, Updates: make(chan string)}

	data, err := EncodePayload("settings", value)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	var decoded settings
	if err := DecodePayload("settings", data, &decoded); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if decoded.Theme != "dark" || decoded.OnChange != nil || decoded.Updates != nil {
		t.Errorf("decoded = %+v, want only Theme set", decoded)
	}
}

func TestEncodePayloadSharedSubvalueIsNotCycle(t *testing.T) {
	shared := &linkedNode{Name: "shared"}
	value := []*linkedNode{shared, shared}
	if _, err := EncodePayload("some-channel", value); err != nil {
		t.Fatalf("shared (acyclic) pointer rejected: %v", err)
	}
}

func TestDecodePayloadTypeMismatch(t *testing.T) {
	data, err := EncodePayload("some-channel", "just a string")
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}

	var target versionPayload
	err = DecodePayload("some-channel", data, &target)
	var payloadErr *PayloadError
	if !errors.As(err, &payloadErr) {
		t.Fatalf("expected *PayloadError, got %T: %v", err, err)
	}
	if !strings.Contains(payloadErr.Rendering, "just a string") {
		t.Errorf("Rendering = %q, want diagnostic notation of the payload", payloadErr.Rendering)
	}
}

func TestCompressRoundtrip(t *testing.T) {
	data := bytes.Repeat([]byte("namespace=default kind=Pod phase=Running\n"), 200)

	for _, algorithm := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(algorithm.String(), func(t *testing.T) {
			compressed, err := Compress(data, algorithm)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			if algorithm != CompressionNone && len(compressed) >= len(data) {
				t.Errorf("compressed size %d not smaller than %d", len(compressed), len(data))
			}
			restored, err := Decompress(compressed, algorithm, len(data))
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(restored, data) {
				t.Error("restored data differs from original")
			}
		})
	}
}

func TestCompressIncompressible(t *testing.T) {
	for _, algorithm := range []Compression{CompressionLZ4, CompressionZstd} {
		if _, err := Compress([]byte{0x01, 0x02}, algorithm); !errors.Is(err, ErrIncompressible) {
			t.Errorf("%s: expected ErrIncompressible, got %v", algorithm, err)
		}
	}
}

func TestDecompressSizeMismatch(t *testing.T) {
	if _, err := Decompress([]byte("abc"), CompressionNone, 4); err == nil {
		t.Error("expected size mismatch error")
	}
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		input string
		want  Compression
	}{
		{"", CompressionNone},
		{"none", CompressionNone},
		{"lz4", CompressionLZ4},
		{"zstd", CompressionZstd},
	}
	for _, test := range tests {
		got, err := ParseCompression(test.input)
		if err != nil {
			t.Errorf("ParseCompression(%q): %v", test.input, err)
			continue
		}
		if got != test.want {
			t.Errorf("ParseCompression(%q) = %s, want %s", test.input, got, test.want)
		}
	}

	if _, err := ParseCompression("gzip"); err == nil {
		t.Error("expected error for unknown compression")
	}
}
