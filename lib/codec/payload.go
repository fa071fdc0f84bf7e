// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding"
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// maxRenderingLength bounds the value rendering carried in a
// PayloadError so that a huge payload does not flood the log.
const maxRenderingLength = 256

// maxPayloadDepth is the deepest nesting EncodePayload accepts.
// Legitimate channel payloads are shallow; anything deeper is almost
// certainly a self-referencing structure reached through maps or
// interfaces.
const maxPayloadDepth = 64

// PayloadError reports a value that cannot cross the context boundary
// on a channel, or wire bytes that cannot be decoded into the type the
// channel declares.
type PayloadError struct {
	ChannelID string
	// Rendering is a bounded human-readable rendering of the offending
	// value (for encode failures) or its CBOR diagnostic notation (for
	// decode failures).
	Rendering string
	Err       error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("channel %q: payload %s is not transferable: %v", e.ChannelID, e.Rendering, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

var (
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	cborMarshalerType = reflect.TypeOf((*cbor.Marshaler)(nil)).Elem()
)

// EncodePayload validates value as plain data and encodes it for
// transmission on channelID.
func EncodePayload(channelID string, value any) ([]byte, error) {
	if err := checkTransferable(reflect.ValueOf(value), nil, 0); err != nil {
		return nil, &PayloadError{ChannelID: channelID, Rendering: renderValue(value, err), Err: err}
	}
	data, err := Marshal(value)
	if err != nil {
		return nil, &PayloadError{ChannelID: channelID, Rendering: renderValue(value, err), Err: err}
	}
	return data, nil
}

// DecodePayload decodes data received on channelID into target.
func DecodePayload(channelID string, data []byte, target any) error {
	if err := Unmarshal(data, target); err != nil {
		rendering, diagErr := Diagnose(data)
		if diagErr != nil {
			rendering = fmt.Sprintf("<%d undecodable bytes>", len(data))
		}
		return &PayloadError{ChannelID: channelID, Rendering: truncate(rendering), Err: err}
	}
	return nil
}

// errCycle marks a pointer, map, or slice reachable from itself.
var errCycle = errors.New("value graph contains a cycle")

// checkTransferable walks v looking for kinds CBOR cannot represent
// and for reference cycles. path holds the addresses of the pointers,
// maps, and slices on the current descent path.
func checkTransferable(v reflect.Value, path []uintptr, depth int) error {
	if !v.IsValid() {
		return nil
	}
	if depth > maxPayloadDepth {
		return errCycle
	}

	typ := v.Type()
	if typ.Implements(textMarshalerType) || typ.Implements(cborMarshalerType) {
		return nil
	}

	switch v.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128, reflect.Uintptr:
		return fmt.Errorf("unsupported kind %s (%s)", v.Kind(), typ)

	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return checkTransferable(v.Elem(), path, depth+1)

	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		address := v.Pointer()
		for _, seen := range path {
			if seen == address {
				return errCycle
			}
		}
		return checkTransferable(v.Elem(), append(path, address), depth+1)

	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		address := v.Pointer()
		for _, seen := range path {
			if seen == address {
				return errCycle
			}
		}
		path = append(path, address)
		iterator := v.MapRange()
		for iterator.Next() {
			if err := checkTransferable(iterator.Key(), path, depth+1); err != nil {
				return err
			}
			if err := checkTransferable(iterator.Value(), path, depth+1); err != nil {
				return err
			}
		}
		return nil

	case reflect.Slice:
		if v.IsNil() || typ.Elem().Kind() == reflect.Uint8 {
			return nil
		}
		fallthrough
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := checkTransferable(v.Index(i), path, depth+1); err != nil {
				return err
			}
		}
		return nil

	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			field := typ.Field(i)
			if !field.IsExported() || skippedField(field) {
				continue
			}
			if err := checkTransferable(v.Field(i), path, depth+1); err != nil {
				return fmt.Errorf("field %s: %w", field.Name, err)
			}
		}
		return nil
	}

	return nil
}

// skippedField reports whether the encoder leaves field out. A cbor
// tag takes precedence over a json tag, matching fxamacker/cbor.
func skippedField(field reflect.StructField) bool {
	tag, ok := field.Tag.Lookup("cbor")
	if !ok {
		tag = field.Tag.Get("json")
	}
	return tag == "-"
}

// renderValue produces a bounded rendering of value. Cyclic values are
// rendered by type only, since formatting them would not terminate.
func renderValue(value any, cause error) string {
	if errors.Is(cause, errCycle) {
		return fmt.Sprintf("<cyclic %T>", value)
	}
	return truncate(fmt.Sprintf("%T(%+v)", value, value))
}

func truncate(s string) string {
	if len(s) <= maxRenderingLength {
		return s
	}
	return s[:maxRenderingLength] + "..."
}
