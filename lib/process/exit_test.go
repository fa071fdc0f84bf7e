// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"testing"
)

func TestReport(t *testing.T) {
	var buffer bytes.Buffer
	report(&buffer, errors.New("dialing host: connection refused"))
	if got, want := buffer.String(), "error: dialing host: connection refused\n"; got != want {
		t.Errorf("report wrote %q, want %q", got, want)
	}
}
