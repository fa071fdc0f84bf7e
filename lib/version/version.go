// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"io"
	"runtime"
	"strings"
)

// These variables are set via -ldflags at build time, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/ipcbridge/lib/version.GitCommit=$(git rev-parse --short HEAD)"
var (
	GitCommit = "unknown"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// Info returns a formatted version string suitable for --version output.
func Info() string {
	return fmt.Sprintf("%s (%s, %s)", Version, GitCommit, BuildTime)
}

// Short returns just the version number.
func Short() string {
	return Version
}

// Print writes Info plus the Go toolchain and platform to w.
func Print(w io.Writer, program string) {
	fmt.Fprintf(w, "%s %s\n  Go: %s\n  Platform: %s/%s\n",
		program, Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// SameRelease reports whether two version strings name the same
// release, ignoring any pre-release or build suffix ("0.1.0-dev" and
// "0.1.0+abc" match "0.1.0").
func SameRelease(a, b string) bool {
	return release(a) == release(b)
}

func release(v string) string {
	v = strings.TrimPrefix(v, "v")
	if index := strings.IndexAny(v, "-+"); index >= 0 {
		v = v[:index]
	}
	return v
}
