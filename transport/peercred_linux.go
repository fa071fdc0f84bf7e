// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package transport

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// peerCredentials reads SO_PEERCRED from a unix socket connection.
// Returns nil for any other kind of connection.
func peerCredentials(conn net.Conn) (*Credentials, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, nil
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("accessing socket: %w", err)
	}

	var ucred *unix.Ucred
	var sockoptErr error
	if err := raw.Control(func(fd uintptr) {
		ucred, sockoptErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return nil, fmt.Errorf("accessing socket: %w", err)
	}
	if sockoptErr != nil {
		return nil, fmt.Errorf("reading SO_PEERCRED: %w", sockoptErr)
	}
	return &Credentials{PID: int(ucred.Pid), UID: int(ucred.Uid), GID: int(ucred.Gid)}, nil
}
