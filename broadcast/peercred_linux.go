// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package broadcast

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// PeerCredentials returns the credentials of the peer process via
// SO_PEERCRED. The kernel records them when the connection is
// established, so they cannot be forged by the peer afterwards.
func (c *Channel) PeerCredentials() (PeerCredentials, error) {
	unixConn, ok := c.conn.(*net.UnixConn)
	if !ok {
		return PeerCredentials{}, fmt.Errorf("peer credentials unavailable on %T", c.conn)
	}

	raw, err := unixConn.SyscallConn()
	if err != nil {
		return PeerCredentials{}, fmt.Errorf("accessing socket descriptor: %w", err)
	}

	var (
		ucred   *unix.Ucred
		credErr error
	)
	if err := raw.Control(func(fd uintptr) {
		ucred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return PeerCredentials{}, fmt.Errorf("accessing socket descriptor: %w", err)
	}
	if credErr != nil {
		return PeerCredentials{}, fmt.Errorf("reading SO_PEERCRED: %w", credErr)
	}

	return PeerCredentials{PID: ucred.Pid, UID: ucred.Uid, GID: ucred.Gid}, nil
}
