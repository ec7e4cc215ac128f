// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package broadcast

// PeerCredentials identifies the process on the other end of a
// broadcast channel, as reported by the kernel at connect time.
//
// A broadcast pair is a trust boundary in name only — both processes
// belong to the same user by contract. Embedders that want to enforce
// that contract (for example, an acceptor refusing a connector owned
// by a different user) check these values before exchanging media.
type PeerCredentials struct {
	// PID is the peer's process ID at the time it connected. The
	// peer may have exited since; treat this as diagnostic.
	PID int32

	// UID and GID are the peer's effective user and group IDs.
	UID uint32
	GID uint32
}
