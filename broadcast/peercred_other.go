// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package broadcast

import (
	"errors"
	"fmt"
)

// PeerCredentials is only implemented on Linux, where SO_PEERCRED is
// available. Other platforms return an error wrapping
// errors.ErrUnsupported.
func (c *Channel) PeerCredentials() (PeerCredentials, error) {
	return PeerCredentials{}, fmt.Errorf("peer credentials: %w", errors.ErrUnsupported)
}
