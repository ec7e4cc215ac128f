// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for Chorus
// binaries. These functions centralize the raw I/O that legitimately
// happens before or after the structured logger exists:
//
//   - Fatal error reporting to stderr when the logger may not be
//     initialized (pre-logger).
//   - Process exit after an unrecoverable error in main().
//
// All other output in binaries goes through log/slog.
package process
