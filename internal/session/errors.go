// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import "errors"

// Sentinel errors for the taxonomy of spec §7's component-local categories.
var (
	// ErrNotReady is returned when a caller invokes a session before its
	// initialization_future has resolved successfully.
	ErrNotReady = errors.New("session: not ready")
	// ErrShutdown is returned (via a synthesized JSON-RPC error, not this
	// Go error, in most call paths) when a request reaches the dispatcher
	// after the shutdown flag is already set.
	ErrShutdown = errors.New("session: shutting down")
	// ErrInitializeFailed is returned when the initialize handshake itself
	// fails (timeout, transport error, or a JSON-RPC error response).
	ErrInitializeFailed = errors.New("session: initialize failed")
)
