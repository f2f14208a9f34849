// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transport

// Server-Sent-Events transport is presently aliased to Stdio: see
// Launch in transport.go, which routes manifest.TransportSSE through
// launchStdio. Spec §9's Open Question leaves genuine SSE support
// unresolved, and no SSE client library appears anywhere in the example
// corpus this module was grounded on, so inventing one here would violate
// the "never fabricate dependencies" rule. See DESIGN.md for the
// justification ledger entry.
