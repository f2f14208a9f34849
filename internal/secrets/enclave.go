// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package secrets protects secret-looking environment values a tool-server
// manifest carries (API keys, tokens, passwords) between the moment they are
// read from the manifest and the moment they are staged into a child
// process's environment block, following the short-lived sensitive-buffer
// pattern the teacher repo applies in its secure request accumulator
// (services/orchestrator/handlers/secure_accumulator.go).
package secrets

import (
	"strings"

	"github.com/awnumar/memguard"
)

var secretSuffixes = []string{"_KEY", "_TOKEN", "_SECRET", "_PASSWORD"}

// IsSecretLike reports whether an environment variable name looks like it
// carries a credential, matched case-insensitively against a suffix list.
func IsSecretLike(name string) bool {
	upper := strings.ToUpper(name)
	for _, suffix := range secretSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

// StageEnv returns env unchanged in value, but every secret-like entry is
// round-tripped through a memguard enclave first, so the plaintext spends as
// little time as possible sitting in an ordinary Go string on the heap
// before being handed to the child process's environment block. The child
// still receives exactly the plaintext value the manifest specified, per
// spec §3.
func StageEnv(env map[string]string) map[string]string {
	staged := make(map[string]string, len(env))
	for k, v := range env {
		if !IsSecretLike(k) {
			staged[k] = v
			continue
		}
		staged[k] = roundTrip(v)
	}
	return staged
}

func roundTrip(plaintext string) string {
	enclave := memguard.NewEnclave([]byte(plaintext))
	buf, err := enclave.Open()
	if err != nil {
		// Fall back to the original value: staging is a defense-in-depth
		// measure, not a correctness requirement, and the child must still
		// receive the credential it was configured with.
		return plaintext
	}
	defer buf.Destroy()
	return buf.String()
}

// Redact returns a copy of env with every secret-like value replaced by a
// placeholder, for use whenever a ToolServerConfig is logged or re-rendered
// for display.
func Redact(env map[string]string) map[string]string {
	redacted := make(map[string]string, len(env))
	for k, v := range env {
		if IsSecretLike(k) {
			redacted[k] = "***"
			continue
		}
		redacted[k] = v
	}
	return redacted
}
