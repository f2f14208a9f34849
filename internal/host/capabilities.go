// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package host

import (
	"sort"
	"strings"
)

// AggregatedTools returns every ready session's tools under the
// "<server>/<tool>" namespace spec §4.1 mandates for the caller-facing
// capability listing.
func (h *Host) AggregatedTools() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0)
	for server, entry := range h.sessions {
		caps := entry.sess.Capabilities()
		if caps == nil {
			continue
		}
		for _, tool := range caps.Tools {
			names = append(names, server+nameSeparator+tool.Name)
		}
	}
	sort.Strings(names)
	return names
}

// AggregatedResources returns every ready session's resources under the
// "<server>/<resource>" namespace, the resource-side counterpart of
// AggregatedTools.
func (h *Host) AggregatedResources() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0)
	for server, entry := range h.sessions {
		caps := entry.sess.Capabilities()
		if caps == nil {
			continue
		}
		for _, res := range caps.Resources {
			names = append(names, server+nameSeparator+res.Name)
		}
	}
	sort.Strings(names)
	return names
}

// SplitAggregatedName splits a "<server>/<tool>" aggregated capability name
// back into its two parts, the inverse of the join AggregatedTools and
// AggregatedResources perform.
func SplitAggregatedName(aggregated string) (server, name string, ok bool) {
	idx := strings.Index(aggregated, nameSeparator)
	if idx < 0 {
		return "", "", false
	}
	return aggregated[:idx], aggregated[idx+1:], true
}
