// Copyright 2025 The Searchsocket Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package routemap maps a canonical URL to the SvelteKit-style route
// file that would render it.
package routemap

import (
	"regexp"
	"strings"
)

// Resolution describes how confidently a URL was mapped to a route file.
type Resolution string

const (
	ResolutionExact      Resolution = "exact"
	ResolutionBestEffort Resolution = "best-effort"
)

var (
	layoutGroupRe = regexp.MustCompile(`^\([^)]*\)$`)
	restParamRe   = regexp.MustCompile(`^\[\.\.\.([^\]]+)\]$`)
	optionalRe    = regexp.MustCompile(`^\[\[([^\]]+)\]\]$`)
	paramRe       = regexp.MustCompile(`^\[([^\]]+)\]$`)
)

// Routes is a set of known route file paths (forward-slash separated,
// relative to the routes root), as discovered by the caller's
// filesystem walk. It is the only input the route mapper needs: it
// never touches the filesystem itself.
type Routes map[string]bool

// NormalizeRouteSegment applies the filesystem-route segment rules:
// drop layout-group segments "(group)", map "[...x]" -> "splat",
// "[[x]]" -> "optional", "[x]" -> "param".
func NormalizeRouteSegment(seg string) (normalized string, dropped bool) {
	if layoutGroupRe.MatchString(seg) {
		return "", true
	}
	if restParamRe.MatchString(seg) {
		return "splat", false
	}
	if optionalRe.MatchString(seg) {
		return "optional", false
	}
	if paramRe.MatchString(seg) {
		return "param", false
	}
	return seg, false
}

// Resolve maps a canonical URL path to (routeFile, resolution) given
// the set of known route files. routeFile paths in routes are
// expected in their literal on-disk form (e.g.
// "docs/[slug]/+page.svelte"); Resolve normalizes each candidate the
// same way it normalizes the URL before comparing.
func Resolve(canonicalURL string, routes Routes) (routeFile string, resolution Resolution) {
	segments := splitSegments(canonicalURL)

	for candidate := range routes {
		candSegs := splitSegments(routeDir(candidate))
		if segmentsMatch(segments, candSegs) {
			return candidate, ResolutionExact
		}
	}

	// Best-effort: find the candidate whose normalized segments share
	// the longest common prefix with the URL.
	best := ""
	bestScore := -1
	for candidate := range routes {
		candSegs := splitSegments(routeDir(candidate))
		score := commonPrefixLen(segments, candSegs)
		if score > bestScore {
			bestScore = score
			best = candidate
		}
	}
	return best, ResolutionBestEffort
}

func routeDir(routeFile string) string {
	idx := strings.LastIndex(routeFile, "/")
	if idx < 0 {
		return ""
	}
	return routeFile[:idx]
}

func splitSegments(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	raw := strings.Split(trimmed, "/")
	out := make([]string, 0, len(raw))
	for _, seg := range raw {
		norm, dropped := NormalizeRouteSegment(seg)
		if dropped {
			continue
		}
		out = append(out, norm)
	}
	return out
}

func segmentsMatch(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] && b[i] != "param" && b[i] != "splat" && b[i] != "optional" {
			return false
		}
	}
	return true
}

func commonPrefixLen(a, b []string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
