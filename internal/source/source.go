// Copyright 2025 Kadir Pekel
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

// Package source implements the four page-loading modes:
// static-output, content-files, crawl, and build.
//
// Loaders share a common contract: individual page failures surface
// as Warnings, never as a failed load, and every blocking step checks
// ctx.Done().
package source

import (
	"strings"
)

// PageSource is the raw page payload handed to the extractor.
// Exactly one of HTML/Markdown is populated.
type PageSource struct {
	URL           string
	HTML          string
	Markdown      string
	SourcePath    string
	OutgoingLinks []string
}

// Warning is a non-fatal per-page loading failure: loaders never abort the whole load on an individual page
// failure.
type Warning struct {
	URL     string
	Message string
}

// matchesExcludePattern reports whether path matches any pattern:
// an exact match, or a "/prefix/*" match (the literal prefix followed
// by anything).
func matchesExcludePattern(path string, patterns []string) bool {
	for _, p := range patterns {
		if p == path {
			return true
		}
		if strings.HasSuffix(p, "/*") {
			prefix := strings.TrimSuffix(p, "/*")
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				return true
			}
		}
	}
	return false
}
