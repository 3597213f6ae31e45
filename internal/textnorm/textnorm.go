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

// Package textnorm collapses whitespace and strips control characters
// for content hashing and display, and derives result snippets.
package textnorm

import (
	"strings"
	"unicode"
)

// Normalize collapses runs of whitespace to a single space, strips
// non-printable control characters (other than the space produced by
// collapsing), and trims the result. It is idempotent:
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastWasSpace := false
	for _, r := range s {
		if unicode.IsControl(r) {
			if r == '\n' || r == '\t' || r == '\r' {
				r = ' '
			} else {
				continue
			}
		}
		if unicode.IsSpace(r) {
			if lastWasSpace {
				continue
			}
			lastWasSpace = true
			b.WriteRune(' ')
			continue
		}
		lastWasSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// Snippet returns the first ~maxLen characters of the normalized text,
// trimmed at a word boundary, with a trailing ellipsis when truncated.
func Snippet(normalizedText string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 180
	}
	runes := []rune(normalizedText)
	if len(runes) <= maxLen {
		return normalizedText
	}

	cut := maxLen
	for cut > 0 && !unicode.IsSpace(runes[cut]) {
		cut--
	}
	if cut == 0 {
		cut = maxLen
	}
	return strings.TrimRight(string(runes[:cut]), " ") + "…"
}
