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

package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testPage(markdown string) PageInput {
	return PageInput{
		ScopeName: "main",
		URL:       "/docs/example",
		Path:      "/docs/example",
		Title:     "Example",
		Markdown:  markdown,
	}
}

// A protected code block keeps its containing paragraph in the same
// chunk even though the combined text approaches maxChars.
func TestChunkerProtectedCode(t *testing.T) {
	markdown := "# T\npara\n\n```js\nLINE1\nLINE2\n```"
	cfg := Config{MaxChars: 40, OverlapChars: 5, MinChars: 1, HeadingPathDepth: 3, DontSplitInside: []string{"code"}}

	chunks := Split(testPage(markdown), cfg)
	require.Len(t, chunks, 1)
	require.Contains(t, chunks[0].ChunkText, "LINE1")
	require.Contains(t, chunks[0].ChunkText, "LINE2")
}

// Chunk identity is stable across repeated runs for the same input
// and config.
func TestChunkerIdentityStability(t *testing.T) {
	markdown := "# Intro\nHello world, this is a test page with enough content to matter.\n\n## Details\nMore text here describing the feature in depth."
	cfg := DefaultConfig()

	first := Split(testPage(markdown), cfg)
	second := Split(testPage(markdown), cfg)

	require.Equal(t, len(first), len(second))
	for i := range first {
		require.Equal(t, first[i].ChunkKey, second[i].ChunkKey)
		require.Equal(t, first[i].ContentHash, second[i].ContentHash)
	}
}

// Chunks that do not contain a protected block stay within maxChars.
func TestChunkerBounds(t *testing.T) {
	var b strings.Builder
	b.WriteString("# Big\n")
	for i := 0; i < 50; i++ {
		b.WriteString("This is a long line of prose meant to force splitting across multiple chunk boundaries. ")
	}
	cfg := Config{MaxChars: 200, OverlapChars: 20, MinChars: 10, HeadingPathDepth: 3, DontSplitInside: []string{"code"}}

	chunks := Split(testPage(b.String()), cfg)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		require.LessOrEqual(t, len([]rune(c.ChunkText)), cfg.MaxChars)
	}
}

func TestChunkerEmptyInput(t *testing.T) {
	chunks := Split(testPage(""), DefaultConfig())
	require.Empty(t, chunks)
}

func TestChunkerOrdinalsSequential(t *testing.T) {
	markdown := "# One\nfirst section text here.\n\n# Two\nsecond section text here."
	chunks := Split(testPage(markdown), DefaultConfig())
	for i, c := range chunks {
		require.Equal(t, i, c.Ordinal)
	}
}
