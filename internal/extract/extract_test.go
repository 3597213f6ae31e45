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

package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTML_Unit(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("extracts title by og:title precedence", func(t *testing.T) {
		html := `<html><head>
			<meta property="og:title" content="OG Title">
			<title>Doc Title</title>
		</head><body><main><h1>H1 Title</h1><p>hello world</p></main></body></html>`

		page, err := HTML("/docs/guide", html, cfg)
		require.NoError(t, err)
		assert.Equal(t, "OG Title", page.Title)
		assert.Contains(t, page.Markdown, "hello world")
		assert.False(t, page.Noindex)
	})

	t.Run("falls back to h1 then title tag", func(t *testing.T) {
		html := `<html><head><title>Doc Title</title></head><body><main><h1>H1 Title</h1></main></body></html>`
		page, err := HTML("/docs/guide", html, cfg)
		require.NoError(t, err)
		assert.Equal(t, "H1 Title", page.Title)
	})

	t.Run("respects meta robots noindex", func(t *testing.T) {
		html := `<html><head><meta name="robots" content="noindex,nofollow"></head><body><main>text</main></body></html>`
		page, err := HTML("/secret", html, cfg)
		require.NoError(t, err)
		assert.True(t, page.Noindex)
	})

	t.Run("drops configured tags and selectors", func(t *testing.T) {
		html := `<html><body><main><script>evil()</script><p>kept</p><nav>nav</nav></main></body></html>`
		page, err := HTML("/x", html, cfg)
		require.NoError(t, err)
		assert.NotContains(t, page.Markdown, "evil")
		assert.NotContains(t, page.Markdown, "nav")
		assert.Contains(t, page.Markdown, "kept")
	})

	t.Run("collects same-origin outgoing links only", func(t *testing.T) {
		html := `<html><body><main>
			<a href="/docs/other">rel</a>
			<a href="https://external.example/x">ext</a>
			<a href="mailto:a@b.com">mail</a>
		</main></body></html>`
		page, err := HTML("/docs/guide", html, cfg)
		require.NoError(t, err)
		assert.Contains(t, page.OutgoingLinks, "/docs/other")
		for _, l := range page.OutgoingLinks {
			assert.NotContains(t, l, "external.example")
		}
	})

	t.Run("weight zero drops the page", func(t *testing.T) {
		html := `<html><head><meta name="searchsocket-weight" content="0"></head><body><main>text</main></body></html>`
		page, err := HTML("/x", html, cfg)
		require.NoError(t, err)
		assert.True(t, page.Noindex)
	})

	t.Run("negative weight is ignored, not applied", func(t *testing.T) {
		html := `<html><head><meta name="searchsocket-weight" content="-1"></head><body><main>text</main></body></html>`
		page, err := HTML("/x", html, cfg)
		require.NoError(t, err)
		assert.False(t, page.Noindex)
		assert.Nil(t, page.Weight)
	})
}

func TestMarkdown_Unit(t *testing.T) {
	t.Run("frontmatter noindex drops the page", func(t *testing.T) {
		raw := "---\nnoindex: true\ntitle: Hidden\n---\nbody text\n"
		page, err := Markdown("/hidden", raw, "")
		require.NoError(t, err)
		assert.True(t, page.Noindex)
	})

	t.Run("leading noindex comment drops the page", func(t *testing.T) {
		raw := "<!-- noindex -->\n\nbody text\n"
		page, err := Markdown("/hidden", raw, "")
		require.NoError(t, err)
		assert.True(t, page.Noindex)
	})

	t.Run("searchsocket weight zero drops the page", func(t *testing.T) {
		raw := "---\nsearchsocket:\n  weight: 0\n---\nbody text\n"
		page, err := Markdown("/x", raw, "")
		require.NoError(t, err)
		assert.True(t, page.Noindex)
	})

	t.Run("title precedence: override beats frontmatter beats url", func(t *testing.T) {
		raw := "---\ntitle: FM Title\n---\nbody\n"
		page, err := Markdown("/x", raw, "Override Title")
		require.NoError(t, err)
		assert.Equal(t, "Override Title", page.Title)

		page2, err := Markdown("/x", raw, "")
		require.NoError(t, err)
		assert.Equal(t, "FM Title", page2.Title)

		page3, err := Markdown("/x", "no frontmatter here\n", "")
		require.NoError(t, err)
		assert.Equal(t, "/x", page3.Title)
	})

	t.Run("empty body after normalization drops the page", func(t *testing.T) {
		page, err := Markdown("/x", "   \n\n  ", "")
		require.NoError(t, err)
		assert.True(t, page.Noindex)
	})
}
