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

package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, relPath, content string) {
	t.Helper()
	full := filepath.Join(dir, filepath.FromSlash(relPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestLoadContentFiles_Unit(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "docs/guide.md", "# Guide\n\nhello")
	writeFile(t, dir, "docs/(marketing)/pricing/+page.svelte", `<script>let x = 1</script><h1>Pricing</h1><p>{x}</p>`)
	writeFile(t, dir, "blog/[slug]/+page.svelte", `<h1>Post</h1>`)
	writeFile(t, dir, "index.md", "home")

	pages, warnings, err := LoadContentFiles(context.Background(), ContentFilesConfig{BaseDir: dir})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Len(t, pages, 4)

	byURL := map[string]PageSource{}
	for _, p := range pages {
		byURL[p.URL] = p
	}

	guide, ok := byURL["/docs/guide"]
	require.True(t, ok)
	assert.Contains(t, guide.Markdown, "hello")

	pricing, ok := byURL["/docs/pricing"]
	require.True(t, ok)
	assert.NotContains(t, pricing.Markdown, "script")
	assert.NotContains(t, pricing.Markdown, "let x = 1")
	assert.Contains(t, pricing.Markdown, "Pricing")

	_, ok = byURL["/blog/param"]
	assert.True(t, ok)

	_, ok = byURL["/"]
	assert.True(t, ok)
}

func TestContentFileToURL_Unit(t *testing.T) {
	cases := map[string]string{
		"docs/guide.md":                       "/docs/guide",
		"index.md":                            "/",
		"(marketing)/pricing/+page.svelte":    "/pricing",
		"blog/[slug]/+page.svelte":            "/blog/param",
		"blog/[...rest]/+page.svelte":         "/blog/splat",
		"blog/[[page]]/+page.svelte":          "/blog/optional",
		"docs/index.md":                       "/docs",
	}
	for in, want := range cases {
		assert.Equal(t, want, contentFileToURL(in), "input %q", in)
	}
}

func TestStripSvelteToText_Unit(t *testing.T) {
	src := `<script lang="ts">const a = 1</script><style>.a{color:red}</style><div class="x">Hello {name}!</div>`
	got := stripSvelteToText(src)
	assert.NotContains(t, got, "script")
	assert.NotContains(t, got, "color:red")
	assert.Contains(t, got, "Hello")
	assert.NotContains(t, got, "{name}")
}
