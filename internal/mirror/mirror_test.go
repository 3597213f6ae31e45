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

package mirror

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite_CreatesAndSkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	p := Page{
		URL:         "/docs/guide",
		Title:       "Guide",
		Scope:       "main",
		RouteFile:   "docs/guide/+page.svelte",
		GeneratedAt: time.Unix(1000, 0),
		Markdown:    "hello world",
		Tags:        []string{"docs"},
	}

	wrote, err := Write(dir, p)
	require.NoError(t, err)
	assert.True(t, wrote)

	read, ok := Read(dir, p.Scope, p.URL)
	require.True(t, ok)
	assert.Equal(t, "hello world", read.Markdown)
	assert.Equal(t, "Guide", read.Title)

	p2 := p
	p2.GeneratedAt = time.Unix(2000, 0)
	wrote2, err := Write(dir, p2)
	require.NoError(t, err)
	assert.False(t, wrote2, "unchanged content (ignoring generatedAt) should not rewrite")
}

func TestWrite_RewritesOnContentChange(t *testing.T) {
	dir := t.TempDir()
	p := Page{URL: "/x", Scope: "main", Markdown: "v1"}
	_, err := Write(dir, p)
	require.NoError(t, err)

	p.Markdown = "v2"
	wrote, err := Write(dir, p)
	require.NoError(t, err)
	assert.True(t, wrote)

	read, ok := Read(dir, p.Scope, p.URL)
	require.True(t, ok)
	assert.Equal(t, "v2", read.Markdown)
}

func TestPath_RootURLMapsToIndex(t *testing.T) {
	assert.Equal(t, "state/pages/main/index.md", Path("state", "main", "/"))
	assert.Equal(t, "state/pages/main/docs/guide.md", Path("state", "main", "/docs/guide"))
}
