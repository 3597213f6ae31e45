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

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverRoutes_EmptyDirYieldsNilRoutes(t *testing.T) {
	routes, err := discoverRoutes("")
	require.NoError(t, err)
	assert.Nil(t, routes)
}

func TestDiscoverRoutes_MissingDirYieldsNilRoutes(t *testing.T) {
	routes, err := discoverRoutes(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Nil(t, routes)
}

func TestDiscoverRoutes_WalksPageFiles(t *testing.T) {
	dir := t.TempDir()
	mustWrite := func(rel string) {
		p := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	mustWrite("+page.svelte")
	mustWrite("docs/+page.svelte")
	mustWrite("docs/getting-started/+page.md")
	mustWrite("docs/getting-started/+layout.svelte")

	routes, err := discoverRoutes(dir)
	require.NoError(t, err)

	assert.True(t, routes["+page.svelte"])
	assert.True(t, routes["docs/+page.svelte"])
	assert.True(t, routes["docs/getting-started/+page.md"])
	assert.False(t, routes["docs/getting-started/+layout.svelte"])
}

func TestResolveAPIKey_FallsBackWhenEnvVarUnset(t *testing.T) {
	t.Setenv("MY_CUSTOM_KEY", "abc123")
	assert.Equal(t, "abc123", resolveAPIKey("MY_CUSTOM_KEY", "FALLBACK_KEY"))

	t.Setenv("FALLBACK_KEY", "fallback-value")
	assert.Equal(t, "fallback-value", resolveAPIKey("", "FALLBACK_KEY"))
}
