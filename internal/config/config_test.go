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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsFullyPopulated(t *testing.T) {
	c := Default()
	assert.Equal(t, "local", c.Vector.Provider)
	assert.Equal(t, "none", c.Rerank.Provider)
	assert.Equal(t, "static-output", c.Source.Mode)
	assert.NotZero(t, c.Chunking.MaxChars)
	assert.Greater(t, c.Chunking.MaxChars, c.Chunking.OverlapChars)
}

func TestLoad_NoFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Vector.Provider)
	assert.Equal(t, 96, cfg.Embeddings.BatchSize)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "searchsocket.yaml")
	require.NoError(t, os.WriteFile(path, []byte("project:\n  id: acme\nvector:\n  provider: pinecone\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "acme", cfg.Project.ID)
	assert.Equal(t, "pinecone", cfg.Vector.Provider)
	// Unrelated defaults remain in effect.
	assert.Equal(t, "none", cfg.Rerank.Provider)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "searchsocket.yaml")
	require.NoError(t, os.WriteFile(path, []byte("project:\n  id: from-file\n"), 0o644))

	t.Setenv("SEARCHSOCKET_PROJECT_ID", "from-env")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Project.ID)
}
