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

package routemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRouteSegment(t *testing.T) {
	norm, dropped := NormalizeRouteSegment("(marketing)")
	assert.True(t, dropped)
	assert.Equal(t, "", norm)

	norm, dropped = NormalizeRouteSegment("[...rest]")
	assert.False(t, dropped)
	assert.Equal(t, "splat", norm)

	norm, dropped = NormalizeRouteSegment("[[lang]]")
	assert.False(t, dropped)
	assert.Equal(t, "optional", norm)

	norm, dropped = NormalizeRouteSegment("[slug]")
	assert.False(t, dropped)
	assert.Equal(t, "param", norm)

	norm, dropped = NormalizeRouteSegment("docs")
	assert.False(t, dropped)
	assert.Equal(t, "docs", norm)
}

func TestResolveExactLiteral(t *testing.T) {
	routes := Routes{
		"+page.svelte":      true,
		"docs/+page.svelte": true,
	}
	file, res := Resolve("/docs", routes)
	assert.Equal(t, "docs/+page.svelte", file)
	assert.Equal(t, ResolutionExact, res)
}

func TestResolveExactThroughParam(t *testing.T) {
	routes := Routes{
		"docs/[slug]/+page.svelte": true,
	}
	file, res := Resolve("/docs/intro", routes)
	assert.Equal(t, "docs/[slug]/+page.svelte", file)
	assert.Equal(t, ResolutionExact, res)
}

func TestResolveIgnoresLayoutGroups(t *testing.T) {
	routes := Routes{
		"(app)/docs/+page.svelte": true,
	}
	file, res := Resolve("/docs", routes)
	assert.Equal(t, "(app)/docs/+page.svelte", file)
	assert.Equal(t, ResolutionExact, res)
}

func TestResolveBestEffort(t *testing.T) {
	routes := Routes{
		"+page.svelte":      true,
		"docs/+page.svelte": true,
	}
	file, res := Resolve("/docs/orphan/deep", routes)
	assert.Equal(t, ResolutionBestEffort, res)
	assert.Equal(t, "docs/+page.svelte", file)
}

func TestResolveRootOnly(t *testing.T) {
	routes := Routes{"+page.svelte": true}

	_, res := Resolve("/", routes)
	assert.Equal(t, ResolutionExact, res)

	_, res = Resolve("/docs/orphan", routes)
	assert.Equal(t, ResolutionBestEffort, res)
}
