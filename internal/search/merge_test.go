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

package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregpriday/searchsocket/internal/rerank"
)

func hitsForURLs(urls ...string) []Hit {
	out := make([]Hit, len(urls))
	for i, u := range urls {
		out[i] = Hit{ID: u, URL: u, Score: float32(len(urls) - i)}
	}
	return out
}

func scoresForURLs(urls ...string) []rerank.Scored {
	out := make([]rerank.Scored, len(urls))
	for i, u := range urls {
		out[i] = rerank.Scored{ID: u, Score: float32(len(urls) - i)}
	}
	return out
}

func TestMergeOrder_Unit(t *testing.T) {
	t.Run("small displacement keeps initial order, overwrites scores", func(t *testing.T) {
		// [/a,/b,/c,/d] -> [/a,/c,/b,/d], maxDisplacement=3: every
		// URL moved by at most 1 position, well under the threshold.
		initial := hitsForURLs("/a", "/b", "/c", "/d")
		reranked := scoresForURLs("/a", "/c", "/b", "/d")

		out := mergeOrder(initial, reranked, 3)

		require.Len(t, out, 4)
		assert.Equal(t, []string{"/a", "/b", "/c", "/d"}, urlOrder(out))
		// scores overwritten from the reranked response
		byID := make(map[string]float32, len(out))
		for _, h := range out {
			byID[h.ID] = h.Score
		}
		assert.Equal(t, float32(4), byID["/a"])
		assert.Equal(t, float32(2), byID["/b"])
		assert.Equal(t, float32(3), byID["/c"])
		assert.Equal(t, float32(1), byID["/d"])
	})

	t.Run("large displacement adopts reranked order wholesale", func(t *testing.T) {
		// [/a,/b,/c,/d,/e] -> [/e,/b,/c,/d,/a], maxDisplacement=3:
		// both /a and /e moved by 4 positions, over the threshold.
		initial := hitsForURLs("/a", "/b", "/c", "/d", "/e")
		reranked := scoresForURLs("/e", "/b", "/c", "/d", "/a")

		out := mergeOrder(initial, reranked, 3)

		assert.Equal(t, []string{"/e", "/b", "/c", "/d", "/a"}, urlOrder(out))
	})

	t.Run("maxDisplacement zero adopts reranked order on any change", func(t *testing.T) {
		initial := hitsForURLs("/a", "/b")
		reranked := scoresForURLs("/b", "/a")

		out := mergeOrder(initial, reranked, 0)

		assert.Equal(t, []string{"/b", "/a"}, urlOrder(out))
	})

	t.Run("identical order is kept regardless of maxDisplacement", func(t *testing.T) {
		initial := hitsForURLs("/a", "/b", "/c")
		reranked := scoresForURLs("/a", "/b", "/c")

		out := mergeOrder(initial, reranked, 0)

		assert.Equal(t, []string{"/a", "/b", "/c"}, urlOrder(out))
	})

	t.Run("empty reranked scores returns initial unchanged", func(t *testing.T) {
		initial := hitsForURLs("/a", "/b")

		out := mergeOrder(initial, nil, 3)

		assert.Equal(t, initial, out)
	})

	t.Run("empty initial returns reranked response unchanged", func(t *testing.T) {
		reranked := scoresForURLs("/x", "/y")

		out := mergeOrder(nil, reranked, 3)

		require.Len(t, out, 2)
		assert.Equal(t, "/x", out[0].ID)
		assert.Equal(t, float32(2), out[0].Score)
		assert.Equal(t, "/y", out[1].ID)
		assert.Equal(t, float32(1), out[1].Score)
	})

	t.Run("reranked ids absent from initial are dropped", func(t *testing.T) {
		initial := hitsForURLs("/a", "/b")
		reranked := append(scoresForURLs("/a", "/b"), rerank.Scored{ID: "/ghost", Score: 99})

		out := mergeOrder(initial, reranked, 3)

		for _, h := range out {
			assert.NotEqual(t, "/ghost", h.ID)
		}
	})
}

func TestDisplaces_Unit(t *testing.T) {
	t.Run("url missing from one ordering is ignored", func(t *testing.T) {
		assert.False(t, displaces([]string{"/a", "/b"}, []string{"/a"}, 0))
	})

	t.Run("exact boundary is not a displacement", func(t *testing.T) {
		assert.False(t, displaces([]string{"/a", "/b", "/c", "/d"}, []string{"/d", "/b", "/c", "/a"}, 3))
	})

	t.Run("one past the boundary is a displacement", func(t *testing.T) {
		assert.True(t, displaces([]string{"/a", "/b", "/c", "/d", "/e"}, []string{"/e", "/b", "/c", "/d", "/a"}, 3))
	})
}
