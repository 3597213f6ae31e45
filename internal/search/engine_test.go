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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregpriday/searchsocket/internal/embed"
	"github.com/gregpriday/searchsocket/internal/rerank"
	"github.com/gregpriday/searchsocket/internal/scope"
	"github.com/gregpriday/searchsocket/internal/vectorstore"
)

// fakeBatcher is a deterministic embed.RawBatcher: every text maps to
// a 1-dimensional vector equal to its length, so assertions don't
// depend on any real embedding model.
type fakeBatcher struct{}

func (fakeBatcher) Name() string { return "fake" }

func (fakeBatcher) EmbedBatch(ctx context.Context, texts []string, model string, task embed.Task) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (fakeBatcher) EstimateTokens(text string) int64 { return int64(len(text)) }

func init() {
	embed.Register("fake", func(cfg embed.Config) (embed.RawBatcher, error) { return fakeBatcher{}, nil })
}

func newFakeEmbedder(t *testing.T) *embed.Embedder {
	t.Helper()
	e, err := embed.New(embed.Config{Provider: "fake", Model: "fake-model", BatchSize: 8, Concurrency: 2})
	require.NoError(t, err)
	return e
}

// fakeStore is a minimal in-memory vectorstore.Provider double
// returning a fixed hit list regardless of the query vector, enough to
// exercise the engine's merge/rank/group logic without a real backend.
type fakeStore struct {
	hits []vectorstore.Hit
}

func (f *fakeStore) Name() string { return "fake" }

func (f *fakeStore) Upsert(ctx context.Context, s scope.Scope, records []vectorstore.Record) error {
	return nil
}

func (f *fakeStore) Query(ctx context.Context, s scope.Scope, vector []float32, opts vectorstore.QueryOptions) ([]vectorstore.Hit, error) {
	hits := f.hits
	if opts.TopK > 0 && len(hits) > opts.TopK {
		hits = hits[:opts.TopK]
	}
	return hits, nil
}

func (f *fakeStore) DeleteByIDs(ctx context.Context, s scope.Scope, ids []string) error { return nil }
func (f *fakeStore) DeleteScope(ctx context.Context, s scope.Scope) error               { return nil }

func (f *fakeStore) GetContentHashes(ctx context.Context, s scope.Scope) (map[string]string, error) {
	return nil, nil
}

func (f *fakeStore) RecordScope(ctx context.Context, info vectorstore.ScopeInfo) error { return nil }

func (f *fakeStore) ListScopes(ctx context.Context, projectID string) ([]vectorstore.ScopeInfo, error) {
	return nil, nil
}

func (f *fakeStore) Health(ctx context.Context) vectorstore.Health {
	return vectorstore.Health{OK: true}
}

func (f *fakeStore) Close() error { return nil }

var _ vectorstore.Provider = (*fakeStore)(nil)

func makeHit(id, url string, score float32, chunkText string) vectorstore.Hit {
	return vectorstore.Hit{
		ID:    id,
		Score: score,
		Metadata: map[string]any{
			"url":       url,
			"path":      url,
			"chunkText": chunkText,
		},
	}
}

func TestEngine_Search_Unit(t *testing.T) {
	t.Run("rejects empty query", func(t *testing.T) {
		e := &Engine{Store: &fakeStore{}, Embedder: newFakeEmbedder(t)}
		_, err := e.Search(context.Background(), Request{Q: "  "})
		assert.Error(t, err)
	})

	t.Run("returns ANN hits unranked when rerank is off", func(t *testing.T) {
		store := &fakeStore{hits: []vectorstore.Hit{
			makeHit("k1", "/a", 0.9, "chunk a"),
			makeHit("k2", "/b", 0.8, "chunk b"),
		}}
		e := &Engine{Store: store, Embedder: newFakeEmbedder(t)}

		resp, err := e.Search(context.Background(), Request{Q: "hello", TopK: 10})

		require.NoError(t, err)
		require.Len(t, resp.Results, 2)
		assert.Equal(t, "/a", resp.Results[0].URL)
		assert.False(t, resp.Meta.UsedRerank)
	})

	t.Run("truncates to topK", func(t *testing.T) {
		store := &fakeStore{hits: []vectorstore.Hit{
			makeHit("k1", "/a", 0.9, "a"),
			makeHit("k2", "/b", 0.8, "b"),
			makeHit("k3", "/c", 0.7, "c"),
		}}
		e := &Engine{Store: store, Embedder: newFakeEmbedder(t)}

		resp, err := e.Search(context.Background(), Request{Q: "hello", TopK: 2})

		require.NoError(t, err)
		assert.Len(t, resp.Results, 2)
	})

	t.Run("groupBy page aggregates chunks under one URL", func(t *testing.T) {
		store := &fakeStore{hits: []vectorstore.Hit{
			makeHit("k1", "/a", 0.9, "a1"),
			makeHit("k2", "/a", 0.85, "a2"),
			makeHit("k3", "/b", 0.5, "b1"),
		}}
		e := &Engine{Store: store, Embedder: newFakeEmbedder(t)}

		resp, err := e.Search(context.Background(), Request{Q: "hello", TopK: 10, GroupBy: GroupByPage})

		require.NoError(t, err)
		require.Len(t, resp.Results, 2)
		assert.Equal(t, "/a", resp.Results[0].URL)
		require.Len(t, resp.Results[0].Chunks, 1)
		assert.Equal(t, "k2", resp.Results[0].Chunks[0].ChunkKey)
	})

	t.Run("rerank off by default even when requested without a reranker", func(t *testing.T) {
		store := &fakeStore{hits: []vectorstore.Hit{makeHit("k1", "/a", 0.9, "a")}}
		e := &Engine{Store: store, Embedder: newFakeEmbedder(t)}

		resp, err := e.Search(context.Background(), Request{Q: "hello", TopK: 10, Rerank: true})

		require.NoError(t, err)
		assert.False(t, resp.Meta.UsedRerank)
	})

	t.Run("rerank runs the merge path and keeps every hit", func(t *testing.T) {
		store := &fakeStore{hits: []vectorstore.Hit{
			makeHit("k1", "/a", 0.9, "a"),
			makeHit("k2", "/b", 0.8, "b"),
			makeHit("k3", "/c", 0.7, "c"),
		}}
		rr, err := rerank.New(rerank.Config{Provider: "none"})
		require.NoError(t, err)
		e := &Engine{Store: store, Embedder: newFakeEmbedder(t), Reranker: noneRerankerOverride{rr}, RerankTopN: 3}

		resp, err := e.Search(context.Background(), Request{Q: "hello", TopK: 3, Rerank: true})

		require.NoError(t, err)
		require.Len(t, resp.Results, 3)
		assert.True(t, resp.Meta.UsedRerank)
	})
}

// noneRerankerOverride wraps the "none" reranker but reports a
// non-"none" Name so the engine's useRerank gate treats it as a real
// reranker, letting the test exercise the rerank/merge code path with
// a deterministic zero-score response.
type noneRerankerOverride struct {
	rerank.Reranker
}

func (noneRerankerOverride) Name() string { return "fake-rerank" }
