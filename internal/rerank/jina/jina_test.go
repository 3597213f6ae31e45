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

package jina

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregpriday/searchsocket/internal/rerank"
	"github.com/gregpriday/searchsocket/internal/retry"
)

func testReranker(srv *httptest.Server) *Reranker {
	return &Reranker{
		apiKey:  "test-key",
		model:   "jina-reranker-v2-base-multilingual",
		baseURL: srv.URL,
		client:  srv.Client(),
		retryer: retry.New(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, JitterFactor: 0.1}),
	}
}

func candidates(ids ...string) []rerank.Candidate {
	out := make([]rerank.Candidate, len(ids))
	for i, id := range ids {
		out[i] = rerank.Candidate{ID: id, Text: "text for " + id}
	}
	return out
}

func TestRerankMapsIndicesToIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Documents, 3)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 1, "relevance_score": 0.9},
				{"index": 0, "relevance_score": 0.5},
				{"index": 2, "relevance_score": 0.1},
			},
		})
	}))
	defer srv.Close()

	scored, err := testReranker(srv).Rerank(context.Background(), "query", candidates("/a", "/b", "/c"), 3)
	require.NoError(t, err)
	require.Len(t, scored, 3)
	assert.Equal(t, "/b", scored[0].ID)
	assert.Equal(t, float32(0.9), scored[0].Score)
	assert.Equal(t, "/a", scored[1].ID)
	assert.Equal(t, "/c", scored[2].ID)
}

// An index outside the candidate set is silently dropped.
func TestRerankDropsInvalidIndices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 0, "relevance_score": 0.8},
				{"index": 99, "relevance_score": 0.7},
				{"index": -1, "relevance_score": 0.6},
			},
		})
	}))
	defer srv.Close()

	scored, err := testReranker(srv).Rerank(context.Background(), "query", candidates("/a", "/b"), 2)
	require.NoError(t, err)
	require.Len(t, scored, 1)
	assert.Equal(t, "/a", scored[0].ID)
}

func TestRerankRetriesOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"index": 0, "relevance_score": 1.0}},
		})
	}))
	defer srv.Close()

	scored, err := testReranker(srv).Rerank(context.Background(), "query", candidates("/a"), 1)
	require.NoError(t, err)
	require.Len(t, scored, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRerankMalformedPayloadErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := testReranker(srv).Rerank(context.Background(), "query", candidates("/a"), 1)
	require.Error(t, err)
}

func TestRerankEmptyCandidates(t *testing.T) {
	scored, err := (&Reranker{}).Rerank(context.Background(), "query", nil, 5)
	require.NoError(t, err)
	assert.Nil(t, scored)
}
