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

package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregpriday/searchsocket/internal/retry"
)

func testBatcher(srv *httptest.Server) *Batcher {
	b := New("test-key")
	b.baseURL = srv.URL
	b.client = srv.Client()
	return b
}

// The API may return data items out of input order; they carry their
// original index and must be reassembled positionally.
func TestEmbedBatchReordersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 3)

		// respond in reverse order
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 2, "embedding": []float32{2}},
				{"index": 0, "embedding": []float32{0}},
				{"index": 1, "embedding": []float32{1}},
			},
		})
	}))
	defer srv.Close()

	vectors, err := testBatcher(srv).EmbedBatch(context.Background(), []string{"a", "b", "c"}, "text-embedding-3-small", "retrieval.passage")
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i := range vectors {
		assert.Equal(t, []float32{float32(i)}, vectors[i])
	}
}

func TestEmbedBatch429IsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	_, err := testBatcher(srv).EmbedBatch(context.Background(), []string{"a"}, "", "retrieval.passage")
	require.Error(t, err)

	var re *retry.RetryableError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusTooManyRequests, re.Status)
	assert.Equal(t, "rate limited", re.Body)
}

func TestEmbedBatch400SurfacesImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid model"}}`))
	}))
	defer srv.Close()

	_, err := testBatcher(srv).EmbedBatch(context.Background(), []string{"a"}, "bogus", "retrieval.passage")
	require.Error(t, err)

	var re *retry.RetryableError
	assert.False(t, errors.As(err, &re))
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "invalid model")
}

func TestEstimateTokensPositive(t *testing.T) {
	b := New("test-key")
	n := b.EstimateTokens("hello world, this is a sentence about documentation")
	assert.Greater(t, n, int64(0))
}
