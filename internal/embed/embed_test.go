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

package embed

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregpriday/searchsocket/internal/retry"
)

// fakeBatcher encodes each text's global position into its vector so
// the test can verify positional correspondence after reassembly.
type fakeBatcher struct {
	batchCalls atomic.Int32
	failFirst  atomic.Bool
}

func (f *fakeBatcher) Name() string { return "fake" }

func (f *fakeBatcher) EmbedBatch(ctx context.Context, texts []string, model string, task Task) ([][]float32, error) {
	f.batchCalls.Add(1)
	if f.failFirst.CompareAndSwap(true, false) {
		return nil, &retry.RetryableError{Status: 503, Body: "transient"}
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		var pos float32
		fmt.Sscanf(text, "text-%f", &pos)
		out[i] = []float32{pos}
	}
	return out, nil
}

func (f *fakeBatcher) EstimateTokens(text string) int64 { return int64(len(text) / 4) }

func newTestEmbedder(raw RawBatcher, batchSize, concurrency int) *Embedder {
	return &Embedder{
		raw:         raw,
		model:       "fake-model",
		batchSize:   batchSize,
		concurrency: concurrency,
		retryer:     retry.New(retry.Config{MaxAttempts: 3, BaseDelay: 1, MaxDelay: 1, JitterFactor: 0.1}),
	}
}

// Output order matches input order regardless of batching and
// concurrency.
func TestEmbedTextsPreservesOrder(t *testing.T) {
	fake := &fakeBatcher{}
	e := newTestEmbedder(fake, 3, 4)

	texts := make([]string, 20)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}

	vectors, err := e.EmbedTexts(context.Background(), texts, TaskRetrievalPassage)
	require.NoError(t, err)
	require.Len(t, vectors, 20)
	for i, v := range vectors {
		require.Len(t, v, 1)
		assert.Equal(t, float32(i), v[0], "position %d", i)
	}
	// 20 texts in batches of 3 -> 7 batch calls
	assert.Equal(t, int32(7), fake.batchCalls.Load())
}

func TestEmbedTextsRetriesTransientBatchFailure(t *testing.T) {
	fake := &fakeBatcher{}
	fake.failFirst.Store(true)
	e := newTestEmbedder(fake, 10, 1)

	vectors, err := e.EmbedTexts(context.Background(), []string{"text-0", "text-1"}, TaskRetrievalPassage)
	require.NoError(t, err)
	require.Len(t, vectors, 2)
}

func TestEmbedTextsEmptyInput(t *testing.T) {
	e := newTestEmbedder(&fakeBatcher{}, 10, 1)
	vectors, err := e.EmbedTexts(context.Background(), nil, TaskRetrievalPassage)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestNewRejectsNonPositiveBatchSize(t *testing.T) {
	_, err := New(Config{Provider: "openai", BatchSize: 0})
	require.Error(t, err)
	_, err = New(Config{Provider: "openai", BatchSize: -5})
	require.Error(t, err)
}
