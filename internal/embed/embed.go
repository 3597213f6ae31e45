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

// Package embed implements the embeddings provider contract:
// order-preserving batch embedding under bounded concurrency, with
// retry/backoff on transient failures and per-text token estimation
// for cost reporting.
//
// Provider adapters (openai, cohere) register a RawBatcher the way
// vectorstore adapters register a Provider, avoiding an import cycle.
package embed

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/gregpriday/searchsocket/internal/retry"
)

// Task selects the embedding task hint some providers use to bias the
// vector space toward queries or passages.
type Task string

const (
	TaskRetrievalPassage Task = "retrieval.passage"
	TaskRetrievalQuery   Task = "retrieval.query"
)

// RawBatcher performs one HTTP round trip embedding a single batch of
// texts, returning vectors positionally matched to the input. It does
// not itself retry or split batches; Embedder handles that.
type RawBatcher interface {
	Name() string
	EmbedBatch(ctx context.Context, texts []string, model string, task Task) ([][]float32, error)
	EstimateTokens(text string) int64
}

// Config is the embeddings.* configuration block.
type Config struct {
	Provider    string
	Model       string
	APIKeyEnv   string
	BatchSize   int
	Concurrency int
}

// Factory constructs a RawBatcher from a Config whose Provider field
// selects it.
type Factory func(cfg Config) (RawBatcher, error)

var factories = map[string]Factory{}

// Register associates a provider name with its constructor. Adapter
// packages call this from an init() func.
func Register(name string, f Factory) {
	factories[name] = f
}

// Embedder is the orchestrating Provider: it partitions texts into
// batches of at most Config.BatchSize, runs at most Config.Concurrency
// batches concurrently, retries each batch on transient failures, and
// reassembles results in the caller's original order.
type Embedder struct {
	raw         RawBatcher
	model       string
	batchSize   int
	concurrency int
	retryer     *retry.Retryer
}

// New constructs an Embedder from cfg via the registered factory for
// cfg.Provider.
func New(cfg Config) (*Embedder, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("embed: batchSize must be positive, got %d", cfg.BatchSize)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	f, ok := factories[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("embed: no provider registered for %q (forgot to import its package?)", cfg.Provider)
	}
	raw, err := f(cfg)
	if err != nil {
		return nil, err
	}
	return &Embedder{
		raw:         raw,
		model:       cfg.Model,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		retryer:     retry.New(retry.DefaultConfig()),
	}, nil
}

// EmbedTexts embeds every text in texts, preserving positional
// correspondence regardless of internal batching or concurrency. Order across the full result is guaranteed; order
// of execution across batches is not.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string, task Task) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	type batch struct {
		start int
		texts []string
	}
	var batches []batch
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, batch{start: i, texts: texts[i:end]})
	}

	results := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for _, b := range batches {
		b := b
		g.Go(func() error {
			var vectors [][]float32
			err := e.retryer.Do(gctx, fmt.Sprintf("%s.embedBatch", e.raw.Name()), func() error {
				var innerErr error
				vectors, innerErr = e.raw.EmbedBatch(gctx, b.texts, e.model, task)
				return innerErr
			})
			if err != nil {
				return err
			}
			if len(vectors) != len(b.texts) {
				return fmt.Errorf("embed: provider returned %d vectors for %d texts", len(vectors), len(b.texts))
			}
			for i, v := range vectors {
				results[b.start+i] = v
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// EstimateTokens estimates the token count of text, used for the cost
// estimation phase.
func (e *Embedder) EstimateTokens(text string) int64 {
	return e.raw.EstimateTokens(text)
}

// ModelID returns the configured model name, recorded in the scope
// registry and on every upserted chunk's metadata.
func (e *Embedder) ModelID() string {
	return e.model
}
