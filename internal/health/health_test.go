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

package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregpriday/searchsocket/internal/config"
	"github.com/gregpriday/searchsocket/internal/embed"
	"github.com/gregpriday/searchsocket/internal/scope"
	"github.com/gregpriday/searchsocket/internal/vectorstore"
)

type fakeStore struct {
	name   string
	health vectorstore.Health
}

func (f fakeStore) Name() string { return f.name }
func (f fakeStore) Upsert(context.Context, scope.Scope, []vectorstore.Record) error { return nil }
func (f fakeStore) Query(context.Context, scope.Scope, []float32, vectorstore.QueryOptions) ([]vectorstore.Hit, error) {
	return nil, nil
}
func (f fakeStore) DeleteByIDs(context.Context, scope.Scope, []string) error { return nil }
func (f fakeStore) DeleteScope(context.Context, scope.Scope) error           { return nil }
func (f fakeStore) GetContentHashes(context.Context, scope.Scope) (map[string]string, error) {
	return nil, nil
}
func (f fakeStore) RecordScope(context.Context, vectorstore.ScopeInfo) error { return nil }
func (f fakeStore) ListScopes(context.Context, string) ([]vectorstore.ScopeInfo, error) {
	return nil, nil
}
func (f fakeStore) Health(context.Context) vectorstore.Health { return f.health }
func (f fakeStore) Close() error                              { return nil }

type fakeBatcher struct {
	err error
}

func (fakeBatcher) Name() string { return "fake" }

func (b fakeBatcher) EmbedBatch(_ context.Context, texts []string, _ string, _ embed.Task) ([][]float32, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

func (fakeBatcher) EstimateTokens(text string) int64 { return int64(len(text)) }

func newEmbedder(t *testing.T, name string, err error) *embed.Embedder {
	t.Helper()
	embed.Register(name, func(cfg embed.Config) (embed.RawBatcher, error) {
		return fakeBatcher{err: err}, nil
	})
	e, errNew := embed.New(embed.Config{Provider: name, Model: "m", BatchSize: 10, Concurrency: 1})
	require.NoError(t, errNew)
	return e
}

func validConfig() *config.Config {
	c := config.Default()
	c.Project.ID = "p"
	return c
}

func TestRun_AllHealthy(t *testing.T) {
	store := fakeStore{name: "mem", health: vectorstore.Health{OK: true}}
	embedder := newEmbedder(t, "health-ok", nil)

	report := Run(context.Background(), validConfig(), store, embedder)
	assert.True(t, report.OK())
	assert.Len(t, report.Checks, 3)
}

func TestRun_UnhealthyVectorStoreFailsReport(t *testing.T) {
	store := fakeStore{name: "mem", health: vectorstore.Health{OK: false, Details: "connection refused"}}
	embedder := newEmbedder(t, "health-ok-2", nil)

	report := Run(context.Background(), validConfig(), store, embedder)
	assert.False(t, report.OK())
}

func TestRun_EmbedderErrorFailsReport(t *testing.T) {
	store := fakeStore{name: "mem", health: vectorstore.Health{OK: true}}
	embedder := newEmbedder(t, "health-bad", errors.New("401 unauthorized"))

	report := Run(context.Background(), validConfig(), store, embedder)
	assert.False(t, report.OK())
}

func TestRun_MissingProjectIDFailsConfigCheck(t *testing.T) {
	cfg := config.Default()
	store := fakeStore{name: "mem", health: vectorstore.Health{OK: true}}
	embedder := newEmbedder(t, "health-ok-3", nil)

	report := Run(context.Background(), cfg, store, embedder)
	assert.False(t, report.OK())
}

func TestRun_NilDependenciesReportUnhealthyNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		report := Run(context.Background(), validConfig(), nil, nil)
		assert.False(t, report.OK())
	})
}
