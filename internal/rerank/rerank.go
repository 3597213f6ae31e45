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

// Package rerank implements the reranker contract: rescoring a
// candidate set against a query.
//
// Providers are HTTP cross-encoder services registered by name, the
// same factory shape the vectorstore and embed packages use.
package rerank

import "context"

// Candidate is one item offered to the reranker.
type Candidate struct {
	ID   string
	Text string
}

// Scored is a reranked candidate, sorted descending by Score.
type Scored struct {
	ID    string
	Score float32
}

// Reranker rescores candidates against query. Invalid
// candidate indices in a provider's response are silently dropped;
// a malformed payload is an error.
type Reranker interface {
	Name() string
	Rerank(ctx context.Context, query string, candidates []Candidate, topN int) ([]Scored, error)
}

// Config is the rerank.* configuration block.
type Config struct {
	Provider  string
	TopN      int
	APIKeyEnv string
	Model     string
}

// Factory constructs a Reranker from a Config whose Provider field
// selects it.
type Factory func(cfg Config) (Reranker, error)

var factories = map[string]Factory{
	"none": func(cfg Config) (Reranker, error) { return noneReranker{}, nil },
}

// Register associates a provider name with its constructor. Adapter
// packages call this from an init() func.
func Register(name string, f Factory) {
	factories[name] = f
}

// New constructs a Reranker from cfg via the registered factory for
// cfg.Provider. An empty Provider defaults to "none".
func New(cfg Config) (Reranker, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = "none"
	}
	f, ok := factories[provider]
	if !ok {
		return nil, &unknownProviderError{provider: provider}
	}
	return f(cfg)
}

type unknownProviderError struct{ provider string }

func (e *unknownProviderError) Error() string {
	return "rerank: no provider registered for " + e.provider
}

// noneReranker disables reranking: search.Engine checks rerank.enabled
// before ever calling it, but it is wired as the zero-config default
// so Config.Provider == "" never nil-derefs.
type noneReranker struct{}

func (noneReranker) Name() string { return "none" }

func (noneReranker) Rerank(ctx context.Context, query string, candidates []Candidate, topN int) ([]Scored, error) {
	out := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, Scored{ID: c.ID, Score: 0})
	}
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}
