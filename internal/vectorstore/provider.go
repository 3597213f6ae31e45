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

// Package vectorstore defines the pluggable vector backend interface
// and the scope-registry operations every adapter must
// implement, plus the adapter-selection factory.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/gregpriday/searchsocket/internal/scope"
)

// Record is a vector plus its full metadata payload, ready to upsert.
type Record struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// Hit is a single scored query result.
type Hit struct {
	ID       string
	Score    float32 // cosine similarity, in [-1, 1]
	Metadata map[string]any
}

// QueryOptions narrows a vector query.
type QueryOptions struct {
	TopK       int
	PathPrefix string
	Tags       []string // AND filter
}

// ScopeInfo is the per-scope registry record.
type ScopeInfo struct {
	ProjectID                 string
	ScopeName                 string
	ModelID                   string
	LastIndexedAt             string // RFC3339
	VectorCount               int
	LastEstimateTokens        int64
	LastEstimateCostUSD       float64
	LastEstimateChangedChunks int
}

// Health reports backend reachability.
type Health struct {
	OK      bool
	Details string
}

// Provider is the vector backend contract every adapter implements.
// All operations are scoped: a provider must never let a query for
// one scope return records upserted under another.
type Provider interface {
	Name() string

	Upsert(ctx context.Context, s scope.Scope, records []Record) error
	Query(ctx context.Context, s scope.Scope, vector []float32, opts QueryOptions) ([]Hit, error)
	DeleteByIDs(ctx context.Context, s scope.Scope, ids []string) error
	DeleteScope(ctx context.Context, s scope.Scope) error

	GetContentHashes(ctx context.Context, s scope.Scope) (map[string]string, error)

	RecordScope(ctx context.Context, info ScopeInfo) error
	ListScopes(ctx context.Context, projectID string) ([]ScopeInfo, error)

	Health(ctx context.Context) Health
	Close() error
}

// Type identifies a vector provider implementation.
type Type string

const (
	TypeLocal    Type = "local"
	TypePinecone Type = "pinecone"
	TypeMilvus   Type = "milvus"
	TypeTurso    Type = "turso"
	TypeUpstash  Type = "upstash"
)

// Config selects and configures one adapter.
type Config struct {
	Type Type

	Local    *LocalConfig
	Pinecone *PineconeConfig
	Milvus   *MilvusConfig
	Turso    *TursoConfig
	Upstash  *UpstashConfig
}

// SetDefaults fills in the zero-config fallback: an embedded local
// store.
func (c *Config) SetDefaults() {
	if c.Type == "" {
		c.Type = TypeLocal
	}
	if c.Type == TypeLocal && c.Local == nil {
		c.Local = &LocalConfig{Path: "./.searchsocket/vectors"}
	}
}

// Factory constructs a Provider from a Type and its matching
// sub-config. Adapter packages register themselves via Register to
// avoid an import cycle between this package and the adapter
// packages (which import this package for the interface).
type Factory func(cfg Config) (Provider, error)

var factories = map[Type]Factory{}

// Register associates a provider Type with its constructor. Adapter
// packages call this from an init() func.
func Register(t Type, f Factory) {
	factories[t] = f
}

// New constructs a Provider from cfg via the registered factory for
// cfg.Type.
func New(cfg Config) (Provider, error) {
	cfg.SetDefaults()
	f, ok := factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("no vector provider registered for type %q (forgot to import its package?)", cfg.Type)
	}
	return f(cfg)
}

// LocalConfig configures the embedded chromem-go backed store.
type LocalConfig struct {
	Path string
}

// PineconeConfig configures the Pinecone adapter.
type PineconeConfig struct {
	APIKey      string
	IndexName   string
	IndexHost   string
	Environment string
	Dimension   int
}

// MilvusConfig configures the Milvus adapter.
type MilvusConfig struct {
	Address        string
	CollectionName string
	Dimension      int
	Username       string
	Password       string
}

// TursoConfig configures the Turso (libsql) adapter.
type TursoConfig struct {
	DatabaseURL string
	AuthToken   string
	TableName   string
	Dimension   int
}

// UpstashConfig configures the Upstash (Redis-protocol) adapter.
type UpstashConfig struct {
	URL       string
	Password  string
	KeyPrefix string
	Dimension int
}
