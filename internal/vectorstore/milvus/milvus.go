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

// Package milvus implements vectorstore.Provider against a Milvus
// collection, one collection per scope.
//
// Collections are created lazily on first use, with a VarChar field
// carrying the JSON-encoded
// arbitrary chunk metadata (Milvus schemas are fixed-column, unlike
// Qdrant's free-form payload), and an IVF/cosine index built once per
// collection.
package milvus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	milvusclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/gregpriday/searchsocket/internal/scope"
	"github.com/gregpriday/searchsocket/internal/vectorstore"
)

func init() {
	vectorstore.Register(vectorstore.TypeMilvus, func(cfg vectorstore.Config) (vectorstore.Provider, error) {
		if cfg.Milvus == nil {
			return nil, fmt.Errorf("milvus: vector.milvus config block is required")
		}
		return New(context.Background(), *cfg.Milvus)
	})
}

const (
	fieldID       = "id"
	fieldVector   = "vector"
	fieldMetadata = "metadata"
	fieldPath     = "path"
)

// Store is the Milvus-backed Provider.
type Store struct {
	client client
	dim    int
}

type client interface {
	HasCollection(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, schema *entity.Schema, shardNum int32, opts ...milvusclient.CreateCollectionOption) error
	CreateIndex(ctx context.Context, collName, fieldName string, idx entity.Index, async bool, opts ...milvusclient.IndexOption) error
	LoadCollection(ctx context.Context, collName string, async bool, opts ...milvusclient.LoadCollectionOption) error
	Insert(ctx context.Context, collName, partitionName string, columns ...entity.Column) (entity.Column, error)
	Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string, vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int, sp entity.SearchParam, opts ...milvusclient.SearchQueryOptionFunc) ([]milvusclient.SearchResult, error)
	Delete(ctx context.Context, collName, partitionName, expr string) error
	DropCollection(ctx context.Context, collName string, opts ...milvusclient.DropCollectionOption) error
	Query(ctx context.Context, collName string, partitions []string, expr string, outputFields []string, opts ...milvusclient.SearchQueryOptionFunc) (milvusclient.ResultSet, error)
	Close() error
}

// New dials a Milvus instance at cfg.Address.
func New(ctx context.Context, cfg vectorstore.MilvusConfig) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("milvus: address is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("milvus: dimension is required")
	}

	c, err := milvusclient.NewClient(ctx, milvusclient.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("milvus: connect to %s: %w", cfg.Address, err)
	}

	return &Store{client: c, dim: cfg.Dimension}, nil
}

func (s *Store) Name() string { return "milvus" }

func collectionName(sc scope.Scope) string {
	name := "ss_" + sc.ProjectID + "_" + sc.ScopeName
	return sanitizeIdent(name)
}

func sanitizeIdent(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func (s *Store) ensureCollection(ctx context.Context, name string) error {
	exists, err := s.client.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("milvus: has collection: %w", err)
	}
	if exists {
		return nil
	}

	schema := entity.NewSchema().WithName(name).WithDescription("searchsocket chunks").
		WithField(entity.NewField().WithName(fieldID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(512).WithIsPrimaryKey(true)).
		WithField(entity.NewField().WithName(fieldVector).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dim))).
		WithField(entity.NewField().WithName(fieldPath).WithDataType(entity.FieldTypeVarChar).WithMaxLength(2048)).
		WithField(entity.NewField().WithName(fieldMetadata).WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535))

	if err := s.client.CreateCollection(ctx, schema, 1); err != nil && !strings.Contains(err.Error(), "already exist") {
		return fmt.Errorf("milvus: create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 128)
	if err != nil {
		return fmt.Errorf("milvus: build index params: %w", err)
	}
	if err := s.client.CreateIndex(ctx, name, fieldVector, idx, false); err != nil && !strings.Contains(err.Error(), "already") {
		return fmt.Errorf("milvus: create index: %w", err)
	}
	return s.client.LoadCollection(ctx, name, false)
}

func (s *Store) Upsert(ctx context.Context, sc scope.Scope, records []vectorstore.Record) error {
	name := collectionName(sc)
	if err := s.ensureCollection(ctx, name); err != nil {
		return err
	}

	ids := make([]string, len(records))
	vecs := make([][]float32, len(records))
	paths := make([]string, len(records))
	metas := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
		vecs[i] = r.Vector
		paths[i], _ = r.Metadata["path"].(string)
		raw, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("milvus: marshal metadata: %w", err)
		}
		metas[i] = string(raw)
	}

	_, err := s.client.Insert(ctx, name, "",
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnFloatVector(fieldVector, s.dim, vecs),
		entity.NewColumnVarChar(fieldPath, paths),
		entity.NewColumnVarChar(fieldMetadata, metas),
	)
	if err != nil {
		return fmt.Errorf("milvus: insert: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, sc scope.Scope, vector []float32, opts vectorstore.QueryOptions) ([]vectorstore.Hit, error) {
	name := collectionName(sc)
	if err := s.ensureCollection(ctx, name); err != nil {
		return nil, err
	}

	var expr string
	if opts.PathPrefix != "" {
		prefix := strings.TrimSuffix(opts.PathPrefix, "/")
		expr = fmt.Sprintf("%s == %q or %s like %q", fieldPath, prefix, fieldPath, prefix+"/%")
	}

	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, fmt.Errorf("milvus: search params: %w", err)
	}

	results, err := s.client.Search(ctx, name, nil, expr, []string{fieldMetadata}, []entity.Vector{entity.FloatVector(vector)}, fieldVector, entity.COSINE, opts.TopK, sp)
	if err != nil {
		return nil, fmt.Errorf("milvus: search: %w", err)
	}

	var hits []vectorstore.Hit
	for _, r := range results {
		metaCol, ok := r.Fields.GetColumn(fieldMetadata).(*entity.ColumnVarChar)
		for i := 0; i < r.ResultCount; i++ {
			var meta map[string]any
			if ok {
				_ = json.Unmarshal([]byte(metaCol.Data()[i]), &meta)
			}
			id, _ := r.IDs.GetAsString(i)
			hits = append(hits, vectorstore.Hit{ID: id, Score: r.Scores[i], Metadata: meta})
			if len(opts.Tags) > 0 && !hasAllTags(meta, opts.Tags) {
				hits = hits[:len(hits)-1]
			}
		}
	}
	return hits, nil
}

func hasAllTags(meta map[string]any, want []string) bool {
	raw, _ := meta["tags"].([]any)
	have := make(map[string]bool, len(raw))
	for _, t := range raw {
		if s, ok := t.(string); ok {
			have[s] = true
		}
	}
	for _, w := range want {
		if !have[w] {
			return false
		}
	}
	return true
}

func (s *Store) DeleteByIDs(ctx context.Context, sc scope.Scope, ids []string) error {
	name := collectionName(sc)
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	expr := fmt.Sprintf("%s in [%s]", fieldID, strings.Join(quoted, ","))
	if err := s.client.Delete(ctx, name, "", expr); err != nil {
		return fmt.Errorf("milvus: delete: %w", err)
	}
	return nil
}

func (s *Store) DeleteScope(ctx context.Context, sc scope.Scope) error {
	if err := s.client.DropCollection(ctx, collectionName(sc)); err != nil {
		return fmt.Errorf("milvus: drop collection: %w", err)
	}
	const registry = "ss_scope_registry"
	if ok, err := s.client.HasCollection(ctx, registry); err == nil && ok {
		expr := fmt.Sprintf("%s in [%q]", fieldID, sc.ProjectID+":"+sc.ScopeName)
		if err := s.client.Delete(ctx, registry, "", expr); err != nil {
			return fmt.Errorf("milvus: delete scope registry: %w", err)
		}
	}
	return nil
}

func (s *Store) GetContentHashes(ctx context.Context, sc scope.Scope) (map[string]string, error) {
	name := collectionName(sc)
	if err := s.ensureCollection(ctx, name); err != nil {
		return nil, err
	}

	rs, err := s.client.Query(ctx, name, nil, "", []string{fieldID, fieldMetadata})
	if err != nil {
		return nil, fmt.Errorf("milvus: query: %w", err)
	}

	idCol, _ := rs.GetColumn(fieldID).(*entity.ColumnVarChar)
	metaCol, _ := rs.GetColumn(fieldMetadata).(*entity.ColumnVarChar)
	out := make(map[string]string)
	if idCol == nil || metaCol == nil {
		return out, nil
	}
	for i := range idCol.Data() {
		var meta struct {
			ContentHash string `json:"contentHash"`
		}
		_ = json.Unmarshal([]byte(metaCol.Data()[i]), &meta)
		out[idCol.Data()[i]] = meta.ContentHash
	}
	return out, nil
}

// RecordScope and ListScopes persist to a fixed "ss_scope_registry"
// collection shared across every scope.
func (s *Store) RecordScope(ctx context.Context, info vectorstore.ScopeInfo) error {
	const registry = "ss_scope_registry"
	if err := s.ensureCollection(ctx, registry); err != nil {
		return err
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	id := info.ProjectID + ":" + info.ScopeName
	_, err = s.client.Insert(ctx, registry, "",
		entity.NewColumnVarChar(fieldID, []string{id}),
		entity.NewColumnFloatVector(fieldVector, s.dim, [][]float32{make([]float32, s.dim)}),
		entity.NewColumnVarChar(fieldPath, []string{""}),
		entity.NewColumnVarChar(fieldMetadata, []string{string(raw)}),
	)
	if err != nil {
		return fmt.Errorf("milvus: record scope: %w", err)
	}
	return nil
}

func (s *Store) ListScopes(ctx context.Context, projectID string) ([]vectorstore.ScopeInfo, error) {
	const registry = "ss_scope_registry"
	if err := s.ensureCollection(ctx, registry); err != nil {
		return nil, err
	}

	rs, err := s.client.Query(ctx, registry, nil, "", []string{fieldMetadata})
	if err != nil {
		return nil, fmt.Errorf("milvus: list scopes: %w", err)
	}
	metaCol, _ := rs.GetColumn(fieldMetadata).(*entity.ColumnVarChar)
	if metaCol == nil {
		return nil, nil
	}

	var out []vectorstore.ScopeInfo
	for _, raw := range metaCol.Data() {
		var info vectorstore.ScopeInfo
		if err := json.Unmarshal([]byte(raw), &info); err == nil && info.ProjectID == projectID {
			out = append(out, info)
		}
	}
	return out, nil
}

func (s *Store) Health(ctx context.Context) vectorstore.Health {
	if _, err := s.client.HasCollection(ctx, "ss_scope_registry"); err != nil {
		return vectorstore.Health{OK: false, Details: err.Error()}
	}
	return vectorstore.Health{OK: true, Details: "milvus reachable"}
}

func (s *Store) Close() error { return s.client.Close() }

var _ vectorstore.Provider = (*Store)(nil)
