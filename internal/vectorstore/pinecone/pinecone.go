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

// Package pinecone implements vectorstore.Provider against a Pinecone
// index, one namespace per scope. A single configured index carries
// every scope: an index is a heavier-weight, separately-provisioned
// resource than the scopes this module creates on demand.
package pinecone

import (
	"context"
	"fmt"
	"strings"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gregpriday/searchsocket/internal/scope"
	"github.com/gregpriday/searchsocket/internal/urlpath"
	"github.com/gregpriday/searchsocket/internal/vectorstore"
)

// maxDirBuckets bounds how many ancestor-directory metadata fields
// each record carries for path-prefix filtering. Pinecone's metadata
// filters only support equality predicates, so prefix matching is
// done by matching the prefix against the dirN field at its own
// depth; prefixes deeper than this fall back to client-side
// filtering.
const maxDirBuckets = 8

func init() {
	vectorstore.Register(vectorstore.TypePinecone, func(cfg vectorstore.Config) (vectorstore.Provider, error) {
		if cfg.Pinecone == nil {
			return nil, fmt.Errorf("pinecone: vector.pinecone config block is required")
		}
		return New(*cfg.Pinecone)
	})
}

// Store is the Pinecone-backed Provider.
type Store struct {
	client    *pinecone.Client
	indexName string
	indexHost string
}

// New constructs a Store. cfg.APIKey and cfg.IndexName are required.
func New(cfg vectorstore.PineconeConfig) (*Store, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("pinecone: api key is required")
	}
	if cfg.IndexName == "" {
		return nil, fmt.Errorf("pinecone: index name is required")
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("pinecone: new client: %w", err)
	}

	return &Store{client: client, indexName: cfg.IndexName, indexHost: cfg.IndexHost}, nil
}

func (s *Store) Name() string { return "pinecone" }

func namespace(sc scope.Scope) string {
	return sc.ProjectID + "__" + sc.ScopeName
}

func (s *Store) conn(ctx context.Context, ns string) (*pinecone.IndexConnection, error) {
	host := s.indexHost
	if host == "" {
		idx, err := s.client.DescribeIndex(ctx, s.indexName)
		if err != nil {
			return nil, fmt.Errorf("pinecone: describe index: %w", err)
		}
		host = idx.Host
	}
	return s.client.Index(pinecone.NewIndexConnParams{Host: host, Namespace: ns})
}

func toStruct(m map[string]any) (*pinecone.Metadata, error) {
	if len(m) == 0 {
		return nil, nil
	}
	// structpb rejects []string; widen to []any first.
	widened := make(map[string]any, len(m))
	for k, v := range m {
		if ss, ok := v.([]string); ok {
			anys := make([]any, len(ss))
			for i, s := range ss {
				anys[i] = s
			}
			widened[k] = anys
			continue
		}
		widened[k] = v
	}
	st, err := structpb.NewStruct(widened)
	if err != nil {
		return nil, fmt.Errorf("pinecone: metadata conversion: %w", err)
	}
	return st, nil
}

func (s *Store) Upsert(ctx context.Context, sc scope.Scope, records []vectorstore.Record) error {
	conn, err := s.conn(ctx, namespace(sc))
	if err != nil {
		return err
	}
	defer conn.Close()

	vecs := make([]*pinecone.Vector, 0, len(records))
	for _, r := range records {
		meta, err := toStruct(enrichForFiltering(r.Metadata))
		if err != nil {
			return err
		}
		vecs = append(vecs, &pinecone.Vector{Id: r.ID, Values: r.Vector, Metadata: meta})
	}

	const batchSize = 100
	for i := 0; i < len(vecs); i += batchSize {
		end := i + batchSize
		if end > len(vecs) {
			end = len(vecs)
		}
		if _, err := conn.UpsertVectors(ctx, vecs[i:end]); err != nil {
			return fmt.Errorf("pinecone: upsert: %w", err)
		}
	}
	return nil
}

func (s *Store) Query(ctx context.Context, sc scope.Scope, vector []float32, opts vectorstore.QueryOptions) ([]vectorstore.Hit, error) {
	conn, err := s.conn(ctx, namespace(sc))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	filter := map[string]any{}
	if opts.PathPrefix != "" {
		prefix := strings.TrimSuffix(opts.PathPrefix, "/")
		depth := len(strings.Split(strings.Trim(prefix, "/"), "/"))
		if prefix != "" && depth <= maxDirBuckets {
			filter[fmt.Sprintf("dir%d", depth-1)] = map[string]any{"$eq": prefix}
		}
	}
	for _, t := range opts.Tags {
		filter["tag_"+t] = map[string]any{"$eq": true}
	}

	var metaFilter *pinecone.MetadataFilter
	if len(filter) > 0 {
		metaFilter, err = toStruct(filter)
		if err != nil {
			return nil, err
		}
	}

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(opts.TopK),
		MetadataFilter:  metaFilter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("pinecone: query: %w", err)
	}

	hits := make([]vectorstore.Hit, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		var meta map[string]any
		if m.Vector.Metadata != nil {
			meta = m.Vector.Metadata.AsMap()
		}
		hits = append(hits, vectorstore.Hit{ID: m.Vector.Id, Score: m.Score, Metadata: meta})
	}

	if opts.PathPrefix != "" {
		filtered := hits[:0]
		for _, h := range hits {
			if p, _ := h.Metadata["path"].(string); urlpath.HasPathPrefix(p, opts.PathPrefix) {
				filtered = append(filtered, h)
			}
		}
		hits = filtered
	}
	return hits, nil
}

// enrichForFiltering copies metadata and adds the dir0..dirN ancestor
// buckets and per-tag boolean fields the query-time equality filters
// rely on.
func enrichForFiltering(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+maxDirBuckets)
	for k, v := range m {
		out[k] = v
	}
	if path, ok := m["path"].(string); ok && path != "" && path != "/" {
		segs := strings.Split(strings.Trim(path, "/"), "/")
		acc := ""
		for i, seg := range segs {
			if i >= maxDirBuckets {
				break
			}
			acc += "/" + seg
			out[fmt.Sprintf("dir%d", i)] = acc
		}
	}
	if tags, ok := m["tags"].([]string); ok {
		for _, t := range tags {
			out["tag_"+t] = true
		}
	}
	return out
}

func (s *Store) DeleteByIDs(ctx context.Context, sc scope.Scope, ids []string) error {
	conn, err := s.conn(ctx, namespace(sc))
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.DeleteVectorsById(ctx, ids); err != nil {
		return fmt.Errorf("pinecone: delete: %w", err)
	}
	return nil
}

func (s *Store) DeleteScope(ctx context.Context, sc scope.Scope) error {
	conn, err := s.conn(ctx, namespace(sc))
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.DeleteAllVectorsInNamespace(ctx); err != nil {
		return fmt.Errorf("pinecone: delete scope namespace: %w", err)
	}

	reg, err := s.conn(ctx, "__scopes")
	if err != nil {
		return err
	}
	defer reg.Close()
	if err := reg.DeleteVectorsById(ctx, []string{sc.ProjectID + ":" + sc.ScopeName}); err != nil {
		return fmt.Errorf("pinecone: delete scope registry: %w", err)
	}
	return nil
}

// GetContentHashes lists vector IDs and their contentHash metadata for
// a scope. Pinecone has no bulk list-with-metadata call, so this pages
// through ListVectors and fetches metadata in batches.
func (s *Store) GetContentHashes(ctx context.Context, sc scope.Scope) (map[string]string, error) {
	conn, err := s.conn(ctx, namespace(sc))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	out := make(map[string]string)
	var paginationToken *string
	for {
		resp, err := conn.ListVectors(ctx, &pinecone.ListVectorsRequest{PaginationToken: paginationToken})
		if err != nil {
			return nil, fmt.Errorf("pinecone: list vectors: %w", err)
		}
		ids := make([]string, 0, len(resp.VectorIds))
		for _, id := range resp.VectorIds {
			if id != nil {
				ids = append(ids, *id)
			}
		}
		if len(ids) > 0 {
			fetched, err := conn.FetchVectors(ctx, ids)
			if err != nil {
				return nil, fmt.Errorf("pinecone: fetch vectors: %w", err)
			}
			for id, v := range fetched.Vectors {
				if v.Metadata != nil {
					m := v.Metadata.AsMap()
					if h, ok := m["contentHash"].(string); ok {
						out[id] = h
					}
				}
			}
		}
		if resp.NextPaginationToken == nil || *resp.NextPaginationToken == "" {
			break
		}
		paginationToken = resp.NextPaginationToken
	}
	return out, nil
}

// RecordScope and ListScopes have no natural home in a pure vector
// index API; Pinecone carries no side-channel document store, so the
// registry is kept in a dedicated "__scopes" namespace of the same
// index, one zero-vector record per scope.
func (s *Store) RecordScope(ctx context.Context, info vectorstore.ScopeInfo) error {
	conn, err := s.conn(ctx, "__scopes")
	if err != nil {
		return err
	}
	defer conn.Close()

	meta, err := toStruct(map[string]any{
		"projectId":                 info.ProjectID,
		"scopeName":                 info.ScopeName,
		"modelId":                   info.ModelID,
		"lastIndexedAt":             info.LastIndexedAt,
		"vectorCount":               info.VectorCount,
		"lastEstimateTokens":        info.LastEstimateTokens,
		"lastEstimateCostUSD":       info.LastEstimateCostUSD,
		"lastEstimateChangedChunks": info.LastEstimateChangedChunks,
	})
	if err != nil {
		return err
	}

	dim := 8
	vec := make([]float32, dim)
	_, err = conn.UpsertVectors(ctx, []*pinecone.Vector{{
		Id:       info.ProjectID + ":" + info.ScopeName,
		Values:   vec,
		Metadata: meta,
	}})
	if err != nil {
		return fmt.Errorf("pinecone: record scope: %w", err)
	}
	return nil
}

func (s *Store) ListScopes(ctx context.Context, projectID string) ([]vectorstore.ScopeInfo, error) {
	conn, err := s.conn(ctx, "__scopes")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var out []vectorstore.ScopeInfo
	var paginationToken *string
	for {
		resp, err := conn.ListVectors(ctx, &pinecone.ListVectorsRequest{PaginationToken: paginationToken})
		if err != nil {
			return nil, fmt.Errorf("pinecone: list scopes: %w", err)
		}
		ids := make([]string, 0, len(resp.VectorIds))
		for _, id := range resp.VectorIds {
			if id != nil {
				ids = append(ids, *id)
			}
		}
		if len(ids) > 0 {
			fetched, err := conn.FetchVectors(ctx, ids)
			if err != nil {
				return nil, fmt.Errorf("pinecone: fetch scopes: %w", err)
			}
			for _, v := range fetched.Vectors {
				if v.Metadata == nil {
					continue
				}
				m := v.Metadata.AsMap()
				pid, _ := m["projectId"].(string)
				if pid != projectID {
					continue
				}
				out = append(out, scopeInfoFromMap(m))
			}
		}
		if resp.NextPaginationToken == nil || *resp.NextPaginationToken == "" {
			break
		}
		paginationToken = resp.NextPaginationToken
	}
	return out, nil
}

func scopeInfoFromMap(m map[string]any) vectorstore.ScopeInfo {
	toInt := func(v any) int {
		f, _ := v.(float64)
		return int(f)
	}
	toInt64 := func(v any) int64 {
		f, _ := v.(float64)
		return int64(f)
	}
	toFloat := func(v any) float64 {
		f, _ := v.(float64)
		return f
	}
	str := func(v any) string {
		s, _ := v.(string)
		return s
	}
	return vectorstore.ScopeInfo{
		ProjectID:                 str(m["projectId"]),
		ScopeName:                 str(m["scopeName"]),
		ModelID:                   str(m["modelId"]),
		LastIndexedAt:             str(m["lastIndexedAt"]),
		VectorCount:               toInt(m["vectorCount"]),
		LastEstimateTokens:        toInt64(m["lastEstimateTokens"]),
		LastEstimateCostUSD:       toFloat(m["lastEstimateCostUSD"]),
		LastEstimateChangedChunks: toInt(m["lastEstimateChangedChunks"]),
	}
}

func (s *Store) Health(ctx context.Context) vectorstore.Health {
	if _, err := s.client.ListIndexes(ctx); err != nil {
		return vectorstore.Health{OK: false, Details: err.Error()}
	}
	return vectorstore.Health{OK: true, Details: "pinecone reachable"}
}

func (s *Store) Close() error { return nil }

var _ vectorstore.Provider = (*Store)(nil)
