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

// Package local implements vectorstore.Provider on top of chromem-go,
// the zero-config embedded backend: one chromem collection per scope,
// metadata values stringified (chromem requires string-valued
// metadata), persistence as a single gzip-compressed gob file per
// store path.
package local

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/gregpriday/searchsocket/internal/scope"
	"github.com/gregpriday/searchsocket/internal/urlpath"
	"github.com/gregpriday/searchsocket/internal/vectorstore"
)

func init() {
	vectorstore.Register(vectorstore.TypeLocal, func(cfg vectorstore.Config) (vectorstore.Provider, error) {
		lc := vectorstore.LocalConfig{Path: "./.searchsocket/vectors"}
		if cfg.Local != nil {
			lc = *cfg.Local
		}
		return New(lc)
	})
}

// scopeRegistryCollection holds ScopeInfo rows, one document per
// scope, alongside the per-scope chunk collections.
const scopeRegistryCollection = "__scopes"

// Store is the local chromem-go backed Provider.
type Store struct {
	db   *chromem.DB
	path string

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

func identityEmbed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("local: embedding func invoked but vectors must be precomputed")
}

// New opens (or creates) a local vector store at cfg.Path. An empty
// Path means in-memory only, no persistence across process restarts.
func New(cfg vectorstore.LocalConfig) (*Store, error) {
	var db *chromem.DB

	if cfg.Path != "" {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("local: create store dir: %w", err)
		}
		dbPath := cfg.Path + "/vectors.gob.gz"
		if _, err := os.Stat(dbPath); err == nil {
			loaded, err := chromem.NewPersistentDB(dbPath, true)
			if err != nil {
				db = chromem.NewDB()
			} else {
				db = loaded
			}
		} else {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	return &Store{db: db, path: cfg.Path, collections: make(map[string]*chromem.Collection)}, nil
}

func (s *Store) Name() string { return "local" }

func collectionName(sc scope.Scope) string {
	return "scope_" + sc.ProjectID + "_" + sc.ScopeName
}

func (s *Store) getCollection(name string) (*chromem.Collection, error) {
	s.mu.RLock()
	if c, ok := s.collections[name]; ok {
		s.mu.RUnlock()
		return c, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	c, err := s.db.GetOrCreateCollection(name, nil, identityEmbed)
	if err != nil {
		return nil, err
	}
	s.collections[name] = c
	return c, nil
}

func toStringMetadata(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		switch vv := v.(type) {
		case []string:
			out[k] = strings.Join(vv, ",")
		default:
			out[k] = fmt.Sprint(vv)
		}
	}
	return out
}

func fromStringMetadata(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) Upsert(ctx context.Context, sc scope.Scope, records []vectorstore.Record) error {
	col, err := s.getCollection(collectionName(sc))
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		content := ""
		if c, ok := r.Metadata["chunkText"].(string); ok {
			content = c
		}
		docs = append(docs, chromem.Document{
			ID:        r.ID,
			Content:   content,
			Metadata:  toStringMetadata(r.Metadata),
			Embedding: r.Vector,
		})
	}

	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("local: upsert: %w", err)
	}
	return s.persist()
}

// Query runs a cosine-similarity search against the scope's
// collection. PathPrefix filtering is applied client-side (the whole
// collection already lives in memory), since chromem's WHERE filter
// only supports exact equality.
func (s *Store) Query(ctx context.Context, sc scope.Scope, vector []float32, opts vectorstore.QueryOptions) ([]vectorstore.Hit, error) {
	col, err := s.getCollection(collectionName(sc))
	if err != nil {
		return nil, err
	}

	n := opts.TopK
	if opts.PathPrefix != "" || len(opts.Tags) > 0 {
		n = col.Count()
	}
	if n <= 0 {
		return nil, nil
	}
	if n > col.Count() {
		n = col.Count()
	}
	if n == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("local: query: %w", err)
	}

	hits := make([]vectorstore.Hit, 0, len(results))
	for _, r := range results {
		if opts.PathPrefix != "" && !urlpath.HasPathPrefix(r.Metadata["path"], opts.PathPrefix) {
			continue
		}
		if len(opts.Tags) > 0 && !hasAllTags(r.Metadata["tags"], opts.Tags) {
			continue
		}
		hits = append(hits, vectorstore.Hit{
			ID:       r.ID,
			Score:    r.Similarity,
			Metadata: fromStringMetadata(r.Metadata),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > opts.TopK {
		hits = hits[:opts.TopK]
	}
	return hits, nil
}

func hasAllTags(csv string, want []string) bool {
	have := make(map[string]bool)
	for _, t := range strings.Split(csv, ",") {
		have[strings.TrimSpace(t)] = true
	}
	for _, w := range want {
		if !have[w] {
			return false
		}
	}
	return true
}

func (s *Store) DeleteByIDs(ctx context.Context, sc scope.Scope, ids []string) error {
	col, err := s.getCollection(collectionName(sc))
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("local: delete: %w", err)
	}
	return s.persist()
}

func (s *Store) DeleteScope(ctx context.Context, sc scope.Scope) error {
	s.mu.Lock()
	name := collectionName(sc)
	delete(s.collections, name)
	s.mu.Unlock()

	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("local: delete scope: %w", err)
	}
	reg, err := s.getCollection(scopeRegistryCollection)
	if err != nil {
		return err
	}
	if err := reg.Delete(ctx, nil, nil, sc.ProjectID+":"+sc.ScopeName); err != nil {
		return fmt.Errorf("local: delete scope registry: %w", err)
	}
	return s.persist()
}

func (s *Store) GetContentHashes(ctx context.Context, sc scope.Scope) (map[string]string, error) {
	col, err := s.getCollection(collectionName(sc))
	if err != nil {
		return nil, err
	}

	out := make(map[string]string)
	col.ForEachDocument(func(d chromem.Document) bool {
		if h, ok := d.Metadata["contentHash"]; ok {
			out[d.ID] = h
		}
		return true
	})
	return out, nil
}

func (s *Store) RecordScope(ctx context.Context, info vectorstore.ScopeInfo) error {
	col, err := s.getCollection(scopeRegistryCollection)
	if err != nil {
		return err
	}
	id := info.ProjectID + ":" + info.ScopeName
	meta := map[string]string{
		"projectId":                 info.ProjectID,
		"scopeName":                 info.ScopeName,
		"modelId":                   info.ModelID,
		"lastIndexedAt":             info.LastIndexedAt,
		"vectorCount":               strconv.Itoa(info.VectorCount),
		"lastEstimateTokens":        strconv.FormatInt(info.LastEstimateTokens, 10),
		"lastEstimateCostUSD":       fmt.Sprintf("%f", info.LastEstimateCostUSD),
		"lastEstimateChangedChunks": strconv.Itoa(info.LastEstimateChangedChunks),
	}
	doc := chromem.Document{ID: id, Metadata: meta, Embedding: []float32{0}}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return fmt.Errorf("local: record scope: %w", err)
	}
	return s.persist()
}

func (s *Store) ListScopes(ctx context.Context, projectID string) ([]vectorstore.ScopeInfo, error) {
	col, err := s.getCollection(scopeRegistryCollection)
	if err != nil {
		return nil, err
	}

	var out []vectorstore.ScopeInfo
	col.ForEachDocument(func(d chromem.Document) bool {
		if d.Metadata["projectId"] != projectID {
			return true
		}
		vc, _ := strconv.Atoi(d.Metadata["vectorCount"])
		tok, _ := strconv.ParseInt(d.Metadata["lastEstimateTokens"], 10, 64)
		cost, _ := strconv.ParseFloat(d.Metadata["lastEstimateCostUSD"], 64)
		chg, _ := strconv.Atoi(d.Metadata["lastEstimateChangedChunks"])
		out = append(out, vectorstore.ScopeInfo{
			ProjectID:                 d.Metadata["projectId"],
			ScopeName:                 d.Metadata["scopeName"],
			ModelID:                   d.Metadata["modelId"],
			LastIndexedAt:             d.Metadata["lastIndexedAt"],
			VectorCount:               vc,
			LastEstimateTokens:        tok,
			LastEstimateCostUSD:       cost,
			LastEstimateChangedChunks: chg,
		})
		return true
	})
	return out, nil
}

func (s *Store) Health(ctx context.Context) vectorstore.Health {
	return vectorstore.Health{OK: true, Details: "local store ready"}
}

func (s *Store) Close() error {
	return s.persist()
}

func (s *Store) persist() error {
	if s.path == "" {
		return nil
	}
	//nolint:staticcheck // chromem-go's gob export is the documented persistence path
	if err := s.db.Export(s.path+"/vectors.gob.gz", true, ""); err != nil {
		return fmt.Errorf("local: persist: %w", err)
	}
	return nil
}

var _ vectorstore.Provider = (*Store)(nil)
