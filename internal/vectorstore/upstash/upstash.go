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

// Package upstash implements vectorstore.Provider against Upstash
// Redis via go-redis/v9; Upstash Redis speaks the Redis wire
// protocol, so no dedicated SDK is needed.
//
// Each chunk is a Redis hash keyed "ss:{projectId}:{scopeName}:chunk:{id}",
// with its id tracked in a per-scope set so the scope can be listed,
// queried, and deleted as a unit. Vectors are opaque BLOBs (a binary
// string field), so cosine similarity is computed at
// query time over the scope-filtered subset.
package upstash

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/gregpriday/searchsocket/internal/scope"
	"github.com/gregpriday/searchsocket/internal/vectorstore"
)

func init() {
	vectorstore.Register(vectorstore.TypeUpstash, func(cfg vectorstore.Config) (vectorstore.Provider, error) {
		if cfg.Upstash == nil {
			return nil, fmt.Errorf("upstash: vector.upstash config block is required")
		}
		return New(*cfg.Upstash)
	})
}

// Store is the Upstash-Redis-backed Provider.
type Store struct {
	client *redis.Client
	prefix string
}

// New constructs a Store from cfg. cfg.URL is a redis:// or rediss://
// connection string as issued by the Upstash console.
func New(cfg vectorstore.UpstashConfig) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("upstash: url is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("upstash: parse url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "ss"
	}
	return &Store{client: redis.NewClient(opts), prefix: prefix}, nil
}

func (s *Store) Name() string { return "upstash" }

func (s *Store) scopeSetKey(sc scope.Scope) string {
	return fmt.Sprintf("%s:%s:%s:ids", s.prefix, sc.ProjectID, sc.ScopeName)
}

func (s *Store) chunkKey(sc scope.Scope, id string) string {
	return fmt.Sprintf("%s:%s:%s:chunk:%s", s.prefix, sc.ProjectID, sc.ScopeName, id)
}

func (s *Store) scopesSetKey(projectID string) string {
	return fmt.Sprintf("%s:%s:scopes", s.prefix, projectID)
}

func (s *Store) scopeInfoKey(projectID, scopeName string) string {
	return fmt.Sprintf("%s:%s:scope-info:%s", s.prefix, projectID, scopeName)
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b string) []float32 {
	raw := []byte(b)
	v := make([]float32, len(raw)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return v
}

func (s *Store) Upsert(ctx context.Context, sc scope.Scope, records []vectorstore.Record) error {
	pipe := s.client.Pipeline()
	for _, r := range records {
		path, _ := r.Metadata["path"].(string)
		contentHash, _ := r.Metadata["contentHash"].(string)
		tags := tagsOf(r.Metadata)
		metaJSON, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("upstash: marshal metadata: %w", err)
		}
		key := s.chunkKey(sc, r.ID)
		pipe.HSet(ctx, key, map[string]any{
			"vector":      string(encodeVector(r.Vector)),
			"contentHash": contentHash,
			"path":        path,
			"tags":        strings.Join(tags, ","),
			"metadata":    string(metaJSON),
		})
		pipe.SAdd(ctx, s.scopeSetKey(sc), r.ID)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("upstash: upsert: %w", err)
	}
	return nil
}

func tagsOf(m map[string]any) []string {
	if raw, ok := m["tags"].([]string); ok {
		return raw
	}
	if raw, ok := m["tags"].(string); ok && raw != "" {
		return strings.Split(raw, ",")
	}
	return nil
}

func hasAllTags(csv string, want []string) bool {
	have := make(map[string]bool)
	for _, t := range strings.Split(csv, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			have[t] = true
		}
	}
	for _, w := range want {
		if !have[w] {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Query scans every chunk id tracked for the scope and computes cosine
// similarity client-side. Path-prefix and tag filters are
// applied before scoring since Redis has no native vector index here.
func (s *Store) Query(ctx context.Context, sc scope.Scope, vector []float32, opts vectorstore.QueryOptions) ([]vectorstore.Hit, error) {
	ids, err := s.client.SMembers(ctx, s.scopeSetKey(sc)).Result()
	if err != nil {
		return nil, fmt.Errorf("upstash: smembers: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.chunkKey(sc, id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("upstash: query hgetall: %w", err)
	}

	var hits []vectorstore.Hit
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		if opts.PathPrefix != "" {
			prefix := strings.TrimSuffix(opts.PathPrefix, "/")
			path := fields["path"]
			if path != prefix && !strings.HasPrefix(path, prefix+"/") {
				continue
			}
		}
		if len(opts.Tags) > 0 && !hasAllTags(fields["tags"], opts.Tags) {
			continue
		}
		var meta map[string]any
		if err := json.Unmarshal([]byte(fields["metadata"]), &meta); err != nil {
			continue
		}
		score := cosine(vector, decodeVector(fields["vector"]))
		hits = append(hits, vectorstore.Hit{ID: ids[i], Score: score, Metadata: meta})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if opts.TopK > 0 && len(hits) > opts.TopK {
		hits = hits[:opts.TopK]
	}
	return hits, nil
}

func (s *Store) DeleteByIDs(ctx context.Context, sc scope.Scope, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.chunkKey(sc, id))
		pipe.SRem(ctx, s.scopeSetKey(sc), id)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("upstash: delete by ids: %w", err)
	}
	return nil
}

func (s *Store) DeleteScope(ctx context.Context, sc scope.Scope) error {
	ids, err := s.client.SMembers(ctx, s.scopeSetKey(sc)).Result()
	if err != nil {
		return fmt.Errorf("upstash: delete scope smembers: %w", err)
	}
	if err := s.DeleteByIDs(ctx, sc, ids); err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.scopeSetKey(sc))
	pipe.SRem(ctx, s.scopesSetKey(sc.ProjectID), sc.ScopeName)
	pipe.Del(ctx, s.scopeInfoKey(sc.ProjectID, sc.ScopeName))
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("upstash: delete scope: %w", err)
	}
	return nil
}

func (s *Store) GetContentHashes(ctx context.Context, sc scope.Scope) (map[string]string, error) {
	ids, err := s.client.SMembers(ctx, s.scopeSetKey(sc)).Result()
	if err != nil {
		return nil, fmt.Errorf("upstash: get content hashes smembers: %w", err)
	}
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGet(ctx, s.chunkKey(sc, id), "contentHash")
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("upstash: get content hashes: %w", err)
	}
	for i, cmd := range cmds {
		if v, err := cmd.Result(); err == nil {
			out[ids[i]] = v
		}
	}
	return out, nil
}

func (s *Store) RecordScope(ctx context.Context, info vectorstore.ScopeInfo) error {
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, s.scopeInfoKey(info.ProjectID, info.ScopeName), map[string]any{
		"modelId":                   info.ModelID,
		"lastIndexedAt":             info.LastIndexedAt,
		"vectorCount":               strconv.Itoa(info.VectorCount),
		"lastEstimateTokens":        strconv.FormatInt(info.LastEstimateTokens, 10),
		"lastEstimateCostUSD":       fmt.Sprintf("%f", info.LastEstimateCostUSD),
		"lastEstimateChangedChunks": strconv.Itoa(info.LastEstimateChangedChunks),
	})
	pipe.SAdd(ctx, s.scopesSetKey(info.ProjectID), info.ScopeName)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("upstash: record scope: %w", err)
	}
	return nil
}

func (s *Store) ListScopes(ctx context.Context, projectID string) ([]vectorstore.ScopeInfo, error) {
	names, err := s.client.SMembers(ctx, s.scopesSetKey(projectID)).Result()
	if err != nil {
		return nil, fmt.Errorf("upstash: list scopes smembers: %w", err)
	}
	out := make([]vectorstore.ScopeInfo, 0, len(names))
	for _, name := range names {
		fields, err := s.client.HGetAll(ctx, s.scopeInfoKey(projectID, name)).Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		vc, _ := strconv.Atoi(fields["vectorCount"])
		tok, _ := strconv.ParseInt(fields["lastEstimateTokens"], 10, 64)
		cost, _ := strconv.ParseFloat(fields["lastEstimateCostUSD"], 64)
		chg, _ := strconv.Atoi(fields["lastEstimateChangedChunks"])
		out = append(out, vectorstore.ScopeInfo{
			ProjectID:                 projectID,
			ScopeName:                 name,
			ModelID:                   fields["modelId"],
			LastIndexedAt:             fields["lastIndexedAt"],
			VectorCount:               vc,
			LastEstimateTokens:        tok,
			LastEstimateCostUSD:       cost,
			LastEstimateChangedChunks: chg,
		})
	}
	return out, nil
}

func (s *Store) Health(ctx context.Context) vectorstore.Health {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return vectorstore.Health{OK: false, Details: err.Error()}
	}
	return vectorstore.Health{OK: true, Details: "upstash reachable"}
}

func (s *Store) Close() error {
	return s.client.Close()
}

var _ vectorstore.Provider = (*Store)(nil)
