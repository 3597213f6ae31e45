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

// Package turso implements vectorstore.Provider against a Turso
// (libsql) database over database/sql.
//
// Turso stores vectors as opaque BLOBs, so cosine similarity is
// computed at query time over the scope-filtered subset. Path-prefix
// filtering rides on SQL equality/LIKE predicates; directory-bucket
// columns (dir0..dirN) are populated on upsert for backends and
// queries that want pure equality filters.
package turso

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/gregpriday/searchsocket/internal/scope"
	"github.com/gregpriday/searchsocket/internal/vectorstore"
)

func init() {
	vectorstore.Register(vectorstore.TypeTurso, func(cfg vectorstore.Config) (vectorstore.Provider, error) {
		if cfg.Turso == nil {
			return nil, fmt.Errorf("turso: vector.turso config block is required")
		}
		return New(*cfg.Turso)
	})
}

const maxDirBuckets = 8

// Store is the Turso/libsql-backed Provider.
type Store struct {
	db        *sql.DB
	tableName string
}

// New opens (creating schema if absent) a Turso-backed Store.
func New(cfg vectorstore.TursoConfig) (*Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("turso: database URL is required")
	}
	table := cfg.TableName
	if table == "" {
		table = "searchsocket_chunks"
	}

	dsn := cfg.DatabaseURL
	if cfg.AuthToken != "" {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn = dsn + sep + "authToken=" + cfg.AuthToken
	}

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("turso: open: %w", err)
	}

	s := &Store{db: db, tableName: table}
	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	dirCols := make([]string, maxDirBuckets)
	for i := range dirCols {
		dirCols[i] = fmt.Sprintf("dir%d TEXT", i)
	}
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		project_id TEXT NOT NULL,
		scope_name TEXT NOT NULL,
		id TEXT NOT NULL,
		vector BLOB NOT NULL,
		content_hash TEXT NOT NULL,
		path TEXT NOT NULL,
		tags TEXT NOT NULL,
		metadata TEXT NOT NULL,
		%s,
		PRIMARY KEY (project_id, scope_name, id)
	)`, s.tableName, strings.Join(dirCols, ",\n\t\t"))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("turso: create table: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS searchsocket_scopes (
		project_id TEXT NOT NULL,
		scope_name TEXT NOT NULL,
		model_id TEXT NOT NULL,
		last_indexed_at TEXT NOT NULL,
		vector_count INTEGER NOT NULL,
		last_estimate_tokens INTEGER NOT NULL,
		last_estimate_cost_usd REAL NOT NULL,
		last_estimate_changed_chunks INTEGER NOT NULL,
		PRIMARY KEY (project_id, scope_name)
	)`); err != nil {
		return fmt.Errorf("turso: create scopes table: %w", err)
	}
	return nil
}

func (s *Store) Name() string { return "turso" }

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func dirBuckets(path string) [maxDirBuckets]string {
	var out [maxDirBuckets]string
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i < maxDirBuckets && i < len(segs); i++ {
		out[i] = segs[i]
	}
	return out
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

func (s *Store) Upsert(ctx context.Context, sc scope.Scope, records []vectorstore.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("turso: begin: %w", err)
	}
	defer tx.Rollback()

	dirCols := make([]string, maxDirBuckets)
	dirPlaceholders := make([]string, maxDirBuckets)
	for i := range dirCols {
		dirCols[i] = fmt.Sprintf("dir%d", i)
		dirPlaceholders[i] = "?"
	}
	stmt := fmt.Sprintf(`INSERT INTO %s
		(project_id, scope_name, id, vector, content_hash, path, tags, metadata, %s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, %s)
		ON CONFLICT(project_id, scope_name, id) DO UPDATE SET
		vector=excluded.vector, content_hash=excluded.content_hash,
		path=excluded.path, tags=excluded.tags, metadata=excluded.metadata`,
		s.tableName, strings.Join(dirCols, ", "), strings.Join(dirPlaceholders, ", "))

	for _, r := range records {
		path, _ := r.Metadata["path"].(string)
		contentHash, _ := r.Metadata["contentHash"].(string)
		metaJSON, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("turso: marshal metadata: %w", err)
		}
		dirs := dirBuckets(path)
		args := []any{sc.ProjectID, sc.ScopeName, r.ID, encodeVector(r.Vector), contentHash, path, strings.Join(tagsOf(r.Metadata), ","), string(metaJSON)}
		for _, d := range dirs {
			args = append(args, d)
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("turso: upsert: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) Query(ctx context.Context, sc scope.Scope, vector []float32, opts vectorstore.QueryOptions) ([]vectorstore.Hit, error) {
	where := "project_id = ? AND scope_name = ?"
	args := []any{sc.ProjectID, sc.ScopeName}
	if opts.PathPrefix != "" {
		prefix := strings.TrimSuffix(opts.PathPrefix, "/")
		where += " AND (path = ? OR path LIKE ?)"
		args = append(args, prefix, prefix+"/%")
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, vector, tags, metadata FROM %s WHERE %s`, s.tableName, where), args...)
	if err != nil {
		return nil, fmt.Errorf("turso: query: %w", err)
	}
	defer rows.Close()

	var hits []vectorstore.Hit
	for rows.Next() {
		var id, tagsCSV, metaJSON string
		var vecBlob []byte
		if err := rows.Scan(&id, &vecBlob, &tagsCSV, &metaJSON); err != nil {
			return nil, fmt.Errorf("turso: scan: %w", err)
		}
		if len(opts.Tags) > 0 && !hasAllTags(tagsCSV, opts.Tags) {
			continue
		}
		var meta map[string]any
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("turso: unmarshal metadata: %w", err)
		}
		score := cosine(vector, decodeVector(vecBlob))
		hits = append(hits, vectorstore.Hit{ID: id, Score: score, Metadata: meta})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if opts.TopK > 0 && len(hits) > opts.TopK {
		hits = hits[:opts.TopK]
	}
	return hits, nil
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

func (s *Store) DeleteByIDs(ctx context.Context, sc scope.Scope, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := []any{sc.ProjectID, sc.ScopeName}
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE project_id = ? AND scope_name = ? AND id IN (%s)`, s.tableName, strings.Join(placeholders, ","))
	_, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("turso: delete by ids: %w", err)
	}
	return nil
}

func (s *Store) DeleteScope(ctx context.Context, sc scope.Scope) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE project_id = ? AND scope_name = ?`, s.tableName), sc.ProjectID, sc.ScopeName); err != nil {
		return fmt.Errorf("turso: delete scope chunks: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM searchsocket_scopes WHERE project_id = ? AND scope_name = ?`, sc.ProjectID, sc.ScopeName); err != nil {
		return fmt.Errorf("turso: delete scope registry: %w", err)
	}
	return nil
}

func (s *Store) GetContentHashes(ctx context.Context, sc scope.Scope) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, content_hash FROM %s WHERE project_id = ? AND scope_name = ?`, s.tableName), sc.ProjectID, sc.ScopeName)
	if err != nil {
		return nil, fmt.Errorf("turso: get content hashes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, err
		}
		out[id] = hash
	}
	return out, rows.Err()
}

func (s *Store) RecordScope(ctx context.Context, info vectorstore.ScopeInfo) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO searchsocket_scopes
		(project_id, scope_name, model_id, last_indexed_at, vector_count, last_estimate_tokens, last_estimate_cost_usd, last_estimate_changed_chunks)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, scope_name) DO UPDATE SET
		model_id=excluded.model_id, last_indexed_at=excluded.last_indexed_at,
		vector_count=excluded.vector_count, last_estimate_tokens=excluded.last_estimate_tokens,
		last_estimate_cost_usd=excluded.last_estimate_cost_usd,
		last_estimate_changed_chunks=excluded.last_estimate_changed_chunks`,
		info.ProjectID, info.ScopeName, info.ModelID, info.LastIndexedAt, info.VectorCount,
		info.LastEstimateTokens, info.LastEstimateCostUSD, info.LastEstimateChangedChunks)
	if err != nil {
		return fmt.Errorf("turso: record scope: %w", err)
	}
	return nil
}

func (s *Store) ListScopes(ctx context.Context, projectID string) ([]vectorstore.ScopeInfo, error) {
	const pageSize = 1000
	var out []vectorstore.ScopeInfo
	offset := 0
	for {
		rows, err := s.db.QueryContext(ctx, `SELECT project_id, scope_name, model_id, last_indexed_at, vector_count,
			last_estimate_tokens, last_estimate_cost_usd, last_estimate_changed_chunks
			FROM searchsocket_scopes WHERE project_id = ? ORDER BY scope_name LIMIT ? OFFSET ?`,
			projectID, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("turso: list scopes: %w", err)
		}
		n := 0
		for rows.Next() {
			var info vectorstore.ScopeInfo
			if err := rows.Scan(&info.ProjectID, &info.ScopeName, &info.ModelID, &info.LastIndexedAt,
				&info.VectorCount, &info.LastEstimateTokens, &info.LastEstimateCostUSD, &info.LastEstimateChangedChunks); err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, info)
			n++
		}
		rows.Close()
		if n < pageSize {
			break
		}
		offset += pageSize
	}
	return out, nil
}

func (s *Store) Health(ctx context.Context) vectorstore.Health {
	if err := s.db.PingContext(ctx); err != nil {
		return vectorstore.Health{OK: false, Details: err.Error()}
	}
	return vectorstore.Health{OK: true, Details: "turso reachable"}
}

func (s *Store) Close() error {
	return s.db.Close()
}

var _ vectorstore.Provider = (*Store)(nil)
