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

// Package search implements the search engine and the merge
// policy: embed the query, run ANN recall, optionally rerank,
// merge orderings, group, and format the response.
//
// When reranking is enabled the vector query widens to the rerank
// candidate count before the final truncation to topK.
package search

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/gregpriday/searchsocket/internal/apperr"
	"github.com/gregpriday/searchsocket/internal/embed"
	"github.com/gregpriday/searchsocket/internal/rerank"
	"github.com/gregpriday/searchsocket/internal/scope"
	"github.com/gregpriday/searchsocket/internal/vectorstore"
)

// GroupBy selects the result shape.
type GroupBy string

const (
	GroupByChunk GroupBy = "chunk"
	GroupByPage  GroupBy = "page"
)

// Request is the inbound search payload.
type Request struct {
	Q          string
	TopK       int
	Scope      scope.Scope
	PathPrefix string
	Tags       []string
	Rerank     bool
	GroupBy    GroupBy
}

// Result is one chunk-level (or page-representative) search result.
type Result struct {
	ChunkKey      string
	URL           string
	Path          string
	Title         string
	SectionTitle  string
	HeadingPath   []string
	Snippet       string
	ChunkText     string
	Score         float32
	Tags          []string
	RouteFile     string
	Depth         int
	IncomingLinks int
	Description   string
	Keywords      string

	// Chunks holds up to 3 additional best-scoring chunks for the
	// same URL when GroupBy=page; nil for chunk-level results.
	Chunks []Result
}

// Timings records per-phase latency in milliseconds.
type Timings struct {
	EmbedMs  int64
	VectorMs int64
	RerankMs int64
	TotalMs  int64
}

// Meta is the response envelope's metadata.
type Meta struct {
	Timings    Timings
	UsedRerank bool
	ModelID    string
}

// Response is the formatted search result.
type Response struct {
	Q       string
	Scope   scope.Scope
	Results []Result
	Meta    Meta
}

// Event is one item of the streaming search variant:
// "initial" always precedes "reranked" for the same Q/Scope.
type Event struct {
	Phase string // "initial" | "reranked"
	Data  *Response
}

// RankingConfig exposes the linear-factor score combination:
// finalScore = rerankScore +
// weights.incomingLinks*log1p(incomingLinks) + weights.depth*(1/(1+depth)).
type RankingConfig struct {
	EnableIncomingLinkBoost bool
	EnableDepthBoost        bool
	WeightIncomingLinks     float64
	WeightDepth             float64
	WeightRerank            float64
}

// Engine is the search engine.
type Engine struct {
	Store            vectorstore.Provider
	Embedder         *embed.Embedder
	Reranker         rerank.Reranker
	RerankTopN       int
	MaxDisplacement  int
	Ranking          RankingConfig
	EmbeddingModelID string
}

// DefaultMaxDisplacement is the merge policy's default threshold.
const DefaultMaxDisplacement = 3

// Search executes one query end to end.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	q := strings.TrimSpace(req.Q)
	if q == "" {
		return nil, apperr.New(apperr.CodeInvalidRequest, "q must be non-empty")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	embedStart := time.Now()
	vecs, err := e.Embedder.EmbedTexts(ctx, []string{q}, embed.TaskRetrievalQuery)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeEmbeddingProviderFailed, "embed query", err)
	}
	embedMs := time.Since(embedStart).Milliseconds()
	if len(vecs) == 0 || vecs[0] == nil {
		return nil, apperr.New(apperr.CodeEmbeddingProviderFailed, "query embedding returned no vector")
	}

	fetchK := topK
	useRerank := req.Rerank && e.Reranker != nil && e.Reranker.Name() != "none"
	if useRerank {
		rerankTopN := e.RerankTopN
		if rerankTopN <= 0 {
			rerankTopN = topK
		}
		if rerankTopN > topK {
			fetchK = rerankTopN
		}
	}

	vectorStart := time.Now()
	rawHits, err := e.Store.Query(ctx, req.Scope, vecs[0], vectorstore.QueryOptions{
		TopK:       fetchK,
		PathPrefix: req.PathPrefix,
		Tags:       req.Tags,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeVectorBackendUnavailable, "vector query", err)
	}
	vectorMs := time.Since(vectorStart).Milliseconds()

	hits := toHits(rawHits)

	var rerankMs int64
	if useRerank {
		rerankStart := time.Now()
		candidates := make([]rerank.Candidate, 0, len(hits))
		for _, h := range hits {
			text, _ := h.Metadata["chunkText"].(string)
			candidates = append(candidates, rerank.Candidate{ID: h.ID, Text: text})
		}
		scored, err := e.Reranker.Rerank(ctx, q, candidates, e.RerankTopN)
		rerankMs = time.Since(rerankStart).Milliseconds()
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeRerankFailed, "rerank", err)
		}
		maxDisp := e.MaxDisplacement
		if maxDisp == 0 {
			maxDisp = DefaultMaxDisplacement
		}
		hits = mergeOrder(hits, scored, maxDisp)
	}

	e.applyRankingBoost(hits)
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}

	results := toResults(hits)
	if req.GroupBy == GroupByPage {
		results = groupByPage(results)
	}

	return &Response{
		Q:       q,
		Scope:   req.Scope,
		Results: results,
		Meta: Meta{
			Timings: Timings{
				EmbedMs:  embedMs,
				VectorMs: vectorMs,
				RerankMs: rerankMs,
				TotalMs:  time.Since(start).Milliseconds(),
			},
			UsedRerank: useRerank,
			ModelID:    e.EmbeddingModelID,
		},
	}, nil
}

// SearchStreaming yields an "initial" event with the pre-rerank
// response, then (only when reranking is requested) a "reranked" event
// with the final response, preserving strict ordering on the same
// query and scope.
func (e *Engine) SearchStreaming(ctx context.Context, req Request) (<-chan Event, error) {
	if strings.TrimSpace(req.Q) == "" {
		return nil, apperr.New(apperr.CodeInvalidRequest, "q must be non-empty")
	}

	ch := make(chan Event, 2)
	go func() {
		defer close(ch)

		initialReq := req
		initialReq.Rerank = false
		initial, err := e.Search(ctx, initialReq)
		if err != nil {
			return
		}
		ch <- Event{Phase: "initial", Data: initial}

		if !req.Rerank {
			return
		}
		final, err := e.Search(ctx, req)
		if err != nil {
			return
		}
		ch <- Event{Phase: "reranked", Data: final}
	}()
	return ch, nil
}

// GetPage fetches the canonical representative result for pathOrUrl by
// querying the store for the best chunk under that path prefix. It is
// a thin convenience over Store.Query rather than a distinct store method,
// since the vector store has no single-page getter of its own.
func (e *Engine) GetPage(ctx context.Context, sc scope.Scope, pathOrUrl string) (*Result, error) {
	hashes, err := e.Store.GetContentHashes(ctx, sc)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeVectorBackendUnavailable, "get page", err)
	}
	if len(hashes) == 0 {
		return nil, apperr.New(apperr.CodeInvalidRequest, "page not found: "+pathOrUrl)
	}
	// A zero vector still recalls every record in the scope; the
	// query's only purpose here is enumerating hits to filter by path.
	zero := make([]float32, 1)
	hits, err := e.Store.Query(ctx, sc, zero, vectorstore.QueryOptions{TopK: len(hashes), PathPrefix: pathOrUrl})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeVectorBackendUnavailable, "get page query", err)
	}
	if len(hits) == 0 {
		return nil, apperr.New(apperr.CodeInvalidRequest, "page not found: "+pathOrUrl)
	}
	sorted := toResults(toHits(hits))
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	return &sorted[0], nil
}

func toHits(raw []vectorstore.Hit) []Hit {
	out := make([]Hit, len(raw))
	for i, h := range raw {
		url, _ := h.Metadata["url"].(string)
		out[i] = Hit{ID: h.ID, URL: url, Score: h.Score, Metadata: h.Metadata}
	}
	return out
}

func toResults(hits []Hit) []Result {
	out := make([]Result, len(hits))
	for i, h := range hits {
		out[i] = resultFromMetadata(h.ID, h.Score, h.Metadata)
	}
	return out
}

func resultFromMetadata(chunkKey string, score float32, m map[string]any) Result {
	get := func(k string) string { s, _ := m[k].(string); return s }
	getInt := func(k string) int {
		switch v := m[k].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		default:
			return 0
		}
	}
	var headingPath []string
	if hp, ok := m["headingPath"].([]string); ok {
		headingPath = hp
	} else if hp, ok := m["headingPath"].(string); ok && hp != "" {
		headingPath = strings.Split(hp, ",")
	}
	var tags []string
	if t, ok := m["tags"].([]string); ok {
		tags = t
	} else if t, ok := m["tags"].(string); ok && t != "" {
		tags = strings.Split(t, ",")
	}

	return Result{
		ChunkKey:      chunkKey,
		URL:           get("url"),
		Path:          get("path"),
		Title:         get("title"),
		SectionTitle:  get("sectionTitle"),
		HeadingPath:   headingPath,
		Snippet:       get("snippet"),
		ChunkText:     get("chunkText"),
		Score:         score,
		Tags:          tags,
		RouteFile:     get("routeFile"),
		Depth:         getInt("depth"),
		IncomingLinks: getInt("incomingLinks"),
		Description:   get("description"),
		Keywords:      get("keywords"),
	}
}

// applyRankingBoost mutates hits' scores in place: a linear
// combination of the rerank/ANN score with incoming-link and depth
// boosts.
func (e *Engine) applyRankingBoost(hits []Hit) {
	if !e.Ranking.EnableIncomingLinkBoost && !e.Ranking.EnableDepthBoost {
		return
	}
	for i := range hits {
		score := float64(hits[i].Score) * e.Ranking.rerankWeight()
		if e.Ranking.EnableIncomingLinkBoost {
			incoming := metadataInt(hits[i].Metadata, "incomingLinks")
			score += e.Ranking.WeightIncomingLinks * math.Log1p(float64(incoming))
		}
		if e.Ranking.EnableDepthBoost {
			depth := metadataInt(hits[i].Metadata, "depth")
			score += e.Ranking.WeightDepth * (1.0 / (1.0 + float64(depth)))
		}
		hits[i].Score = float32(score)
	}
}

func (r RankingConfig) rerankWeight() float64 {
	if r.WeightRerank != 0 {
		return r.WeightRerank
	}
	return 1.0
}

func metadataInt(m map[string]any, k string) int {
	switch v := m[k].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// groupByPage aggregates chunk-level results by URL: the highest-scoring chunk per URL becomes the representative,
// up to 3 next-best chunks for that URL are attached, and the groups
// are sorted by representative score.
func groupByPage(results []Result) []Result {
	byURL := make(map[string][]Result)
	var order []string
	for _, r := range results {
		if _, ok := byURL[r.URL]; !ok {
			order = append(order, r.URL)
		}
		byURL[r.URL] = append(byURL[r.URL], r)
	}

	grouped := make([]Result, 0, len(order))
	for _, url := range order {
		chunks := byURL[url]
		sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Score > chunks[j].Score })
		rep := chunks[0]
		if len(chunks) > 1 {
			extra := chunks[1:]
			if len(extra) > 3 {
				extra = extra[:3]
			}
			rep.Chunks = extra
		}
		grouped = append(grouped, rep)
	}
	sort.SliceStable(grouped, func(i, j int) bool { return grouped[i].Score > grouped[j].Score })
	return grouped
}
