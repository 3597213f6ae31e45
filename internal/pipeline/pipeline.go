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

// Package pipeline implements the index pipeline: resolve
// scope, load sources, extract, build the link graph, map routes,
// chunk, diff against the remote store, embed, upsert, delete stale,
// record scope. The remote store's content hashes are the sole input
// to the diff; no local manifest participates.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gregpriday/searchsocket/internal/apperr"
	"github.com/gregpriday/searchsocket/internal/chunk"
	"github.com/gregpriday/searchsocket/internal/config"
	"github.com/gregpriday/searchsocket/internal/embed"
	"github.com/gregpriday/searchsocket/internal/extract"
	"github.com/gregpriday/searchsocket/internal/mirror"
	"github.com/gregpriday/searchsocket/internal/routemap"
	"github.com/gregpriday/searchsocket/internal/scope"
	"github.com/gregpriday/searchsocket/internal/source"
	"github.com/gregpriday/searchsocket/internal/urlpath"
	"github.com/gregpriday/searchsocket/internal/vectorstore"
)

const (
	maxUpsertBatch = 100
	upsertFanOut   = 4
	maxDeleteBatch = 100
)

// Options are the per-run knobs.
type Options struct {
	ScopeOverride  string
	ChangedOnly    bool
	Force          bool
	DryRun         bool
	SourceOverride string
	MaxPages       int
	MaxChunks      int
	WriteMirror    bool

	// StrictRouteMapping, when true and Routes is populated, fails the
	// run with ROUTE_MAPPING_FAILED on any best-effort route resolution
	// instead of proceeding with the best guess.
	StrictRouteMapping bool
}

// Stats is the pipeline's output.
type Stats struct {
	Scope            scope.Scope
	PagesLoaded      int
	PagesIndexed     int
	PagesDropped     int
	ChunksTotal      int
	ChunksToUpsert   int
	ChunksToDelete   int
	Upserted         int
	Deleted          int
	EstimatedTokens  int64
	EstimatedCostUSD float64
	DryRun           bool
	Warnings         []string
	Elapsed          time.Duration
}

// Pipeline wires the components a run needs. Embedder and Store are
// required; Routes and the mirror/checkpoint paths are optional.
type Pipeline struct {
	Config   *config.Config
	Store    vectorstore.Provider
	Embedder *embed.Embedder
	Routes   routemap.Routes // optional: known route files for C6

	checkpointEnabled bool
}

// New constructs a Pipeline ready to Run.
func New(cfg *config.Config, store vectorstore.Provider, embedder *embed.Embedder, routes routemap.Routes) *Pipeline {
	return &Pipeline{Config: cfg, Store: store, Embedder: embedder, Routes: routes, checkpointEnabled: true}
}

// Run executes all eleven phases. It is not safe to call
// concurrently on the same Pipeline; callers serialize.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Stats, error) {
	start := time.Now()
	var warnings []string

	// Phase 1: resolve scope.
	scopeCfg := scopeConfigFrom(p.Config, opts.ScopeOverride)
	sc, err := scope.Resolve(ctx, p.Config.Project.ID, scopeCfg)
	if err != nil {
		return nil, err
	}

	cm := NewCheckpointManager(p.Config.State.Dir, sc.ID(), p.checkpointEnabled && !opts.DryRun)
	if _, err := cm.Load(); err != nil {
		warnings = append(warnings, err.Error())
	}

	// Phase 2: load sources.
	pages, srcWarnings, err := p.loadSources(ctx, opts)
	if err != nil {
		return nil, err
	}
	for _, w := range srcWarnings {
		warnings = append(warnings, fmt.Sprintf("%s: %s", w.URL, w.Message))
	}

	maxPages := opts.MaxPages
	if maxPages < 0 {
		maxPages = 0
	}
	if maxPages > 0 && len(pages) > maxPages {
		pages = pages[:maxPages]
	}

	// Phase 3: extract, dedupe by URL (first wins), drop noindex/empty.
	extracted := make([]extract.ExtractedPage, 0, len(pages))
	seenURL := make(map[string]bool)
	extractCfg := extractConfigFrom(p.Config)
	for _, ps := range pages {
		var ep *extract.ExtractedPage
		var err error
		switch {
		case ps.HTML != "":
			ep, err = extract.HTML(ps.URL, ps.HTML, extractCfg)
		default:
			ep, err = extract.Markdown(ps.URL, ps.Markdown, "")
		}
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %s", ps.URL, err.Error()))
			continue
		}
		if ep.Noindex {
			continue
		}
		canon := urlpath.Normalize(ep.URL)
		if seenURL[canon] {
			continue
		}
		seenURL[canon] = true
		ep.URL = canon
		if len(ps.OutgoingLinks) > 0 && len(ep.OutgoingLinks) == 0 {
			ep.OutgoingLinks = ps.OutgoingLinks
		}
		extracted = append(extracted, *ep)
	}

	// Phase 4: link graph.
	incoming := make(map[string]int, len(extracted))
	for _, ep := range extracted {
		seen := make(map[string]bool, len(ep.OutgoingLinks))
		for _, link := range ep.OutgoingLinks {
			canon := urlpath.Normalize(link)
			if seen[canon] {
				continue
			}
			seen[canon] = true
			incoming[canon]++
		}
	}

	// Phase 5: route mapping.
	type mapped struct {
		page            extract.ExtractedPage
		routeFile       string
		routeResolution routemap.Resolution
		depth           int
	}
	mappedPages := make([]mapped, 0, len(extracted))
	for _, ep := range extracted {
		var routeFile string
		var resolution routemap.Resolution = routemap.ResolutionBestEffort
		if p.Routes != nil {
			routeFile, resolution = routemap.Resolve(ep.URL, p.Routes)
			if opts.StrictRouteMapping && resolution == routemap.ResolutionBestEffort {
				return nil, apperr.Newf(apperr.CodeRouteMappingFailed, "no exact route mapping for %q", ep.URL)
			}
		}
		mappedPages = append(mappedPages, mapped{
			page:            ep,
			routeFile:       routeFile,
			routeResolution: resolution,
			depth:           urlpath.Depth(ep.URL),
		})
	}

	// Phase 6: chunk.
	chunkCfg := chunkConfigFrom(p.Config)
	var allChunks []chunk.Chunk
	for _, mp := range mappedPages {
		pageChunks := chunk.Split(chunk.PageInput{
			ScopeName:     sc.ScopeName,
			URL:           mp.page.URL,
			Path:          mp.page.URL,
			Title:         mp.page.Title,
			Markdown:      mp.page.Markdown,
			Depth:         mp.depth,
			IncomingLinks: incoming[mp.page.URL],
			RouteFile:     mp.routeFile,
			Tags:          mp.page.Tags,
			Description:   mp.page.Description,
			Keywords:      mp.page.Keywords,
		}, chunkCfg)
		allChunks = append(allChunks, pageChunks...)

		if opts.WriteMirror && p.Config.State.Dir != "" {
			_, werr := mirror.Write(p.Config.State.Dir, mirror.Page{
				URL:             mp.page.URL,
				Title:           mp.page.Title,
				Scope:           sc.ScopeName,
				RouteFile:       mp.routeFile,
				RouteResolution: string(mp.routeResolution),
				GeneratedAt:     time.Now(),
				IncomingLinks:   incoming[mp.page.URL],
				OutgoingLinks:   len(mp.page.OutgoingLinks),
				Depth:           mp.depth,
				Tags:            mp.page.Tags,
				Markdown:        mp.page.Markdown,
			})
			if werr != nil {
				warnings = append(warnings, werr.Error())
			}
		}
	}
	if opts.MaxChunks > 0 && len(allChunks) > opts.MaxChunks {
		allChunks = allChunks[:opts.MaxChunks]
	}

	// Phase 7: diff.
	remoteHashes, err := p.Store.GetContentHashes(ctx, sc)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeVectorBackendUnavailable, "get content hashes", err)
	}

	newHashes := make(map[string]string, len(allChunks))
	byKey := make(map[string]chunk.Chunk, len(allChunks))
	for _, c := range allChunks {
		newHashes[c.ChunkKey] = c.ContentHash
		byKey[c.ChunkKey] = c
	}

	// to-delete is the same regardless of force/changedOnly: every
	// remote key absent from the fresh chunk set.
	var toDelete []string
	for k := range remoteHashes {
		if _, ok := newHashes[k]; !ok {
			toDelete = append(toDelete, k)
		}
	}

	var toUpsert []chunk.Chunk
	if opts.ChangedOnly && !opts.Force {
		for k, c := range byKey {
			if remoteHashes[k] != c.ContentHash {
				toUpsert = append(toUpsert, c)
			}
		}
	} else {
		// force, or changedOnly=false && force=false: re-upsert everything.
		for _, c := range byKey {
			toUpsert = append(toUpsert, c)
		}
	}
	sort.Slice(toUpsert, func(i, j int) bool { return toUpsert[i].ChunkKey < toUpsert[j].ChunkKey })
	sort.Strings(toDelete)

	stats := &Stats{
		Scope:          sc,
		PagesLoaded:    len(pages),
		PagesIndexed:   len(extracted),
		PagesDropped:   len(pages) - len(extracted),
		ChunksTotal:    len(allChunks),
		ChunksToUpsert: len(toUpsert),
		ChunksToDelete: len(toDelete),
		DryRun:         opts.DryRun,
		Warnings:       warnings,
	}

	// Cost estimation: reported even in dry-run.
	var estTokens int64
	for _, c := range toUpsert {
		estTokens += p.Embedder.EstimateTokens(c.ChunkText)
	}
	stats.EstimatedTokens = estTokens
	stats.EstimatedCostUSD = estimateCostUSD(estTokens, p.Embedder.ModelID())

	if opts.DryRun {
		stats.Elapsed = time.Since(start)
		return stats, nil
	}

	// Phase 8: embed.
	texts := make([]string, len(toUpsert))
	for i, c := range toUpsert {
		texts[i] = c.ChunkText
	}
	vectors, err := p.Embedder.EmbedTexts(ctx, texts, embed.TaskRetrievalPassage)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeEmbeddingProviderFailed, "embed chunks", err)
	}

	records := make([]vectorstore.Record, len(toUpsert))
	for i, c := range toUpsert {
		records[i] = vectorstore.Record{
			ID:     c.ChunkKey,
			Vector: vectors[i],
			Metadata: map[string]any{
				"chunkKey":      c.ChunkKey,
				"ordinal":       c.Ordinal,
				"projectId":     sc.ProjectID,
				"scopeName":     sc.ScopeName,
				"modelId":       p.Embedder.ModelID(),
				"url":           c.URL,
				"path":          c.Path,
				"title":         c.Title,
				"sectionTitle":  c.SectionTitle,
				"headingPath":   c.HeadingPath,
				"chunkText":     c.ChunkText,
				"snippet":       c.Snippet,
				"depth":         c.Depth,
				"incomingLinks": c.IncomingLinks,
				"routeFile":     c.RouteFile,
				"tags":          c.Tags,
				"contentHash":   c.ContentHash,
				"description":   c.Description,
				"keywords":      c.Keywords,
			},
		}
	}

	// Phase 9: upsert, batched <=100, bounded parallelism <=4.
	upserted, err := p.runBatched(ctx, records, maxUpsertBatch, upsertFanOut, func(ctx context.Context, batch []vectorstore.Record) error {
		if err := p.Store.Upsert(ctx, sc, batch); err != nil {
			return apperr.Wrap(apperr.CodeVectorBackendUnavailable, "upsert batch", err)
		}
		for _, r := range batch {
			cm.RecordUpserted(r.ID)
		}
		return nil
	})
	stats.Upserted = upserted
	if err != nil {
		_ = cm.Save()
		return stats, err
	}

	// Phase 10: delete stale.
	deleted, err := p.runBatchedIDs(ctx, toDelete, maxDeleteBatch, upsertFanOut, func(ctx context.Context, batch []string) error {
		if err := p.Store.DeleteByIDs(ctx, sc, batch); err != nil {
			return apperr.Wrap(apperr.CodeVectorBackendUnavailable, "delete stale batch", err)
		}
		return nil
	})
	stats.Deleted = deleted
	if err != nil {
		_ = cm.Save()
		return stats, err
	}

	// Phase 11: record scope.
	if err := p.Store.RecordScope(ctx, vectorstore.ScopeInfo{
		ProjectID:                 sc.ProjectID,
		ScopeName:                 sc.ScopeName,
		ModelID:                   p.Embedder.ModelID(),
		LastIndexedAt:             time.Now().UTC().Format(time.RFC3339),
		VectorCount:               len(newHashes),
		LastEstimateTokens:        estTokens,
		LastEstimateCostUSD:       stats.EstimatedCostUSD,
		LastEstimateChangedChunks: len(toUpsert),
	}); err != nil {
		return stats, apperr.Wrap(apperr.CodeVectorBackendUnavailable, "record scope", err)
	}

	_ = cm.Clear()
	stats.Elapsed = time.Since(start)
	return stats, nil
}

func (p *Pipeline) loadSources(ctx context.Context, opts Options) ([]source.PageSource, []source.Warning, error) {
	mode := p.Config.Source.Mode
	if opts.SourceOverride != "" {
		mode = opts.SourceOverride
	}
	switch mode {
	case "static-output":
		return source.LoadStaticOutput(ctx, source.StaticOutputConfig{Dir: p.Config.Source.StaticOutDir})
	case "content-files":
		return source.LoadContentFiles(ctx, source.ContentFilesConfig{BaseDir: p.Config.Source.BaseDir})
	case "crawl":
		return source.LoadCrawledPages(ctx, source.CrawlConfig{
			SitemapURL: p.Config.Source.SitemapURL,
			SeedURLs:   p.Config.Source.SeedURLs,
		})
	case "build":
		return source.LoadBuildPages(ctx, source.BuildConfig{
			BaseURL:  p.Config.Source.BaseURL,
			SeedURLs: p.Config.Source.SeedURLs,
			MaxDepth: p.Config.Source.MaxDepth,
			MaxPages: p.Config.Source.MaxPages,
			Exclude:  p.Config.Source.Exclude,
		})
	default:
		return nil, nil, apperr.Newf(apperr.CodeConfigMissing, "unrecognized source.mode %q", mode)
	}
}

// runBatched partitions items into chunks of at most batchSize and
// runs fn on at most fanOut batches concurrently, returning the total
// item count successfully processed before any error.
func (p *Pipeline) runBatched(ctx context.Context, items []vectorstore.Record, batchSize, fanOut int, fn func(context.Context, []vectorstore.Record) error) (int, error) {
	var processed int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOut)
	var mu sync.Mutex
	var firstErr error

	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[i:end]
		g.Go(func() error {
			if err := fn(gctx, batch); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return err
			}
			atomic.AddInt64(&processed, int64(len(batch)))
			return nil
		})
	}
	_ = g.Wait()
	if firstErr != nil {
		return int(atomic.LoadInt64(&processed)), firstErr
	}
	return int(atomic.LoadInt64(&processed)), nil
}

func (p *Pipeline) runBatchedIDs(ctx context.Context, ids []string, batchSize, fanOut int, fn func(context.Context, []string) error) (int, error) {
	var processed int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOut)
	var mu sync.Mutex
	var firstErr error

	for i := 0; i < len(ids); i += batchSize {
		end := i + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[i:end]
		g.Go(func() error {
			if err := fn(gctx, batch); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return err
			}
			atomic.AddInt64(&processed, int64(len(batch)))
			return nil
		})
	}
	_ = g.Wait()
	if firstErr != nil {
		return int(atomic.LoadInt64(&processed)), firstErr
	}
	return int(atomic.LoadInt64(&processed)), nil
}

func scopeConfigFrom(cfg *config.Config, override string) scope.Config {
	sc := scope.Config{
		Mode:     scope.Mode(cfg.Scope.Mode),
		Fixed:    cfg.Scope.Fixed,
		EnvVar:   cfg.Scope.EnvVar,
		Sanitize: cfg.Scope.Sanitize,
	}
	if override != "" {
		sc.Mode = scope.ModeFixed
		sc.Fixed = override
	}
	return sc
}

func extractConfigFrom(cfg *config.Config) extract.Config {
	return extract.Config{
		MainSelector:         cfg.Extract.MainSelector,
		DropTags:             cfg.Extract.DropTags,
		DropSelectors:        cfg.Extract.DropSelectors,
		IgnoreAttr:           cfg.Extract.IgnoreAttr,
		NoindexAttr:          cfg.Extract.NoindexAttr,
		RespectRobotsNoindex: cfg.Extract.RespectRobotsNoindex,
	}
}

func chunkConfigFrom(cfg *config.Config) chunk.Config {
	return chunk.Config{
		MaxChars:         cfg.Chunking.MaxChars,
		OverlapChars:     cfg.Chunking.OverlapChars,
		MinChars:         cfg.Chunking.MinChars,
		HeadingPathDepth: cfg.Chunking.HeadingPathDepth,
		DontSplitInside:  cfg.Chunking.DontSplitInside,
	}
}

// costPerMillionTokens holds list-price USD-per-million-token rates
// for the embedding models this module wires a provider for. Unlisted
// models fall back to the OpenAI small-embedding rate as a
// conservative estimate.
var costPerMillionTokens = map[string]float64{
	"text-embedding-3-small":  0.02,
	"text-embedding-3-large":  0.13,
	"embed-english-v3.0":      0.10,
	"embed-multilingual-v3.0": 0.10,
}

func estimateCostUSD(tokens int64, model string) float64 {
	rate, ok := costPerMillionTokens[model]
	if !ok {
		rate = costPerMillionTokens["text-embedding-3-small"]
	}
	return float64(tokens) / 1_000_000 * rate
}
