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

package main

import (
	"fmt"

	"github.com/gregpriday/searchsocket/internal/apperr"
	"github.com/gregpriday/searchsocket/internal/pipeline"
)

// IndexCmd runs the index pipeline.
type IndexCmd struct {
	Scope       string `help:"Override the resolved scope name."`
	ChangedOnly bool   `name:"changed-only" help:"Only upsert chunks whose content hash changed." default:"true"`
	Force       bool   `help:"Re-upsert every chunk regardless of content hash."`
	DryRun      bool   `name:"dry-run" help:"Report the would-be work without side effects."`
	Source      string `help:"Override source.mode for this run."`
	MaxPages    int    `name:"max-pages" help:"Cap the number of pages loaded (0 = unlimited)."`
	MaxChunks   int    `name:"max-chunks" help:"Cap the number of chunks indexed (0 = unlimited)."`
	Mirror      bool   `help:"Write local page mirror files under state.dir."`
}

func (c *IndexCmd) Run(appCtx *Context) error {
	cfg, err := loadConfig(appCtx.CLI)
	if err != nil {
		return err
	}

	store, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("build vector store: %w", err)
	}
	defer store.Close()

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("build embedder: %w", err)
	}

	routes, err := discoverRoutes(cfg.Source.RoutesDir)
	if err != nil {
		return err
	}

	p := pipeline.New(cfg, store, embedder, routes)
	stats, err := p.Run(appCtx.Ctx, pipeline.Options{
		ScopeOverride:      c.Scope,
		ChangedOnly:        c.ChangedOnly,
		Force:              c.Force,
		DryRun:             c.DryRun,
		SourceOverride:     c.Source,
		MaxPages:           c.MaxPages,
		MaxChunks:          c.MaxChunks,
		WriteMirror:        c.Mirror,
		StrictRouteMapping: cfg.Source.StrictRouteMapping,
	})
	if err != nil {
		if stats != nil {
			logStats(appCtx, stats)
		}
		return fmt.Errorf("index failed (%s): %w", apperr.CodeOf(err), err)
	}

	logStats(appCtx, stats)
	for _, w := range stats.Warnings {
		appCtx.Logger.Warn(w)
	}
	return nil
}

func logStats(appCtx *Context, stats *pipeline.Stats) {
	appCtx.Logger.Info("index run complete",
		"scope", stats.Scope.ID(),
		"pagesLoaded", stats.PagesLoaded,
		"pagesIndexed", stats.PagesIndexed,
		"pagesDropped", stats.PagesDropped,
		"chunksTotal", stats.ChunksTotal,
		"chunksToUpsert", stats.ChunksToUpsert,
		"chunksToDelete", stats.ChunksToDelete,
		"upserted", stats.Upserted,
		"deleted", stats.Deleted,
		"estimatedTokens", stats.EstimatedTokens,
		"estimatedCostUSD", stats.EstimatedCostUSD,
		"dryRun", stats.DryRun,
		"elapsed", stats.Elapsed.String(),
	)
}
