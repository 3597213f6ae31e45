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
	"context"
	"fmt"

	"github.com/gregpriday/searchsocket/internal/devwatch"
	"github.com/gregpriday/searchsocket/internal/pipeline"
)

// DevCmd watches the configured source root and re-runs a changed-only
// index pass whenever it settles.
type DevCmd struct {
	Scope string `help:"Override the resolved scope name."`
}

func (c *DevCmd) Run(appCtx *Context) error {
	cfg, err := loadConfig(appCtx.CLI)
	if err != nil {
		return err
	}

	watchDir := cfg.Source.BaseDir
	if cfg.Source.Mode == "static-output" {
		watchDir = cfg.Source.StaticOutDir
	}
	if watchDir == "" {
		return fmt.Errorf("dev: source.mode %q has no watchable local directory", cfg.Source.Mode)
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

	runOnce := func(ctx context.Context, changedPaths []string) error {
		appCtx.Logger.Info("change detected, re-indexing", "changedPaths", len(changedPaths))
		stats, err := p.Run(ctx, pipeline.Options{
			ScopeOverride: c.Scope,
			ChangedOnly:   true,
		})
		if err != nil {
			appCtx.Logger.Error("reindex failed", "err", err.Error())
			return err
		}
		logStats(appCtx, stats)
		return nil
	}

	appCtx.Logger.Info("dev: performing initial index", "dir", watchDir)
	if err := runOnce(appCtx.Ctx, nil); err != nil {
		return err
	}

	w, err := devwatch.New(devwatch.Config{BasePath: watchDir, OnChange: runOnce})
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	appCtx.Logger.Info("dev: watching for changes", "dir", watchDir)
	return w.Run(appCtx.Ctx)
}
