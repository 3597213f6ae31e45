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
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/gregpriday/searchsocket/internal/scope"
	"github.com/gregpriday/searchsocket/internal/search"
)

// SearchCmd runs a one-off search query.
type SearchCmd struct {
	Q          string `help:"Query text." required:""`
	Scope      string `help:"Override the resolved scope name."`
	TopK       int    `name:"top-k" help:"Number of results to return." default:"10"`
	PathPrefix string `name:"path-prefix" help:"Restrict results to this path prefix."`
	Rerank     bool   `help:"Enable the configured reranker for this query."`
	GroupBy    string `name:"group-by" help:"chunk (default) or page." default:"chunk"`
}

func (c *SearchCmd) Run(appCtx *Context) error {
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

	reranker, err := buildReranker(cfg)
	if err != nil {
		return fmt.Errorf("build reranker: %w", err)
	}

	engine := buildSearchEngine(cfg, store, embedder, reranker)

	scopeCfg := scope.Config{
		Mode:     scope.Mode(cfg.Scope.Mode),
		Fixed:    cfg.Scope.Fixed,
		EnvVar:   cfg.Scope.EnvVar,
		Sanitize: cfg.Scope.Sanitize,
	}
	if c.Scope != "" {
		scopeCfg.Mode = scope.ModeFixed
		scopeCfg.Fixed = c.Scope
	}
	sc, err := scope.Resolve(appCtx.Ctx, cfg.Project.ID, scopeCfg)
	if err != nil {
		return err
	}

	resp, err := engine.Search(appCtx.Ctx, search.Request{
		Q:          c.Q,
		TopK:       c.TopK,
		Scope:      sc,
		PathPrefix: c.PathPrefix,
		Rerank:     c.Rerank,
		GroupBy:    search.GroupBy(strings.ToLower(c.GroupBy)),
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if appCtx.CLI.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	for i, r := range resp.Results {
		fmt.Printf("%d. [%.3f] %s  %s\n", i+1, r.Score, r.URL, r.Title)
		if r.Snippet != "" {
			fmt.Printf("   %s\n", r.Snippet)
		}
	}
	fmt.Printf("\n%d result(s) in %dms (embed=%dms vector=%dms rerank=%dms, rerank=%v, model=%s)\n",
		len(resp.Results), resp.Meta.Timings.TotalMs, resp.Meta.Timings.EmbedMs,
		resp.Meta.Timings.VectorMs, resp.Meta.Timings.RerankMs, resp.Meta.UsedRerank, resp.Meta.ModelID)
	return nil
}
