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

	"github.com/gregpriday/searchsocket/internal/mcpserver"
	"github.com/gregpriday/searchsocket/internal/scope"
)

// MCPCmd serves the search tool over the configured MCP transport
//.
type MCPCmd struct {
	Transport string `help:"stdio or http (overrides mcp.transport)."`
	Port      int    `help:"HTTP port (overrides mcp.http.port)."`
	Path      string `help:"HTTP path (overrides mcp.http.path)."`
	Scope     string `help:"Override the resolved scope name searches run against."`
}

func (c *MCPCmd) Run(appCtx *Context) error {
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

	srv := mcpserver.New(engine, sc)

	transport := cfg.MCP.Transport
	if c.Transport != "" {
		transport = c.Transport
	}

	switch transport {
	case "", "stdio":
		appCtx.Logger.Info("mcp: serving over stdio", "scope", sc.ID())
		return srv.ServeStdio(appCtx.Ctx)
	case "http":
		port := cfg.MCP.HTTP.Port
		if c.Port != 0 {
			port = c.Port
		}
		path := cfg.MCP.HTTP.Path
		if c.Path != "" {
			path = c.Path
		}
		addr := fmt.Sprintf(":%d", port)
		appCtx.Logger.Info("mcp: serving over http", "addr", addr, "path", path, "scope", sc.ID())
		return srv.ServeHTTP(appCtx.Ctx, addr, path)
	default:
		return fmt.Errorf("unknown mcp.transport %q", transport)
	}
}
