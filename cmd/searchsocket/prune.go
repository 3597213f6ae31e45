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
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gregpriday/searchsocket/internal/scope"
	"github.com/gregpriday/searchsocket/internal/vectorstore"
)

// PruneCmd deletes scopes older than a threshold, or a named list
// loaded from a file, dry-run by default.
type PruneCmd struct {
	Apply      bool   `help:"Actually delete; without this flag prune only reports what would be deleted."`
	ScopesFile string `name:"scopes-file" help:"Path to a newline-delimited file of scopeName values to prune, in addition to any --older-than match."`
	OlderThan  string `name:"older-than" help:"Prune scopes whose lastIndexedAt is older than this duration (e.g. 720h)."`
}

func (c *PruneCmd) Run(appCtx *Context) error {
	cfg, err := loadConfig(appCtx.CLI)
	if err != nil {
		return err
	}

	store, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("build vector store: %w", err)
	}
	defer store.Close()

	scopes, err := store.ListScopes(appCtx.Ctx, cfg.Project.ID)
	if err != nil {
		return fmt.Errorf("list scopes: %w", err)
	}

	named, err := loadScopeNames(c.ScopesFile)
	if err != nil {
		return err
	}

	var threshold time.Time
	hasThreshold := false
	if c.OlderThan != "" {
		d, err := time.ParseDuration(c.OlderThan)
		if err != nil {
			return fmt.Errorf("parse --older-than %q: %w", c.OlderThan, err)
		}
		threshold = time.Now().Add(-d)
		hasThreshold = true
	}

	var toPrune []vectorstore.ScopeInfo
	for _, s := range scopes {
		if named[s.ScopeName] {
			toPrune = append(toPrune, s)
			continue
		}
		if !hasThreshold {
			continue
		}
		t, err := time.Parse(time.RFC3339, s.LastIndexedAt)
		if err != nil {
			appCtx.Logger.Warn("skipping scope with unparseable lastIndexedAt", "scope", s.ScopeName, "value", s.LastIndexedAt)
			continue
		}
		if t.Before(threshold) {
			toPrune = append(toPrune, s)
		}
	}

	if len(toPrune) == 0 {
		appCtx.Logger.Info("no scopes matched prune criteria")
		return nil
	}

	for _, s := range toPrune {
		if !c.Apply {
			appCtx.Logger.Info("would prune scope (dry-run)", "scope", s.ScopeName, "lastIndexedAt", s.LastIndexedAt)
			continue
		}
		sc := scope.Scope{ProjectID: s.ProjectID, ScopeName: s.ScopeName}
		if err := store.DeleteScope(appCtx.Ctx, sc); err != nil {
			return fmt.Errorf("prune scope %s: %w", sc.ID(), err)
		}
		appCtx.Logger.Info("pruned scope", "scope", sc.ID())
	}
	return nil
}

func loadScopeNames(path string) (map[string]bool, error) {
	out := make(map[string]bool)
	if path == "" {
		return out, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scopes file %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out[line] = true
	}
	return out, scanner.Err()
}
