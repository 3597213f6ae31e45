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
	"os"
	"path/filepath"

	"github.com/gregpriday/searchsocket/internal/pipeline"
	"github.com/gregpriday/searchsocket/internal/scope"
)

// CleanCmd removes local state.dir artifacts (checkpoints, mirror
// files) for the current scope; --remote additionally deletes the
// scope's chunks and registry entry from the vector store.
type CleanCmd struct {
	Scope  string `help:"Override the resolved scope name."`
	Remote bool   `help:"Also delete the scope from the remote vector store."`
}

func (c *CleanCmd) Run(appCtx *Context) error {
	cfg, err := loadConfig(appCtx.CLI)
	if err != nil {
		return err
	}

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

	if cfg.State.Dir != "" {
		mirrorDir := filepath.Join(cfg.State.Dir, "pages", sc.ScopeName)
		if err := os.RemoveAll(mirrorDir); err != nil {
			appCtx.Logger.Warn("failed to remove local mirror", "dir", mirrorDir, "err", err.Error())
		} else {
			appCtx.Logger.Info("removed local mirror", "dir", mirrorDir)
		}
		if err := pipeline.NewCheckpointManager(cfg.State.Dir, sc.ID(), true).Clear(); err != nil {
			appCtx.Logger.Warn("failed to remove checkpoint", "err", err.Error())
		}
	}

	if !c.Remote {
		return nil
	}

	store, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("build vector store: %w", err)
	}
	defer store.Close()

	if err := store.DeleteScope(appCtx.Ctx, sc); err != nil {
		return fmt.Errorf("delete scope %s: %w", sc.ID(), err)
	}
	appCtx.Logger.Info("deleted remote scope", "scope", sc.ID())
	return nil
}
