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
)

// StatusCmd lists registered scopes and their last index run.
type StatusCmd struct{}

func (c *StatusCmd) Run(appCtx *Context) error {
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

	if len(scopes) == 0 {
		appCtx.Logger.Info("no scopes indexed yet", "project", cfg.Project.ID)
		return nil
	}

	for _, s := range scopes {
		appCtx.Logger.Info("scope",
			"project", s.ProjectID,
			"scope", s.ScopeName,
			"model", s.ModelID,
			"lastIndexedAt", s.LastIndexedAt,
			"vectorCount", s.VectorCount,
			"lastEstimateTokens", s.LastEstimateTokens,
			"lastEstimateCostUSD", s.LastEstimateCostUSD,
			"lastEstimateChangedChunks", s.LastEstimateChangedChunks,
		)
	}
	return nil
}
