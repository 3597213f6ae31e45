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

// Package health implements the `doctor` command's checks: vector
// store reachability, embeddings provider reachability, and config
// validation, each reported as a Status the CLI layer can render and
// fold into an overall pass/fail exit code.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/gregpriday/searchsocket/internal/config"
	"github.com/gregpriday/searchsocket/internal/embed"
	"github.com/gregpriday/searchsocket/internal/vectorstore"
)

// Level is the outcome of a single check.
type Level string

const (
	LevelHealthy   Level = "healthy"
	LevelDegraded  Level = "degraded"
	LevelUnhealthy Level = "unhealthy"
)

// Check is the result of one doctor probe.
type Check struct {
	Component string         `json:"component"`
	Status    Level          `json:"status"`
	Message   string         `json:"message,omitempty"`
	Latency   time.Duration  `json:"latencyMs"`
	Details   map[string]any `json:"details,omitempty"`
}

// Passed reports whether Check represents a non-failing outcome.
// Degraded still passes (it is a warning, not a failure); only
// Unhealthy fails the overall `doctor` exit code.
func (c Check) Passed() bool {
	return c.Status != LevelUnhealthy
}

// Report is the full set of doctor checks for one run.
type Report struct {
	Checks []Check
}

// OK reports whether every check passed.
func (r Report) OK() bool {
	for _, c := range r.Checks {
		if !c.Passed() {
			return false
		}
	}
	return true
}

// Run executes the config-validation, vector-store, and
// embeddings-provider checks and returns their combined Report. store
// and embedder may be nil (e.g. construction itself failed); a nil
// dependency is reported unhealthy rather than panicking.
func Run(ctx context.Context, cfg *config.Config, store vectorstore.Provider, embedder *embed.Embedder) Report {
	return Report{Checks: []Check{
		checkConfig(cfg),
		checkVectorStore(ctx, store),
		checkEmbedder(ctx, embedder),
	}}
}

func checkConfig(cfg *config.Config) Check {
	start := time.Now()
	check := Check{Component: "config", Details: map[string]any{}}

	var problems []string
	if cfg == nil {
		problems = append(problems, "configuration failed to load")
	} else {
		if cfg.Project.ID == "" {
			problems = append(problems, "project.id is empty")
		}
		if cfg.Source.Mode == "" {
			problems = append(problems, "source.mode is empty")
		}
		if cfg.Embeddings.Provider == "" {
			problems = append(problems, "embeddings.provider is empty")
		}
		if cfg.Vector.Provider == "" {
			problems = append(problems, "vector.provider is empty")
		}
		check.Details["source.mode"] = cfg.Source.Mode
		check.Details["vector.provider"] = cfg.Vector.Provider
		check.Details["embeddings.provider"] = cfg.Embeddings.Provider
	}

	if len(problems) > 0 {
		check.Status = LevelUnhealthy
		check.Message = fmt.Sprintf("%d config problem(s): %v", len(problems), problems)
	} else {
		check.Status = LevelHealthy
		check.Message = "config valid"
	}
	check.Latency = time.Since(start)
	return check
}

func checkVectorStore(ctx context.Context, store vectorstore.Provider) Check {
	start := time.Now()
	check := Check{Component: "vector_store", Details: map[string]any{}}

	if store == nil {
		check.Status = LevelUnhealthy
		check.Message = "vector store not configured"
		check.Latency = time.Since(start)
		return check
	}

	check.Component = fmt.Sprintf("vector_store:%s", store.Name())
	h := store.Health(ctx)
	check.Details["details"] = h.Details
	if h.OK {
		check.Status = LevelHealthy
		check.Message = "reachable"
	} else {
		check.Status = LevelUnhealthy
		check.Message = h.Details
	}
	check.Latency = time.Since(start)
	return check
}

func checkEmbedder(ctx context.Context, embedder *embed.Embedder) Check {
	start := time.Now()
	check := Check{Component: "embeddings_provider", Details: map[string]any{}}

	if embedder == nil {
		check.Status = LevelUnhealthy
		check.Message = "embeddings provider not configured"
		check.Latency = time.Since(start)
		return check
	}

	testCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	vectors, err := embedder.EmbedTexts(testCtx, []string{"doctor health check"}, embed.TaskRetrievalQuery)
	switch {
	case err != nil:
		check.Status = LevelUnhealthy
		check.Message = fmt.Sprintf("embed call failed: %v", err)
	case len(vectors) != 1 || len(vectors[0]) == 0:
		check.Status = LevelDegraded
		check.Message = "embed call returned an empty vector"
	default:
		check.Status = LevelHealthy
		check.Message = "reachable"
		check.Details["dimension"] = len(vectors[0])
	}
	check.Details["model"] = embedder.ModelID()
	check.Latency = time.Since(start)
	return check
}
