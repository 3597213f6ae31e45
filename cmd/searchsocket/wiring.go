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
	"strings"

	"github.com/gregpriday/searchsocket/internal/config"
	"github.com/gregpriday/searchsocket/internal/embed"
	"github.com/gregpriday/searchsocket/internal/rerank"
	"github.com/gregpriday/searchsocket/internal/routemap"
	"github.com/gregpriday/searchsocket/internal/search"
	"github.com/gregpriday/searchsocket/internal/vectorstore"
)

// loadConfig reads the config file named by cli.Config, tolerating a
// missing file (Load falls back to Default()).
func loadConfig(cli *CLI) (*config.Config, error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// buildStore constructs the vectorstore.Provider named by cfg.Vector.Provider.
func buildStore(cfg *config.Config) (vectorstore.Provider, error) {
	vc := vectorstore.Config{Type: vectorstore.Type(cfg.Vector.Provider)}
	switch vc.Type {
	case vectorstore.TypeLocal, "":
		vc.Type = vectorstore.TypeLocal
		vc.Local = &vectorstore.LocalConfig{Path: cfg.Vector.Path}
	case vectorstore.TypePinecone:
		vc.Pinecone = &vectorstore.PineconeConfig{
			APIKey:      resolveAPIKey(cfg.Vector.APIKeyEnv, "PINECONE_API_KEY"),
			IndexName:   cfg.Vector.Index,
			IndexHost:   cfg.Vector.Host,
			Environment: cfg.Vector.Environment,
			Dimension:   cfg.Vector.Dimension,
		}
	case vectorstore.TypeMilvus:
		vc.Milvus = &vectorstore.MilvusConfig{
			Address:        cfg.Vector.Address,
			CollectionName: cfg.Vector.Collection,
			Dimension:      cfg.Vector.Dimension,
			Username:       cfg.Vector.Username,
			Password:       cfg.Vector.Password,
		}
	case vectorstore.TypeTurso:
		vc.Turso = &vectorstore.TursoConfig{
			DatabaseURL: cfg.Vector.DBURL,
			AuthToken:   cfg.Vector.AuthToken,
			TableName:   cfg.Vector.TableName,
			Dimension:   cfg.Vector.Dimension,
		}
	case vectorstore.TypeUpstash:
		vc.Upstash = &vectorstore.UpstashConfig{
			URL:       cfg.Vector.RedisURL,
			Password:  cfg.Vector.Password,
			KeyPrefix: cfg.Vector.KeyPrefix,
			Dimension: cfg.Vector.Dimension,
		}
	default:
		return nil, fmt.Errorf("unknown vector.provider %q", cfg.Vector.Provider)
	}
	return vectorstore.New(vc)
}

// resolveAPIKey reads the environment variable named envVar (falling
// back to fallback when envVar is empty).
func resolveAPIKey(envVar, fallback string) string {
	if envVar == "" {
		envVar = fallback
	}
	return os.Getenv(envVar)
}

// buildEmbedder constructs the embed.Embedder named by
// cfg.Embeddings.Provider.
func buildEmbedder(cfg *config.Config) (*embed.Embedder, error) {
	return embed.New(embed.Config{
		Provider:    cfg.Embeddings.Provider,
		Model:       cfg.Embeddings.Model,
		APIKeyEnv:   cfg.Embeddings.APIKeyEnv,
		BatchSize:   cfg.Embeddings.BatchSize,
		Concurrency: cfg.Embeddings.Concurrency,
	})
}

// buildReranker constructs the rerank.Reranker named by
// cfg.Rerank.Provider ("none" by default).
func buildReranker(cfg *config.Config) (rerank.Reranker, error) {
	return rerank.New(rerank.Config{
		Provider:  cfg.Rerank.Provider,
		TopN:      cfg.Rerank.TopN,
		APIKeyEnv: cfg.Rerank.APIKeyEnv,
		Model:     cfg.Rerank.Model,
	})
}

// buildSearchEngine wires a search.Engine from its component parts.
func buildSearchEngine(cfg *config.Config, store vectorstore.Provider, embedder *embed.Embedder, reranker rerank.Reranker) *search.Engine {
	return &search.Engine{
		Store:            store,
		Embedder:         embedder,
		Reranker:         reranker,
		RerankTopN:       cfg.Rerank.TopN,
		MaxDisplacement:  search.DefaultMaxDisplacement,
		EmbeddingModelID: cfg.Embeddings.Model,
		Ranking: search.RankingConfig{
			EnableIncomingLinkBoost: cfg.Ranking.EnableIncomingLinkBoost,
			EnableDepthBoost:        cfg.Ranking.EnableDepthBoost,
			WeightIncomingLinks:     cfg.Ranking.Weights.IncomingLinks,
			WeightDepth:             cfg.Ranking.Weights.Depth,
			WeightRerank:            cfg.Ranking.Weights.Rerank,
		},
	}
}

// discoverRoutes walks a SvelteKit-style routes directory and builds
// the routemap.Routes set the route mapper needs (routemap itself never touches the
// filesystem; this is the "caller's filesystem walk" its doc comment
// describes). Route files are recorded relative to dir, forward-slash
// separated, matching routemap.Resolve's expectations. An empty dir
// yields a nil Routes set (every page resolves best-effort).
func discoverRoutes(dir string) (routemap.Routes, error) {
	if dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	routes := make(routemap.Routes)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if !strings.HasPrefix(name, "+page") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		routes[filepath.ToSlash(rel)] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk routes dir %q: %w", dir, err)
	}
	return routes, nil
}
