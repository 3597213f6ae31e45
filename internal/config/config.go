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

// Package config loads the process-wide configuration via
// koanf: a YAML file provider layered under an env-var provider, with
// optional .env expansion before either is read.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config is the fully populated configuration struct. Every
// field has a default set by Default(), so downstream code never
// nil-checks individual blocks.
type Config struct {
	Project struct {
		ID string `koanf:"id"`
	} `koanf:"project"`

	Scope struct {
		Mode     string `koanf:"mode"`
		Fixed    string `koanf:"fixed"`
		EnvVar   string `koanf:"envVar"`
		Sanitize bool   `koanf:"sanitize"`
	} `koanf:"scope"`

	Source struct {
		Mode         string   `koanf:"mode"`
		StaticOutDir string   `koanf:"staticOutDir"`
		BaseDir      string   `koanf:"baseDir"`
		SitemapURL   string   `koanf:"sitemapUrl"`
		SeedURLs     []string `koanf:"seedUrls"`
		BaseURL      string   `koanf:"baseUrl"`
		MaxDepth     int      `koanf:"maxDepth"`
		MaxPages     int      `koanf:"maxPages"`
		Exclude      []string `koanf:"exclude"`

		// RoutesDir, when set, points at a SvelteKit-style routes tree
		// (e.g. "src/routes") the CLI layer walks to build the C6
		// route mapper's Routes set. Empty means no route file is
		// known and every page resolves best-effort.
		RoutesDir string `koanf:"routesDir"`

		// StrictRouteMapping, when true, fails the run with
		// ROUTE_MAPPING_FAILED on any best-effort route resolution
		//.
		StrictRouteMapping bool `koanf:"strictRouteMapping"`
	} `koanf:"source"`

	Extract struct {
		MainSelector         string   `koanf:"mainSelector"`
		DropTags             []string `koanf:"dropTags"`
		DropSelectors        []string `koanf:"dropSelectors"`
		IgnoreAttr           string   `koanf:"ignoreAttr"`
		NoindexAttr          string   `koanf:"noindexAttr"`
		RespectRobotsNoindex bool     `koanf:"respectRobotsNoindex"`
	} `koanf:"extract"`

	Transform struct {
		PreserveCodeBlocks bool `koanf:"preserveCodeBlocks"`
		PreserveTables     bool `koanf:"preserveTables"`
	} `koanf:"transform"`

	Chunking struct {
		MaxChars         int      `koanf:"maxChars"`
		OverlapChars     int      `koanf:"overlapChars"`
		MinChars         int      `koanf:"minChars"`
		HeadingPathDepth int      `koanf:"headingPathDepth"`
		DontSplitInside  []string `koanf:"dontSplitInside"`
	} `koanf:"chunking"`

	Embeddings struct {
		Provider    string `koanf:"provider"`
		Model       string `koanf:"model"`
		APIKeyEnv   string `koanf:"apiKeyEnv"`
		BatchSize   int    `koanf:"batchSize"`
		Concurrency int    `koanf:"concurrency"`
	} `koanf:"embeddings"`

	Vector struct {
		Provider    string `koanf:"provider"`
		Path        string `koanf:"path"`
		APIKeyEnv   string `koanf:"apiKeyEnv"`
		Index       string `koanf:"index"`
		Host        string `koanf:"host"`
		Collection  string `koanf:"collection"`
		DBURL       string `koanf:"dbUrl"`
		AuthToken   string `koanf:"authToken"`
		RedisURL    string `koanf:"redisUrl"`
		Environment string `koanf:"environment"`
		Address     string `koanf:"address"`
		Username    string `koanf:"username"`
		Password    string `koanf:"password"`
		KeyPrefix   string `koanf:"keyPrefix"`
		TableName   string `koanf:"tableName"`
		Dimension   int    `koanf:"dimension"`
	} `koanf:"vector"`

	Rerank struct {
		Provider  string `koanf:"provider"`
		TopN      int    `koanf:"topN"`
		APIKeyEnv string `koanf:"apiKeyEnv"`
		Model     string `koanf:"model"`
	} `koanf:"rerank"`

	Ranking struct {
		EnableIncomingLinkBoost bool `koanf:"enableIncomingLinkBoost"`
		EnableDepthBoost        bool `koanf:"enableDepthBoost"`
		Weights                 struct {
			IncomingLinks float64 `koanf:"incomingLinks"`
			Depth         float64 `koanf:"depth"`
			Rerank        float64 `koanf:"rerank"`
		} `koanf:"weights"`
	} `koanf:"ranking"`

	MCP struct {
		Enable    bool   `koanf:"enable"`
		Transport string `koanf:"transport"`
		HTTP      struct {
			Port int    `koanf:"port"`
			Path string `koanf:"path"`
		} `koanf:"http"`
	} `koanf:"mcp"`

	State struct {
		Dir string `koanf:"dir"`
	} `koanf:"state"`
}

// Default returns the zero-config fallback: local/chromem vector
// store, no rerank, static-output source mode.
func Default() *Config {
	var c Config
	c.Scope.Mode = "fixed"
	c.Scope.Fixed = "default"
	c.Scope.Sanitize = true
	c.Source.Mode = "static-output"
	c.Source.StaticOutDir = "build"
	c.Source.MaxDepth = 3
	c.Extract.MainSelector = "main"
	c.Extract.DropTags = []string{"script", "style", "nav", "footer", "noscript"}
	c.Extract.IgnoreAttr = "data-searchsocket-ignore"
	c.Extract.NoindexAttr = "data-searchsocket-noindex"
	c.Extract.RespectRobotsNoindex = true
	c.Transform.PreserveCodeBlocks = true
	c.Transform.PreserveTables = true
	c.Chunking.MaxChars = 1800
	c.Chunking.OverlapChars = 200
	c.Chunking.MinChars = 200
	c.Chunking.HeadingPathDepth = 3
	c.Chunking.DontSplitInside = []string{"code", "table"}
	c.Embeddings.Provider = "openai"
	c.Embeddings.Model = "text-embedding-3-small"
	c.Embeddings.APIKeyEnv = "OPENAI_API_KEY"
	c.Embeddings.BatchSize = 96
	c.Embeddings.Concurrency = 4
	c.Vector.Provider = "local"
	c.Vector.Path = ".searchsocket/vector.db"
	c.Vector.Dimension = 1536
	c.Vector.TableName = "searchsocket_vectors"
	c.Vector.KeyPrefix = "searchsocket"
	c.Rerank.Provider = "none"
	c.Rerank.TopN = 50
	c.Ranking.Weights.IncomingLinks = 0.05
	c.Ranking.Weights.Depth = 0.02
	c.Ranking.Weights.Rerank = 1.0
	c.MCP.Transport = "stdio"
	c.MCP.HTTP.Port = 8732
	c.MCP.HTTP.Path = "/mcp"
	c.State.Dir = ".searchsocket"
	return &c
}

// Load reads configPath (YAML) over Default(), then layers
// SEARCHSOCKET_-prefixed environment variables on top (env wins).
// Before loading, it expands a .env file per LoadDotEnv's search
// order.
func Load(configPath string) (*Config, error) {
	if err := LoadDotEnv(configPath); err != nil {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if configPath != "" {
		if _, statErr := os.Stat(configPath); statErr == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("config: load file %q: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.ProviderWithValue("SEARCHSOCKET_", ".", func(s, v string) (string, interface{}) {
		key := strings.ToLower(strings.TrimPrefix(s, "SEARCHSOCKET_"))
		key = strings.ReplaceAll(key, "_", ".")
		return key, v
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
