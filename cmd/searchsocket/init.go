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
)

// InitCmd scaffolds a default config file. The
// template's keys mirror internal/config.Config's koanf tags exactly
// so the file Load parses back out unmodified.
type InitCmd struct {
	ProjectID string `name:"project-id" help:"project.id to scaffold." default:"my-project"`
	Force     bool   `help:"Overwrite an existing config file."`
}

const initTemplate = `project:
  id: %s

scope:
  mode: fixed      # fixed | env | git
  fixed: default
  sanitize: true

source:
  mode: static-output   # static-output | crawl | content-files | build
  staticOutDir: build
  maxDepth: 3

extract:
  mainSelector: main
  dropTags: [script, style, nav, footer, noscript]
  ignoreAttr: data-searchsocket-ignore
  noindexAttr: data-searchsocket-noindex
  respectRobotsNoindex: true

transform:
  preserveCodeBlocks: true
  preserveTables: true

chunking:
  maxChars: 1800
  overlapChars: 200
  minChars: 200
  headingPathDepth: 3
  dontSplitInside: [code, table]

embeddings:
  provider: openai
  model: text-embedding-3-small
  apiKeyEnv: OPENAI_API_KEY
  batchSize: 96
  concurrency: 4

vector:
  provider: local   # local | pinecone | milvus | turso | upstash
  path: .searchsocket/vector.db
  dimension: 1536

rerank:
  provider: none    # none | jina
  topN: 50

ranking:
  enableIncomingLinkBoost: false
  enableDepthBoost: false
  weights:
    incomingLinks: 0.05
    depth: 0.02
    rerank: 1.0

mcp:
  enable: false
  transport: stdio  # stdio | http
  http:
    port: 8732
    path: /mcp

state:
  dir: .searchsocket
`

func (c *InitCmd) Run(appCtx *Context) error {
	path := appCtx.CLI.Config
	if _, err := os.Stat(path); err == nil && !c.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	content := fmt.Sprintf(initTemplate, c.ProjectID)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	appCtx.Logger.Info("wrote config", "path", path)
	return nil
}
