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

// Command searchsocket is the CLI surface: init, index,
// status, dev, clean, prune, doctor, mcp, search.
//
// A single kong CLI struct holds one embedded *Cmd per subcommand,
// each implementing Run(*Context) error.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	_ "github.com/gregpriday/searchsocket/internal/embed/cohere"
	_ "github.com/gregpriday/searchsocket/internal/embed/openai"
	_ "github.com/gregpriday/searchsocket/internal/rerank/jina"
	_ "github.com/gregpriday/searchsocket/internal/vectorstore/local"
	_ "github.com/gregpriday/searchsocket/internal/vectorstore/milvus"
	_ "github.com/gregpriday/searchsocket/internal/vectorstore/pinecone"
	_ "github.com/gregpriday/searchsocket/internal/vectorstore/turso"
	_ "github.com/gregpriday/searchsocket/internal/vectorstore/upstash"

	"github.com/gregpriday/searchsocket/internal/logging"
)

// CLI is the top-level kong command tree.
type CLI struct {
	Cwd    string `short:"C" type:"path" help:"Working directory to run in."`
	Config string `help:"Path to YAML config file." default:"searchsocket.yaml"`
	JSON   bool   `help:"Emit JSON-lines logs to stdout instead of text to stderr."`
	Verbose bool  `help:"Enable debug-level logging."`

	Init   InitCmd   `cmd:"" help:"Scaffold a default config file."`
	Index  IndexCmd  `cmd:"" help:"Run the index pipeline."`
	Status StatusCmd `cmd:"" help:"Show registered scopes and their last index run."`
	Dev    DevCmd    `cmd:"" help:"Watch sources and re-index on change."`
	Clean  CleanCmd  `cmd:"" help:"Remove the current scope's local state; --remote also deletes its chunks and registry entry."`
	Prune  PruneCmd  `cmd:"" help:"Delete scopes older than a threshold, or a named list."`
	Doctor DoctorCmd `cmd:"" help:"Probe config, vector store, and embeddings provider."`
	MCP    MCPCmd    `cmd:"" name:"mcp" help:"Serve the search tool over MCP."`
	Search SearchCmd `cmd:"" help:"Run a one-off search query."`
}

// Context is threaded to every subcommand's Run method, carrying the
// logger and the cancellable root context.
type Context struct {
	Ctx    context.Context
	Logger *slog.Logger
	CLI    *CLI
}

func main() {
	var cli CLI
	parser := kong.Parse(&cli,
		kong.Name("searchsocket"),
		kong.Description("Incremental documentation indexing and semantic search."),
		kong.UsageOnError(),
	)

	if cli.Cwd != "" {
		if err := os.Chdir(cli.Cwd); err != nil {
			parser.FatalIfErrorf(fmt.Errorf("chdir %q: %w", cli.Cwd, err))
		}
	}

	level := slog.LevelInfo
	if cli.Verbose {
		level = slog.LevelDebug
	}
	format := logging.FormatText
	out := os.Stderr
	if cli.JSON {
		format = logging.FormatJSON
		out = os.Stdout
	}
	logger := logging.Init(level, out, format)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn("received shutdown signal, cancelling in-flight work")
		cancel()
	}()
	defer cancel()

	err := parser.Run(&Context{Ctx: ctx, Logger: logger, CLI: &cli})
	parser.FatalIfErrorf(err)
}
