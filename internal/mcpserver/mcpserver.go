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

// Package mcpserver exposes the search engine as a single MCP
// tool over stdio or HTTP transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gregpriday/searchsocket/internal/scope"
	"github.com/gregpriday/searchsocket/internal/search"
)

// Config configures the MCP server.
type Config struct {
	Transport string // "stdio" | "http"
	HTTPAddr  string // host:port, only used when Transport == "http"
	HTTPPath  string
}

// Server wraps a search.Engine and a default scope, exposing "search"
// as the sole MCP tool.
type Server struct {
	engine       *search.Engine
	defaultScope scope.Scope
	mcp          *server.MCPServer
}

// New constructs a Server bound to engine and the scope searches run
// against when the MCP caller doesn't specify one.
func New(engine *search.Engine, defaultScope scope.Scope) *Server {
	s := &Server{engine: engine, defaultScope: defaultScope}

	m := server.NewMCPServer("searchsocket", "1.0.0")
	tool := mcp.NewTool("search",
		mcp.WithDescription("Semantic search over the indexed documentation. Returns ranked chunks with URL, title, and snippet."),
		mcp.WithString("q", mcp.Required(), mcp.Description("Natural-language query text.")),
		mcp.WithNumber("topK", mcp.Description("Maximum number of results (default 10).")),
		mcp.WithString("pathPrefix", mcp.Description("Restrict results to this URL path prefix.")),
		mcp.WithBoolean("rerank", mcp.Description("Enable the configured reranker for this query.")),
		mcp.WithString("groupBy", mcp.Description("chunk (default) or page.")),
	)
	m.AddTool(tool, s.handleSearch)
	s.mcp = m
	return s
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := req.RequireString("q")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	topK := 10
	if v := req.GetFloat("topK", 0); v > 0 {
		topK = int(v)
	}
	groupBy := search.GroupBy(req.GetString("groupBy", string(search.GroupByChunk)))

	resp, err := s.engine.Search(ctx, search.Request{
		Q:          q,
		TopK:       topK,
		Scope:      s.defaultScope,
		PathPrefix: req.GetString("pathPrefix", ""),
		Rerank:     req.GetBool("rerank", false),
		GroupBy:    groupBy,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body, err := json.Marshal(resp)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

// ServeStdio blocks serving the MCP tool over stdio until ctx is
// cancelled or the transport errors.
func (s *Server) ServeStdio(ctx context.Context) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

// ServeHTTP blocks serving the MCP tool over streamable HTTP at
// addr/path until ctx is cancelled or the transport errors.
func (s *Server) ServeHTTP(ctx context.Context, addr, path string) error {
	httpServer := server.NewStreamableHTTPServer(s.mcp, server.WithEndpointPath(path))
	go func() {
		<-ctx.Done()
		_ = httpServer.Shutdown(context.Background())
	}()
	return httpServer.Start(addr)
}
