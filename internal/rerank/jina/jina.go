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

// Package jina implements rerank.Reranker against the Jina AI rerank
// API with a plain net/http client.
package jina

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/gregpriday/searchsocket/internal/rerank"
	"github.com/gregpriday/searchsocket/internal/retry"
)

func init() {
	rerank.Register("jina", func(cfg rerank.Config) (rerank.Reranker, error) {
		apiKeyEnv := cfg.APIKeyEnv
		if apiKeyEnv == "" {
			apiKeyEnv = "JINA_API_KEY"
		}
		apiKey := os.Getenv(apiKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("jina: environment variable %s is empty", apiKeyEnv)
		}
		model := cfg.Model
		if model == "" {
			model = "jina-reranker-v2-base-multilingual"
		}
		return &Reranker{apiKey: apiKey, model: model, baseURL: "https://api.jina.ai/v1/rerank", client: &http.Client{Timeout: 30 * time.Second}, retryer: retry.New(retry.DefaultConfig())}, nil
	})
}

type request struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type response struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float32 `json:"relevance_score"`
	} `json:"results"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Reranker is the Jina-backed rerank.Reranker.
type Reranker struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	retryer *retry.Retryer
}

func (r *Reranker) Name() string { return "jina" }

// Rerank sends candidates to Jina and maps its response back onto
// candidate IDs by positional index. An index outside the candidate
// set is silently dropped.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []rerank.Candidate, topN int) ([]rerank.Scored, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Text
	}

	var parsed response
	err := r.retryer.Do(ctx, "jina.rerank", func() error {
		body, err := json.Marshal(request{Model: r.model, Query: query, Documents: docs, TopN: topN})
		if err != nil {
			return fmt.Errorf("jina: marshal request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("jina: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+r.apiKey)

		resp, err := r.client.Do(req)
		if err != nil {
			return &retry.RetryableError{Err: fmt.Errorf("jina: request failed: %w", err)}
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("jina: read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			var errResp errorResponse
			msg := string(respBody)
			if jsonErr := json.Unmarshal(respBody, &errResp); jsonErr == nil && errResp.Detail != "" {
				msg = errResp.Detail
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return &retry.RetryableError{Status: resp.StatusCode, Body: msg}
			}
			return fmt.Errorf("jina: status %d: %s", resp.StatusCode, msg)
		}

		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("jina: decode response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]rerank.Scored, 0, len(parsed.Results))
	for _, res := range parsed.Results {
		if res.Index < 0 || res.Index >= len(candidates) {
			continue
		}
		out = append(out, rerank.Scored{ID: candidates[res.Index].ID, Score: res.RelevanceScore})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

var _ rerank.Reranker = (*Reranker)(nil)
