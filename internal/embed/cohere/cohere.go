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

// Package cohere implements embed.RawBatcher against the Cohere embed
// API with a plain net/http client.
package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gregpriday/searchsocket/internal/embed"
	"github.com/gregpriday/searchsocket/internal/retry"
)

func init() {
	embed.Register("cohere", func(cfg embed.Config) (embed.RawBatcher, error) {
		apiKeyEnv := cfg.APIKeyEnv
		if apiKeyEnv == "" {
			apiKeyEnv = "COHERE_API_KEY"
		}
		apiKey := os.Getenv(apiKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("cohere: environment variable %s is empty", apiKeyEnv)
		}
		return New(apiKey), nil
	})
}

// request is the embed API request body.
type request struct {
	Texts     []string `json:"texts"`
	Model     string   `json:"model,omitempty"`
	InputType string   `json:"input_type,omitempty"`
}

// response is the embed API response body.
type response struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// inputTypeFor maps an embed Task onto Cohere's input_type
// vocabulary.
func inputTypeFor(task embed.Task) string {
	if task == embed.TaskRetrievalQuery {
		return "search_query"
	}
	return "search_document"
}

// Batcher is the Cohere-backed RawBatcher.
type Batcher struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// New constructs a Batcher against the public Cohere API.
func New(apiKey string) *Batcher {
	return &Batcher{
		apiKey:  apiKey,
		baseURL: "https://api.cohere.ai/v1",
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (b *Batcher) Name() string { return "cohere" }

func (b *Batcher) EmbedBatch(ctx context.Context, texts []string, model string, task embed.Task) ([][]float32, error) {
	if model == "" {
		model = "embed-english-v3.0"
	}

	body, err := json.Marshal(request{Texts: texts, Model: model, InputType: inputTypeFor(task)})
	if err != nil {
		return nil, fmt.Errorf("cohere: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cohere: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &retry.RetryableError{Err: fmt.Errorf("cohere: request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cohere: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		msg := string(respBody)
		if jsonErr := json.Unmarshal(respBody, &errResp); jsonErr == nil && errResp.Message != "" {
			msg = errResp.Message
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, &retry.RetryableError{Status: resp.StatusCode, Body: msg}
		}
		return nil, fmt.Errorf("cohere: status %d: %s", resp.StatusCode, msg)
	}

	var parsed response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("cohere: decode response: %w", err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("cohere: expected %d embeddings, got %d", len(texts), len(parsed.Embeddings))
	}
	return parsed.Embeddings, nil
}

// EstimateTokens approximates Cohere's tokenizer with a
// 4-characters-per-token heuristic; Cohere does not publish a public
// Go tokenizer.
func (b *Batcher) EstimateTokens(text string) int64 {
	return int64(len(text) / 4)
}

var _ embed.RawBatcher = (*Batcher)(nil)
