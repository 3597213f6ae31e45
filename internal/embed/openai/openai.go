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

// Package openai implements embed.RawBatcher against the OpenAI
// embeddings API with a plain net/http client. Retry and
// batch-splitting live in internal/embed and internal/retry, shared
// across providers.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/gregpriday/searchsocket/internal/embed"
	"github.com/gregpriday/searchsocket/internal/retry"
)

func init() {
	embed.Register("openai", func(cfg embed.Config) (embed.RawBatcher, error) {
		apiKeyEnv := cfg.APIKeyEnv
		if apiKeyEnv == "" {
			apiKeyEnv = "OPENAI_API_KEY"
		}
		apiKey := os.Getenv(apiKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("openai: environment variable %s is empty", apiKeyEnv)
		}
		return New(apiKey), nil
	})
}

// request is the embeddings API request body.
type request struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// response is the embeddings API response body.
type response struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Batcher is the OpenAI-backed RawBatcher.
type Batcher struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// New constructs a Batcher against the public OpenAI API.
func New(apiKey string) *Batcher {
	return &Batcher{
		apiKey:  apiKey,
		baseURL: "https://api.openai.com/v1",
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (b *Batcher) Name() string { return "openai" }

// EmbedBatch embeds texts in a single request. OpenAI's response
// carries each vector's original input index, so results are
// reordered to match.
func (b *Batcher) EmbedBatch(ctx context.Context, texts []string, model string, task embed.Task) ([][]float32, error) {
	if model == "" {
		model = "text-embedding-3-small"
	}

	body, err := json.Marshal(request{Model: model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &retry.RetryableError{Err: fmt.Errorf("openai: request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		msg := string(respBody)
		if jsonErr := json.Unmarshal(respBody, &errResp); jsonErr == nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, &retry.RetryableError{Status: resp.StatusCode, Body: msg}
		}
		return nil, fmt.Errorf("openai: status %d: %s", resp.StatusCode, msg)
	}

	var parsed response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}

	out := make([][]float32, len(texts))
	for _, item := range parsed.Data {
		if item.Index >= 0 && item.Index < len(out) {
			out[item.Index] = item.Embedding
		}
	}
	return out, nil
}

var (
	encoding     *tiktoken.Tiktoken
	encodingInit bool
)

// EstimateTokens estimates OpenAI's cl100k_base token count for text,
// falling back to a 4-characters-per-token heuristic if the encoding
// can't be loaded.
func (b *Batcher) EstimateTokens(text string) int64 {
	if !encodingInit {
		if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
			encoding = enc
		}
		encodingInit = true
	}
	if encoding == nil {
		return int64(len(text) / 4)
	}
	return int64(len(encoding.Encode(text, nil, nil)))
}

var _ embed.RawBatcher = (*Batcher)(nil)
