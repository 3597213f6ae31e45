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

package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/gregpriday/searchsocket/internal/urlpath"
)

// BuildConfig configures the build-mode loader.
type BuildConfig struct {
	BaseURL  string
	SeedURLs []string
	MaxDepth int
	MaxPages int
	Exclude  []string
	Client   *http.Client
}

type buildQueueItem struct {
	url   string
	depth int
}

// LoadBuildPages runs a BFS crawl of a running preview server starting
// from cfg.SeedURLs, following only same-origin http(s) links up to
// cfg.MaxDepth, accumulating at most cfg.MaxPages pages. Cycles and self-loops are tolerated via a visited set.
func LoadBuildPages(ctx context.Context, cfg BuildConfig) ([]PageSource, []Warning, error) {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("source: parse build base url %q: %w", cfg.BaseURL, err)
	}

	maxPages := cfg.MaxPages
	if maxPages < 0 {
		maxPages = 0
	}

	var pages []PageSource
	var warnings []Warning
	visited := make(map[string]bool)

	var queue []buildQueueItem
	for _, seed := range cfg.SeedURLs {
		path := urlpath.Normalize(seed)
		if matchesExcludePattern(path, cfg.Exclude) {
			continue
		}
		queue = append(queue, buildQueueItem{url: path, depth: 0})
	}

	for len(queue) > 0 {
		select {
		case <-ctx.Done():
			return pages, warnings, ctx.Err()
		default:
		}
		if maxPages > 0 && len(pages) >= maxPages {
			break
		}

		item := queue[0]
		queue = queue[1:]

		if visited[item.url] {
			continue
		}
		visited[item.url] = true

		fetchURL := base.ResolveReference(&url.URL{Path: item.url})
		page, links, warn, err := fetchBuildPage(ctx, client, fetchURL.String())
		if err != nil {
			return pages, warnings, err
		}
		if warn != nil {
			warnings = append(warnings, *warn)
			continue
		}

		page.URL = item.url
		pages = append(pages, *page)

		if cfg.MaxDepth > 0 && item.depth >= cfg.MaxDepth {
			continue
		}

		for _, link := range links {
			resolved := resolveSameOriginLink(base, fetchURL, link)
			if resolved == "" {
				continue
			}
			if matchesExcludePattern(resolved, cfg.Exclude) {
				continue
			}
			if visited[resolved] {
				continue
			}
			queue = append(queue, buildQueueItem{url: resolved, depth: item.depth + 1})
		}
	}

	return pages, warnings, nil
}

func fetchBuildPage(ctx context.Context, client *http.Client, fetchURL string) (*PageSource, []string, *Warning, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, nil, &Warning{URL: fetchURL, Message: err.Error()}, nil
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, &Warning{URL: fetchURL, Message: err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, nil, &Warning{URL: fetchURL, Message: fmt.Sprintf("status %d", resp.StatusCode)}, nil
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "html") {
		return nil, nil, &Warning{URL: fetchURL, Message: fmt.Sprintf("non-html content-type %q", ct)}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &Warning{URL: fetchURL, Message: err.Error()}, nil
	}

	links, err := extractHTMLLinks(body)
	if err != nil {
		return nil, nil, &Warning{URL: fetchURL, Message: err.Error()}, nil
	}

	return &PageSource{HTML: string(body), SourcePath: fetchURL}, links, nil, nil
}

// extractHTMLLinks walks the parsed document tree collecting every
// <a href> value, in document order.
func extractHTMLLinks(body []byte) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					links = append(links, attr.Val)
					break
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links, nil
}

// resolveSameOriginLink resolves href against the page it was found
// on and returns its canonical path, or "" if it is not a same-origin
// http(s) link.
func resolveSameOriginLink(base, page *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := page.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	if resolved.Host != base.Host {
		return ""
	}
	return urlpath.Normalize(resolved.Path)
}
