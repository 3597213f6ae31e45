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
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gregpriday/searchsocket/internal/urlpath"
)

// maxCrawlFetchConcurrency bounds concurrent page fetches to 8 per
// loader.
const maxCrawlFetchConcurrency = 8

// CrawlConfig configures the crawl loader.
type CrawlConfig struct {
	SitemapURL string
	SeedURLs   []string
	Client     *http.Client
}

type sitemapURLSet struct {
	XMLName xml.Name       `xml:"urlset"`
	URLs    []sitemapEntry `xml:"url"`
}

type sitemapEntry struct {
	Loc string `xml:"loc"`
}

type sitemapIndex struct {
	XMLName  xml.Name       `xml:"sitemapindex"`
	Sitemaps []sitemapEntry `xml:"sitemap"`
}

// LoadCrawledPages resolves routes from cfg.SeedURLs (if non-empty) or
// by recursively fetching cfg.SitemapURL, then fetches each resolved
// page with bounded concurrency.
func LoadCrawledPages(ctx context.Context, cfg CrawlConfig) ([]PageSource, []Warning, error) {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	var warnMu sync.Mutex
	var warnings []Warning
	addWarning := func(w Warning) {
		warnMu.Lock()
		warnings = append(warnings, w)
		warnMu.Unlock()
	}

	var locs []string
	if len(cfg.SeedURLs) > 0 {
		locs = append(locs, cfg.SeedURLs...)
	} else {
		fetched := map[string]bool{}
		var err error
		locs, err = resolveSitemapLocs(ctx, client, cfg.SitemapURL, fetched, addWarning)
		if err != nil {
			return nil, warnings, err
		}
		if len(locs) == 0 {
			// No pages obtainable from the configured sitemap index: the
			// pipeline continues with an empty result, not a fatal error.
			return nil, warnings, nil
		}
	}

	locs = dedupStrings(locs)

	var mu sync.Mutex
	var pages []PageSource
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxCrawlFetchConcurrency)

	for _, loc := range locs {
		loc := loc
		g.Go(func() error {
			page, warn, err := fetchCrawlPage(gctx, client, loc)
			if err != nil {
				if warn != nil {
					addWarning(*warn)
					return nil
				}
				return err
			}
			if warn != nil {
				addWarning(*warn)
				return nil
			}
			mu.Lock()
			pages = append(pages, *page)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, warnings, err
	}
	return pages, warnings, nil
}

func fetchCrawlPage(ctx context.Context, client *http.Client, rawURL string) (*PageSource, *Warning, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Warning{URL: rawURL, Message: err.Error()}, nil
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &Warning{URL: rawURL, Message: err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Warning{URL: rawURL, Message: fmt.Sprintf("non-ok status %d", resp.StatusCode)}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Warning{URL: rawURL, Message: err.Error()}, nil
	}

	return &PageSource{
		URL:        urlpath.Normalize(rawURL),
		HTML:       string(body),
		SourcePath: rawURL,
	}, nil, nil
}

// resolveSitemapLocs fetches sitemapURL, recursing into
// <sitemapindex> entries and flattening <urlset> <loc> entries.
// fetched tracks already-fetched sitemap URLs so a self-referential
// index is only ever fetched once.
func resolveSitemapLocs(ctx context.Context, client *http.Client, sitemapURL string, fetched map[string]bool, addWarning func(Warning)) ([]string, error) {
	if sitemapURL == "" {
		return nil, nil
	}
	if fetched[sitemapURL] {
		return nil, nil
	}
	fetched[sitemapURL] = true

	body, err := fetchSitemapBody(ctx, client, sitemapURL)
	if err != nil {
		addWarning(Warning{URL: sitemapURL, Message: err.Error()})
		return nil, nil
	}

	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
		var locs []string
		for _, sm := range index.Sitemaps {
			loc := strings.TrimSpace(sm.Loc)
			if !isHTTPURL(loc) {
				continue
			}
			child, err := resolveSitemapLocs(ctx, client, loc, fetched, addWarning)
			if err != nil {
				return nil, err
			}
			locs = append(locs, child...)
		}
		return locs, nil
	}

	var set sitemapURLSet
	if err := xml.Unmarshal(body, &set); err != nil {
		addWarning(Warning{URL: sitemapURL, Message: fmt.Sprintf("parse sitemap xml: %v", err)})
		return nil, nil
	}
	var locs []string
	for _, u := range set.URLs {
		loc := strings.TrimSpace(u.Loc)
		if isHTTPURL(loc) {
			locs = append(locs, loc)
		}
	}
	return locs, nil
}

func fetchSitemapBody(ctx context.Context, client *http.Client, sitemapURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("non-ok status %d", resp.StatusCode)
	}

	var reader io.Reader = resp.Body
	if strings.HasSuffix(strings.ToLower(sitemapURL), ".gz") || resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gunzip sitemap: %w", err)
		}
		defer gz.Close()
		reader = gz
	}
	return io.ReadAll(reader)
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func dedupStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
