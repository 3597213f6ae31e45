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
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadCrawledPages_SitemapCycle: a sitemap
// index that recursively references itself plus one leaf sitemap with
// a single <loc>. The self-referential index must be fetched at most
// once and the result must be exactly the one leaf page.
func TestLoadCrawledPages_SitemapCycle(t *testing.T) {
	var indexFetches int32
	var mux http.ServeMux
	var srv *httptest.Server

	mux.HandleFunc("/sitemap-index.xml", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&indexFetches, 1)
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<sitemapindex>
			<sitemap><loc>%s/sitemap-index.xml</loc></sitemap>
			<sitemap><loc>%s/sitemap-leaf.xml</loc></sitemap>
		</sitemapindex>`, srv.URL, srv.URL)
	})
	mux.HandleFunc("/sitemap-leaf.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<urlset><url><loc>%s/docs</loc></url></urlset>`, srv.URL)
	})
	mux.HandleFunc("/docs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>docs page</body></html>")
	})

	srv = httptest.NewServer(&mux)
	defer srv.Close()

	client := srv.Client()
	pages, warnings, err := LoadCrawledPages(context.Background(), CrawlConfig{
		SitemapURL: srv.URL + "/sitemap-index.xml",
		Client:     client,
	})
	require.NoError(t, err)
	_ = warnings
	require.Len(t, pages, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&indexFetches))
}

func TestLoadCrawledPages_NonOKSkippedWithWarning(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	pages, warnings, err := LoadCrawledPages(context.Background(), CrawlConfig{
		SeedURLs: []string{srv.URL + "/missing"},
		Client:   srv.Client(),
	})
	require.NoError(t, err)
	assert.Empty(t, pages)
	assert.Len(t, warnings, 1)
}

func TestLoadCrawledPages_EmptySitemapReturnsEmptyResult(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<urlset></urlset>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	pages, _, err := LoadCrawledPages(context.Background(), CrawlConfig{
		SitemapURL: srv.URL + "/sitemap.xml",
		Client:     srv.Client(),
	})
	require.NoError(t, err)
	assert.Empty(t, pages)
}
