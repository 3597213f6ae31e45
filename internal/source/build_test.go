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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBuildPages_BFSWithCycles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/a">a</a><a href="/">self</a></body></html>`)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/">home</a><a href="/b">b</a></body></html>`)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>leaf</body></html>`)
	})
	mux.HandleFunc("/excluded", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>should not be visited</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	pages, warnings, err := LoadBuildPages(context.Background(), BuildConfig{
		BaseURL:  srv.URL,
		SeedURLs: []string{"/"},
		MaxDepth: 5,
		MaxPages: 10,
		Exclude:  []string{"/excluded"},
		Client:   srv.Client(),
	})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	urls := map[string]bool{}
	for _, p := range pages {
		urls[p.URL] = true
	}
	assert.True(t, urls["/"])
	assert.True(t, urls["/a"])
	assert.True(t, urls["/b"])
	assert.False(t, urls["/excluded"])
	assert.Len(t, pages, 3)
}

func TestLoadBuildPages_MaxPagesCap(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/a">a</a></body></html>`)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/b">b</a></body></html>`)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>leaf</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	pages, _, err := LoadBuildPages(context.Background(), BuildConfig{
		BaseURL:  srv.URL,
		SeedURLs: []string{"/"},
		MaxDepth: 5,
		MaxPages: 1,
		Client:   srv.Client(),
	})
	require.NoError(t, err)
	assert.Len(t, pages, 1)
}

func TestLoadBuildPages_NonHTMLAndErrorStatusSkipped(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/data.json">json</a><a href="/missing">missing</a></body></html>`)
	})
	mux.HandleFunc("/data.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	pages, warnings, err := LoadBuildPages(context.Background(), BuildConfig{
		BaseURL:  srv.URL,
		SeedURLs: []string{"/"},
		MaxDepth: 3,
		MaxPages: 10,
		Client:   srv.Client(),
	})
	require.NoError(t, err)
	assert.Len(t, pages, 1)
	assert.Len(t, warnings, 2)
}
