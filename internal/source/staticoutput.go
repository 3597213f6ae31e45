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
	"os"
	"path/filepath"
	"strings"

	"github.com/gregpriday/searchsocket/internal/urlpath"
)

// StaticOutputConfig configures the static-output loader.
type StaticOutputConfig struct {
	Dir string
}

// LoadStaticOutput globs every "*.html" file under cfg.Dir and maps it
// to a canonical URL via urlpath.StaticHTMLFileToURL.
func LoadStaticOutput(ctx context.Context, cfg StaticOutputConfig) ([]PageSource, []Warning, error) {
	var pages []PageSource
	var warnings []Warning

	err := filepath.Walk(cfg.Dir, func(path string, info os.FileInfo, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if walkErr != nil {
			warnings = append(warnings, Warning{URL: path, Message: walkErr.Error()})
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(info.Name()), ".html") {
			return nil
		}

		relPath, err := filepath.Rel(cfg.Dir, path)
		if err != nil {
			relPath = path
		}

		body, err := os.ReadFile(path)
		if err != nil {
			warnings = append(warnings, Warning{URL: relPath, Message: err.Error()})
			return nil
		}

		pages = append(pages, PageSource{
			URL:        urlpath.StaticHTMLFileToURL(filepath.ToSlash(relPath)),
			HTML:       string(body),
			SourcePath: path,
		})
		return nil
	})
	if err != nil {
		return nil, warnings, fmt.Errorf("source: walk static-output dir %q: %w", cfg.Dir, err)
	}
	return pages, warnings, nil
}
