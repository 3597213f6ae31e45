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
	"regexp"
	"strings"

	"github.com/gregpriday/searchsocket/internal/routemap"
)

// ContentFilesConfig configures the content-files loader.
type ContentFilesConfig struct {
	BaseDir string
}

var (
	svelteTagRe          = regexp.MustCompile(`(?s)</?[A-Za-z][A-Za-z0-9_.]*(\s+[^>]*?)?/?>`)
	svelteTemplateExprRe = regexp.MustCompile(`(?s)\{[^{}]*\}`)
)

// LoadContentFiles globs ".md" and "+page.svelte" files under
// cfg.BaseDir. Markdown files are read raw; svelte files have their
// script/style blocks, tag syntax, and template braces stripped before
// whitespace collapse.
func LoadContentFiles(ctx context.Context, cfg ContentFilesConfig) ([]PageSource, []Warning, error) {
	var pages []PageSource
	var warnings []Warning

	err := filepath.Walk(cfg.BaseDir, func(path string, info os.FileInfo, walkErr error) error {
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

		name := info.Name()
		isMarkdown := strings.HasSuffix(name, ".md")
		isSvelte := name == "+page.svelte"
		if !isMarkdown && !isSvelte {
			return nil
		}

		relPath, err := filepath.Rel(cfg.BaseDir, path)
		if err != nil {
			relPath = path
		}
		relPath = filepath.ToSlash(relPath)

		raw, err := os.ReadFile(path)
		if err != nil {
			warnings = append(warnings, Warning{URL: relPath, Message: err.Error()})
			return nil
		}

		url := contentFileToURL(relPath)
		if isSvelte {
			pages = append(pages, PageSource{
				URL:        url,
				Markdown:   stripSvelteToText(string(raw)),
				SourcePath: path,
			})
		} else {
			pages = append(pages, PageSource{
				URL:        url,
				Markdown:   string(raw),
				SourcePath: path,
			})
		}
		return nil
	})
	if err != nil {
		return nil, warnings, fmt.Errorf("source: walk content-files dir %q: %w", cfg.BaseDir, err)
	}
	return pages, warnings, nil
}

// contentFileToURL maps a content-file relative path to a canonical
// URL using the filesystem-route segment rules: drop
// layout-group segments, map param/splat/optional segments, collapse
// a trailing "/index" (extension-stripped) to "/".
func contentFileToURL(relPath string) string {
	dir, file := filepath.Split(relPath)
	base := strings.TrimSuffix(strings.TrimSuffix(file, ".svelte"), ".md")
	base = strings.TrimSuffix(base, "+page")
	base = strings.TrimSuffix(base, "+page.server")

	segments := strings.Split(strings.Trim(dir, "/"), "/")
	out := make([]string, 0, len(segments)+1)
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		norm, dropped := routemap.NormalizeRouteSegment(seg)
		if dropped {
			continue
		}
		out = append(out, norm)
	}
	if base != "" && base != "index" {
		out = append(out, base)
	}

	joined := "/" + strings.Join(out, "/")
	if joined == "/" {
		return "/"
	}
	return strings.TrimSuffix(joined, "/index")
}

// stripSvelteToText removes script/style blocks, element tags, and
// template-expression braces from a +page.svelte file, leaving a
// best-effort plain-text approximation of its rendered content.
func stripSvelteToText(src string) string {
	withoutBlocks := stripTagBlocks(src, "script")
	withoutBlocks = stripTagBlocks(withoutBlocks, "style")
	withoutTags := svelteTagRe.ReplaceAllString(withoutBlocks, " ")
	withoutExprs := svelteTemplateExprRe.ReplaceAllString(withoutTags, " ")
	return collapseWhitespace(withoutExprs)
}

func stripTagBlocks(src, tag string) string {
	re := regexp.MustCompile(`(?is)<` + tag + `\b[^>]*>.*?</` + tag + `>`)
	return re.ReplaceAllString(src, " ")
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
