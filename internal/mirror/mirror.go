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

// Package mirror writes optional local "pages/<scope>/<path>.md"
// mirror files with YAML frontmatter. The
// mirror is never consulted by the diff step: it is a
// human-readable side effect, content-addressed by dropping
// generatedAt from the equality comparison so unchanged pages are
// never rewritten.
package mirror

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"
)

// Page is the frontmatter+body shape persisted for one indexed page
//.
type Page struct {
	URL             string    `yaml:"url"`
	Title           string    `yaml:"title"`
	Scope           string    `yaml:"scope"`
	RouteFile       string    `yaml:"routeFile"`
	RouteResolution string    `yaml:"routeResolution"`
	GeneratedAt     time.Time `yaml:"generatedAt"`
	IncomingLinks   int       `yaml:"incomingLinks"`
	OutgoingLinks   int       `yaml:"outgoingLinks"`
	Depth           int       `yaml:"depth"`
	Tags            []string  `yaml:"tags,omitempty"`
	Markdown        string    `yaml:"-"`
}

// Path returns the on-disk path for p under stateDir.
func Path(stateDir, scope, url string) string {
	rel := strings.Trim(url, "/")
	if rel == "" {
		rel = "index"
	}
	return filepath.Join(stateDir, "pages", scope, rel+".md")
}

// Write renders p to its mirror path under stateDir, skipping the
// write entirely if an existing mirror is content-identical once
// generatedAt is ignored. Returns whether a write occurred.
func Write(stateDir string, p Page) (bool, error) {
	path := Path(stateDir, p.Scope, p.URL)

	if existing, ok := readExisting(path); ok && equalIgnoringGeneratedAt(existing, p) {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("mirror: create dir: %w", err)
	}

	fm, err := yaml.Marshal(p)
	if err != nil {
		return false, fmt.Errorf("mirror: marshal frontmatter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")
	b.WriteString(p.Markdown)
	b.WriteString("\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return false, fmt.Errorf("mirror: write %q: %w", path, err)
	}
	return true, nil
}

// Read loads a previously written mirror page, or reports ok=false if
// it does not exist or cannot be parsed.
func Read(stateDir, scope, url string) (Page, bool) {
	return readExisting(Path(stateDir, scope, url))
}

func readExisting(path string) (Page, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Page{}, false
	}
	var p Page
	rest, err := frontmatter.Parse(strings.NewReader(string(raw)), &p)
	if err != nil {
		return Page{}, false
	}
	p.Markdown = strings.TrimSuffix(strings.TrimPrefix(string(rest), "\n"), "\n")
	return p, true
}

func equalIgnoringGeneratedAt(a, b Page) bool {
	if a.URL != b.URL || a.Title != b.Title || a.Scope != b.Scope ||
		a.RouteFile != b.RouteFile || a.RouteResolution != b.RouteResolution ||
		a.IncomingLinks != b.IncomingLinks || a.OutgoingLinks != b.OutgoingLinks ||
		a.Depth != b.Depth || a.Markdown != b.Markdown {
		return false
	}
	if len(a.Tags) != len(b.Tags) {
		return false
	}
	for i := range a.Tags {
		if a.Tags[i] != b.Tags[i] {
			return false
		}
	}
	return true
}
