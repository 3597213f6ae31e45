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

// Package extract converts a PageSource into an ExtractedPage:
// an HTML path through goquery + html-to-markdown, and a markdown
// path through frontmatter parsing.
package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/adrg/frontmatter"

	"github.com/gregpriday/searchsocket/internal/textnorm"
	"github.com/gregpriday/searchsocket/internal/urlpath"
)

// Config is the extract.* configuration block.
type Config struct {
	MainSelector         string
	DropTags             []string
	DropSelectors        []string
	IgnoreAttr           string
	NoindexAttr          string
	RespectRobotsNoindex bool
}

// DefaultConfig returns a fully populated extraction config.
func DefaultConfig() Config {
	return Config{
		MainSelector:         "main",
		DropTags:             []string{"script", "style", "nav", "footer", "noscript"},
		IgnoreAttr:           "data-searchsocket-ignore",
		NoindexAttr:          "data-searchsocket-noindex",
		RespectRobotsNoindex: true,
	}
}

// ExtractedPage is the normalized page representation.
type ExtractedPage struct {
	URL           string
	Title         string
	Markdown      string
	OutgoingLinks []string
	Noindex       bool
	Tags          []string
	Description   string
	Keywords      string
	Weight        *float64
}

var weightMetaRe = regexp.MustCompile(`^-?[0-9]*\.?[0-9]+$`)

// HTML extracts an ExtractedPage from rendered HTML. pageURL is the page's own canonical URL, used to resolve
// relative outgoing links.
func HTML(pageURL, html string, cfg Config) (*ExtractedPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("extract: parse html: %w", err)
	}

	if cfg.RespectRobotsNoindex {
		noindex := false
		doc.Find(`meta[name="robots"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			content, _ := s.Attr("content")
			if strings.Contains(strings.ToLower(content), "noindex") {
				noindex = true
				return false
			}
			return true
		})
		if noindex {
			return &ExtractedPage{URL: urlpath.Normalize(pageURL), Noindex: true}, nil
		}
	}
	if cfg.NoindexAttr != "" {
		if doc.Find("[" + cfg.NoindexAttr + "]").Length() > 0 {
			return &ExtractedPage{URL: urlpath.Normalize(pageURL), Noindex: true}, nil
		}
	}

	main := doc.Find(cfg.MainSelector).First()
	if main.Length() == 0 {
		main = doc.Find("body").First()
	}
	if main.Length() == 0 {
		main = doc.Selection
	}
	subtree := main.Clone()

	for _, tag := range cfg.DropTags {
		subtree.Find(tag).Remove()
	}
	for _, sel := range cfg.DropSelectors {
		subtree.Find(sel).Remove()
	}
	if cfg.IgnoreAttr != "" {
		subtree.Find("[" + cfg.IgnoreAttr + "]").Remove()
	}

	title := extractTitle(doc.Selection, subtree)

	links := extractOutgoingLinks(pageURL, subtree)

	subtreeHTML, err := subtree.Html()
	if err != nil {
		return nil, fmt.Errorf("extract: render subtree: %w", err)
	}
	markdown, err := htmltomarkdown.ConvertString(subtreeHTML)
	if err != nil {
		return nil, fmt.Errorf("extract: convert to markdown: %w", err)
	}
	markdown = textnorm.Normalize(markdown)
	if markdown == "" {
		return &ExtractedPage{URL: urlpath.Normalize(pageURL), Noindex: true}, nil
	}

	description, _ := doc.Find(`meta[name="description"]`).Attr("content")
	keywords, _ := doc.Find(`meta[name="keywords"]`).Attr("content")

	page := &ExtractedPage{
		URL:           urlpath.Normalize(pageURL),
		Title:         title,
		Markdown:      markdown,
		OutgoingLinks: links,
		Tags:          tagsForURL(urlpath.Normalize(pageURL)),
		Description:   description,
		Keywords:      keywords,
	}

	if w, ok := doc.Find(`meta[name="searchsocket-weight"]`).Attr("content"); ok {
		if weightMetaRe.MatchString(strings.TrimSpace(w)) {
			if v, err := strconv.ParseFloat(strings.TrimSpace(w), 64); err == nil && v >= 0 {
				if v == 0 {
					page.Noindex = true
				}
				page.Weight = &v
			}
		}
	}

	return page, nil
}

func extractTitle(doc, subtree *goquery.Selection) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	if h1 := subtree.Find("h1").First(); h1.Length() > 0 {
		if t := strings.TrimSpace(h1.Text()); t != "" {
			return t
		}
	}
	if tw, ok := doc.Find(`meta[name="twitter:title"]`).Attr("content"); ok && strings.TrimSpace(tw) != "" {
		return strings.TrimSpace(tw)
	}
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return ""
}

func extractOutgoingLinks(pageURL string, subtree *goquery.Selection) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = &url.URL{}
	}

	seen := make(map[string]bool)
	var out []string
	subtree.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "" && resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		if resolved.Host != "" && resolved.Host != base.Host {
			return
		}
		canon := urlpath.Normalize(resolved.Path)
		if seen[canon] {
			return
		}
		seen[canon] = true
		out = append(out, canon)
	})
	return out
}

func tagsForURL(canonicalURL string) []string {
	seg := urlpath.FirstSegment(canonicalURL)
	if seg == "" {
		return nil
	}
	return []string{seg}
}

var noindexCommentRe = regexp.MustCompile(`(?s)^\s*<!--\s*noindex\s*-->`)

type markdownFrontmatter struct {
	Title        string   `yaml:"title"`
	Noindex      bool     `yaml:"noindex"`
	Searchsocket struct {
		Weight *float64 `yaml:"weight"`
	} `yaml:"searchsocket"`
	Tags        []string `yaml:"tags"`
	Description string   `yaml:"description"`
	Keywords    string   `yaml:"keywords"`
}

// Markdown extracts an ExtractedPage from raw markdown with optional
// YAML frontmatter. titleOverride, when
// non-empty, takes precedence over the frontmatter and URL fallbacks.
func Markdown(pageURL, raw, titleOverride string) (*ExtractedPage, error) {
	canonical := urlpath.Normalize(pageURL)

	body := stripLeadingNoindexComment(raw)
	noindexComment := body != raw

	var fm markdownFrontmatter
	rest, err := frontmatter.Parse(strings.NewReader(body), &fm)
	if err != nil {
		// Malformed or absent frontmatter: treat the whole input as body.
		rest = []byte(body)
	}

	if noindexComment || fm.Noindex {
		return &ExtractedPage{URL: canonical, Noindex: true}, nil
	}
	if fm.Searchsocket.Weight != nil && *fm.Searchsocket.Weight == 0 {
		return &ExtractedPage{URL: canonical, Noindex: true}, nil
	}

	markdown := textnorm.Normalize(string(rest))
	if markdown == "" {
		return &ExtractedPage{URL: canonical, Noindex: true}, nil
	}

	title := titleOverride
	if title == "" {
		title = fm.Title
	}
	if title == "" {
		title = canonical
	}

	tags := fm.Tags
	if len(tags) == 0 {
		tags = tagsForURL(canonical)
	}

	return &ExtractedPage{
		URL:         canonical,
		Title:       title,
		Markdown:    markdown,
		Tags:        tags,
		Description: fm.Description,
		Keywords:    fm.Keywords,
		Weight:      fm.Searchsocket.Weight,
	}, nil
}

func stripLeadingNoindexComment(s string) string {
	trimmed := strings.TrimLeft(s, "\n\t ")
	if noindexCommentRe.MatchString(trimmed) {
		return ""
	}
	return s
}
