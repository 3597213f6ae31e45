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

// Package chunk splits an indexed page's markdown into ordered Chunk
// records with stable keys and content hashes. Pages are
// sectioned by heading, sections are blockified around protected
// code/table/quote blocks, and blocks are packed into bounded,
// overlapping chunks.
package chunk

import (
	"regexp"
	"strings"

	"github.com/gregpriday/searchsocket/internal/hashing"
	"github.com/gregpriday/searchsocket/internal/textnorm"
)

// Config is the chunking configuration.
type Config struct {
	MaxChars         int
	OverlapChars     int
	MinChars         int
	HeadingPathDepth int
	DontSplitInside  []string // subset of {code, table, blockquote}
}

// DefaultConfig returns a fully populated, sane default.
func DefaultConfig() Config {
	return Config{
		MaxChars:         1800,
		OverlapChars:     200,
		MinChars:         200,
		HeadingPathDepth: 3,
		DontSplitInside:  []string{"code", "table"},
	}
}

type protectedSet struct {
	code, table, blockquote bool
}

func newProtectedSet(dontSplitInside []string) protectedSet {
	var p protectedSet
	for _, kind := range dontSplitInside {
		switch kind {
		case "code":
			p.code = true
		case "table":
			p.table = true
		case "blockquote":
			p.blockquote = true
		}
	}
	return p
}

// PageInput is the subset of an IndexedPage the chunker needs.
type PageInput struct {
	ScopeName     string
	URL           string
	Path          string
	Title         string
	Markdown      string
	Depth         int
	IncomingLinks int
	RouteFile     string
	Tags          []string
	Description   string
	Keywords      string
}

// Chunk is an ordered, content-addressed fragment of a page.
type Chunk struct {
	ChunkKey      string
	Ordinal       int
	URL           string
	Path          string
	Title         string
	SectionTitle  string
	HeadingPath   []string
	ChunkText     string
	Snippet       string
	Depth         int
	IncomingLinks int
	RouteFile     string
	Tags          []string
	ContentHash   string
	Description   string
	Keywords      string
}

// Split splits page into an ordered list of Chunk records. Empty input
// yields an empty list; the chunker never fails on content.
func Split(page PageInput, cfg Config) []Chunk {
	prot := newProtectedSet(cfg.DontSplitInside)
	sections := sectionize(page.Markdown, cfg.HeadingPathDepth)

	type sectionChunk struct {
		text         string
		headingPath  []string
		sectionTitle string
	}
	var flat []sectionChunk

	for _, sec := range sections {
		blocks := blockify(sec.lines, prot)
		var pieces []string
		for _, b := range blocks {
			if b.protected || len([]rune(b.text)) <= cfg.MaxChars {
				pieces = append(pieces, b.text)
				continue
			}
			pieces = append(pieces, splitOversized(b.text, cfg)...)
		}
		for _, text := range packSection(pieces, cfg) {
			flat = append(flat, sectionChunk{text: text, headingPath: sec.headingPath, sectionTitle: sec.sectionTitle})
		}
	}

	// Tail merge: a short chunk merges into its predecessor when the
	// combined length stays within bounds.
	merged := make([]sectionChunk, 0, len(flat))
	for _, sc := range flat {
		if len(merged) > 0 && len([]rune(sc.text)) < cfg.MinChars {
			prev := merged[len(merged)-1]
			combined := prev.text + "\n\n" + sc.text
			if len([]rune(combined)) <= cfg.MaxChars {
				merged[len(merged)-1].text = combined
				continue
			}
		}
		merged = append(merged, sc)
	}

	chunks := make([]Chunk, 0, len(merged))
	for ordinal, sc := range merged {
		normalizedText := textnorm.Normalize(sc.text)
		key := hashing.ChunkKey(page.ScopeName, page.URL, ordinal, strings.ToLower(textnorm.Normalize(sc.sectionTitle)))
		chunks = append(chunks, Chunk{
			ChunkKey:      key,
			Ordinal:       ordinal,
			URL:           page.URL,
			Path:          page.Path,
			Title:         page.Title,
			SectionTitle:  sc.sectionTitle,
			HeadingPath:   sc.headingPath,
			ChunkText:     sc.text,
			Snippet:       textnorm.Snippet(normalizedText, 180),
			Depth:         page.Depth,
			IncomingLinks: page.IncomingLinks,
			RouteFile:     page.RouteFile,
			Tags:          page.Tags,
			ContentHash:   hashing.ContentHash(normalizedText),
			Description:   page.Description,
			Keywords:      page.Keywords,
		})
	}
	return chunks
}

// --- sectioning ---

type rawSection struct {
	headingPath  []string
	sectionTitle string
	lines        []string
}

var headingRe = regexp.MustCompile(`^(#{1,6}) (.+)$`)

func sectionize(markdown string, headingPathDepth int) []rawSection {
	if headingPathDepth <= 0 {
		headingPathDepth = 3
	}
	lines := strings.Split(markdown, "\n")

	var sections []rawSection
	var headingStack []string
	var curLines []string
	curTitle := ""
	var curHeadingPath []string
	inFence := false
	hadHeadings := false

	flush := func() {
		if len(curLines) == 0 {
			return
		}
		text := strings.Join(curLines, "\n")
		if textnorm.Normalize(text) == "" {
			curLines = nil
			return
		}
		sections = append(sections, rawSection{
			headingPath:  append([]string{}, curHeadingPath...),
			sectionTitle: curTitle,
			lines:        append([]string{}, curLines...),
		})
		curLines = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if isFenceMarker(trimmed) {
			inFence = !inFence
			curLines = append(curLines, line)
			continue
		}
		if !inFence {
			if m := headingRe.FindStringSubmatch(trimmed); m != nil {
				hadHeadings = true
				flush()
				level := len(m[1])
				title := strings.TrimSpace(m[2])
				if len(headingStack) < level {
					grown := make([]string, level)
					copy(grown, headingStack)
					headingStack = grown
				}
				headingStack = headingStack[:level]
				headingStack[level-1] = title
				curTitle = title
				curHeadingPath = firstNNonEmpty(headingStack, headingPathDepth)
				continue
			}
		}
		curLines = append(curLines, line)
	}
	flush()

	if len(sections) == 0 && !hadHeadings && textnorm.Normalize(markdown) != "" {
		sections = []rawSection{{headingPath: nil, sectionTitle: "", lines: lines}}
	}
	return sections
}

func firstNNonEmpty(stack []string, n int) []string {
	out := make([]string, 0, n)
	for _, s := range stack {
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == n {
			break
		}
	}
	return out
}

// --- blockify ---

type block struct {
	text      string
	protected bool
}

func isFenceMarker(trimmed string) bool {
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
}

var (
	tableLineRe = regexp.MustCompile(`^\|.*\|$`)
	tableSepRe  = regexp.MustCompile(`^\|?\s*:?-+:?\s*\|`)
)

func isTableLine(trimmed string) bool {
	return tableLineRe.MatchString(trimmed) || tableSepRe.MatchString(trimmed)
}

// blockify walks a section's lines, grouping fenced code, contiguous
// tables, and contiguous blockquotes into their own (possibly
// protected) blocks, and flushing on blank lines.
func blockify(lines []string, prot protectedSet) []block {
	var blocks []block
	var current []string

	flush := func() {
		if len(current) == 0 {
			return
		}
		blocks = append(blocks, block{text: strings.Join(current, "\n")})
		current = nil
	}

	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if isFenceMarker(trimmed) {
			flush()
			fenceLines := []string{line}
			j := i + 1
			closed := false
			for j < len(lines) {
				fenceLines = append(fenceLines, lines[j])
				if isFenceMarker(strings.TrimSpace(lines[j])) {
					closed = true
					j++
					break
				}
				j++
			}
			blocks = append(blocks, block{text: strings.Join(fenceLines, "\n"), protected: closed && prot.code})
			i = j
			continue
		}

		if prot.table && isTableLine(trimmed) {
			flush()
			tbl := []string{line}
			j := i + 1
			for j < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[j]), "|") {
				tbl = append(tbl, lines[j])
				j++
			}
			blocks = append(blocks, block{text: strings.Join(tbl, "\n"), protected: true})
			i = j
			continue
		}

		if prot.blockquote && strings.HasPrefix(trimmed, ">") {
			flush()
			quote := []string{line}
			j := i + 1
			for j < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[j]), ">") {
				quote = append(quote, lines[j])
				j++
			}
			blocks = append(blocks, block{text: strings.Join(quote, "\n"), protected: true})
			i = j
			continue
		}

		if trimmed == "" {
			flush()
			i++
			continue
		}

		current = append(current, line)
		i++
	}
	flush()
	return blocks
}

// splitOversized splits an unprotected block over cfg.MaxChars into
// greedy, word-boundary-aware windows with guaranteed forward
// progress.
func splitOversized(text string, cfg Config) []string {
	runes := []rune(text)
	n := len(runes)
	if n <= cfg.MaxChars {
		return []string{text}
	}

	var pieces []string
	start := 0
	for start < n {
		end := start + cfg.MaxChars
		if end > n {
			end = n
		}
		if end < n {
			minBoundary := start + int(0.6*float64(cfg.MaxChars))
			if idx := lastSpaceIndex(runes, start, end); idx >= minBoundary && idx > start {
				end = idx
			}
		}
		pieces = append(pieces, string(runes[start:end]))
		if end >= n {
			break
		}
		next := end - cfg.OverlapChars
		minNext := end - (cfg.MaxChars - 1)
		if next < minNext {
			next = minNext
		}
		if next <= start {
			next = end
		}
		start = next
	}
	return pieces
}

func lastSpaceIndex(runes []rune, start, end int) int {
	for i := end - 1; i > start; i-- {
		if runes[i] == ' ' || runes[i] == '\t' || runes[i] == '\n' {
			return i
		}
	}
	return -1
}

// packSection concatenates block pieces into running chunks separated
// by "\n\n", flushing on overflow and seeding the next chunk with a
// trailing overlap.
func packSection(pieces []string, cfg Config) []string {
	var chunks []string
	running := ""

	for _, piece := range pieces {
		var candidate string
		if running == "" {
			candidate = piece
		} else {
			candidate = running + "\n\n" + piece
		}

		if running == "" || len([]rune(candidate)) <= cfg.MaxChars {
			running = candidate
			continue
		}

		chunks = append(chunks, running)
		overlap := strings.TrimSpace(trailingChars(running, cfg.OverlapChars))
		var seeded string
		if overlap == "" {
			seeded = piece
		} else {
			withOverlap := overlap + "\n\n" + piece
			if len([]rune(withOverlap)) <= cfg.MaxChars {
				seeded = withOverlap
			} else {
				seeded = piece
			}
		}
		running = seeded
	}
	if running != "" {
		chunks = append(chunks, running)
	}
	return chunks
}

func trailingChars(s string, n int) string {
	runes := []rune(s)
	if n <= 0 || n >= len(runes) {
		return s
	}
	return string(runes[len(runes)-n:])
}
