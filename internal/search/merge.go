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

package search

import "github.com/gregpriday/searchsocket/internal/rerank"

// Hit is the engine's internal view of a vector-store hit carrying
// enough identity to run the merge policy and assemble a
// SearchResponse.
type Hit struct {
	ID       string
	URL      string
	Score    float32
	Metadata map[string]any
}

// mergeOrder computes a URL displacement between two hit orderings and
// returns the merged hit list: if any URL's displacement
// exceeds maxDisplacement, the reranked order is adopted wholesale;
// otherwise the initial order is kept with scores overwritten from the
// reranked response where available. Empty initial input returns the
// reranked hits unchanged.
func mergeOrder(initial []Hit, rerankedScores []rerank.Scored, maxDisplacement int) []Hit {
	if len(initial) == 0 {
		// No candidate metadata to attach: surface the reranked scores
		// as-is rather than dropping every id for lack of a byID match.
		out := make([]Hit, len(rerankedScores))
		for i, rs := range rerankedScores {
			out[i] = Hit{ID: rs.ID, Score: rs.Score}
		}
		return out
	}
	if len(rerankedScores) == 0 {
		return initial
	}

	byID := make(map[string]Hit, len(initial))
	for _, h := range initial {
		byID[h.ID] = h
	}

	reranked := rerankedByScore(rerankedScores, byID)

	initialOrder := urlOrder(initial)
	rerankedOrder := urlOrder(reranked)

	if displaces(initialOrder, rerankedOrder, maxDisplacement) {
		return reranked
	}

	scoreByID := make(map[string]float32, len(rerankedScores))
	for _, rs := range rerankedScores {
		scoreByID[rs.ID] = rs.Score
	}
	out := make([]Hit, len(initial))
	for i, h := range initial {
		if s, ok := scoreByID[h.ID]; ok {
			h.Score = s
		}
		out[i] = h
	}
	return out
}

// rerankedByScore looks up each scored id's full Hit from byID
// (dropping ids absent from the initial candidate set) and returns
// them in the reranker's own descending order.
func rerankedByScore(scores []rerank.Scored, byID map[string]Hit) []Hit {
	out := make([]Hit, 0, len(scores))
	for _, rs := range scores {
		h, ok := byID[rs.ID]
		if !ok {
			continue
		}
		h.Score = rs.Score
		out = append(out, h)
	}
	return out
}

// urlOrder returns the distinct URLs in hits, in first-occurrence
// order.
func urlOrder(hits []Hit) []string {
	seen := make(map[string]bool, len(hits))
	var order []string
	for _, h := range hits {
		if seen[h.URL] {
			continue
		}
		seen[h.URL] = true
		order = append(order, h.URL)
	}
	return order
}

// displaces reports whether any URL present in both orderings moved by
// more than maxDisplacement positions (the Displacement glossary
// term). maxDisplacement=0 means any change adopts the reranked order;
// a caller wanting "initial order always kept" passes math.MaxInt.
func displaces(initialOrder, rerankedOrder []string, maxDisplacement int) bool {
	posInitial := make(map[string]int, len(initialOrder))
	for i, u := range initialOrder {
		posInitial[u] = i
	}
	posReranked := make(map[string]int, len(rerankedOrder))
	for i, u := range rerankedOrder {
		posReranked[u] = i
	}

	for u, pi := range posInitial {
		pr, ok := posReranked[u]
		if !ok {
			continue
		}
		d := pi - pr
		if d < 0 {
			d = -d
		}
		if d > maxDisplacement {
			return true
		}
	}
	return false
}
