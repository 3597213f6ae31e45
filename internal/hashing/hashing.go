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

// Package hashing provides the stable SHA-1/SHA-256 digests that drive
// chunk identity and content-change detection.
package hashing

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// ChunkKey computes the stable identity of a chunk: sha1 of
// scopeName|url|ordinal|lower(sectionTitle).
func ChunkKey(scopeName, url string, ordinal int, sectionTitleNormalized string) string {
	h := sha1.New()
	h.Write([]byte(scopeName))
	h.Write([]byte("|"))
	h.Write([]byte(url))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.Itoa(ordinal)))
	h.Write([]byte("|"))
	h.Write([]byte(sectionTitleNormalized))
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash computes the stable content digest that drives
// incremental reindex: sha256 of the normalized chunk text.
func ContentHash(normalizedText string) string {
	sum := sha256.Sum256([]byte(normalizedText))
	return hex.EncodeToString(sum[:])
}
