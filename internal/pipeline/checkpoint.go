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

package pipeline

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Checkpoint records per-chunk upsert progress for one run so an
// interrupted pipeline run can resume without re-embedding chunks it
// already finished. Keys are chunk keys, not file paths: the diff
// runs against the remote store, so there is no path/modtime to key
// on.
type Checkpoint struct {
	ScopeID      string            `json:"scope_id"`
	StartedAt    time.Time         `json:"started_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	UpsertedKeys map[string]bool   `json:"upserted_keys"`
	FailedKeys   map[string]string `json:"failed_keys"`
}

// CheckpointManager persists a Checkpoint to a file under stateDir,
// named deterministically from scopeID so concurrent scopes don't
// collide.
type CheckpointManager struct {
	dir        string
	scopeID    string
	enabled    bool
	mu         sync.Mutex
	checkpoint *Checkpoint
}

// NewCheckpointManager constructs a manager rooted at stateDir.
// enabled=false makes every method a no-op.
func NewCheckpointManager(stateDir, scopeID string, enabled bool) *CheckpointManager {
	return &CheckpointManager{
		dir:     stateDir,
		scopeID: scopeID,
		enabled: enabled,
		checkpoint: &Checkpoint{
			ScopeID:      scopeID,
			StartedAt:    time.Now(),
			UpsertedKeys: make(map[string]bool),
			FailedKeys:   make(map[string]string),
		},
	}
}

func (cm *CheckpointManager) path() string {
	hash := md5.Sum([]byte(cm.scopeID))
	return filepath.Join(cm.dir, fmt.Sprintf("checkpoint_%x.json", hash))
}

// Load reads an existing checkpoint for this scope, if any.
func (cm *CheckpointManager) Load() (*Checkpoint, error) {
	if !cm.enabled {
		return nil, nil
	}
	data, err := os.ReadFile(cm.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("pipeline: read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("pipeline: parse checkpoint: %w", err)
	}
	cm.mu.Lock()
	cm.checkpoint = &cp
	cm.mu.Unlock()
	return &cp, nil
}

// RecordUpserted marks chunkKey as successfully upserted this run.
func (cm *CheckpointManager) RecordUpserted(chunkKey string) {
	if !cm.enabled {
		return
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.checkpoint.UpsertedKeys[chunkKey] = true
	delete(cm.checkpoint.FailedKeys, chunkKey)
}

// RecordFailed marks chunkKey as failed with reason, for surfacing in
// the final stats and for retry prioritization on the next run.
func (cm *CheckpointManager) RecordFailed(chunkKey, reason string) {
	if !cm.enabled {
		return
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.checkpoint.FailedKeys[chunkKey] = reason
}

// AlreadyUpserted reports whether chunkKey was recorded as upserted in
// a prior, interrupted run.
func (cm *CheckpointManager) AlreadyUpserted(chunkKey string) bool {
	if !cm.enabled {
		return false
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.checkpoint.UpsertedKeys[chunkKey]
}

// Save writes the current checkpoint to disk.
func (cm *CheckpointManager) Save() error {
	if !cm.enabled {
		return nil
	}
	cm.mu.Lock()
	cm.checkpoint.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(cm.checkpoint, "", "  ")
	cm.mu.Unlock()
	if err != nil {
		return fmt.Errorf("pipeline: marshal checkpoint: %w", err)
	}
	if err := os.MkdirAll(cm.dir, 0o755); err != nil {
		return fmt.Errorf("pipeline: create state dir: %w", err)
	}
	return os.WriteFile(cm.path(), data, 0o644)
}

// Clear removes the checkpoint file after a fully successful run.
func (cm *CheckpointManager) Clear() error {
	if !cm.enabled {
		return nil
	}
	if err := os.Remove(cm.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pipeline: remove checkpoint: %w", err)
	}
	return nil
}
