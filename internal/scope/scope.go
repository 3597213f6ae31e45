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

// Package scope resolves and sanitizes the (projectId, scopeName)
// namespace a pipeline run operates under.
package scope

import (
	"context"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/gregpriday/searchsocket/internal/apperr"
)

// Mode selects how scopeName is derived.
type Mode string

const (
	ModeFixed Mode = "fixed"
	ModeEnv   Mode = "env"
	ModeGit   Mode = "git"
)

// Config is the scope.* configuration block.
type Config struct {
	Mode     Mode
	Fixed    string
	EnvVar   string
	Sanitize bool
}

// Scope identifies a namespace a run's chunks belong to.
type Scope struct {
	ProjectID string
	ScopeName string
}

// ID returns the stable "projectId:scopeName" key.
func (s Scope) ID() string {
	return s.ProjectID + ":" + s.ScopeName
}

var nonAllowedRunRe = regexp.MustCompile(`[^a-z0-9]+`)

// Sanitize normalizes a raw scope name: lowercase ASCII, [a-z0-9-]
// only, other runs collapsed to "-", trimmed.
func Sanitize(raw string) string {
	lower := strings.ToLower(raw)
	collapsed := nonAllowedRunRe.ReplaceAllString(lower, "-")
	return strings.Trim(collapsed, "-")
}

// Resolve derives a Scope from configuration.
func Resolve(ctx context.Context, projectID string, cfg Config) (Scope, error) {
	if projectID == "" {
		return Scope{}, apperr.New(apperr.CodeConfigMissing, "project.id is required")
	}

	var raw string
	switch cfg.Mode {
	case "", ModeFixed:
		raw = cfg.Fixed
	case ModeEnv:
		if cfg.EnvVar == "" {
			return Scope{}, apperr.New(apperr.CodeConfigMissing, "scope.envVar is required when scope.mode=env")
		}
		raw = os.Getenv(cfg.EnvVar)
		if raw == "" {
			return Scope{}, apperr.New(apperr.CodeConfigMissing, "environment variable "+cfg.EnvVar+" is empty")
		}
	case ModeGit:
		branch, err := currentGitBranch(ctx)
		if err != nil || branch == "" {
			raw = cfg.Fixed
		} else {
			raw = branch
		}
	default:
		return Scope{}, apperr.Newf(apperr.CodeConfigMissing, "unrecognized scope.mode %q", cfg.Mode)
	}

	if raw == "" {
		return Scope{}, apperr.New(apperr.CodeConfigMissing, "resolved scope name is empty")
	}

	name := raw
	if cfg.Sanitize {
		name = Sanitize(raw)
	}
	if name == "" {
		return Scope{}, apperr.New(apperr.CodeConfigMissing, "sanitized scope name is empty")
	}

	return Scope{ProjectID: projectID, ScopeName: name}, nil
}

func currentGitBranch(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--abbrev-ref", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
