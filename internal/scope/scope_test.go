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

package scope

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregpriday/searchsocket/internal/apperr"
)

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"main":                "main",
		"Feature/New-Thing":   "feature-new-thing",
		"fix_bug #42":         "fix-bug-42",
		"--weird--":           "weird",
		"UPPER":               "upper",
		"release/v1.2.3":      "release-v1-2-3",
		"///":                 "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Sanitize(in), "input %q", in)
	}
}

func TestResolveFixedMode(t *testing.T) {
	sc, err := Resolve(context.Background(), "proj", Config{Mode: ModeFixed, Fixed: "Main Branch", Sanitize: true})
	require.NoError(t, err)
	assert.Equal(t, "proj", sc.ProjectID)
	assert.Equal(t, "main-branch", sc.ScopeName)
	assert.Equal(t, "proj:main-branch", sc.ID())
}

func TestResolveEnvMode(t *testing.T) {
	t.Setenv("SCOPE_TEST_BRANCH", "pr-42")
	sc, err := Resolve(context.Background(), "proj", Config{Mode: ModeEnv, EnvVar: "SCOPE_TEST_BRANCH"})
	require.NoError(t, err)
	assert.Equal(t, "pr-42", sc.ScopeName)
}

func TestResolveEnvModeEmptyFails(t *testing.T) {
	t.Setenv("SCOPE_TEST_EMPTY", "")
	_, err := Resolve(context.Background(), "proj", Config{Mode: ModeEnv, EnvVar: "SCOPE_TEST_EMPTY"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeConfigMissing, apperr.CodeOf(err))
}

func TestResolveMissingProjectID(t *testing.T) {
	_, err := Resolve(context.Background(), "", Config{Mode: ModeFixed, Fixed: "main"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeConfigMissing, apperr.CodeOf(err))
}

func TestResolveUnknownMode(t *testing.T) {
	_, err := Resolve(context.Background(), "proj", Config{Mode: "wat", Fixed: "main"})
	require.Error(t, err)
}
