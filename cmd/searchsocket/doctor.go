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

package main

import (
	"github.com/gregpriday/searchsocket/internal/health"
)

// DoctorCmd probes config, vector store, and embeddings provider,
// returning exit code 1 if any check fails.
type DoctorCmd struct{}

func (c *DoctorCmd) Run(appCtx *Context) error {
	cfg, cfgErr := loadConfig(appCtx.CLI)

	var store interface {
		Close() error
	}
	var report health.Report
	if cfgErr != nil {
		report = health.Run(appCtx.Ctx, nil, nil, nil)
	} else {
		st, storeErr := buildStore(cfg)
		embedder, embErr := buildEmbedder(cfg)
		if storeErr != nil {
			appCtx.Logger.Warn("vector store construction failed", "err", storeErr.Error())
		}
		if embErr != nil {
			appCtx.Logger.Warn("embedder construction failed", "err", embErr.Error())
		}
		if st != nil {
			store = st
			defer store.Close()
		}
		report = health.Run(appCtx.Ctx, cfg, st, embedder)
	}

	for _, check := range report.Checks {
		appCtx.Logger.Info("doctor check",
			"component", check.Component,
			"status", string(check.Status),
			"message", check.Message,
			"latencyMs", check.Latency.Milliseconds(),
		)
	}

	if !report.OK() {
		return &doctorFailure{}
	}
	return nil
}

// doctorFailure is a plain error carrying only a generic summary
// message: the per-check failures were already logged above, so the
// final error line doesn't repeat them.
type doctorFailure struct{}

func (e *doctorFailure) Error() string { return "one or more doctor checks failed" }
