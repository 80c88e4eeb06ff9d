// Copyright 2024 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package driver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abcxyz/cargolock/internal/common"
	"github.com/abcxyz/cargolock/internal/resolver"
	"github.com/abcxyz/cargolock/testutil"
)

type fakePlanner struct {
	graph *resolver.Graph
}

func (f *fakePlanner) Plan(ctx context.Context, manifestPath string, settings resolver.PlanSettings) (*resolver.Graph, error) {
	return f.graph, nil
}

func TestRun_FullPipelineProducesBazelFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteAllDefaultMode(t, dir, map[string]string{
		"config.yaml": `
cargo_toml_files:
  "//foo:Cargo.toml": ` + filepath.Join(dir, "foo", "Cargo.toml") + `
repository_template: "https://example.com/{name}-{version}.crate"
target_triples:
  - x86_64-unknown-linux-gnu
cargo: echo
`,
		"foo/Cargo.toml": `
[dependencies]
serde = "1.0"
`,
	})

	planner := &fakePlanner{graph: &resolver.Graph{Crates: []resolver.ResolvedCrate{
		{
			Name:    "serde",
			Version: "1.0.100",
			Edition: "2018",
			Source:  resolver.Source{Kind: "registry"},
			Targets: []resolver.CrateTarget{{Kind: resolver.TargetLib, Name: "serde"}},
			PerTriple: map[string]resolver.TripleResolution{
				"x86_64-unknown-linux-gnu": {},
			},
		},
	}}}

	outPath := filepath.Join(dir, "out.bzl")
	opts := Options{
		InputPath:  filepath.Join(dir, "config.yaml"),
		OutputPath: outPath,
		RepoName:   "crates",
		FS:         &common.RealFS{},
		Planner:    planner,
	}

	if err := Run(context.Background(), opts); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("reading output file: %v", err)
	}
	if !strings.Contains(string(out), `"serde": "@__serde__1_0_100//:serde"`) {
		t.Errorf("Run() output missing expected CRATE_TARGET_NAMES entry, got:\n%s", out)
	}
	if !strings.Contains(string(out), "# Generated by cargolock. Digest: ") {
		t.Errorf("Run() output missing digest header, got:\n%s", out)
	}
}
