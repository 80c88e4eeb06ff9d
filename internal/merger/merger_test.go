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

package merger

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/abcxyz/cargolock/internal/common"
	"github.com/abcxyz/cargolock/internal/errtax"
	"github.com/abcxyz/cargolock/internal/manifest"
	"github.com/abcxyz/cargolock/internal/model"
	"github.com/abcxyz/cargolock/testutil"
)

func TestMerge_UnionsDependencies(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteAllDefaultMode(t, dir, map[string]string{
		"foo/Cargo.toml": `
[dependencies]
serde = "1.0"
`,
		"bar/Cargo.toml": `
[dependencies]
tokio = { version = "1.28", features = ["rt"] }
`,
	})

	cfg := &model.Config{
		CargoTomlFiles: map[string]string{
			"//foo:Cargo.toml": filepath.Join(dir, "foo/Cargo.toml"),
			"//bar:Cargo.toml": filepath.Join(dir, "bar/Cargo.toml"),
		},
		Packages: []model.Package{
			{Name: model.String{Val: "zlib"}, Constraint: model.String{Val: "1.2"}},
		},
	}

	got, err := Merge(cfg, &common.RealFS{})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	want := map[string]manifest.DepSpec{
		"serde": {Version: "1.0"},
		"tokio": {Version: "1.28", Features: []string{"rt"}},
		"zlib":  {Version: "1.2"},
	}
	if diff := cmp.Diff(want, got.Dependencies); diff != "" {
		t.Errorf("Merge().Dependencies diff (-want +got):\n%s", diff)
	}

	wantLabelCrates := map[string][]string{
		"//foo:Cargo.toml": {"serde"},
		"//bar:Cargo.toml": {"tokio"},
	}
	if diff := cmp.Diff(wantLabelCrates, got.LabelCrates); diff != "" {
		t.Errorf("Merge().LabelCrates diff (-want +got):\n%s", diff)
	}
}

func TestMerge_ConflictingSpecs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteAllDefaultMode(t, dir, map[string]string{
		"foo/Cargo.toml": `
[dependencies]
serde = "1.0"
`,
		"bar/Cargo.toml": `
[dependencies]
serde = "2.0"
`,
	})

	cfg := &model.Config{
		CargoTomlFiles: map[string]string{
			"//foo:Cargo.toml": filepath.Join(dir, "foo/Cargo.toml"),
			"//bar:Cargo.toml": filepath.Join(dir, "bar/Cargo.toml"),
		},
	}

	_, err := Merge(cfg, &common.RealFS{})
	var taxErr *errtax.Error
	if !errors.As(err, &taxErr) || taxErr.Kind != errtax.ManifestConflict {
		t.Fatalf("Merge() error = %v, want a ManifestConflict", err)
	}
}

func TestMerge_PatchConflict(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteAllDefaultMode(t, dir, map[string]string{
		"foo/Cargo.toml": `
[dependencies]

[patch.crates-io]
serde = { git = "https://github.com/serde-rs/serde", branch = "main" }
`,
		"bar/Cargo.toml": `
[dependencies]

[patch.crates-io]
serde = { git = "https://github.com/other/serde", branch = "other" }
`,
	})

	cfg := &model.Config{
		CargoTomlFiles: map[string]string{
			"//foo:Cargo.toml": filepath.Join(dir, "foo/Cargo.toml"),
			"//bar:Cargo.toml": filepath.Join(dir, "bar/Cargo.toml"),
		},
	}

	_, err := Merge(cfg, &common.RealFS{})
	var taxErr *errtax.Error
	if !errors.As(err, &taxErr) || taxErr.Kind != errtax.PatchConflict {
		t.Fatalf("Merge() error = %v, want a PatchConflict", err)
	}
}

func TestMerge_ExtraPinDoesNotAliasConfigFeatures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteAllDefaultMode(t, dir, map[string]string{"foo/Cargo.toml": "[dependencies]\n"})

	cfgFeatures := []string{"derive"}
	cfg := &model.Config{
		CargoTomlFiles: map[string]string{"//foo:Cargo.toml": filepath.Join(dir, "foo/Cargo.toml")},
		Packages: []model.Package{
			{Name: model.String{Val: "serde"}, Constraint: model.String{Val: "1.0"}, Features: cfgFeatures},
		},
	}

	got, err := Merge(cfg, &common.RealFS{})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	got.Dependencies["serde"].Features[0] = "mutated"
	if cfgFeatures[0] != "derive" {
		t.Errorf("mutating the merged manifest's Features slice leaked into the config's own slice: %v", cfgFeatures)
	}
}
