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

package model

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var ignorePos = cmpopts.IgnoreFields(ConfigPos{}, "Line", "Column")

func TestDecode_Success(t *testing.T) {
	t.Parallel()

	in := `
cargo_toml_files:
  //foo:Cargo.toml: foo/Cargo.toml
target_triples:
  - x86_64-unknown-linux-gnu
cargo: cargo
packages:
  - name: serde
    version_requirement: "1.0"
    features: [derive]
overrides:
  openssl-sys:
    extra_rust_env_vars:
      OPENSSL_STATIC: "1"
    features_to_remove: [vendored]
`
	got, err := Decode(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	want := &Config{
		CargoTomlFiles: map[string]string{"//foo:Cargo.toml": "foo/Cargo.toml"},
		TargetTriples:  []string{"x86_64-unknown-linux-gnu"},
		Cargo:          String{Val: "cargo"},
		Packages: []Package{
			{Name: String{Val: "serde"}, Constraint: String{Val: "1.0"}, Features: []string{"derive"}},
		},
		Overrides: map[string]*Override{
			"openssl-sys": {
				ExtraRustEnvVars: map[string]string{"OPENSSL_STATIC": "1"},
				FeaturesToRemove: []string{"vendored"},
			},
		},
	}

	if diff := cmp.Diff(want, got, ignorePos); diff != "" {
		t.Errorf("Decode() diff (-want +got):\n%s", diff)
	}
}

func TestDecode_MissingTargetTriples(t *testing.T) {
	t.Parallel()

	in := `
cargo_toml_files:
  //foo:Cargo.toml: foo/Cargo.toml
`
	if _, err := Decode(strings.NewReader(in)); err == nil {
		t.Fatal("Decode() error = nil, want an error for empty target_triples")
	}
}

func TestDecode_UnknownTopLevelField(t *testing.T) {
	t.Parallel()

	in := `
target_triples: [x86_64-unknown-linux-gnu]
bogus_field: true
`
	_, err := Decode(strings.NewReader(in))
	if err == nil {
		t.Fatal("Decode() error = nil, want an error for an unknown field")
	}
	if !strings.Contains(err.Error(), "bogus_field") {
		t.Errorf("Decode() error = %v, want it to name bogus_field", err)
	}
}

func TestDecode_UnknownOverrideField(t *testing.T) {
	t.Parallel()

	in := `
target_triples: [x86_64-unknown-linux-gnu]
overrides:
  foo:
    bogus: true
`
	_, err := Decode(strings.NewReader(in))
	if err == nil {
		t.Fatal("Decode() error = nil, want an error for an unknown override field")
	}
}

func TestPackage_Validate_RequiresName(t *testing.T) {
	t.Parallel()

	p := &Package{Constraint: String{Val: "1.0"}}
	if err := p.Validate(); err == nil {
		t.Fatal("Validate() error = nil, want an error for a missing name")
	}
}

func TestSortPackages(t *testing.T) {
	t.Parallel()

	pkgs := []Package{
		{Name: String{Val: "zlib"}, Constraint: String{Val: "1.0"}},
		{Name: String{Val: "serde"}, Constraint: String{Val: "2.0"}},
		{Name: String{Val: "serde"}, Constraint: String{Val: "1.0"}},
	}
	SortPackages(pkgs)

	want := []string{"serde@1.0", "serde@2.0", "zlib@1.0"}
	var got []string
	for _, p := range pkgs {
		got = append(got, p.Name.Val+"@"+p.Constraint.Val)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SortPackages() diff (-want +got):\n%s", diff)
	}
}

func TestOverride_SortedFeaturesToRemove(t *testing.T) {
	t.Parallel()

	o := &Override{FeaturesToRemove: []string{"b", "a", "b", "c"}}
	got := o.SortedFeaturesToRemove()
	want := []string{"a", "b", "c"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SortedFeaturesToRemove() diff (-want +got):\n%s", diff)
	}
}
