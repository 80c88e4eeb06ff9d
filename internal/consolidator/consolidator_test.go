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

package consolidator

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/abcxyz/cargolock/internal/bazelname"
	"github.com/abcxyz/cargolock/internal/model"
	"github.com/abcxyz/cargolock/internal/resolver"
)

var triples = []string{"x86_64-unknown-linux-gnu", "x86_64-pc-windows-msvc"}

func TestBuildCategory_DefaultGroupWhenAllTriplesAgree(t *testing.T) {
	t.Parallel()

	byTriple := map[string][]string{
		"x86_64-unknown-linux-gnu": {bazelname.Label("serde", "1.0.0")},
		"x86_64-pc-windows-msvc":   {bazelname.Label("serde", "1.0.0")},
	}
	groups, err := buildCategory(byTriple, nil, triples)
	if err != nil {
		t.Fatalf("buildCategory() error = %v", err)
	}
	if len(groups) != 1 || len(groups[0].Triples) != 0 {
		t.Fatalf("buildCategory() = %+v, want a single default (unconditional) group", groups)
	}
}

func TestBuildCategory_PlatformConditionalGroup(t *testing.T) {
	t.Parallel()

	byTriple := map[string][]string{
		"x86_64-unknown-linux-gnu": {bazelname.Label("libc", "0.2.0")},
	}
	groups, err := buildCategory(byTriple, nil, triples)
	if err != nil {
		t.Fatalf("buildCategory() error = %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("buildCategory() = %+v, want exactly one group", groups)
	}
	want := []string{"x86_64-unknown-linux-gnu"}
	if diff := cmp.Diff(want, groups[0].Triples); diff != "" {
		t.Errorf("buildCategory() Triples diff (-want +got):\n%s", diff)
	}
}

func TestBuildCategory_OverrideSelectorMatchingNoTriplesIsSkipped(t *testing.T) {
	t.Parallel()

	overrides := map[string][]string{
		"cfg(windows)": {"-DFOO"},
	}
	unixOnly := []string{"x86_64-unknown-linux-gnu", "aarch64-unknown-linux-gnu"}
	groups, err := buildCategory(nil, overrides, unixOnly)
	if err != nil {
		t.Fatalf("buildCategory() error = %v", err)
	}
	if len(groups) != 0 {
		t.Fatalf("buildCategory() = %+v, want no groups when the predicate matches nothing", groups)
	}
}

func TestBuildCategory_OverrideSelectorMergesWithResolverEdges(t *testing.T) {
	t.Parallel()

	byTriple := map[string][]string{
		"x86_64-pc-windows-msvc": {bazelname.Label("winapi", "0.3.0")},
	}
	overrides := map[string][]string{
		"x86_64-pc-windows-msvc": {"EXTRA_ITEM"},
	}
	groups, err := buildCategory(byTriple, overrides, triples)
	if err != nil {
		t.Fatalf("buildCategory() error = %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("buildCategory() = %+v, want a single windows-only group", groups)
	}
	want := []string{bazelname.Label("winapi", "0.3.0"), "EXTRA_ITEM"}
	if diff := cmp.Diff(want, groups[0].Items); diff != "" {
		t.Errorf("buildCategory() Items diff (-want +got):\n%s", diff)
	}
}

func TestConsolidate_FeatureRemovalAndDevOnlyExclusion(t *testing.T) {
	t.Parallel()

	graph := &resolver.Graph{Crates: []resolver.ResolvedCrate{
		{
			Name:    "openssl-sys",
			Version: "0.9.0",
			Targets: []resolver.CrateTarget{{Kind: resolver.TargetLib, Name: "openssl-sys"}},
			PerTriple: map[string]resolver.TripleResolution{
				"x86_64-unknown-linux-gnu": {Features: []string{"vendored", "std"}},
				"x86_64-pc-windows-msvc":   {Features: []string{"vendored", "std"}},
			},
		},
		{
			Name:                "dev-only-helper",
			Version:             "1.0.0",
			ReachableViaDevOnly: true,
			Targets:             []resolver.CrateTarget{{Kind: resolver.TargetLib, Name: "dev-only-helper"}},
			PerTriple: map[string]resolver.TripleResolution{
				"x86_64-unknown-linux-gnu": {},
				"x86_64-pc-windows-msvc":   {},
			},
		},
	}}

	overrides := map[string]*model.Override{
		"openssl-sys": {FeaturesToRemove: []string{"vendored"}},
	}

	m, err := Consolidate(graph, overrides, triples)
	if err != nil {
		t.Fatalf("Consolidate() error = %v", err)
	}
	if len(m.Crates) != 2 {
		t.Fatalf("Consolidate() produced %d crates, want 2", len(m.Crates))
	}

	var openssl, devOnly *CrateSpec
	for i := range m.Crates {
		switch m.Crates[i].Name {
		case "openssl-sys":
			openssl = &m.Crates[i]
		case "dev-only-helper":
			devOnly = &m.Crates[i]
		}
	}
	if openssl == nil || devOnly == nil {
		t.Fatalf("Consolidate() crates = %+v, missing expected names", m.Crates)
	}

	if diff := cmp.Diff([]string{"std"}, openssl.Features); diff != "" {
		t.Errorf("openssl-sys Features diff (-want +got):\n%s", diff)
	}
	if !devOnly.ExcludedFromCrateTargetNames {
		t.Errorf("dev-only-helper.ExcludedFromCrateTargetNames = false, want true")
	}
	if openssl.ExcludedFromCrateTargetNames {
		t.Errorf("openssl-sys.ExcludedFromCrateTargetNames = true, want false")
	}
}

func TestConsolidate_AliasesDefaultEmptyWhenNoRenames(t *testing.T) {
	t.Parallel()

	graph := &resolver.Graph{Crates: []resolver.ResolvedCrate{
		{
			Name:    "lazy_static",
			Version: "1.4.0",
			Targets: []resolver.CrateTarget{{Kind: resolver.TargetLib, Name: "lazy_static"}},
			PerTriple: map[string]resolver.TripleResolution{
				"x86_64-unknown-linux-gnu": {},
				"x86_64-pc-windows-msvc":   {},
			},
		},
	}}

	m, err := Consolidate(graph, nil, triples)
	if err != nil {
		t.Fatalf("Consolidate() error = %v", err)
	}
	if len(m.Crates) != 1 {
		t.Fatalf("Consolidate() produced %d crates, want 1", len(m.Crates))
	}
	aliases := m.Crates[0].Deps.Aliases
	if len(aliases) != 1 || len(aliases[0].Triples) != 0 || len(aliases[0].Aliases) != 0 {
		t.Errorf("Consolidate().Deps.Aliases = %+v, want a single empty default group", aliases)
	}
}

func TestConsolidate_AliasesCarryRenamedDependency(t *testing.T) {
	t.Parallel()

	graph := &resolver.Graph{Crates: []resolver.ResolvedCrate{
		{
			Name:    "plist",
			Version: "1.0.0",
			Targets: []resolver.CrateTarget{{Kind: resolver.TargetLib, Name: "plist"}},
			PerTriple: map[string]resolver.TripleResolution{
				"x86_64-unknown-linux-gnu": {Normal: []resolver.DepEdge{
					{Name: "xml-rs", Version: "0.8.3", Rename: "xml_rs"},
				}},
				"x86_64-pc-windows-msvc": {Normal: []resolver.DepEdge{
					{Name: "xml-rs", Version: "0.8.3", Rename: "xml_rs"},
				}},
			},
		},
	}}

	m, err := Consolidate(graph, nil, triples)
	if err != nil {
		t.Fatalf("Consolidate() error = %v", err)
	}
	aliases := m.Crates[0].Deps.Aliases
	if len(aliases) != 1 || len(aliases[0].Triples) != 0 {
		t.Fatalf("Consolidate().Deps.Aliases = %+v, want a single default group", aliases)
	}
	want := map[string]string{bazelname.Label("xml-rs", "0.8.3"): "xml_rs"}
	if diff := cmp.Diff(want, aliases[0].Aliases); diff != "" {
		t.Errorf("Consolidate().Deps.Aliases[0].Aliases diff (-want +got):\n%s", diff)
	}
}
