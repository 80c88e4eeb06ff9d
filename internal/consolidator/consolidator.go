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

// Package consolidator implements the Consolidator stage: folding the
// resolved graph, overrides, and chosen-version map into a
// single, canonically-ordered intermediate model keyed by (name, version).
package consolidator

import (
	"fmt"
	"sort"
	"strings"

	xsemver "golang.org/x/mod/semver"

	"github.com/abcxyz/cargolock/internal/bazelname"
	"github.com/abcxyz/cargolock/internal/errtax"
	"github.com/abcxyz/cargolock/internal/model"
	"github.com/abcxyz/cargolock/internal/resolver"
)

// SelectorGroup is a group of dependency-tool labels or literal strings
// that share the exact same set of active target triples. A nil/empty
// Triples means the group applies unconditionally: when a dependency
// edge's active-triple set equals the full triple list, it is emitted
// under the default (unconditional) selector.
type SelectorGroup struct {
	Triples []string // sorted; empty means "default"/unconditional
	Items   []string // sorted labels or literal strings
}

// DepCategories holds the four (plus proc-macro) dependency categories a
// crate's targets are rendered with.
type DepCategories struct {
	Runtime            []SelectorGroup
	BuildScriptRuntime []SelectorGroup
	RuntimeData        []SelectorGroup
	BuildScriptData    []SelectorGroup
	ProcMacro          []SelectorGroup

	// Aliases is the target's aliases = select({...}) attribute: a
	// label -> local extern-crate-name map per active triple set, present
	// (possibly with an empty default map) on every target.
	Aliases []AliasGroup
}

// AliasGroup is one select() branch of a target's aliases attribute: a
// label -> local extern-crate-name map shared by every triple in Triples.
// A nil/empty Triples means the group applies unconditionally.
type AliasGroup struct {
	Triples []string
	Aliases map[string]string
}

// CrateSpec is the intermediate-model entry for one (name, version).
type CrateSpec struct {
	Name    string
	Version string

	Kind           resolver.TargetKind
	HasBuildScript bool
	BuildScriptName string
	Edition        string
	LinksNative    string
	License        string
	Source         resolver.Source
	Unsupported    []resolver.UnsupportedTarget

	// Features enabled on every configured triple, after features_to_remove
	// has been applied, sorted.
	Features []string

	RustcEnv       map[string]string
	BuildScriptEnv map[string]string

	Deps DepCategories

	// ExcludedFromCrateTargetNames is true for a crate reachable only via
	// dev-dependency edges: resolved and digested, but never given a
	// CRATE_TARGET_NAMES entry.
	ExcludedFromCrateTargetNames bool
}

// Model is the Consolidator's output: every crate, sorted by (name,
// version).
type Model struct {
	Crates []CrateSpec
}

// Consolidate builds the intermediate model.
func Consolidate(graph *resolver.Graph, overrides map[string]*model.Override, triples []string) (*Model, error) {
	out := &Model{}
	for _, rc := range graph.Crates {
		ov := overrides[rc.Name]

		removed := map[string]bool{}
		if ov != nil {
			for _, f := range ov.SortedFeaturesToRemove() {
				removed[f] = true
			}
		}

		features := intersectFeatures(rc, triples, removed)

		normalByTriple := map[string][]string{}
		buildByTriple := map[string][]string{}
		procMacroByTriple := map[string][]string{}
		for _, triple := range triples {
			tr, ok := rc.PerTriple[triple]
			if !ok {
				continue
			}
			normalByTriple[triple] = edgeLabels(tr.Normal, removed)
			buildByTriple[triple] = edgeLabels(tr.Build, removed)
			procMacroByTriple[triple] = edgeLabels(tr.ProcMacro, removed)
		}

		var runtimeOv, runtimeDataOv, buildOv, buildDataOv map[string][]string
		if ov != nil {
			runtimeOv, runtimeDataOv = ov.ExtraBazelDeps, ov.ExtraBazelDataDeps
			buildOv, buildDataOv = ov.ExtraBuildScriptBazelDeps, ov.ExtraBuildScriptBazelDataDeps
		}

		runtime, err := buildCategory(normalByTriple, runtimeOv, triples)
		if err != nil {
			return nil, fmt.Errorf("while consolidating crate %s-%s: %w", rc.Name, rc.Version, err)
		}
		runtimeData, err := buildCategory(nil, runtimeDataOv, triples)
		if err != nil {
			return nil, fmt.Errorf("while consolidating crate %s-%s: %w", rc.Name, rc.Version, err)
		}
		buildScript, err := buildCategory(buildByTriple, buildOv, triples)
		if err != nil {
			return nil, fmt.Errorf("while consolidating crate %s-%s: %w", rc.Name, rc.Version, err)
		}
		buildScriptData, err := buildCategory(nil, buildDataOv, triples)
		if err != nil {
			return nil, fmt.Errorf("while consolidating crate %s-%s: %w", rc.Name, rc.Version, err)
		}
		procMacro, err := buildCategory(procMacroByTriple, nil, triples)
		if err != nil {
			return nil, fmt.Errorf("while consolidating crate %s-%s: %w", rc.Name, rc.Version, err)
		}
		aliases := buildAliasGroups(rc, triples, removed)

		rustcEnv, buildEnv := map[string]string{}, map[string]string{}
		var hasBuildScript bool
		var buildScriptName string
		var kind resolver.TargetKind = resolver.TargetLib
		for _, t := range rc.Targets {
			if t.Kind == resolver.TargetBuildScript {
				hasBuildScript = true
				buildScriptName = bazelname.TargetName(rc.Name) + "_build_script"
			}
			if t.Kind == resolver.TargetBin || t.Kind == resolver.TargetProcMacro {
				kind = t.Kind
			}
		}
		if ov != nil {
			var err error
			rustcEnv, err = mergeStringMaps(rustcEnv, ov.ExtraRustEnvVars)
			if err != nil {
				return nil, fmt.Errorf("while consolidating crate %s-%s: %w", rc.Name, rc.Version, err)
			}
			buildEnv, err = mergeStringMaps(buildEnv, ov.ExtraBuildScriptEnvVars)
			if err != nil {
				return nil, fmt.Errorf("while consolidating crate %s-%s: %w", rc.Name, rc.Version, err)
			}
		}

		out.Crates = append(out.Crates, CrateSpec{
			Name:            rc.Name,
			Version:         rc.Version,
			Kind:            kind,
			HasBuildScript:  hasBuildScript,
			BuildScriptName: buildScriptName,
			Edition:         rc.Edition,
			LinksNative:     rc.LinksNative,
			License:         rc.License,
			Source:          rc.Source,
			Unsupported:     rc.Unsupported,
			Features:        features,
			RustcEnv:        rustcEnv,
			BuildScriptEnv:  buildEnv,
			Deps: DepCategories{
				Runtime:            runtime,
				BuildScriptRuntime: buildScript,
				RuntimeData:        runtimeData,
				BuildScriptData:    buildScriptData,
				ProcMacro:          procMacro,
				Aliases:            aliases,
			},
			ExcludedFromCrateTargetNames: rc.ReachableViaDevOnly,
		})
	}

	sort.Slice(out.Crates, func(i, j int) bool {
		if out.Crates[i].Name != out.Crates[j].Name {
			return out.Crates[i].Name < out.Crates[j].Name
		}
		va, vb := "v"+out.Crates[i].Version, "v"+out.Crates[j].Version
		if xsemver.IsValid(va) && xsemver.IsValid(vb) {
			return xsemver.Compare(va, vb) < 0
		}
		return out.Crates[i].Version < out.Crates[j].Version
	})
	return out, nil
}

func intersectFeatures(rc resolver.ResolvedCrate, triples []string, removed map[string]bool) []string {
	var acc map[string]int
	n := 0
	for _, triple := range triples {
		tr, ok := rc.PerTriple[triple]
		if !ok {
			continue
		}
		n++
		if acc == nil {
			acc = map[string]int{}
		}
		for _, f := range tr.Features {
			if removed[f] {
				continue
			}
			acc[f]++
		}
	}
	out := make([]string, 0, len(acc))
	for f, count := range acc {
		if count == n {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// edgeLabels converts resolved dependency edges into fully-qualified
// labels, dropping any edge gated on a feature that was removed by an
// override's features_to_remove list.
func edgeLabels(edges []resolver.DepEdge, removed map[string]bool) []string {
	var out []string
	for _, e := range edges {
		if e.IfFeature != "" && removed[e.IfFeature] {
			continue
		}
		out = append(out, bazelname.Label(e.Name, e.Version))
	}
	return out
}

// buildAliasGroups collects the normal-dependency renames active on each
// triple, grouping triples that end up with an identical alias map into one
// select() branch. Always returns at least one group (the default,
// possibly with an empty map), since aliases is rendered unconditionally.
func buildAliasGroups(rc resolver.ResolvedCrate, triples []string, removed map[string]bool) []AliasGroup {
	perTriple := make(map[string]map[string]string, len(triples))
	for _, triple := range triples {
		tr, ok := rc.PerTriple[triple]
		if !ok {
			continue
		}
		m := map[string]string{}
		for _, e := range tr.Normal {
			if e.Rename == "" {
				continue
			}
			if e.IfFeature != "" && removed[e.IfFeature] {
				continue
			}
			m[bazelname.Label(e.Name, e.Version)] = e.Rename
		}
		perTriple[triple] = m
	}

	byKey := map[string][]string{}        // canonical content key -> triples sharing it
	contentByKey := map[string]map[string]string{}
	for _, triple := range triples {
		m := perTriple[triple]
		key := aliasMapKey(m)
		byKey[key] = append(byKey[key], triple)
		contentByKey[key] = m
	}

	out := make([]AliasGroup, 0, len(byKey))
	for key, ts := range byKey {
		sort.Strings(ts)
		group := AliasGroup{Aliases: contentByKey[key]}
		if len(ts) != len(triples) {
			group.Triples = ts
		}
		out = append(out, group)
	}
	sort.Slice(out, func(i, j int) bool {
		return fmt.Sprintf("%v", out[i].Triples) < fmt.Sprintf("%v", out[j].Triples)
	})
	return out
}

func aliasMapKey(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(m[k])
		b.WriteByte('\n')
	}
	return b.String()
}

// buildCategory unifies resolver-derived per-triple edges with
// override-injected edges (keyed by selector string, either a concrete
// triple or a cfg(...) predicate) into SelectorGroups.
func buildCategory(resolverEdgesByTriple map[string][]string, overrideSelectors map[string][]string, triples []string) ([]SelectorGroup, error) {
	presence := map[string]map[string]bool{} // item -> set of triples

	for triple, items := range resolverEdgesByTriple {
		for _, item := range items {
			if presence[item] == nil {
				presence[item] = map[string]bool{}
			}
			presence[item][triple] = true
		}
	}

	for selector, items := range overrideSelectors {
		matching, err := expandSelector(selector, triples)
		if err != nil {
			return nil, err
		}
		if len(matching) == 0 {
			continue
		}
		for _, item := range items {
			if presence[item] == nil {
				presence[item] = map[string]bool{}
			}
			for _, t := range matching {
				presence[item][t] = true
			}
		}
	}

	groups := map[string]*SelectorGroup{}
	for item, triplesSet := range presence {
		key, sortedTriples := groupKey(triplesSet, triples)
		g, ok := groups[key]
		if !ok {
			g = &SelectorGroup{Triples: sortedTriples}
			groups[key] = g
		}
		g.Items = append(g.Items, item)
	}

	out := make([]SelectorGroup, 0, len(groups))
	for _, g := range groups {
		sort.Strings(g.Items)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		return selectorSortKey(out[i]) < selectorSortKey(out[j])
	})
	return out, nil
}

func selectorSortKey(g SelectorGroup) string {
	if len(g.Triples) == 0 {
		return ""
	}
	return fmt.Sprintf("%v", g.Triples)
}

func groupKey(triplesSet map[string]bool, allTriples []string) (string, []string) {
	if len(triplesSet) == len(allTriples) {
		return "__default__", nil
	}
	sorted := make([]string, 0, len(triplesSet))
	for t := range triplesSet {
		sorted = append(sorted, t)
	}
	sort.Strings(sorted)
	return fmt.Sprintf("%v", sorted), sorted
}

// expandSelector returns the subset of triples a platform selector string
// applies to.
func expandSelector(selector string, triples []string) ([]string, error) {
	var out []string
	for _, t := range triples {
		ok, err := matchesSelector(selector, t)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, t)
		}
	}
	// A well-formed predicate that happens to match none of the configured
	// triples (e.g. cfg(windows) with an all-Unix triple list) legitimately
	// contributes no edges; that's not an UnknownPredicate error.
	return out, nil
}

// mergeStringMaps unions a and b, returning OverrideKeyCollision if a key
// appears in both with different values.
func mergeStringMaps(a, b map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if existing, ok := out[k]; ok && existing != v {
			return nil, errtax.New(errtax.OverrideKeyCollision, fmt.Sprintf("key %q", k), nil)
		}
		out[k] = v
	}
	return out, nil
}
