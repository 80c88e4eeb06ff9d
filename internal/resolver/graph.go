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

// Package resolver implements the Resolver stage: invoking the upstream
// resolver on the merged manifest and recovering a fully
// pinned dependency graph.
package resolver

// TargetKind is the kind of build target a crate exposes.
type TargetKind string

const (
	TargetLib        TargetKind = "lib"
	TargetBin        TargetKind = "bin"
	TargetProcMacro  TargetKind = "proc-macro"
	TargetBuildScript TargetKind = "build-script"
)

// CrateTarget is one build target belonging to a crate.
type CrateTarget struct {
	Kind      TargetKind
	Name      string
	CrateRoot string // path relative to the crate archive root
}

// UnsupportedTarget names an auxiliary target present in the crate archive
// that the generator declines to emit, reported with a trailing
// "# Unsupported target ... omitted" comment.
type UnsupportedTarget struct {
	Name string
	Kind string
}

// Source describes where a crate's archive comes from.
type Source struct {
	Kind    string // "registry" or "git"
	Remote  string
	Commit  string
	SubPath string // workspace sub-path, empty for a top-level crate
}

// DepEdge is one resolved dependency edge.
type DepEdge struct {
	Name    string
	Version string
	// IfFeature, when non-empty, names the feature flag that gates this
	// edge's presence; used by feature-removal pruning.
	IfFeature string
	// Rename, when non-empty, is the local extern-crate name the dependent
	// uses for this edge when it differs from Name's default sanitized
	// form (a Cargo.toml `package = "..."` rename). Surfaced by the
	// Consolidator/Renderer as a target's aliases attribute.
	Rename string
}

// TripleResolution is the per-platform-triple slice of a crate's resolution:
// its enabled features and its dependency edges in each surfaced category.
type TripleResolution struct {
	Features   []string
	Normal     []DepEdge
	Build      []DepEdge
	ProcMacro  []DepEdge
	Dev        []DepEdge // present in the graph, never surfaced by the Consolidator
}

// ResolvedCrate is the per-crate output of resolution.
type ResolvedCrate struct {
	Name    string
	Version string
	Source  Source
	License string
	Edition string
	Targets []CrateTarget

	// Keyed by target triple.
	PerTriple map[string]TripleResolution

	LinksNative string
	Unsupported []UnsupportedTarget

	// ReachableViaDevOnly is true if every path from a workspace member to
	// this crate passes through a dev-dependency edge. Such crates are
	// resolved and digested but excluded from CRATE_TARGET_NAMES.
	ReachableViaDevOnly bool
}

// Graph is the fully-pinned dependency graph produced by the upstream
// resolver.
type Graph struct {
	Crates []ResolvedCrate
}
