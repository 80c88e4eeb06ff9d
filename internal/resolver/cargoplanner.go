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

package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/abcxyz/cargolock/internal/errtax"
	"github.com/abcxyz/cargolock/internal/run"
)

// CargoMetadataPlanner is the production Planner: it shells out to the
// upstream resolver binary's "metadata" command and recovers a ResolvedCrate
// graph from its machine-readable output.
type CargoMetadataPlanner struct {
	// CargoPath is the path to the resolver binary, e.g. "cargo".
	CargoPath string
}

// Plan implements Planner.
func (p *CargoMetadataPlanner) Plan(ctx context.Context, manifestPath string, settings PlanSettings) (*Graph, error) {
	cargoPath := p.CargoPath
	if cargoPath == "" {
		cargoPath = "cargo"
	}

	stdout, stderr, err := run.Run(ctx, cargoPath, "metadata",
		"--format-version=1", "--manifest-path", manifestPath, "--locked")
	if err != nil {
		return nil, errtax.New(errtax.ResolveFailed, fmt.Sprintf("running %q metadata: %s", cargoPath, stderr), err)
	}

	var md cargoMetadata
	if err := json.Unmarshal([]byte(stdout), &md); err != nil {
		return nil, errtax.New(errtax.ResolveFailed, "parsing metadata output", err)
	}

	devOnly := devOnlyReachable(md)

	out := &Graph{}
	for _, pkg := range md.Packages {
		var targets []CrateTarget
		var unsupported []UnsupportedTarget
		var linksNative string
		if pkg.Links != "" {
			linksNative = pkg.Links
		}
		for _, t := range pkg.Targets {
			kind, ok := targetKind(t.Kind)
			if !ok {
				unsupported = append(unsupported, UnsupportedTarget{Name: t.Name, Kind: strings.Join(t.Kind, ",")})
				continue
			}
			targets = append(targets, CrateTarget{Kind: kind, Name: t.Name, CrateRoot: t.SrcPath})
		}

		source := Source{Kind: "registry"}
		if pkg.Source == "" {
			source.Kind = "path"
		} else if strings.HasPrefix(pkg.Source, "git+") {
			source.Kind = "git"
			remote, commit := splitGitSource(pkg.Source)
			source.Remote, source.Commit = remote, commit
			source.SubPath = gitSubPath(pkg.ManifestPath, commit)
		}

		perTriple := map[string]TripleResolution{}
		for _, triple := range settings.TargetTriples {
			perTriple[triple] = resolveEdgesForTriple(md, pkg, triple)
		}

		out.Crates = append(out.Crates, ResolvedCrate{
			Name:                pkg.Name,
			Version:             pkg.Version,
			Source:              source,
			License:             pkg.License,
			Edition:             pkg.Edition,
			Targets:             targets,
			PerTriple:           perTriple,
			LinksNative:         linksNative,
			Unsupported:         unsupported,
			ReachableViaDevOnly: devOnly[pkg.ID],
		})
	}

	return out, nil
}

func targetKind(kinds []string) (TargetKind, bool) {
	for _, k := range kinds {
		switch k {
		case "lib", "rlib", "staticlib", "dylib", "cdylib":
			return TargetLib, true
		case "bin":
			return TargetBin, true
		case "proc-macro":
			return TargetProcMacro, true
		case "custom-build":
			return TargetBuildScript, true
		}
	}
	return "", false
}

func splitGitSource(s string) (remote, commit string) {
	s = strings.TrimPrefix(s, "git+")
	idx := strings.Index(s, "#")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], s[idx+1:]
}

// gitSubPath derives a git-sourced package's in-repo sub-directory from its
// manifest_path: Cargo checks git dependencies out under a directory named
// for a prefix of the resolved commit (e.g.
// ".../git/checkouts/<repo-hash>/<short-commit>/..."), so the sub-path is
// everything below the path component that the commit hash starts with.
func gitSubPath(manifestPath, commit string) string {
	if manifestPath == "" || commit == "" {
		return ""
	}
	dir := filepath.ToSlash(filepath.Dir(manifestPath))
	parts := strings.Split(dir, "/")
	for i, part := range parts {
		if len(part) >= 7 && strings.HasPrefix(commit, part) {
			return strings.Join(parts[i+1:], "/")
		}
	}
	return ""
}

// resolveEdgesForTriple walks the resolve graph's node for pkg and buckets
// its dependency edges by kind, filtering by the dep_kinds target
// expression when one is present.
func resolveEdgesForTriple(md cargoMetadata, pkg cargoPackage, triple string) TripleResolution {
	var tr TripleResolution

	node := findNode(md, pkg.ID)
	if node == nil {
		return tr
	}
	tr.Features = append([]string(nil), node.Features...)
	sort.Strings(tr.Features)

	optional := optionalFeatureNames(pkg)

	for _, dep := range node.Deps {
		depPkg := findPackage(md, dep.PKG)
		if depPkg == nil {
			continue
		}
		for _, dk := range dep.DepKinds {
			if dk.Target != "" && !tripleSatisfiesCfgTarget(dk.Target, triple) {
				continue
			}
			edge := DepEdge{Name: depPkg.Name, Version: depPkg.Version}
			if dep.Name != "" && dep.Name != strings.ReplaceAll(depPkg.Name, "-", "_") {
				edge.Rename = dep.Name
			}
			if f, ok := optional[depPkg.Name]; ok {
				edge.IfFeature = f
			}
			switch dk.Kind {
			case "", "normal":
				tr.Normal = append(tr.Normal, edge)
			case "build":
				tr.Build = append(tr.Build, edge)
			case "dev":
				tr.Dev = append(tr.Dev, edge)
			}
			if targetIsProcMacro(depPkg) {
				tr.ProcMacro = append(tr.ProcMacro, edge)
			}
		}
	}
	return tr
}

// optionalFeatureNames maps a package's optional Cargo.toml dependencies
// (declared `optional = true`) to the implicit feature name that gates
// them, so edges for those dependencies can carry an IfFeature for
// features_to_remove pruning.
func optionalFeatureNames(pkg cargoPackage) map[string]string {
	out := map[string]string{}
	for _, d := range pkg.Dependencies {
		if d.Optional {
			out[d.Name] = d.Name
		}
	}
	return out
}

func targetIsProcMacro(pkg *cargoPackage) bool {
	for _, t := range pkg.Targets {
		for _, k := range t.Kind {
			if k == "proc-macro" {
				return true
			}
		}
	}
	return false
}

// tripleSatisfiesCfgTarget is a conservative check: a concrete triple target
// expression must match exactly, and a cfg(...) expression is treated as
// always-matching. A cfg(...)-targeted edge is therefore kept on every
// configured triple; the Consolidator uses the per-triple edges as given and
// does not narrow them further.
func tripleSatisfiesCfgTarget(target, triple string) bool {
	if !strings.HasPrefix(target, "cfg(") {
		return target == triple
	}
	return true
}

// devOnlyReachable computes, for every package ID in the resolve graph,
// whether every path from a workspace member to that package passes
// through a dev-dependency edge.
func devOnlyReachable(md cargoMetadata) map[string]bool {
	reachable := map[string]bool{}      // reachable via some non-dev path
	reachableDev := map[string]bool{}   // reachable via some path at all (dev or not)

	var visit func(id string, viaDev bool)
	visited := map[string]bool{}
	visit = func(id string, viaDev bool) {
		if !viaDev {
			if reachable[id] {
				return
			}
			reachable[id] = true
		} else if visited[id] {
			return
		}
		visited[id] = true
		reachableDev[id] = true

		node := findNode(md, id)
		if node == nil {
			return
		}
		for _, dep := range node.Deps {
			for _, dk := range dep.DepKinds {
				childViaDev := viaDev || dk.Kind == "dev"
				visit(dep.PKG, childViaDev)
			}
		}
	}

	for _, id := range md.WorkspaceMembers {
		visit(id, false)
	}

	out := map[string]bool{}
	for id := range reachableDev {
		out[id] = !reachable[id]
	}
	return out
}

func findNode(md cargoMetadata, id string) *cargoNode {
	for i := range md.Resolve.Nodes {
		if md.Resolve.Nodes[i].ID == id {
			return &md.Resolve.Nodes[i]
		}
	}
	return nil
}

func findPackage(md cargoMetadata, id string) *cargoPackage {
	for i := range md.Packages {
		if md.Packages[i].ID == id {
			return &md.Packages[i]
		}
	}
	return nil
}

// The following types are the subset of "cargo metadata --format-version=1"
// JSON fields this planner reads.
type cargoMetadata struct {
	Packages         []cargoPackage `json:"packages"`
	WorkspaceMembers []string       `json:"workspace_members"`
	Resolve          cargoResolve   `json:"resolve"`
}

type cargoPackage struct {
	Name         string             `json:"name"`
	Version      string             `json:"version"`
	ID           string             `json:"id"`
	License      string             `json:"license"`
	Edition      string             `json:"edition"`
	Source       string             `json:"source"`
	Links        string             `json:"links"`
	ManifestPath string             `json:"manifest_path"`
	Targets      []cargoTarget      `json:"targets"`
	Dependencies []cargoManifestDep `json:"dependencies"`
}

// cargoManifestDep is one entry of a package's Cargo.toml-declared
// [dependencies] table, as reported by "cargo metadata" (distinct from a
// resolve-graph node's already-pinned dep.PKG references).
type cargoManifestDep struct {
	Name     string `json:"name"`
	Optional bool   `json:"optional"`
}

type cargoTarget struct {
	Name    string   `json:"name"`
	Kind    []string `json:"kind"`
	SrcPath string   `json:"src_path"`
}

type cargoResolve struct {
	Nodes []cargoNode `json:"nodes"`
}

type cargoNode struct {
	ID       string    `json:"id"`
	Features []string  `json:"features"`
	Deps     []cargoDep `json:"deps"`
}

type cargoDep struct {
	PKG string `json:"pkg"`
	// Name is the dependent's local extern-crate name for this edge: the
	// Rust identifier it uses to refer to the dependency, accounting for a
	// Cargo.toml `package = "..."` rename.
	Name     string         `json:"name"`
	DepKinds []cargoDepKind `json:"dep_kinds"`
}

type cargoDepKind struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
}
