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
	"fmt"
	"path/filepath"
	"sort"

	"github.com/Masterminds/semver/v3"
	xsemver "golang.org/x/mod/semver"

	"github.com/abcxyz/cargolock/internal/common"
	"github.com/abcxyz/cargolock/internal/errtax"
	"github.com/abcxyz/cargolock/internal/run"
	"github.com/abcxyz/cargolock/internal/tempdir"
)

// PlanSettings configures a resolution run, mirroring the subset of the
// upstream resolver's own settings that affect our output. Resolution is
// modeled as a capability interface so tests never depend on its in-process
// data types outside the Resolver stage boundary.
type PlanSettings struct {
	TargetTriples []string
}

// Planner is the capability interface over the upstream resolver. Tests
// substitute a fixture implementation instead of shelling out to a real
// binary.
type Planner interface {
	Plan(ctx context.Context, manifestPath string, settings PlanSettings) (*Graph, error)
}

// Result is everything the Resolver stage hands to the Digest and
// Consolidator stages.
type Result struct {
	Graph             *Graph
	CargoVersionOutput string
	ChosenVersion     map[string]string // dependency name -> chosen version
}

// Resolve writes serializedManifest to a uniquely-named temp directory
// tracked by dt, invokes cargoPath's "--version" (for the Digest stage) and
// planner.Plan (for the dependency graph), computes the chosen-version map,
// and returns both. The temp directory is removed by dt's caller-owned
// cleanup, not by Resolve itself, so that every stage's temp allocations
// are cleaned up together.
func Resolve(ctx context.Context, fs common.FS, dt *tempdir.DirTracker, cargoPath, serializedManifest string,
	settings PlanSettings, labelRequirements map[string]map[string]string, planner Planner,
) (*Result, error) {
	dir, err := dt.MkdirTempTracked("", tempdir.ManifestDirNamePart)
	if err != nil {
		return nil, errtax.New(errtax.IoError, "creating temp directory for synthetic manifest", err)
	}
	manifestPath := filepath.Join(dir, "Cargo.toml")
	if err := fs.WriteFile(manifestPath, []byte(serializedManifest), common.OwnerRWPerms); err != nil {
		return nil, errtax.New(errtax.IoError, fmt.Sprintf("writing synthetic manifest to %q", manifestPath), err)
	}

	stdout, stderr, err := run.Run(ctx, cargoPath, "--version")
	if err != nil {
		return nil, errtax.New(errtax.ResolveFailed, fmt.Sprintf("invoking %q --version: %s", cargoPath, stderr), err)
	}

	graph, err := planner.Plan(ctx, manifestPath, settings)
	if err != nil {
		return nil, errtax.New(errtax.ResolveFailed, fmt.Sprintf("planning build for %q", manifestPath), err)
	}
	sort.Slice(graph.Crates, func(i, j int) bool {
		if graph.Crates[i].Name != graph.Crates[j].Name {
			return graph.Crates[i].Name < graph.Crates[j].Name
		}
		return versionLess(graph.Crates[i].Version, graph.Crates[j].Version)
	})

	chosen, err := chosenVersions(graph, labelRequirements)
	if err != nil {
		return nil, err
	}

	return &Result{
		Graph:              graph,
		CargoVersionOutput: stdout,
		ChosenVersion:      chosen,
	}, nil
}

// chosenVersions implements get_member_packages_version_mapping from the
// original resolver: for each member manifest's direct dependency name,
// collect every version requirement placed on that name across all member
// manifests, then pick the highest resolved version satisfying all of
// them.
func chosenVersions(graph *Graph, labelRequirements map[string]map[string]string) (map[string]string, error) {
	reqsByName := make(map[string][]*semver.Constraints)
	for _, reqs := range labelRequirements {
		for name, reqStr := range reqs {
			c, err := semver.NewConstraint(reqStr)
			if err != nil {
				continue // non-semver requirement (e.g. a git/path dep); skip chosen-version tracking for it
			}
			reqsByName[name] = append(reqsByName[name], c)
		}
	}

	byName := make(map[string][]*semver.Version)
	for _, crate := range graph.Crates {
		v, err := semver.NewVersion(crate.Version)
		if err != nil {
			continue
		}
		byName[crate.Name] = append(byName[crate.Name], v)
	}

	chosen := make(map[string]string, len(reqsByName))
	for name, constraints := range reqsByName {
		versions := byName[name]
		sort.Sort(sort.Reverse(bySemver(versions)))
		var best *semver.Version
		for _, v := range versions {
			satisfiesAll := true
			for _, c := range constraints {
				if !c.Check(v) {
					satisfiesAll = false
					break
				}
			}
			if satisfiesAll {
				best = v
				break
			}
		}
		if best == nil {
			return nil, errtax.NoCommonVersionf(name)
		}
		chosen[name] = best.Original()
	}
	return chosen, nil
}

// versionLess orders two crate version strings for Graph.Crates's canonical
// (name, version) sort. golang.org/x/mod/semver requires a "v" prefix and
// only special-cases malformed input by treating it as less than any valid
// version, so a plain string comparison is kept as the fallback for the
// rare non-semver version string.
func versionLess(a, b string) bool {
	va, vb := "v"+a, "v"+b
	if xsemver.IsValid(va) && xsemver.IsValid(vb) {
		return xsemver.Compare(va, vb) < 0
	}
	return a < b
}

type bySemver []*semver.Version

func (s bySemver) Len() int           { return len(s) }
func (s bySemver) Less(i, j int) bool { return s[i].LessThan(s[j]) }
func (s bySemver) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
