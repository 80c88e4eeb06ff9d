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

// Package merger implements the Manifest Merger stage: combining N
// input manifests and extra package pins into one synthetic
// workspace manifest.
package merger

import (
	"fmt"
	"sort"

	"github.com/jinzhu/copier"

	"github.com/abcxyz/cargolock/internal/common"
	"github.com/abcxyz/cargolock/internal/errtax"
	"github.com/abcxyz/cargolock/internal/manifest"
	"github.com/abcxyz/cargolock/internal/model"
)

// SyntheticWorkspaceEdition is the Rust edition given to the synthetic
// workspace package the Merger fabricates.
const SyntheticWorkspaceEdition = "2021"

// Merged is the output of the Manifest Merger.
type Merged struct {
	// The union [dependencies] table, by crate name.
	Dependencies map[string]manifest.DepSpec

	// The single [patch.crates-io] table, if any input manifest declared
	// one.
	PatchCratesIO map[string]manifest.DepSpec

	// Label -> sorted list of crate names that label's manifest directly
	// depends on. Used by the Renderer to emit a label -> crate-list
	// lookup.
	LabelCrates map[string][]string

	// Label -> (direct dependency name -> version requirement string), one
	// entry per member manifest. Drives the Resolver's chosen-version
	// computation.
	LabelRequirements map[string]map[string]string

	// The canonical serialized form of the synthetic manifest; this is
	// both the temp file content handed to the Resolver subprocess and one
	// of the Digest stage's hashed fields.
	Serialized string
}

// Merge reads every manifest named in cfg.CargoTomlFiles, unions their
// dependency tables with cfg.Packages, and serializes the result.
func Merge(cfg *model.Config, fs common.FS) (*Merged, error) {
	deps := make(map[string]manifest.DepSpec)
	labelCrates := make(map[string][]string)
	labelReqs := make(map[string]map[string]string)
	var patch map[string]manifest.DepSpec

	for _, label := range cfg.SortedCargoTomlLabels() {
		path := cfg.CargoTomlFiles[label]
		data, err := fs.ReadFile(path)
		if err != nil {
			return nil, errtax.New(errtax.IoError, fmt.Sprintf("reading manifest %q for label %q", path, label), err)
		}
		m, err := manifest.Parse(data)
		if err != nil {
			return nil, errtax.New(errtax.ManifestParse, fmt.Sprintf("while merging manifest %q", label), err)
		}

		crateNames := make([]string, 0, len(m.Dependencies))
		reqs := make(map[string]string, len(m.Dependencies))
		for name, spec := range m.Dependencies {
			crateNames = append(crateNames, name)
			reqs[name] = spec.Version
			if existing, ok := deps[name]; ok {
				if !existing.Equal(spec) {
					return nil, errtax.New(errtax.ManifestConflict,
						fmt.Sprintf("dependency %q has conflicting specifications across input manifests (first conflict found while merging %q)", name, label), nil)
				}
				continue
			}
			deps[name] = spec
		}
		sort.Strings(crateNames)
		labelCrates[label] = crateNames
		labelReqs[label] = reqs

		if len(m.PatchCratesIO) > 0 {
			if patch != nil {
				return nil, errtax.New(errtax.PatchConflict,
					fmt.Sprintf("while merging manifest %q", label), nil)
			}
			patch = m.PatchCratesIO
		}
	}

	for _, pkg := range cfg.Packages {
		name := pkg.Name.Val

		// Deep-copy Features rather than aliasing pkg.Features directly: the
		// config document's slice must stay untouched by anything later
		// done to the merged manifest's own copy.
		var spec manifest.DepSpec
		if err := copier.Copy(&spec, &manifest.DepSpec{Version: pkg.Constraint.Val, Features: append([]string(nil), pkg.Features...)}); err != nil {
			return nil, errtax.New(errtax.IoError, fmt.Sprintf("cloning package pin %q", name), err)
		}

		if existing, ok := deps[name]; ok && !existing.Equal(spec) {
			return nil, errtax.New(errtax.ManifestConflict,
				fmt.Sprintf("extra package pin %q conflicts with a dependency already present in the merged manifest", name), nil)
		}
		deps[name] = spec
	}

	return &Merged{
		Dependencies:      deps,
		PatchCratesIO:     patch,
		LabelCrates:       labelCrates,
		LabelRequirements: labelReqs,
		Serialized:        manifest.Serialize(deps, patch, SyntheticWorkspaceEdition),
	}, nil
}
