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

// Package model is the YAML data model for the configuration document:
// Config, Package and Override.
package model

import (
	"sort"

	"gopkg.in/yaml.v3"
)

// Config is the input configuration document.
type Config struct {
	// Extra package pins, appended to the merged manifest's dependency
	// table by the Manifest Merger.
	Packages []Package `yaml:"packages"`

	// Label -> filesystem path of an input manifest.
	CargoTomlFiles map[string]string `yaml:"cargo_toml_files"`

	// Crate name -> side-data applied by the Consolidator.
	Overrides map[string]*Override `yaml:"overrides"`

	// URL template containing the tokens {name} and {version}.
	RepositoryTemplate String `yaml:"repository_template"`

	// Ordered list of target platform triples.
	TargetTriples []string `yaml:"target_triples"`

	// Path to the upstream resolver binary.
	Cargo String `yaml:"cargo"`

	Pos ConfigPos `yaml:"-"`
}

var configFields = []string{
	"packages", "cargo_toml_files", "overrides",
	"repository_template", "target_triples", "cargo",
}

// UnmarshalYAML implements yaml.Unmarshaler, rejecting unknown top-level
// fields.
func (c *Config) UnmarshalYAML(n *yaml.Node) error {
	if err := extraFields(n, configFields); err != nil {
		return err
	}
	type rawConfig Config
	if err := n.Decode((*rawConfig)(c)); err != nil {
		return err //nolint:wrapcheck
	}
	c.Pos = *yamlPos(n)
	return nil
}

// Validate checks that the document is well-formed.
func (c *Config) Validate() error {
	for i := range c.Packages {
		if err := c.Packages[i].Validate(); err != nil {
			return err
		}
	}
	for name, ov := range c.Overrides {
		if ov == nil {
			continue
		}
		if err := ov.Validate(); err != nil {
			return c.Pos.Errorf("override %q: %w", name, err)
		}
	}
	if len(c.TargetTriples) == 0 {
		return c.Pos.Errorf("target_triples must be non-empty")
	}
	return nil
}

// SortedCargoTomlLabels returns the keys of CargoTomlFiles in sorted order,
// matching the BTreeMap-style determinism of the original resolver.
func (c *Config) SortedCargoTomlLabels() []string {
	labels := make([]string, 0, len(c.CargoTomlFiles))
	for l := range c.CargoTomlFiles {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// SortedOverrideNames returns the keys of Overrides in sorted order.
func (c *Config) SortedOverrideNames() []string {
	names := make([]string, 0, len(c.Overrides))
	for n := range c.Overrides {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Package is an extra dependency pin added directly in the config, on top
// of whatever the input manifests declare.
type Package struct {
	Name       String   `yaml:"name"`
	Constraint String   `yaml:"version_requirement"`
	Features   []string `yaml:"features"`

	Pos ConfigPos `yaml:"-"`
}

var packageFields = []string{"name", "version_requirement", "features"}

func (p *Package) UnmarshalYAML(n *yaml.Node) error {
	if err := extraFields(n, packageFields); err != nil {
		return err
	}
	type rawPackage Package
	if err := n.Decode((*rawPackage)(p)); err != nil {
		return err //nolint:wrapcheck
	}
	p.Pos = *yamlPos(n)
	return nil
}

func (p *Package) Validate() error {
	if err := NotZero(&p.Pos, p.Name.Val, "name"); err != nil {
		return err
	}
	return nil
}

// Less implements the Package sort key: lexical by name, then by version
// requirement, matching the original's #[derive(Ord)] Package struct.
func (p *Package) Less(o *Package) bool {
	if p.Name.Val != o.Name.Val {
		return p.Name.Val < o.Name.Val
	}
	return p.Constraint.Val < o.Constraint.Val
}

// SortPackages sorts in place by (name, version requirement).
func SortPackages(pkgs []Package) {
	sort.Slice(pkgs, func(i, j int) bool {
		return pkgs[i].Less(&pkgs[j])
	})
}

// Override holds per-crate side-data layered onto the resolved graph by the
// Consolidator. All container fields are logically ordered: maps are
// iterated in sorted-key order everywhere they're consumed, matching the
// BTreeMap semantics of the original resolver.
type Override struct {
	ExtraRustEnvVars              map[string]string   `yaml:"extra_rust_env_vars"`
	ExtraBuildScriptEnvVars       map[string]string   `yaml:"extra_build_script_env_vars"`
	ExtraBazelDeps                map[string][]string `yaml:"extra_bazel_deps"`
	ExtraBazelDataDeps            map[string][]string `yaml:"extra_bazel_data_deps"`
	ExtraBuildScriptBazelDeps     map[string][]string `yaml:"extra_build_script_bazel_deps"`
	ExtraBuildScriptBazelDataDeps map[string][]string `yaml:"extra_build_script_bazel_data_deps"`
	FeaturesToRemove              []string             `yaml:"features_to_remove"`

	Pos ConfigPos `yaml:"-"`
}

var overrideFields = []string{
	"extra_rust_env_vars", "extra_build_script_env_vars",
	"extra_bazel_deps", "extra_bazel_data_deps",
	"extra_build_script_bazel_deps", "extra_build_script_bazel_data_deps",
	"features_to_remove",
}

func (o *Override) UnmarshalYAML(n *yaml.Node) error {
	if err := extraFields(n, overrideFields); err != nil {
		return err
	}
	type rawOverride Override
	if err := n.Decode((*rawOverride)(o)); err != nil {
		return err //nolint:wrapcheck
	}
	o.Pos = *yamlPos(n)
	return nil
}

func (o *Override) Validate() error {
	return nil
}

// SortedFeaturesToRemove returns FeaturesToRemove deduplicated and sorted.
func (o *Override) SortedFeaturesToRemove() []string {
	set := map[string]bool{}
	for _, f := range o.FeaturesToRemove {
		set[f] = true
	}
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
