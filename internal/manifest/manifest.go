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

// Package manifest parses upstream-ecosystem package manifest TOML
// documents and serializes the synthetic merged manifest the Resolver
// hands to the upstream resolver subprocess.
package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// DepSpec is a single dependency table entry. A bare version string like
// `foo = "1.0"` decodes with only Version set.
type DepSpec struct {
	Version         string   `toml:"version"`
	Features        []string `toml:"features"`
	Git             string   `toml:"git"`
	Branch          string   `toml:"branch"`
	Tag             string   `toml:"tag"`
	Rev             string   `toml:"rev"`
	Path            string   `toml:"path"`
	Optional        bool     `toml:"optional"`
	DefaultFeatures *bool    `toml:"default-features"`
}

// Equal reports whether two dependency specifications are identical, used
// to detect a ManifestConflict when the same name appears in two input
// manifests with different specs.
func (d DepSpec) Equal(o DepSpec) bool {
	if d.Version != o.Version || d.Git != o.Git || d.Branch != o.Branch ||
		d.Tag != o.Tag || d.Rev != o.Rev || d.Path != o.Path || d.Optional != o.Optional {
		return false
	}
	if (d.DefaultFeatures == nil) != (o.DefaultFeatures == nil) {
		return false
	}
	if d.DefaultFeatures != nil && *d.DefaultFeatures != *o.DefaultFeatures {
		return false
	}
	if len(d.Features) != len(o.Features) {
		return false
	}
	df, of := append([]string(nil), d.Features...), append([]string(nil), o.Features...)
	sort.Strings(df)
	sort.Strings(of)
	for i := range df {
		if df[i] != of[i] {
			return false
		}
	}
	return true
}

// IsGit reports whether this dependency should be fetched via
// new_git_repository rather than http_archive.
func (d DepSpec) IsGit() bool { return d.Git != "" }

// Manifest is a parsed input manifest, reduced to only the parts the
// Manifest Merger cares about: [package], [[bin]], [lib] and workspace
// sections are discarded; only its direct-dependency table is retained.
type Manifest struct {
	Dependencies  map[string]DepSpec
	PatchCratesIO map[string]DepSpec
}

type rawManifest struct {
	Dependencies map[string]toml.Primitive            `toml:"dependencies"`
	Patch        map[string]map[string]toml.Primitive `toml:"patch"`
}

// Parse reads a TOML manifest document and extracts its dependency table
// and crates-io patch table.
func Parse(data []byte) (*Manifest, error) {
	var raw rawManifest
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	m := &Manifest{
		Dependencies:  make(map[string]DepSpec, len(raw.Dependencies)),
		PatchCratesIO: make(map[string]DepSpec),
	}
	for name, prim := range raw.Dependencies {
		spec, err := decodeDepSpec(md, prim)
		if err != nil {
			return nil, fmt.Errorf("dependency %q: %w", name, err)
		}
		m.Dependencies[name] = spec
	}
	if patchTable, ok := raw.Patch["crates-io"]; ok {
		for name, prim := range patchTable {
			spec, err := decodeDepSpec(md, prim)
			if err != nil {
				return nil, fmt.Errorf("patch %q: %w", name, err)
			}
			m.PatchCratesIO[name] = spec
		}
	}
	return m, nil
}

// decodeDepSpec handles both the shorthand `name = "1.0"` form and the full
// table form `name = { version = "1.0", features = [...] }`.
func decodeDepSpec(md toml.MetaData, prim toml.Primitive) (DepSpec, error) {
	var asString string
	if err := md.PrimitiveDecode(prim, &asString); err == nil {
		return DepSpec{Version: asString}, nil
	}
	var spec DepSpec
	if err := md.PrimitiveDecode(prim, &spec); err != nil {
		return DepSpec{}, fmt.Errorf("decoding dependency table: %w", err)
	}
	return spec, nil
}

// Serialize renders the synthetic workspace manifest as canonical TOML
// text: a fixed synthetic [package] header, a stub [lib], the union
// [dependencies] table (sorted by name), and [patch.crates-io] (sorted by
// name) if non-empty. Determinism here matters twice over: this is both
// the literal file handed to the upstream resolver subprocess and one of
// the fields hashed by the Digest stage.
func Serialize(deps map[string]DepSpec, patch map[string]DepSpec, edition string) string {
	var b strings.Builder
	b.WriteString("[package]\n")
	b.WriteString("name = \"cargolock-synthetic-workspace\"\n")
	b.WriteString("version = \"0.0.0\"\n")
	fmt.Fprintf(&b, "edition = %q\n\n", edition)
	b.WriteString("[lib]\n")
	b.WriteString("path = \"lib.rs\"\n\n")

	b.WriteString("[dependencies]\n")
	names := make([]string, 0, len(deps))
	for n := range deps {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		writeDepLine(&b, n, deps[n])
	}

	if len(patch) > 0 {
		b.WriteString("\n[patch.crates-io]\n")
		pnames := make([]string, 0, len(patch))
		for n := range patch {
			pnames = append(pnames, n)
		}
		sort.Strings(pnames)
		for _, n := range pnames {
			writeDepLine(&b, n, patch[n])
		}
	}
	return b.String()
}

func writeDepLine(b *strings.Builder, name string, d DepSpec) {
	if d.Version != "" && d.Git == "" && d.Path == "" && len(d.Features) == 0 && !d.Optional && d.DefaultFeatures == nil {
		fmt.Fprintf(b, "%s = %q\n", name, d.Version)
		return
	}
	fmt.Fprintf(b, "%s = { ", name)
	parts := make([]string, 0, 6)
	if d.Version != "" {
		parts = append(parts, fmt.Sprintf("version = %q", d.Version))
	}
	if d.Git != "" {
		parts = append(parts, fmt.Sprintf("git = %q", d.Git))
		if d.Rev != "" {
			parts = append(parts, fmt.Sprintf("rev = %q", d.Rev))
		}
		if d.Branch != "" {
			parts = append(parts, fmt.Sprintf("branch = %q", d.Branch))
		}
		if d.Tag != "" {
			parts = append(parts, fmt.Sprintf("tag = %q", d.Tag))
		}
	}
	if d.Path != "" {
		parts = append(parts, fmt.Sprintf("path = %q", d.Path))
	}
	if len(d.Features) > 0 {
		sorted := append([]string(nil), d.Features...)
		sort.Strings(sorted)
		quoted := make([]string, len(sorted))
		for i, f := range sorted {
			quoted[i] = fmt.Sprintf("%q", f)
		}
		parts = append(parts, fmt.Sprintf("features = [%s]", strings.Join(quoted, ", ")))
	}
	if d.Optional {
		parts = append(parts, "optional = true")
	}
	if d.DefaultFeatures != nil {
		parts = append(parts, fmt.Sprintf("default-features = %v", *d.DefaultFeatures))
	}
	b.WriteString(strings.Join(parts, ", "))
	b.WriteString(" }\n")
}
