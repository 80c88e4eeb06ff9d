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

// Package renderer implements the Renderer stage: emitting the target
// build tool's declarative text from the intermediate model.
package renderer

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/abcxyz/cargolock/internal/bazelname"
	"github.com/abcxyz/cargolock/internal/consolidator"
	"github.com/abcxyz/cargolock/internal/errtax"
	"github.com/abcxyz/cargolock/internal/resolver"
)

// Params bundles the Renderer's inputs.
type Params struct {
	Model              *consolidator.Model
	TargetTriples      []string
	RepositoryTemplate string
	RepoName           string
	DigestHex          string
	ChosenVersion      map[string]string
	// LabelCrates is the label -> sorted crate-name list from the Manifest
	// Merger, used for the _LABEL_TO_CRATES lookup table.
	LabelCrates map[string][]string
}

const docTemplate = `# Generated by cargolock. Digest: {{.DigestHex}}
# Do not edit by hand.

load("@bazel_tools//tools/build_defs/repo:http.bzl", "http_archive")
load("@bazel_tools//tools/build_defs/repo:git.bzl", "new_git_repository")

def pinned_rust_install():
    """Fetches every pinned crate as a Bazel repository."""
{{range .Archives}}{{.}}
{{end}}
CRATE_TARGET_NAMES = {
{{range .CrateTargetNames}}    {{.}}
{{end}}}

def crate(name):
    if name not in CRATE_TARGET_NAMES:
        fail("Unknown crate name: {}".format(name))
    return CRATE_TARGET_NAMES[name]

def all_deps():
    return [crate(name) for name in CRATE_TARGET_NAMES]

def all_proc_macro_deps():
    return [crate(name) for name in CRATE_TARGET_NAMES if name in {{.ProcMacroNamesPy}}]

def crates_from(label):
    return _LABEL_TO_CRATES.get(label, [])

def proc_macro_crates_from(label):
    return [c for c in _LABEL_TO_CRATES.get(label, []) if c in {{.ProcMacroNamesPy}}]

def _absolutify(label):
    if label.startswith("@") or label.startswith("//"):
        return label
    return "//{}".format(label)

_LABEL_TO_CRATES = {
{{range .LabelCratesLines}}    {{.}}
{{end}}}
`

// Render produces the final text document.
func Render(p Params) (string, error) {
	tmpl, err := template.New("doc").Parse(docTemplate)
	if err != nil {
		return "", errtax.New(errtax.RenderError, "parsing output template", err)
	}

	archives, err := archiveBlocks(p)
	if err != nil {
		return "", err
	}

	crateTargetNames, procMacroNames := crateTargetNameEntries(p)

	labelLines := make([]string, 0, len(p.LabelCrates))
	labels := sortedKeys(p.LabelCrates)
	for _, label := range labels {
		crates := append([]string(nil), p.LabelCrates[label]...)
		sort.Strings(crates)
		quoted := make([]string, len(crates))
		for i, c := range crates {
			quoted[i] = fmt.Sprintf("%q", c)
		}
		labelLines = append(labelLines, fmt.Sprintf("%q: [%s],", label, strings.Join(quoted, ", ")))
	}

	procMacroNamesPy := "[" + strings.Join(quoteAll(procMacroNames), ", ") + "]"

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]any{
		"DigestHex":         p.DigestHex,
		"Archives":          archives,
		"CrateTargetNames":  crateTargetNames,
		"LabelCratesLines":  labelLines,
		"ProcMacroNamesPy":  procMacroNamesPy,
	}); err != nil {
		return "", errtax.New(errtax.RenderError, "executing output template", err)
	}
	return buf.String(), nil
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// crateTargetNameEntries builds the CRATE_TARGET_NAMES mapping lines (name
// -> chosen-version label) and collects the names of proc-macro crates,
// excluding any crate marked ExcludedFromCrateTargetNames.
func crateTargetNameEntries(p Params) ([]string, []string) {
	names := make([]string, 0)
	seen := map[string]bool{}
	for _, c := range p.Model.Crates {
		if c.ExcludedFromCrateTargetNames || seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		names = append(names, c.Name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	var procMacro []string
	kindByName := map[string]resolver.TargetKind{}
	for _, c := range p.Model.Crates {
		kindByName[c.Name] = c.Kind
	}
	for _, name := range names {
		version, ok := p.ChosenVersion[name]
		if !ok {
			version = latestVersion(p.Model, name)
		}
		lines = append(lines, fmt.Sprintf("%q: %q,", name, bazelname.Label(name, version)))
		if kindByName[name] == resolver.TargetProcMacro {
			procMacro = append(procMacro, name)
		}
	}
	sort.Strings(procMacro)
	return lines, procMacro
}

func latestVersion(m *consolidator.Model, name string) string {
	var best string
	for _, c := range m.Crates {
		if c.Name == name && c.Version > best {
			best = c.Version
		}
	}
	return best
}

// archiveBlocks renders the pinned_rust_install() body: one http_archive or
// new_git_repository call per crate, alphabetically by (name, version).
func archiveBlocks(p Params) ([]string, error) {
	out := make([]string, 0, len(p.Model.Crates))
	for _, c := range p.Model.Crates {
		block, err := archiveBlock(c, p)
		if err != nil {
			return nil, err
		}
		out = append(out, block)
	}
	return out, nil
}

func archiveBlock(c consolidator.CrateSpec, p Params) (string, error) {
	repoRule := bazelname.RepoRuleName(c.Name, c.Version)
	buildFileContent, err := buildFileContent(c)
	if err != nil {
		return "", err
	}
	indentedBuildFile := indent(buildFileContent, "        ")

	if c.Source.Kind == "git" {
		return fmt.Sprintf(`    new_git_repository(
        name = %q,
        remote = %q,
        # TODO: tag?
        commit = %q,
        strip_prefix = %q,
        build_file_content = """
%s
""",
    )
`, repoRule, c.Source.Remote, c.Source.Commit, c.Source.SubPath, indentedBuildFile), nil
	}

	url := strings.NewReplacer("{name}", c.Name, "{version}", c.Version).Replace(p.RepositoryTemplate)
	return fmt.Sprintf(`    http_archive(
        name = %q,
        url = %q,
        build_file_content = """
%s
""",
    )
`, repoRule, url, indentedBuildFile), nil
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

// buildFileContent renders the nested BUILD.bazel text for one crate.
func buildFileContent(c consolidator.CrateSpec) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "package(default_visibility = [\"//visibility:public\"])\n\n")
	fmt.Fprintf(&b, "# licenses: %s\n", licenseOrUnknown(c.License))

	if c.HasBuildScript {
		fmt.Fprintf(&b, "\ncargo_build_script(\n")
		fmt.Fprintf(&b, "    name = %q,\n", c.BuildScriptName)
		if c.LinksNative != "" {
			fmt.Fprintf(&b, "    links = %q,\n", c.LinksNative)
		}
		writeCategory(&b, "deps", c.Deps.BuildScriptRuntime)
		writeCategory(&b, "data", c.Deps.BuildScriptData)
		writeEnv(&b, "build_script_env", c.BuildScriptEnv)
		fmt.Fprintf(&b, ")\n")
	}

	target := string(c.Kind)
	ruleName := map[string]string{"lib": "rust_library", "bin": "rust_binary", "proc-macro": "rust_proc_macro"}[target]
	if ruleName == "" {
		ruleName = "rust_library"
	}

	fmt.Fprintf(&b, "\n%s(\n", ruleName)
	fmt.Fprintf(&b, "    name = %q,\n", bazelname.TargetName(c.Name))
	fmt.Fprintf(&b, "    crate_root = \"src/lib.rs\",\n")
	fmt.Fprintf(&b, "    edition = %q,\n", c.Edition)
	fmt.Fprintf(&b, "    srcs = glob([\"**/*.rs\"]),\n")

	deps := make([]string, 0, len(c.Deps.Runtime))
	if c.HasBuildScript {
		deps = append(deps, fmt.Sprintf("        %q,", ":"+c.BuildScriptName))
	}
	fmt.Fprintf(&b, "    deps = [\n%s", strings.Join(deps, "\n"))
	if len(deps) > 0 {
		b.WriteString("\n")
	}
	b.WriteString("    ] + ")
	writeSelect(&b, c.Deps.Runtime)

	b.WriteString("    data = glob(\n        [\"**\"],\n        exclude = [\n            \"target/**\",\n            \"BUILD.bazel\",\n            \"WORKSPACE.bazel\",\n            \"WORKSPACE\",\n        ],\n    ) + ")
	writeSelect(&b, c.Deps.RuntimeData)

	if len(c.Deps.ProcMacro) > 0 {
		b.WriteString("    proc_macro_deps = ")
		writeSelect(&b, c.Deps.ProcMacro)
	}

	if len(c.Features) > 0 {
		quoted := make([]string, len(c.Features))
		for i, f := range c.Features {
			quoted[i] = fmt.Sprintf("%q", f)
		}
		fmt.Fprintf(&b, "    crate_features = [%s],\n", strings.Join(quoted, ", "))
	}
	writeEnv(&b, "rustc_env", c.RustcEnv)
	writeAliases(&b, c.Deps.Aliases)

	fmt.Fprintf(&b, "    rustc_flags = [\"--cap-lints=allow\"],\n")
	fmt.Fprintf(&b, "    version = %q,\n", c.Version)
	fmt.Fprintf(&b, "    tags = [\"cargo-raze\", \"manual\"],\n")
	fmt.Fprintf(&b, ")\n")

	for _, u := range c.Unsupported {
		fmt.Fprintf(&b, "\n# Unsupported target %q with type %q omitted\n", u.Name, u.Kind)
	}

	return b.String(), nil
}

func licenseOrUnknown(l string) string {
	if l == "" {
		return "unknown"
	}
	return l
}

func writeCategory(b *strings.Builder, field string, groups []consolidator.SelectorGroup) {
	b.WriteString("    " + field + " = ")
	writeSelect(b, groups)
}

func writeEnv(b *strings.Builder, field string, env map[string]string) {
	if len(env) == 0 {
		return
	}
	keys := sortedKeys(env)
	fmt.Fprintf(b, "    %s = {\n", field)
	for _, k := range keys {
		fmt.Fprintf(b, "        %q: %q,\n", k, env[k])
	}
	b.WriteString("    },\n")
}

// writeAliases renders the aliases = select({...}) attribute, unlike
// writeSelect this is emitted even when there's only a default branch,
// since aliases is a required attribute on every target.
func writeAliases(b *strings.Builder, groups []consolidator.AliasGroup) {
	var def map[string]string
	var conditional []consolidator.AliasGroup
	for _, g := range groups {
		if len(g.Triples) == 0 {
			def = g.Aliases
		} else {
			conditional = append(conditional, g)
		}
	}

	b.WriteString("    aliases = select({\n")
	for _, g := range conditional {
		fmt.Fprintf(b, "        # %s\n", strings.Join(quotePlatformLabels(g.Triples), ", "))
		fmt.Fprintf(b, "        (%s): {\n", strings.Join(quotePlatformLabels(g.Triples), ", "))
		writeAliasEntries(b, g.Aliases, "            ")
		b.WriteString("        },\n")
	}
	b.WriteString("        # Default\n")
	b.WriteString("        \"//conditions:default\": {\n")
	writeAliasEntries(b, def, "            ")
	b.WriteString("        },\n    }),\n")
}

func writeAliasEntries(b *strings.Builder, m map[string]string, indentStr string) {
	keys := sortedKeys(m)
	for _, k := range keys {
		fmt.Fprintf(b, "%s%q: %q,\n", indentStr, k, m[k])
	}
}

// writeSelect renders a dependency category as a plain list (if there's
// only a default group) or as selects.with_or({...}) (if there are
// platform-conditional groups).
func writeSelect(b *strings.Builder, groups []consolidator.SelectorGroup) {
	var def []string
	var conditional []consolidator.SelectorGroup
	for _, g := range groups {
		if len(g.Triples) == 0 {
			def = g.Items
		} else {
			conditional = append(conditional, g)
		}
	}
	if len(conditional) == 0 {
		writeStringList(b, def, "    ")
		b.WriteString(",\n")
		return
	}

	b.WriteString("selects.with_or({\n")
	for _, g := range conditional {
		fmt.Fprintf(b, "        # %s\n", strings.Join(quotePlatformLabels(g.Triples), ", "))
		fmt.Fprintf(b, "        (%s): [\n", strings.Join(quotePlatformLabels(g.Triples), ", "))
		for _, item := range g.Items {
			fmt.Fprintf(b, "            %q,\n", item)
		}
		b.WriteString("        ],\n")
	}
	fmt.Fprintf(b, "        \"//conditions:default\": [\n")
	for _, item := range def {
		fmt.Fprintf(b, "            %q,\n", item)
	}
	b.WriteString("        ],\n    }),\n")
}

func quotePlatformLabels(triples []string) []string {
	out := make([]string, len(triples))
	for i, t := range triples {
		out[i] = fmt.Sprintf("%q", "@io_bazel_rules_rust//rust/platform:"+t)
	}
	return out
}

func writeStringList(b *strings.Builder, items []string, indentStr string) {
	b.WriteString("[\n")
	for _, item := range items {
		fmt.Fprintf(b, "%s    %q,\n", indentStr, item)
	}
	fmt.Fprintf(b, "%s]", indentStr)
}
