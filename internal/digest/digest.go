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

// Package digest implements the Digest stage: a SHA-256 over every input
// that can affect the rendered output, field order fixed
// and \0-separated so the result is bit-identical across runs with
// identical inputs.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sort"
	"strings"

	"github.com/abcxyz/cargolock/internal/model"
)

// excludedCargoEnvVars are CARGO*-prefixed variables that must not affect
// the digest: CARGO_HOME only selects a user-local cache directory, and
// CARGO_NET_GIT_FETCH_WITH_CLI only selects a transport.
var excludedCargoEnvVars = map[string]bool{
	"CARGO_HOME":                  true,
	"CARGO_NET_GIT_FETCH_WITH_CLI": true,
}

// overrideFieldOrder fixes the sorted field order used when hashing each
// crate's Override: every (crate-name, override field, field contents)
// triple in sorted order.
var overrideFieldOrder = []string{
	"extra_bazel_data_deps",
	"extra_bazel_deps",
	"extra_build_script_bazel_data_deps",
	"extra_build_script_bazel_deps",
	"extra_build_script_env_vars",
	"extra_rust_env_vars",
	"features_to_remove",
}

// Input bundles every hashed field.
type Input struct {
	VersionForHashing   []byte
	RepositoryTemplate  string
	CargoVersionOutput  string
	TargetTriples       []string
	LabelCrates         map[string][]string
	Overrides           map[string]*model.Override
	Env                 []string // os.Environ()
	MergedManifest      string
}

// Compute returns the hex-encoded SHA-256 digest of in. warn is called once
// per hashed environment variable name, so the caller can print a
// stderr warning.
func Compute(in Input, warn func(name string)) string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}

	write(string(in.VersionForHashing))
	write(in.RepositoryTemplate)
	write(in.CargoVersionOutput)

	for _, triple := range in.TargetTriples {
		write(triple)
	}

	labels := make([]string, 0, len(in.LabelCrates))
	for l := range in.LabelCrates {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, label := range labels {
		crates := append([]string(nil), in.LabelCrates[label]...)
		sort.Strings(crates)
		for _, crate := range crates {
			write(label + "\x1f" + crate)
		}
	}

	crateNames := make([]string, 0, len(in.Overrides))
	for name := range in.Overrides {
		crateNames = append(crateNames, name)
	}
	sort.Strings(crateNames)
	for _, name := range crateNames {
		ov := in.Overrides[name]
		for _, field := range overrideFieldOrder {
			write(name + "\x1f" + field + "\x1f" + overrideFieldContents(ov, field))
		}
	}

	for _, e := range sortedCargoEnv(in.Env, warn) {
		write(e)
	}

	write(in.MergedManifest)

	return hex.EncodeToString(h.Sum(nil))
}

func overrideFieldContents(ov *model.Override, field string) string {
	if ov == nil {
		return ""
	}
	switch field {
	case "extra_bazel_data_deps":
		return sortedLabelMap(ov.ExtraBazelDataDeps)
	case "extra_bazel_deps":
		return sortedLabelMap(ov.ExtraBazelDeps)
	case "extra_build_script_bazel_data_deps":
		return sortedLabelMap(ov.ExtraBuildScriptBazelDataDeps)
	case "extra_build_script_bazel_deps":
		return sortedLabelMap(ov.ExtraBuildScriptBazelDeps)
	case "extra_build_script_env_vars":
		return sortedStringMap(ov.ExtraBuildScriptEnvVars)
	case "extra_rust_env_vars":
		return sortedStringMap(ov.ExtraRustEnvVars)
	case "features_to_remove":
		return strings.Join(ov.SortedFeaturesToRemove(), "\n")
	default:
		return ""
	}
}

func sortedStringMap(m map[string]string) string {
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

func sortedLabelMap(m map[string][]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		vals := append([]string(nil), m[k]...)
		sort.Strings(vals)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.Join(vals, ","))
		b.WriteByte('\n')
	}
	return b.String()
}

func sortedCargoEnv(env []string, warn func(name string)) []string {
	var out []string
	names := make([]string, 0)
	values := make(map[string]string)
	for _, kv := range env {
		idx := strings.IndexByte(kv, '=')
		if idx < 0 {
			continue
		}
		name, val := kv[:idx], kv[idx+1:]
		if !strings.HasPrefix(name, "CARGO") || excludedCargoEnvVars[name] {
			continue
		}
		names = append(names, name)
		values[name] = val
	}
	sort.Strings(names)
	for _, name := range names {
		if warn != nil {
			warn(name)
		}
		out = append(out, name+"="+values[name])
	}
	return out
}

// VersionForHashing returns the bytes hashed as the tool-version field. In
// debug mode it's the running executable's own bytes, so a local rebuild
// always invalidates previously computed digests; otherwise
// it's the release version string.
func VersionForHashing(debug bool, releaseVersion string) ([]byte, error) {
	if debug {
		exe, err := os.Executable()
		if err != nil {
			return nil, err //nolint:wrapcheck
		}
		return os.ReadFile(exe) //nolint:wrapcheck
	}
	return []byte(releaseVersion), nil
}
