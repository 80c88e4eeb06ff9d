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

package render

import (
	"github.com/abcxyz/pkg/cli"
	"github.com/posener/complete/v2/predict"
)

// Flags describes a single render run.
type Flags struct {
	// InputPath is the configuration document to read, or "" / "/dev/stdin"
	// for stdin.
	InputPath string

	// OutputPath is where the rendered build declarations are written, or ""
	// / "/dev/stdout" for stdout.
	OutputPath string

	// RepoName is the workspace-relative repository name embedded in
	// generated labels.
	RepoName string

	// CargoPath is the path to the upstream resolver binary.
	CargoPath string

	// CargoHome, if set, overrides the CARGO_HOME environment variable for
	// the resolver subprocess.
	CargoHome string

	// KeepTempDirs preserves the temp directories used for the synthetic
	// merged manifest instead of deleting them on exit.
	KeepTempDirs bool

	// DebugDigest forces the debug-mode digest behavior (hash the running
	// executable's own bytes) regardless of build type.
	DebugDigest bool
}

func (f *Flags) Register(set *cli.FlagSet) {
	r := set.NewSection("RESOLVER OPTIONS")

	r.StringVar(&cli.StringVar{
		Name:    "cargo",
		Example: "/usr/local/bin/cargo",
		Default: "cargo",
		Target:  &f.CargoPath,
		Predict: predict.Files("*"),
		Usage:   "Path to the upstream cargo-compatible resolver binary.",
	})

	r.StringVar(&cli.StringVar{
		Name:    "cargo-home",
		Example: "/home/me/.cargo",
		Target:  &f.CargoHome,
		Predict: predict.Dirs("*"),
		Usage:   "Overrides CARGO_HOME for the resolver subprocess.",
	})

	o := set.NewSection("OUTPUT OPTIONS")

	o.StringVar(&cli.StringVar{
		Name:    "input_path",
		Example: "/my/repo/cargolock.yaml",
		Default: "/dev/stdin",
		Target:  &f.InputPath,
		Predict: predict.Files("*.yaml"),
		Usage:   "The configuration document to read; defaults to stdin.",
	})

	o.StringVar(&cli.StringVar{
		Name:    "output_path",
		Example: "/my/repo/crates.bzl",
		Default: "/dev/stdout",
		Target:  &f.OutputPath,
		Predict: predict.Dirs("*"),
		Usage:   "Where to write the rendered build declarations; defaults to stdout.",
	})

	o.StringVar(&cli.StringVar{
		Name:    "repo-name",
		Example: "crate_index",
		Default: "crate_index",
		Target:  &f.RepoName,
		Usage:   "The workspace-relative repository name embedded in generated labels.",
	})

	o.BoolVar(&cli.BoolVar{
		Name:    "keep-temp-dirs",
		Target:  &f.KeepTempDirs,
		Default: false,
		Usage:   "Preserve the temp directories instead of deleting them normally.",
	})

	o.BoolVar(&cli.BoolVar{
		Name:    "debug-digest",
		Target:  &f.DebugDigest,
		Default: false,
		Usage:   "Force the running executable's own bytes into the digest, regardless of build type.",
	})
}
