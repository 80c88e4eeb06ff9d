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

// Package driver is the thin orchestration stage: read config, run
// stages, write output.
package driver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/abcxyz/pkg/logging"

	"github.com/abcxyz/cargolock/internal/common"
	"github.com/abcxyz/cargolock/internal/consolidator"
	"github.com/abcxyz/cargolock/internal/digest"
	"github.com/abcxyz/cargolock/internal/errtax"
	"github.com/abcxyz/cargolock/internal/merger"
	"github.com/abcxyz/cargolock/internal/model"
	"github.com/abcxyz/cargolock/internal/renderer"
	"github.com/abcxyz/cargolock/internal/resolver"
	"github.com/abcxyz/cargolock/internal/tempdir"
	"github.com/abcxyz/cargolock/internal/version"
)

// Options configures a single pipeline run.
type Options struct {
	InputPath    string
	OutputPath   string
	RepoName     string
	CargoPath    string
	KeepTempDirs bool
	DebugDigest  bool

	FS      common.FS
	Planner resolver.Planner
}

// Run executes the full Config -> Merger -> Resolver -> Digest ->
// Consolidator -> Renderer -> text pipeline.
func Run(ctx context.Context, opts Options) (rErr error) {
	logger := logging.FromContext(ctx).With("logger", "driver")

	in, err := openInput(opts)
	if err != nil {
		return err
	}
	defer in.Close()

	cfg, err := model.Decode(in)
	if err != nil {
		return err
	}

	dt := tempdir.NewDirTracker(opts.FS, opts.KeepTempDirs)
	defer dt.DeferMaybeRemoveAll(ctx, &rErr)

	merged, err := merger.Merge(cfg, opts.FS)
	if err != nil {
		return err
	}

	resolved, err := resolver.Resolve(ctx, opts.FS, dt, cfg.Cargo.Val, merged.Serialized,
		resolver.PlanSettings{TargetTriples: cfg.TargetTriples}, merged.LabelRequirements, opts.Planner)
	if err != nil {
		return err
	}

	versionForHashing, err := digest.VersionForHashing(opts.DebugDigest || !version.IsReleaseBuild(), version.Version)
	if err != nil {
		return errtax.New(errtax.IoError, "computing digest version bytes", err)
	}

	warn := warnFunc(logger)
	digestHex := digest.Compute(digest.Input{
		VersionForHashing:  versionForHashing,
		RepositoryTemplate: cfg.RepositoryTemplate.Val,
		CargoVersionOutput: resolved.CargoVersionOutput,
		TargetTriples:      cfg.TargetTriples,
		LabelCrates:        merged.LabelCrates,
		Overrides:          cfg.Overrides,
		Env:                os.Environ(),
		MergedManifest:     merged.Serialized,
	}, warn)

	consolidated, err := consolidator.Consolidate(resolved.Graph, cfg.Overrides, cfg.TargetTriples)
	if err != nil {
		return err
	}

	doc, err := renderer.Render(renderer.Params{
		Model:              consolidated,
		TargetTriples:      cfg.TargetTriples,
		RepositoryTemplate: cfg.RepositoryTemplate.Val,
		RepoName:           opts.RepoName,
		DigestHex:          digestHex,
		ChosenVersion:      resolved.ChosenVersion,
		LabelCrates:        merged.LabelCrates,
	})
	if err != nil {
		return err
	}

	return writeOutput(opts, doc)
}

func openInput(opts Options) (io.ReadCloser, error) {
	if opts.InputPath == "" || opts.InputPath == "/dev/stdin" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := opts.FS.Open(opts.InputPath)
	if err != nil {
		return nil, errtax.New(errtax.IoError, fmt.Sprintf("opening %q", opts.InputPath), err)
	}
	rc, ok := f.(io.ReadCloser)
	if !ok {
		return nil, errtax.New(errtax.IoError, fmt.Sprintf("opening %q", opts.InputPath), nil)
	}
	return rc, nil
}

func writeOutput(opts Options, doc string) error {
	if opts.OutputPath == "" || opts.OutputPath == "/dev/stdout" {
		if _, err := io.WriteString(os.Stdout, doc); err != nil {
			return errtax.New(errtax.IoError, "writing to stdout", err)
		}
		return nil
	}
	if err := opts.FS.WriteFile(opts.OutputPath, []byte(doc), common.OwnerRWPerms); err != nil {
		return errtax.New(errtax.IoError, fmt.Sprintf("writing %q", opts.OutputPath), err)
	}
	return nil
}

// warnFunc builds the stderr-warning callback for hashed CARGO* env vars,
// colorized when stderr is a terminal.
func warnFunc(logger *slog.Logger) func(string) {
	useColor := isatty.IsTerminal(os.Stderr.Fd())
	yellow := color.New(color.FgYellow)
	return func(name string) {
		msg := fmt.Sprintf("environment variable %s affects the digest", name)
		if useColor {
			msg = yellow.Sprint(msg)
		}
		fmt.Fprintln(os.Stderr, msg)
		logger.Warn(msg)
	}
}
