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

// Package render implements the "render" subcommand: run the full
// pipeline over a configuration document and emit build declarations.
package render

import (
	"context"
	"fmt"
	"os"

	"github.com/abcxyz/pkg/cli"

	"github.com/abcxyz/cargolock/internal/common"
	"github.com/abcxyz/cargolock/internal/driver"
	"github.com/abcxyz/cargolock/internal/resolver"
)

type Command struct {
	cli.BaseCommand
	flags Flags

	testFS      common.FS
	testPlanner resolver.Planner
}

// Desc implements cli.Command.
func (c *Command) Desc() string {
	return "merge manifests, resolve dependencies, and render build declarations"
}

func (c *Command) Help() string {
	return `
Usage: {{ COMMAND }} [options]

Reads a cargolock configuration document, merges the manifests it names,
resolves dependencies with the upstream resolver, and writes rendered
build declarations.
`
}

func (c *Command) Flags() *cli.FlagSet {
	set := c.NewFlagSet()
	c.flags.Register(set)
	return set
}

func (c *Command) Run(ctx context.Context, args []string) error {
	if err := c.Flags().Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	if c.flags.CargoHome != "" {
		if err := os.Setenv("CARGO_HOME", c.flags.CargoHome); err != nil {
			return fmt.Errorf("setting CARGO_HOME: %w", err)
		}
	}

	fSys := c.testFS
	if fSys == nil {
		fSys = &common.RealFS{}
	}

	planner := c.testPlanner
	if planner == nil {
		planner = &resolver.CargoMetadataPlanner{CargoPath: c.flags.CargoPath}
	}

	return driver.Run(ctx, driver.Options{
		InputPath:    c.flags.InputPath,
		OutputPath:   c.flags.OutputPath,
		RepoName:     c.flags.RepoName,
		CargoPath:    c.flags.CargoPath,
		KeepTempDirs: c.flags.KeepTempDirs,
		DebugDigest:  c.flags.DebugDigest,
		FS:           fSys,
		Planner:      planner,
	})
}
