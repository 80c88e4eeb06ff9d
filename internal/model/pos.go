// Copyright 2023 The Authors (see AUTHORS file)
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

package model

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ConfigPos is the location in the input document that a value came from,
// used to give helpful error messages.
type ConfigPos struct {
	Line   int
	Column int
}

func yamlPos(n *yaml.Node) *ConfigPos {
	if n == nil {
		return nil
	}
	return &ConfigPos{Line: n.Line, Column: n.Column}
}

// Errorf is like fmt.Errorf, but prepends the line/column of this position
// when known.
func (c *ConfigPos) Errorf(fmtStr string, args ...any) error {
	err := fmt.Errorf(fmtStr, args...) //nolint:goerr113
	if c == nil || (c.Line == 0 && c.Column == 0) {
		return err
	}
	return fmt.Errorf("at line %d column %d: %w", c.Line, c.Column, err)
}
