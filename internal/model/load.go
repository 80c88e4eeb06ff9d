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

package model

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/abcxyz/cargolock/internal/errtax"
)

// Decode parses the configuration document from r.
func Decode(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil {
		return nil, errtax.New(errtax.ConfigParse, "decoding configuration document", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errtax.New(errtax.ConfigParse, "validating configuration document", err)
	}
	return &cfg, nil
}
