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
	"gopkg.in/yaml.v3"
)

// Validator is implemented by every model struct that can check its own
// well-formedness after unmarshaling.
type Validator interface {
	Validate() error
}

// NotZero returns an error if v is the zero value of T.
func NotZero[T comparable](pos *ConfigPos, v T, fieldName string) error {
	var zero T
	if v == zero {
		return pos.Errorf("field %q is required", fieldName)
	}
	return nil
}

// extraFields returns an error naming any field in n's mapping that doesn't
// appear in knownFields. yaml.v3 has no built-in "reject unknown fields"
// behavior for struct decoding (see yaml.v3 issue #460), so this is the
// workaround: walk the raw mapping node's keys ourselves.
func extraFields(n *yaml.Node, knownFields []string) error {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	known := make(map[string]bool, len(knownFields))
	for _, f := range knownFields {
		known[f] = true
	}
	var unknown []string
	for i := 0; i < len(n.Content); i += 2 {
		key := n.Content[i].Value
		if !known[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		return yamlPos(n).Errorf("unknown field(s): %v", unknown)
	}
	return nil
}
