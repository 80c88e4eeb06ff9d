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

// Package bazelname implements the bit-exact naming functions used to turn a
// resolved crate name and version into the target build tool's repo-rule
// names and fully-qualified labels.
package bazelname

import "strings"

var sanitizer = strings.NewReplacer("-", "_", ".", "_", "+", "_")

// Sanitize replaces "-", "." and "+" with "_".
func Sanitize(s string) string {
	return sanitizer.Replace(s)
}

// RepoRuleName returns the sanitized, unique identifier for an archive fetch
// rule: "__" + sanitize(name) + "__" + sanitize(version).
func RepoRuleName(name, version string) string {
	return "__" + Sanitize(name) + "__" + Sanitize(version)
}

// TargetName returns name with every "-" replaced by "_".
func TargetName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// Label returns the fully-qualified target label for (name, version):
// "@" + RepoRuleName(name, version) + "//:" + TargetName(name).
func Label(name, version string) string {
	return "@" + RepoRuleName(name, version) + "//:" + TargetName(name)
}
