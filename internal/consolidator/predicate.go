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

package consolidator

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/abcxyz/cargolock/internal/errtax"
)

// predicateCelEnv is the CEL environment symbolic cfg(...) predicates are
// evaluated against, one instantiation per target triple.
var predicateCelEnv = mustNewCelEnv()

func mustNewCelEnv() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable("unix", cel.BoolType),
		cel.Variable("windows", cel.BoolType),
		cel.Variable("target_os", cel.StringType),
		cel.Variable("target_arch", cel.StringType),
		cel.Variable("target_family", cel.StringType),
	)
	if err != nil {
		panic(fmt.Sprintf("building predicate CEL environment: %v", err))
	}
	return env
}

// tripleAttrs derives the cfg()-relevant attributes of a target triple from
// its conventional CPU-OS-ABI components, following the rules_rust/Rust
// target-triple convention (e.g. "x86_64-apple-darwin",
// "x86_64-unknown-linux-gnu", "x86_64-pc-windows-gnu").
func tripleAttrs(triple string) map[string]any {
	parts := strings.Split(triple, "-")
	arch := ""
	if len(parts) > 0 {
		arch = parts[0]
	}

	var os, family string
	switch {
	case strings.Contains(triple, "darwin") || strings.Contains(triple, "ios"):
		os, family = "macos", "unix"
	case strings.Contains(triple, "linux"):
		os, family = "linux", "unix"
	case strings.Contains(triple, "windows"):
		os, family = "windows", "windows"
	case strings.Contains(triple, "freebsd"):
		os, family = "freebsd", "unix"
	case strings.Contains(triple, "wasm"):
		os, family = "unknown", "wasm"
	default:
		os, family = "unknown", "unknown"
	}

	return map[string]any{
		"unix":          family == "unix",
		"windows":       family == "windows",
		"target_os":     os,
		"target_arch":   arch,
		"target_family": family,
	}
}

// matchesSelector reports whether selector applies to triple. A selector is
// either a concrete target triple (matches only itself) or a symbolic
// cfg(...) predicate (matches every triple the CEL expression evaluates true
// for). An unrecognized predicate returns an UnknownPredicate error.
func matchesSelector(selector, triple string) (bool, error) {
	if !strings.HasPrefix(selector, "cfg(") || !strings.HasSuffix(selector, ")") {
		return selector == triple, nil
	}
	inner := selector[len("cfg(") : len(selector)-1]
	celExpr, err := cfgToCEL(inner)
	if err != nil {
		return false, errtax.New(errtax.UnknownPredicate, fmt.Sprintf("predicate %q", selector), err)
	}

	ast, issues := predicateCelEnv.Compile(celExpr)
	if issues != nil && issues.Err() != nil {
		return false, errtax.New(errtax.UnknownPredicate, fmt.Sprintf("predicate %q", selector), issues.Err())
	}
	prg, err := predicateCelEnv.Program(ast)
	if err != nil {
		return false, errtax.New(errtax.UnknownPredicate, fmt.Sprintf("predicate %q", selector), err)
	}
	out, _, err := prg.Eval(tripleAttrs(triple))
	if err != nil {
		return false, errtax.New(errtax.UnknownPredicate, fmt.Sprintf("predicate %q", selector), err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, errtax.New(errtax.UnknownPredicate, fmt.Sprintf("predicate %q did not evaluate to a boolean", selector), nil)
	}
	return b, nil
}

// cfgToCEL transliterates the inner content of a cfg(...) expression into a
// CEL boolean expression: unix/windows become bare identifiers, key = "val"
// becomes key == "val", and all(...)/any(...)/not(...) become &&/||/!.
func cfgToCEL(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	switch {
	case expr == "":
		return "true", nil // bare cfg() means "always"; cfg(all()) reaches joinArgs instead
	case expr == "unix" || expr == "windows":
		return expr, nil
	case strings.HasPrefix(expr, "not(") && strings.HasSuffix(expr, ")"):
		inner, err := cfgToCEL(expr[len("not(") : len(expr)-1])
		if err != nil {
			return "", err
		}
		return "!(" + inner + ")", nil
	case strings.HasPrefix(expr, "all(") && strings.HasSuffix(expr, ")"):
		return joinArgs(expr[len("all(") : len(expr)-1], " && ", "true")
	case strings.HasPrefix(expr, "any(") && strings.HasSuffix(expr, ")"):
		return joinArgs(expr[len("any(") : len(expr)-1], " || ", "false")
	case strings.Contains(expr, "="):
		parts := strings.SplitN(expr, "=", 2)
		key := strings.TrimSpace(parts[0])
		val := strings.Trim(strings.TrimSpace(parts[1]), `"`)
		if key != "target_os" && key != "target_arch" && key != "target_family" {
			return "", fmt.Errorf("unrecognized cfg() key %q", key)
		}
		return fmt.Sprintf("%s == %q", key, val), nil
	default:
		return "", fmt.Errorf("unrecognized cfg() predicate %q", expr)
	}
}

// joinArgs splits a comma-separated arg list (respecting nested parens),
// translates each to CEL, and joins with sep. An empty arg list (e.g.
// "all()") yields identity, the boolean identity for the combinator.
func joinArgs(argList, sep, identity string) (string, error) {
	args := splitTopLevelCommas(argList)
	if len(args) == 0 || (len(args) == 1 && strings.TrimSpace(args[0]) == "") {
		return identity, nil
	}
	translated := make([]string, 0, len(args))
	for _, a := range args {
		t, err := cfgToCEL(a)
		if err != nil {
			return "", err
		}
		translated = append(translated, "("+t+")")
	}
	return strings.Join(translated, sep), nil
}

func splitTopLevelCommas(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}
