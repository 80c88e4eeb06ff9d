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

// Package errtax names the causes of pipeline failure described by the
// error taxonomy, so that callers can distinguish them with errors.As
// instead of string matching.
package errtax

import "fmt"

// Kind identifies which stage-level failure an Error represents.
type Kind string

const (
	ConfigParse          Kind = "ConfigParse"
	ManifestParse        Kind = "ManifestParse"
	ManifestConflict     Kind = "ManifestConflict"
	PatchConflict        Kind = "PatchConflict"
	ResolveFailed        Kind = "ResolveFailed"
	NoCommonVersion      Kind = "NoCommonVersion"
	UnknownPredicate     Kind = "UnknownPredicate"
	OverrideKeyCollision Kind = "OverrideKeyCollision"
	IoError              Kind = "IoError"
	RenderError          Kind = "RenderError"
)

// Error is the common shape of every taxonomy error: a Kind, a
// human-readable message giving context ("while merging manifest foo"), and
// an optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func New(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err is an *Error of the given kind.
func (e *Error) Is(kind Kind) bool { return e.Kind == kind }

// NoCommonVersionf builds the NoCommonVersion{name} error.
func NoCommonVersionf(name string) *Error {
	return New(NoCommonVersion, fmt.Sprintf("no resolved version of %q satisfies every direct requirement", name), nil)
}
