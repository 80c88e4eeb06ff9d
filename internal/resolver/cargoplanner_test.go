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

package resolver

import "testing"

func TestGitSubPath_DerivesFromCheckoutCommitPrefix(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name         string
		manifestPath string
		commit       string
		want         string
	}{
		{
			name:         "workspace sibling below the short-commit directory",
			manifestPath: "/home/user/.cargo/git/checkouts/prost-9c1db0a5a1c5b1bb/3c9a9f7/prost-derive/Cargo.toml",
			commit:       "3c9a9f7abcdef0123456789abcdef0123456789",
			want:         "prost-derive",
		},
		{
			name:         "crate root is the checkout root",
			manifestPath: "/home/user/.cargo/git/checkouts/foo-1234567890abcdef/deadbee/Cargo.toml",
			commit:       "deadbeef0123456789abcdef0123456789abcdef",
			want:         "",
		},
		{
			name:         "commit too short to be a trustworthy prefix match",
			manifestPath: "/home/user/.cargo/git/checkouts/foo-1234567890abcdef/ab/Cargo.toml",
			commit:       "ab",
			want:         "",
		},
		{
			name:         "missing manifest path",
			manifestPath: "",
			commit:       "3c9a9f7abcdef0123456789abcdef0123456789",
			want:         "",
		},
		{
			name:         "missing commit",
			manifestPath: "/home/user/.cargo/git/checkouts/prost-9c1db0a5a1c5b1bb/3c9a9f7/prost-derive/Cargo.toml",
			commit:       "",
			want:         "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := gitSubPath(tc.manifestPath, tc.commit); got != tc.want {
				t.Errorf("gitSubPath(%q, %q) = %q, want %q", tc.manifestPath, tc.commit, got, tc.want)
			}
		})
	}
}

func TestOptionalFeatureNames_OnlyOptionalDepsMapped(t *testing.T) {
	t.Parallel()

	pkg := cargoPackage{Dependencies: []cargoManifestDep{
		{Name: "vendored-openssl", Optional: true},
		{Name: "serde", Optional: false},
	}}

	got := optionalFeatureNames(pkg)
	if len(got) != 1 || got["vendored-openssl"] != "vendored-openssl" {
		t.Errorf("optionalFeatureNames() = %+v, want only the optional dep mapped to itself", got)
	}
	if _, ok := got["serde"]; ok {
		t.Errorf("optionalFeatureNames() mapped a non-optional dependency: %+v", got)
	}
}

func TestResolveEdgesForTriple_PopulatesRenameAndIfFeature(t *testing.T) {
	t.Parallel()

	md := cargoMetadata{
		Packages: []cargoPackage{
			{ID: "plist 1.0.0", Name: "plist", Version: "1.0.0"},
			{ID: "xml-rs 0.8.3", Name: "xml-rs", Version: "0.8.3"},
			{ID: "openssl-sys 0.9.0", Name: "openssl-sys", Version: "0.9.0"},
			{
				ID: "uses-openssl 1.0.0", Name: "uses-openssl", Version: "1.0.0",
				Dependencies: []cargoManifestDep{{Name: "openssl-sys", Optional: true}},
			},
		},
		Resolve: cargoResolve{Nodes: []cargoNode{
			{
				ID: "plist 1.0.0",
				Deps: []cargoDep{
					{PKG: "xml-rs 0.8.3", Name: "xml_rs", DepKinds: []cargoDepKind{{Kind: "normal"}}},
				},
			},
			{
				ID: "uses-openssl 1.0.0",
				Deps: []cargoDep{
					{PKG: "openssl-sys 0.9.0", Name: "openssl_sys", DepKinds: []cargoDepKind{{Kind: "normal"}}},
				},
			},
			{ID: "xml-rs 0.8.3"},
			{ID: "openssl-sys 0.9.0"},
		}},
	}

	t.Run("no rename when local extern-crate name is the default sanitized name", func(t *testing.T) {
		t.Parallel()
		pkg := *findPackage(md, "plist 1.0.0")
		tr := resolveEdgesForTriple(md, pkg, "x86_64-unknown-linux-gnu")
		if len(tr.Normal) != 1 {
			t.Fatalf("resolveEdgesForTriple() Normal = %+v, want exactly one edge", tr.Normal)
		}
		if tr.Normal[0].Rename != "" {
			t.Errorf("Normal[0].Rename = %q, want empty since xml_rs is xml-rs's default sanitized name", tr.Normal[0].Rename)
		}
	})

	t.Run("rename detected for a genuine package rename", func(t *testing.T) {
		t.Parallel()
		md := md
		md.Resolve.Nodes = append([]cargoNode(nil), md.Resolve.Nodes...)
		md.Resolve.Nodes[0].Deps = append([]cargoDep(nil), md.Resolve.Nodes[0].Deps...)
		md.Resolve.Nodes[0].Deps[0].Name = "renamed_xml"
		pkg := *findPackage(md, "plist 1.0.0")
		tr := resolveEdgesForTriple(md, pkg, "x86_64-unknown-linux-gnu")
		if tr.Normal[0].Rename != "renamed_xml" {
			t.Errorf("Normal[0].Rename = %q, want %q", tr.Normal[0].Rename, "renamed_xml")
		}
	})

	t.Run("IfFeature set when the dependency is optional", func(t *testing.T) {
		t.Parallel()
		pkg := *findPackage(md, "uses-openssl 1.0.0")
		tr := resolveEdgesForTriple(md, pkg, "x86_64-unknown-linux-gnu")
		if len(tr.Normal) != 1 {
			t.Fatalf("resolveEdgesForTriple() Normal = %+v, want exactly one edge", tr.Normal)
		}
		if tr.Normal[0].IfFeature != "openssl-sys" {
			t.Errorf("Normal[0].IfFeature = %q, want %q", tr.Normal[0].IfFeature, "openssl-sys")
		}
	})
}
