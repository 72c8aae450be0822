package resolver

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(content), 0644); err != nil {
		t.Fatalf("write package.json: %v", err)
	}
}

func TestWorkspacesConfig_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"array form", `["packages/*", "apps/*"]`, []string{"packages/*", "apps/*"}},
		{"object form", `{"packages": ["packages/*"]}`, []string{"packages/*"}},
		{"null", `null`, nil},
	}

	for _, tt := range tests {
		var wc WorkspacesConfig
		if err := json.Unmarshal([]byte(tt.input), &wc); err != nil {
			t.Fatalf("%s: unmarshal error: %v", tt.name, err)
		}
		if len(wc.Patterns) != len(tt.want) {
			t.Fatalf("%s: got %d patterns, want %d", tt.name, len(wc.Patterns), len(tt.want))
		}
		for i, p := range tt.want {
			if wc.Patterns[i] != p {
				t.Errorf("%s: pattern[%d] = %q, want %q", tt.name, i, wc.Patterns[i], p)
			}
		}
	}
}

func TestDetectWorkspaces_NotAWorkspace(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"name": "simple-app", "version": "1.0.0", "dependencies": {"lodash": "^4.0.0"}}`)

	info, err := DetectWorkspaces(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info != nil {
		t.Error("expected nil for non-workspace project")
	}
}

func TestDetectWorkspaces_NpmWorkspaces(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{
		"name": "my-monorepo",
		"version": "1.0.0",
		"workspaces": ["packages/*"],
		"devDependencies": {"typescript": "^5.0.0"}
	}`)
	writeManifest(t, filepath.Join(dir, "packages", "core"), `{
		"name": "@myorg/core",
		"version": "1.0.0",
		"dependencies": {"lodash": "^4.17.21"}
	}`)
	writeManifest(t, filepath.Join(dir, "packages", "cli"), `{
		"name": "@myorg/cli",
		"version": "1.0.0",
		"dependencies": {"@myorg/core": "workspace:*", "commander": "^11.0.0"}
	}`)

	info, err := DetectWorkspaces(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info == nil {
		t.Fatal("expected workspace info, got nil")
	}
	if len(info.Members) != 2 {
		t.Fatalf("members = %d, want 2", len(info.Members))
	}

	for _, name := range []string{"my-monorepo", "@myorg/core", "@myorg/cli"} {
		if !info.InternalNames[name] {
			t.Errorf("%s should be an internal name", name)
		}
	}
}

func TestDetectWorkspaces_NegatedPattern(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{
		"name": "mono",
		"version": "1.0.0",
		"workspaces": ["packages/*", "!packages/legacy"]
	}`)
	writeManifest(t, filepath.Join(dir, "packages", "app"), `{"name": "app", "version": "1.0.0"}`)
	writeManifest(t, filepath.Join(dir, "packages", "legacy"), `{"name": "legacy", "version": "0.1.0"}`)

	info, err := DetectWorkspaces(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info == nil {
		t.Fatal("expected workspace info, got nil")
	}
	if len(info.Members) != 1 {
		t.Fatalf("members = %d, want 1", len(info.Members))
	}
	if info.Members[0].Manifest.Name != "app" {
		t.Errorf("member = %q, want %q", info.Members[0].Manifest.Name, "app")
	}
	if info.InternalNames["legacy"] {
		t.Error("negated member leaked into internal names")
	}
}

func TestDetectWorkspaces_PnpmWorkspaceYaml(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"name": "pnpm-monorepo", "version": "1.0.0"}`)
	if err := os.WriteFile(filepath.Join(dir, "pnpm-workspace.yaml"), []byte("packages:\n  - 'packages/*'\n"), 0644); err != nil {
		t.Fatalf("write pnpm-workspace.yaml: %v", err)
	}
	writeManifest(t, filepath.Join(dir, "packages", "utils"), `{"name": "@myorg/utils", "version": "1.0.0", "dependencies": {"zod": "^3.0.0"}}`)

	info, err := DetectWorkspaces(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info == nil {
		t.Fatal("expected workspace info, got nil")
	}
	if len(info.Members) != 1 {
		t.Fatalf("members = %d, want 1", len(info.Members))
	}
	if info.Members[0].Manifest.Name != "@myorg/utils" {
		t.Errorf("member = %q, want %q", info.Members[0].Manifest.Name, "@myorg/utils")
	}
}

func TestDetectWorkspaces_UnparsableMemberBecomesWarning(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"name": "mono", "version": "1.0.0", "workspaces": ["packages/*"]}`)
	writeManifest(t, filepath.Join(dir, "packages", "good"), `{"name": "good", "version": "1.0.0"}`)
	writeManifest(t, filepath.Join(dir, "packages", "broken"), `{not json`)

	info, err := DetectWorkspaces(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info == nil {
		t.Fatal("expected workspace info, got nil")
	}
	if len(info.Members) != 1 {
		t.Fatalf("members = %d, want 1", len(info.Members))
	}
	if len(info.Warnings) != 1 {
		t.Fatalf("warnings = %d, want 1", len(info.Warnings))
	}
}

func testWorkspace() *WorkspaceInfo {
	return &WorkspaceInfo{
		RootPackage: &PackageJSON{
			Name:            "monorepo",
			Version:         "1.0.0",
			DevDependencies: map[string]string{"typescript": "^5.0.0"},
		},
		Members: []WorkspaceMember{
			{
				Path: "packages/core",
				Manifest: &PackageJSON{
					Name:         "@myorg/core",
					Version:      "1.0.0",
					Dependencies: map[string]string{"lodash": "^4.17.21"},
				},
			},
			{
				Path: "packages/cli",
				Manifest: &PackageJSON{
					Name:    "@myorg/cli",
					Version: "1.0.0",
					Dependencies: map[string]string{
						"@myorg/core": "workspace:*",
						"commander":   "^11.0.0",
					},
				},
			},
		},
		InternalNames: map[string]bool{
			"monorepo":    true,
			"@myorg/core": true,
			"@myorg/cli":  true,
		},
	}
}

func TestGetExternalDependencies_SkipsInternal(t *testing.T) {
	deps := testWorkspace().GetExternalDependencies(false)

	names := make(map[string]bool)
	for _, d := range deps {
		names[d.Name] = true
	}

	if !names["lodash"] || !names["commander"] {
		t.Errorf("expected lodash and commander, got %v", names)
	}
	if names["@myorg/core"] {
		t.Error("@myorg/core is internal and should be excluded")
	}
	if names["typescript"] {
		t.Error("typescript is a devDep and should be excluded")
	}
	if len(deps) != 2 {
		t.Errorf("external deps count = %d, want 2", len(deps))
	}
}

func TestGetExternalDependencies_WithDevDeps(t *testing.T) {
	deps := testWorkspace().GetExternalDependencies(true)

	names := make(map[string]bool)
	for _, d := range deps {
		names[d.Name] = true
	}
	if !names["typescript"] {
		t.Error("typescript should be included with devDeps enabled")
	}
	if len(deps) != 3 {
		t.Errorf("external deps count = %d, want 3", len(deps))
	}
}

func TestGetExternalDependencies_Deduplicates(t *testing.T) {
	wi := &WorkspaceInfo{
		RootPackage: &PackageJSON{
			Name:         "monorepo",
			Version:      "1.0.0",
			Dependencies: map[string]string{"lodash": "^4.17.21"},
		},
		Members: []WorkspaceMember{
			{
				Path: "packages/a",
				Manifest: &PackageJSON{
					Name:         "pkg-a",
					Version:      "1.0.0",
					Dependencies: map[string]string{"lodash": "^4.17.21"},
				},
			},
		},
		InternalNames: map[string]bool{"monorepo": true, "pkg-a": true},
	}

	deps := wi.GetExternalDependencies(false)
	if len(deps) != 1 {
		t.Errorf("expected dedup to 1 dep, got %d", len(deps))
	}
}
