package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// WorkspaceMember is one discovered workspace package
type WorkspaceMember struct {
	Path     string       // slash-separated path relative to the workspace root
	Manifest *PackageJSON // parsed package.json of the member
}

// WorkspaceInfo describes a monorepo: its members and which package
// names are internal and therefore never fetched from a registry.
type WorkspaceInfo struct {
	RootPackage   *PackageJSON
	Members       []WorkspaceMember
	InternalNames map[string]bool
	Warnings      []string // non-fatal problems hit during discovery
}

// DetectWorkspaces reports whether the project is a monorepo and, if so,
// discovers its members. Both the package.json "workspaces" field
// (npm/yarn/bun) and pnpm-workspace.yaml are recognized; pnpm's file wins
// only when package.json declares nothing. Returns nil for plain projects.
func DetectWorkspaces(projectPath string) (*WorkspaceInfo, error) {
	rootPkg, err := ParsePackageJSON(projectPath)
	if err != nil {
		return nil, err
	}

	patterns := rootPkg.Workspaces.Patterns
	if len(patterns) == 0 {
		if pnpmPatterns, err := parsePnpmWorkspace(projectPath); err == nil {
			patterns = pnpmPatterns
		}
	}
	if len(patterns) == 0 {
		return nil, nil
	}

	info := &WorkspaceInfo{
		RootPackage:   rootPkg,
		InternalNames: map[string]bool{},
	}
	if rootPkg.Name != "" {
		info.InternalNames[rootPkg.Name] = true
	}

	for _, dir := range expandPatterns(projectPath, patterns, info) {
		member, ok := loadMember(projectPath, dir, info)
		if !ok {
			continue
		}
		info.Members = append(info.Members, member)
		if member.Manifest.Name != "" {
			info.InternalNames[member.Manifest.Name] = true
		}
	}

	return info, nil
}

// expandPatterns globs the workspace patterns into a sorted, deduplicated
// list of candidate directories. Negated patterns ("!dist/*") drop earlier
// matches, the way yarn treats them; node_modules is never a member.
func expandPatterns(root string, patterns []string, info *WorkspaceInfo) []string {
	candidates := map[string]bool{}

	for _, pattern := range patterns {
		negated := strings.HasPrefix(pattern, "!")
		if negated {
			pattern = pattern[1:]
		}

		matches, err := filepath.Glob(filepath.Join(root, filepath.FromSlash(pattern)))
		if err != nil {
			info.Warnings = append(info.Warnings, fmt.Sprintf("invalid workspace pattern %q: %v", pattern, err))
			continue
		}
		for _, match := range matches {
			if strings.Contains(match, string(filepath.Separator)+"node_modules"+string(filepath.Separator)) {
				continue
			}
			if negated {
				delete(candidates, match)
			} else {
				candidates[match] = true
			}
		}
	}

	dirs := make([]string, 0, len(candidates))
	for dir := range candidates {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

// loadMember parses one candidate directory; directories without a
// package.json are silently skipped, unparsable ones become warnings.
func loadMember(root, dir string, info *WorkspaceInfo) (WorkspaceMember, bool) {
	manifestPath := filepath.Join(dir, "package.json")
	if _, err := os.Stat(manifestPath); os.IsNotExist(err) {
		return WorkspaceMember{}, false
	}

	manifest, err := ParsePackageJSON(dir)
	if err != nil {
		info.Warnings = append(info.Warnings, fmt.Sprintf("failed to parse %s: %v", manifestPath, err))
		return WorkspaceMember{}, false
	}

	rel, _ := filepath.Rel(root, dir)
	return WorkspaceMember{Path: filepath.ToSlash(rel), Manifest: manifest}, true
}

// GetExternalDependencies aggregates the direct dependencies of the root
// and every member, dropping references to other workspace packages and
// deduplicating identical name@constraint pairs.
func (wi *WorkspaceInfo) GetExternalDependencies(includeDevDeps bool) []Dependency {
	seen := map[string]bool{}
	var deps []Dependency

	collect := func(pkg *PackageJSON, parent string) {
		for _, d := range GetDirectDependencies(pkg, includeDevDeps) {
			if wi.InternalNames[d.Name] {
				continue
			}
			key := d.Name + "@" + d.Version
			if seen[key] {
				continue
			}
			seen[key] = true
			if parent != "" {
				d.Parent = parent
			}
			deps = append(deps, d)
		}
	}

	collect(wi.RootPackage, "")
	for _, member := range wi.Members {
		collect(member.Manifest, member.Manifest.Name)
	}

	return deps
}

type pnpmWorkspaceConfig struct {
	Packages []string `yaml:"packages"`
}

func parsePnpmWorkspace(projectPath string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(projectPath, "pnpm-workspace.yaml"))
	if err != nil {
		return nil, err
	}
	var config pnpmWorkspaceConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse pnpm-workspace.yaml: %w", err)
	}
	return config.Packages, nil
}
