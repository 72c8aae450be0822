package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	semver "github.com/Masterminds/semver/v3"

	"github.com/Salta1414/sapo-cli/internal/detector"
	"github.com/Salta1414/sapo-cli/internal/risk"
)

// RegistryNPM is the registry tag stamped on every resolved reference.
const RegistryNPM = "npm"

// SkippedDependency records a dependency excluded from the install set
type SkippedDependency struct {
	Name      string
	Specifier string
	Reason    string
	Parent    string
}

// InstallSet is the deduplicated set of packages an invocation would newly
// fetch, together with the registry metadata the detectors scan.
type InstallSet struct {
	Packages     []risk.PackageRef
	Metadata     map[string]*detector.Metadata // keyed by ref.String()
	Skipped      []SkippedDependency
	Warnings     []string
	LockfileType LockfileType
}

// resolvedPackage tracks one node of the resolution walk
type resolvedPackage struct {
	ref  risk.PackageRef
	meta *detector.Metadata
}

// Adapter computes install sets by walking manifest and registry metadata.
// It mirrors the real manager's version selection closely enough to name the
// packages that would land on disk; it never installs anything itself.
type Adapter struct {
	client   *NPMClient
	maxDepth int

	mu       sync.Mutex
	lockfile *Lockfile
	resolved map[string]*resolvedPackage // name@version -> package
	skipped  []SkippedDependency
	warnings []string
}

// NewAdapter creates an install-set resolver. maxDepth bounds the transitive
// walk; depth 1 is the direct dependencies.
func NewAdapter(client *NPMClient, maxDepth int) *Adapter {
	if maxDepth <= 0 {
		maxDepth = 5
	}
	return &Adapter{
		client:   client,
		maxDepth: maxDepth,
		resolved: make(map[string]*resolvedPackage),
	}
}

// ResolveInstallSet computes the would-install set for an invocation in
// projectPath. With explicit specifiers those are resolved directly; with
// none the project manifest (workspace-aware) supplies the dependency list.
// Dependencies already satisfied by the lockfile are excluded, so re-scans
// stay proportional to what actually changes.
func (a *Adapter) ResolveInstallSet(ctx context.Context, projectPath string, specifiers []string, includeDevDeps bool) (*InstallSet, error) {
	lockType, lockPath := DetectLockfile(projectPath)
	if lockType != LockfileNone {
		lf, err := ParseLockfile(lockPath, lockType)
		if err != nil {
			return nil, &ResolutionError{Path: lockPath, Err: err}
		}
		a.mu.Lock()
		a.lockfile = lf
		a.mu.Unlock()
	}

	var deps []Dependency
	var explicit bool

	if len(specifiers) > 0 {
		explicit = true
		for _, spec := range specifiers {
			name, constraint := SplitSpecifier(spec)
			deps = append(deps, Dependency{Name: name, Version: constraint, Parent: "(command line)"})
		}
	} else {
		// Bare install: the manifest is the specifier list.
		ws, err := DetectWorkspaces(projectPath)
		if err != nil {
			return nil, err
		}
		if ws != nil {
			deps = ws.GetExternalDependencies(includeDevDeps)
			a.mu.Lock()
			a.warnings = append(a.warnings, ws.Warnings...)
			a.mu.Unlock()
		} else {
			pkg, err := ParsePackageJSON(projectPath)
			if err != nil {
				return nil, err
			}
			deps = GetDirectDependencies(pkg, includeDevDeps)
		}
	}

	for _, dep := range deps {
		if err := a.resolveDependency(ctx, dep.Name, dep.Version, dep.Parent, 1, explicit); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.warnf("failed to resolve %s: %v", dep.Name, err)
		}
	}

	return a.installSet(lockType), nil
}

// ResolveSpecifier resolves a single name[@constraint] without project
// context, for on-demand scans of one package.
func (a *Adapter) ResolveSpecifier(ctx context.Context, specifier string) (risk.PackageRef, *detector.Metadata, error) {
	name, constraint := SplitSpecifier(specifier)

	version, err := a.resolveVersion(ctx, name, constraint)
	if err != nil {
		return risk.PackageRef{}, nil, err
	}

	info, err := a.client.GetVersionInfo(ctx, name, version)
	if err != nil {
		return risk.PackageRef{}, nil, err
	}

	ref := risk.PackageRef{Name: name, Version: version, Registry: RegistryNPM}
	return ref, info.Metadata(), nil
}

// SplitSpecifier splits "name[@constraint]" into its parts, handling scoped
// names like @types/node@^14.0.0. A missing constraint yields "latest".
func SplitSpecifier(spec string) (name, constraint string) {
	search := spec
	offset := 0
	if strings.HasPrefix(spec, "@") {
		search = spec[1:]
		offset = 1
	}

	if idx := strings.Index(search, "@"); idx > 0 {
		return spec[:idx+offset], spec[idx+offset+1:]
	}
	return spec, "latest"
}

// resolveDependency recursively resolves a single dependency into the set
func (a *Adapter) resolveDependency(ctx context.Context, name, versionConstraint, parent string, depth int, explicit bool) error {
	if depth > a.maxDepth {
		return nil // stop at max depth
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Non-registry specifiers (workspace:, git+, file:, ...) cannot be scanned
	if isNonRegistrySpecifier(versionConstraint) {
		a.skip(name, versionConstraint, "non-registry specifier", parent)
		return nil
	}

	// Already satisfied locally means the manager would not fetch it again.
	// Explicit command-line targets are always resolved: the user is asking
	// to change that package.
	if !explicit && a.satisfiedByLockfile(name, versionConstraint) {
		a.skip(name, versionConstraint, "already satisfied by lockfile", parent)
		return nil
	}

	resolvedVersion, err := a.resolveVersion(ctx, name, versionConstraint)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("%s@%s", name, resolvedVersion)

	a.mu.Lock()
	if _, exists := a.resolved[key]; exists {
		a.mu.Unlock()
		return nil // already resolved
	}
	a.mu.Unlock()

	versionInfo, err := a.client.GetVersionInfo(ctx, name, resolvedVersion)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.resolved[key] = &resolvedPackage{
		ref:  risk.PackageRef{Name: name, Version: resolvedVersion, Registry: RegistryNPM},
		meta: versionInfo.Metadata(),
	}
	a.mu.Unlock()

	// Recursively resolve sub-dependencies
	for depName, depVersion := range versionInfo.Dependencies {
		if err := a.resolveDependency(ctx, depName, depVersion, name, depth+1, false); err != nil {
			if ctx.Err() != nil {
				return err
			}
			a.warnf("failed to resolve %s -> %s: %v", name, depName, err)
		}
	}

	return nil
}

// resolveVersion converts a version constraint to an actual version
func (a *Adapter) resolveVersion(ctx context.Context, name, constraint string) (string, error) {
	// Check lockfile first for exact version
	a.mu.Lock()
	lf := a.lockfile
	a.mu.Unlock()
	if lf != nil {
		if lockedVersion, found := lf.GetLockedVersion(name, constraint); found {
			return lockedVersion, nil
		}
	}

	// Handle "latest" tag or empty constraint
	if constraint == "latest" || constraint == "*" || constraint == "" {
		return a.client.GetLatestVersion(ctx, name)
	}

	// Only accept full X.Y.Z (2+ dots, no wildcards) as exact version.
	// Bare versions like "1", "0.3" are partial and must be treated as ranges.
	if strings.Count(constraint, ".") >= 2 && !strings.ContainsAny(constraint, "xX*") {
		if _, err := semver.NewVersion(constraint); err == nil {
			return constraint, nil
		}
	}

	// Check if this looks like a semver range
	trimmed := strings.TrimSpace(constraint)
	isRange := strings.ContainsAny(trimmed, "^~><=|") ||
		trimmed == "*" ||
		strings.Contains(trimmed, " ") ||
		strings.Contains(trimmed, ".x") ||
		strings.Contains(trimmed, ".X")

	// Bare/partial versions like "1", "0.3", "2" should be treated as ranges.
	// In npm, "1" means >=1.0.0 <2.0.0, "0.3" means >=0.3.0 <0.4.0.
	if !isRange && isPartialVersion(trimmed) {
		constraint = "~" + trimmed
		isRange = true
	}

	if !isRange {
		// Not a range — treat as dist-tag (e.g., "next", "beta", "canary")
		return constraint, nil
	}

	c, err := semver.NewConstraint(constraint)
	if err != nil {
		// Constraint parsing failed — fall back to latest
		a.warnf("could not parse constraint %q for %s, using latest", constraint, name)
		return a.client.GetLatestVersion(ctx, name)
	}

	// Fetch all available versions from the registry
	info, err := a.client.GetPackageInfo(ctx, name)
	if err != nil {
		return "", err
	}

	// Collect versions that satisfy the constraint
	var matching []*semver.Version
	for vStr := range info.Versions {
		v, err := semver.NewVersion(vStr)
		if err != nil {
			continue
		}
		// Skip prereleases unless the constraint explicitly mentions one
		if v.Prerelease() != "" && !strings.ContainsAny(constraint, "-") {
			continue
		}
		if c.Check(v) {
			matching = append(matching, v)
		}
	}

	if len(matching) == 0 {
		// No version satisfies — fall back to latest dist-tag
		if latest, ok := info.DistTags["latest"]; ok {
			return latest, nil
		}
		return "", fmt.Errorf("no version satisfies %s for %s", constraint, name)
	}

	// Sort descending, pick the highest matching version
	sort.Sort(sort.Reverse(semver.Collection(matching)))
	return matching[0].Original(), nil
}

// satisfiedByLockfile reports whether the lockfile already pins a version of
// name that meets the constraint. Best-effort: an unparsable constraint
// counts as satisfied when any locked version of the name exists.
func (a *Adapter) satisfiedByLockfile(name, constraint string) bool {
	a.mu.Lock()
	lf := a.lockfile
	a.mu.Unlock()
	if lf == nil {
		return false
	}

	locked, found := lf.GetLockedVersion(name, constraint)
	if !found {
		return false
	}

	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return true
	}
	v, err := semver.NewVersion(locked)
	if err != nil {
		return true
	}
	return c.Check(v)
}

func (a *Adapter) skip(name, specifier, reason, parent string) {
	a.mu.Lock()
	a.skipped = append(a.skipped, SkippedDependency{
		Name:      name,
		Specifier: specifier,
		Reason:    reason,
		Parent:    parent,
	})
	a.mu.Unlock()
}

func (a *Adapter) warnf(format string, args ...interface{}) {
	a.mu.Lock()
	a.warnings = append(a.warnings, fmt.Sprintf(format, args...))
	a.mu.Unlock()
}

// installSet snapshots the resolution state into a deterministic result
func (a *Adapter) installSet(lockType LockfileType) *InstallSet {
	a.mu.Lock()
	defer a.mu.Unlock()

	set := &InstallSet{
		Metadata:     make(map[string]*detector.Metadata, len(a.resolved)),
		Skipped:      append([]SkippedDependency(nil), a.skipped...),
		Warnings:     append([]string(nil), a.warnings...),
		LockfileType: lockType,
	}

	for _, pkg := range a.resolved {
		set.Packages = append(set.Packages, pkg.ref)
		set.Metadata[pkg.ref.String()] = pkg.meta
	}

	sort.Slice(set.Packages, func(i, j int) bool {
		return set.Packages[i].String() < set.Packages[j].String()
	})

	return set
}

// isNonRegistrySpecifier returns true for version specifiers that cannot
// be resolved against the registry.
func isNonRegistrySpecifier(constraint string) bool {
	prefixes := []string{
		"catalog:",
		"workspace:",
		"npm:",
		"git+",
		"git://",
		"github:",
		"file:",
		"link:",
		"http://",
		"https://",
	}
	lower := strings.ToLower(constraint)
	for _, prefix := range prefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// isPartialVersion returns true for bare numeric versions like "1", "0.3", "2"
// that npm treats as ranges (e.g., "1" = >=1.0.0 <2.0.0) rather than exact versions.
func isPartialVersion(s string) bool {
	if strings.Count(s, ".") > 1 {
		return false // full X.Y.Z — not partial
	}
	for _, c := range s {
		if c != '.' && (c < '0' || c > '9') {
			return false
		}
	}
	return len(s) > 0
}
