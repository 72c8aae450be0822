package resolver

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// LockfileType represents the type of lockfile detected
type LockfileType int

const (
	LockfileNone LockfileType = iota
	LockfileYarn
	LockfilePnpm
	LockfileNPM
	LockfileBun
)

// LockedPackage represents a package with its exact resolved version from a lockfile
type LockedPackage struct {
	Name      string
	Version   string // exact resolved version
	Resolved  string // resolved URL (optional)
	Integrity string // integrity hash (optional)
}

// Lockfile holds parsed lockfile data
type Lockfile struct {
	Type     LockfileType
	Packages map[string]LockedPackage // name@constraint -> LockedPackage
}

// DetectLockfile checks for lockfiles in the project directory.
// Priority: yarn.lock > pnpm-lock.yaml > package-lock.json > bun.lock.
// The binary bun.lockb format is not parsed; bun projects without the
// text lockfile resolve as if no lockfile were present.
func DetectLockfile(projectPath string) (LockfileType, string) {
	yarnLock := filepath.Join(projectPath, "yarn.lock")
	if _, err := os.Stat(yarnLock); err == nil {
		return LockfileYarn, yarnLock
	}

	pnpmLock := filepath.Join(projectPath, "pnpm-lock.yaml")
	if _, err := os.Stat(pnpmLock); err == nil {
		return LockfilePnpm, pnpmLock
	}

	npmLock := filepath.Join(projectPath, "package-lock.json")
	if _, err := os.Stat(npmLock); err == nil {
		return LockfileNPM, npmLock
	}

	bunLock := filepath.Join(projectPath, "bun.lock")
	if _, err := os.Stat(bunLock); err == nil {
		return LockfileBun, bunLock
	}

	return LockfileNone, ""
}

// ParseLockfile parses the lockfile at the given path
func ParseLockfile(lockfilePath string, lockType LockfileType) (*Lockfile, error) {
	switch lockType {
	case LockfileYarn:
		return parseYarnLock(lockfilePath)
	case LockfilePnpm:
		return parsePnpmLock(lockfilePath)
	case LockfileNPM:
		return parseNPMLock(lockfilePath)
	case LockfileBun:
		return parseBunLock(lockfilePath)
	default:
		return nil, fmt.Errorf("unknown lockfile type")
	}
}

// parseYarnLock parses yarn.lock (supports both v1 and berry/v2+ formats)
func parseYarnLock(lockfilePath string) (*Lockfile, error) {
	data, err := os.ReadFile(lockfilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read yarn.lock: %w", err)
	}

	content := string(data)
	lockfile := &Lockfile{
		Type:     LockfileYarn,
		Packages: make(map[string]LockedPackage),
	}

	// Check if it's yarn berry (v2+) format (YAML-like with __metadata)
	if strings.Contains(content, "__metadata:") {
		return parseYarnBerryLock(content, lockfile)
	}

	// Parse yarn v1 format
	return parseYarnV1Lock(content, lockfile)
}

// parseYarnV1Lock parses yarn.lock v1 format
func parseYarnV1Lock(content string, lockfile *Lockfile) (*Lockfile, error) {
	// Yarn v1 format:
	// "package@^1.0.0", "package@~1.0.0":
	//   version "1.0.5"
	//   resolved "https://..."
	//   integrity sha512-...

	scanner := bufio.NewScanner(strings.NewReader(content))

	headerRegex := regexp.MustCompile(`^"?([^"]+)"?(?:,\s*"?([^"]+)"?)*:\s*$`)
	versionRegex := regexp.MustCompile(`^\s+version\s+"([^"]+)"`)
	resolvedRegex := regexp.MustCompile(`^\s+resolved\s+"([^"]+)"`)
	integrityRegex := regexp.MustCompile(`^\s+integrity\s+(\S+)`)

	var currentKeys []string
	var currentVersion, currentResolved, currentIntegrity string

	flushEntry := func() {
		if len(currentKeys) > 0 && currentVersion != "" {
			for _, key := range currentKeys {
				name := extractPackageName(key)
				lockfile.Packages[key] = LockedPackage{
					Name:      name,
					Version:   currentVersion,
					Resolved:  currentResolved,
					Integrity: currentIntegrity,
				}
			}
		}
		currentKeys = nil
		currentVersion = ""
		currentResolved = ""
		currentIntegrity = ""
	}

	for scanner.Scan() {
		line := scanner.Text()

		// Skip comments and empty lines
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}

		// Check for package header
		if matches := headerRegex.FindStringSubmatch(line); matches != nil {
			flushEntry()
			currentKeys = parseYarnV1Header(line)
			continue
		}

		if matches := versionRegex.FindStringSubmatch(line); matches != nil {
			currentVersion = matches[1]
			continue
		}

		if matches := resolvedRegex.FindStringSubmatch(line); matches != nil {
			currentResolved = matches[1]
			continue
		}

		if matches := integrityRegex.FindStringSubmatch(line); matches != nil {
			currentIntegrity = matches[1]
			continue
		}
	}

	// Don't forget the last entry
	flushEntry()

	return lockfile, scanner.Err()
}

// parseYarnV1Header parses the header line of a yarn.lock v1 entry
func parseYarnV1Header(line string) []string {
	line = strings.TrimSuffix(line, ":")
	line = strings.TrimSpace(line)

	var keys []string
	parts := strings.Split(line, ", ")
	for _, part := range parts {
		part = strings.Trim(part, "\"")
		if part != "" {
			keys = append(keys, part)
		}
	}
	return keys
}

// parseYarnBerryLock parses yarn berry (v2+) format
func parseYarnBerryLock(content string, lockfile *Lockfile) (*Lockfile, error) {
	// Yarn berry format is YAML-like
	// "package@npm:^1.0.0":
	//   version: 1.0.5
	//   resolution: "package@npm:1.0.5"
	//   checksum: ...

	var data map[string]interface{}
	if err := yaml.Unmarshal([]byte(content), &data); err != nil {
		return nil, fmt.Errorf("failed to parse yarn.lock (berry): %w", err)
	}

	for key, value := range data {
		if key == "__metadata" {
			continue
		}

		entry, ok := value.(map[string]interface{})
		if !ok {
			continue
		}

		version, _ := entry["version"].(string)
		resolution, _ := entry["resolution"].(string)
		checksum, _ := entry["checksum"].(string)

		if version != "" {
			name := extractPackageName(key)
			lockfile.Packages[key] = LockedPackage{
				Name:      name,
				Version:   version,
				Resolved:  resolution,
				Integrity: checksum,
			}
		}
	}

	return lockfile, nil
}

// parsePnpmLock parses pnpm-lock.yaml
func parsePnpmLock(lockfilePath string) (*Lockfile, error) {
	data, err := os.ReadFile(lockfilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read pnpm-lock.yaml: %w", err)
	}

	lockfile := &Lockfile{
		Type:     LockfilePnpm,
		Packages: make(map[string]LockedPackage),
	}

	var pnpmData map[string]interface{}
	if err := yaml.Unmarshal(data, &pnpmData); err != nil {
		return nil, fmt.Errorf("failed to parse pnpm-lock.yaml: %w", err)
	}

	// pnpm v6+ uses "packages" key
	// pnpm v9+ uses "snapshots" for dependency info and "packages" for metadata
	packages, ok := pnpmData["packages"].(map[string]interface{})
	if !ok {
		// Older format or empty lockfile
		return lockfile, nil
	}

	for pkgPath, value := range packages {
		entry, ok := value.(map[string]interface{})
		if !ok {
			continue
		}

		// pkgPath format: /package@version or /@scope/package@version
		name, version := parsePnpmPackagePath(pkgPath)
		if name == "" || version == "" {
			continue
		}

		resolution, _ := entry["resolution"].(map[string]interface{})
		integrity := ""
		if resolution != nil {
			integrity, _ = resolution["integrity"].(string)
		}

		key := fmt.Sprintf("%s@%s", name, version)
		lockfile.Packages[key] = LockedPackage{
			Name:      name,
			Version:   version,
			Integrity: integrity,
		}
	}

	return lockfile, nil
}

// parsePnpmPackagePath extracts package name and version from pnpm path
// Format: /package@version or /@scope/package@version
func parsePnpmPackagePath(path string) (name, version string) {
	path = strings.TrimPrefix(path, "/")

	// Handle scoped packages: @scope/package@version
	if strings.HasPrefix(path, "@") {
		idx := strings.LastIndex(path, "@")
		if idx > 0 {
			name = path[:idx]
			version = path[idx+1:]
			// Remove any trailing parenthetical info like (react@18.0.0)
			if parenIdx := strings.Index(version, "("); parenIdx > 0 {
				version = version[:parenIdx]
			}
			return name, version
		}
	} else {
		parts := strings.SplitN(path, "@", 2)
		if len(parts) == 2 {
			name = parts[0]
			version = parts[1]
			if parenIdx := strings.Index(version, "("); parenIdx > 0 {
				version = version[:parenIdx]
			}
			return name, version
		}
	}

	return "", ""
}

// parseNPMLock parses package-lock.json
func parseNPMLock(lockfilePath string) (*Lockfile, error) {
	data, err := os.ReadFile(lockfilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read package-lock.json: %w", err)
	}

	lockfile := &Lockfile{
		Type:     LockfileNPM,
		Packages: make(map[string]LockedPackage),
	}

	var npmData map[string]interface{}
	if err := json.Unmarshal(data, &npmData); err != nil {
		return nil, fmt.Errorf("failed to parse package-lock.json: %w", err)
	}

	// npm v7+ uses "packages" key with "" as root
	if packages, ok := npmData["packages"].(map[string]interface{}); ok {
		for pkgPath, value := range packages {
			if pkgPath == "" {
				continue // Skip root package
			}

			entry, ok := value.(map[string]interface{})
			if !ok {
				continue
			}

			// pkgPath format: node_modules/package or node_modules/@scope/package
			name := extractNPMPackageName(pkgPath)
			version, _ := entry["version"].(string)
			resolved, _ := entry["resolved"].(string)
			integrity, _ := entry["integrity"].(string)

			if name != "" && version != "" {
				key := fmt.Sprintf("%s@%s", name, version)
				lockfile.Packages[key] = LockedPackage{
					Name:      name,
					Version:   version,
					Resolved:  resolved,
					Integrity: integrity,
				}
			}
		}
	}

	// npm v6 and below uses "dependencies" key
	if deps, ok := npmData["dependencies"].(map[string]interface{}); ok {
		parseNPMDependencies(deps, lockfile)
	}

	return lockfile, nil
}

// parseNPMDependencies recursively parses npm v6 dependencies
func parseNPMDependencies(deps map[string]interface{}, lockfile *Lockfile) {
	for name, value := range deps {
		entry, ok := value.(map[string]interface{})
		if !ok {
			continue
		}

		version, _ := entry["version"].(string)
		resolved, _ := entry["resolved"].(string)
		integrity, _ := entry["integrity"].(string)

		if version != "" {
			key := fmt.Sprintf("%s@%s", name, version)
			lockfile.Packages[key] = LockedPackage{
				Name:      name,
				Version:   version,
				Resolved:  resolved,
				Integrity: integrity,
			}
		}

		// Recursively parse nested dependencies
		if nested, ok := entry["dependencies"].(map[string]interface{}); ok {
			parseNPMDependencies(nested, lockfile)
		}
	}
}

// parseBunLock parses bun.lock, bun's text lockfile (JSONC with trailing commas).
// Each entry in "packages" is an array whose first element is the resolution
// specifier "name@version".
func parseBunLock(lockfilePath string) (*Lockfile, error) {
	data, err := os.ReadFile(lockfilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read bun.lock: %w", err)
	}

	lockfile := &Lockfile{
		Type:     LockfileBun,
		Packages: make(map[string]LockedPackage),
	}

	var bunData struct {
		Packages map[string][]interface{} `json:"packages"`
	}
	if err := json.Unmarshal(stripJSONC(data), &bunData); err != nil {
		return nil, fmt.Errorf("failed to parse bun.lock: %w", err)
	}

	for _, entry := range bunData.Packages {
		if len(entry) == 0 {
			continue
		}
		resolution, ok := entry[0].(string)
		if !ok {
			continue
		}

		name := extractPackageName(resolution)
		version := strings.TrimPrefix(resolution, name+"@")
		if name == "" || version == "" || version == resolution {
			continue
		}

		integrity := ""
		if last, ok := entry[len(entry)-1].(string); ok && strings.HasPrefix(last, "sha") {
			integrity = last
		}

		key := fmt.Sprintf("%s@%s", name, version)
		lockfile.Packages[key] = LockedPackage{
			Name:      name,
			Version:   version,
			Integrity: integrity,
		}
	}

	return lockfile, nil
}

// stripJSONC removes line comments and trailing commas so bun.lock can be
// decoded with the standard JSON decoder. String contents are preserved.
func stripJSONC(data []byte) []byte {
	var out []byte
	inString := false
	escaped := false

	for i := 0; i < len(data); i++ {
		c := data[i]

		if inString {
			out = append(out, c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			out = append(out, c)
		case c == '/' && i+1 < len(data) && data[i+1] == '/':
			for i < len(data) && data[i] != '\n' {
				i++
			}
			if i < len(data) {
				out = append(out, '\n')
			}
		case c == ',':
			// Drop the comma if the next non-whitespace byte closes a scope
			j := i + 1
			for j < len(data) && (data[j] == ' ' || data[j] == '\t' || data[j] == '\n' || data[j] == '\r') {
				j++
			}
			if j < len(data) && (data[j] == '}' || data[j] == ']') {
				continue
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}

	return out
}

// extractNPMPackageName extracts package name from node_modules path
func extractNPMPackageName(path string) string {
	// Remove node_modules/ prefix (may be nested)
	for strings.Contains(path, "node_modules/") {
		idx := strings.LastIndex(path, "node_modules/")
		path = path[idx+len("node_modules/"):]
	}
	return path
}

// extractPackageName extracts the package name from a version specifier
// e.g., "lodash@^4.17.0" -> "lodash", "@types/node@^14.0.0" -> "@types/node"
func extractPackageName(specifier string) string {
	// Remove npm: prefix if present (yarn berry)
	specifier = strings.TrimPrefix(specifier, "npm:")

	// Handle scoped packages
	if strings.HasPrefix(specifier, "@") {
		rest := specifier[1:]
		idx := strings.Index(rest, "@")
		if idx > 0 {
			return specifier[:idx+1]
		}
		return specifier
	}

	idx := strings.Index(specifier, "@")
	if idx > 0 {
		return specifier[:idx]
	}
	return specifier
}

// GetLockedVersion returns the locked version for a package, if available
func (l *Lockfile) GetLockedVersion(name, constraint string) (string, bool) {
	if l == nil {
		return "", false
	}

	// Try exact match first
	key := fmt.Sprintf("%s@%s", name, constraint)
	if pkg, ok := l.Packages[key]; ok {
		return pkg.Version, true
	}

	// For yarn berry, try with npm: prefix
	key = fmt.Sprintf("%s@npm:%s", name, constraint)
	if pkg, ok := l.Packages[key]; ok {
		return pkg.Version, true
	}

	// Fallback: search by name only and return first match.
	// This handles cases where the constraint format differs.
	for k, pkg := range l.Packages {
		if pkg.Name == name {
			return pkg.Version, true
		}
		if strings.HasPrefix(k, name+"@") {
			return pkg.Version, true
		}
	}

	return "", false
}

// Contains reports whether any entry for the named package exists.
func (l *Lockfile) Contains(name string) bool {
	if l == nil {
		return false
	}
	for _, pkg := range l.Packages {
		if pkg.Name == name {
			return true
		}
	}
	return false
}

// LockfileTypeName returns a human-readable name for the lockfile type
func LockfileTypeName(t LockfileType) string {
	switch t {
	case LockfileYarn:
		return "yarn.lock"
	case LockfilePnpm:
		return "pnpm-lock.yaml"
	case LockfileNPM:
		return "package-lock.json"
	case LockfileBun:
		return "bun.lock"
	default:
		return "none"
	}
}
