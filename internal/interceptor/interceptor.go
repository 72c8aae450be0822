// Package interceptor classifies package-manager invocations. It decides
// whether an argv belongs to the install family (and therefore gets scanned)
// or passes through untouched. Classification is pure: no I/O, no state.
package interceptor

import (
	"path/filepath"
	"strings"
)

// Kind is the classification outcome
type Kind int

const (
	// PassThrough means the invocation is forwarded unmodified without scanning.
	// Unsupported managers and unrecognized subcommands land here: an
	// unrecognized command must never be blocked by accident.
	PassThrough Kind = iota
	// InstallFamily means the invocation would install packages and gets scanned first
	InstallFamily
)

func (k Kind) String() string {
	if k == InstallFamily {
		return "install"
	}
	return "pass-through"
}

// Classification is the result of inspecting one invocation
type Classification struct {
	Kind    Kind
	Manager string // normalized manager name: npm, pnpm, yarn, bun
	// Specifiers are the explicit package targets from the command line.
	// Empty for bare installs ("install everything in the manifest"), in
	// which case the resolver reads the project manifest instead.
	Specifiers []string
}

// installSubcommands maps each supported manager to the subcommands that
// install packages. yarn's story differs from the npm-alikes: a bare "yarn"
// with no subcommand is an install, and "yarn i" is not a thing.
var installSubcommands = map[string]map[string]bool{
	"npm":  {"install": true, "i": true, "add": true},
	"pnpm": {"install": true, "i": true, "add": true},
	"bun":  {"install": true, "i": true, "add": true},
	"yarn": {"install": true, "add": true},
}

// Classify inspects a manager invocation and extracts install targets.
// manager may be a bare name or a full path ("/usr/local/bin/npm").
func Classify(manager string, args []string) Classification {
	name := normalizeManager(manager)

	subcommands, supported := installSubcommands[name]
	if !supported {
		return Classification{Kind: PassThrough, Manager: name}
	}

	sub, rest := splitSubcommand(args)

	if sub == "" {
		// yarn with no subcommand installs the manifest
		if name == "yarn" {
			return Classification{Kind: InstallFamily, Manager: name}
		}
		return Classification{Kind: PassThrough, Manager: name}
	}

	if !subcommands[sub] {
		return Classification{Kind: PassThrough, Manager: name}
	}

	return Classification{
		Kind:       InstallFamily,
		Manager:    name,
		Specifiers: extractSpecifiers(rest),
	}
}

// normalizeManager reduces an invocation path to the bare manager name
func normalizeManager(manager string) string {
	name := filepath.Base(manager)
	name = strings.ToLower(name)
	for _, ext := range []string{".exe", ".cmd", ".ps1"} {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

// splitSubcommand finds the first non-flag argument (the subcommand) and
// returns the arguments that follow it.
func splitSubcommand(args []string) (string, []string) {
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		return arg, args[i+1:]
	}
	return "", nil
}

// extractSpecifiers keeps the arguments that name registry packages.
// Flags, local paths, and tarball or git references are not scannable
// registry targets.
func extractSpecifiers(args []string) []string {
	var specs []string
	for _, arg := range args {
		if arg == "" {
			continue
		}
		switch arg[0] {
		case '-', '.', '/':
			continue
		}
		if isDirectReference(arg) {
			continue
		}
		specs = append(specs, arg)
	}
	return specs
}

// isDirectReference matches specifiers the managers fetch without a
// registry lookup: URLs, git shorthands, and local tarballs.
func isDirectReference(arg string) bool {
	if strings.Contains(arg, "://") {
		return true
	}
	if strings.HasPrefix(arg, "git+") || strings.HasPrefix(arg, "github:") ||
		strings.HasPrefix(arg, "file:") || strings.HasPrefix(arg, "link:") ||
		strings.HasPrefix(arg, "workspace:") {
		return true
	}
	return strings.HasSuffix(arg, ".tgz") || strings.HasSuffix(arg, ".tar.gz")
}
