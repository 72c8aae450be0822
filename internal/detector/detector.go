// Package detector implements the independent per-package checks:
// known-malware lookup, typosquat similarity, install-script static
// analysis, and credential/network pattern scanning.
package detector

import (
	"context"

	"github.com/Salta1414/sapo-cli/internal/risk"
)

// Metadata is the registry-side description of one package version.
// Detectors must tolerate a nil or partially filled value.
type Metadata struct {
	Name         string
	Version      string
	Description  string
	Scripts      map[string]string
	Dependencies map[string]string
}

// Detector is the common capability all checks implement. Evaluate
// never fails: missing data degrades to a Benign signal instead.
type Detector interface {
	Kind() risk.DetectorKind
	Evaluate(ctx context.Context, ref risk.PackageRef, meta *Metadata) risk.Signal
}

// insufficientEvidence is the signal for absent or malformed metadata
func insufficientEvidence(kind risk.DetectorKind) risk.Signal {
	return risk.Signal{
		Detector: kind,
		Severity: 0,
		Category: risk.CategoryBenign,
		Evidence: "insufficient evidence: package metadata unavailable",
	}
}

// lifecycleScripts are the hooks a package manager runs automatically
var lifecycleScripts = []string{"preinstall", "install", "postinstall", "prepare", "preuninstall", "postuninstall"}
