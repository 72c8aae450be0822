// Package risk defines the signal and verdict model and combines
// detector signals into per-package and per-operation verdicts.
package risk

import "fmt"

// DetectorKind identifies which detector produced a signal
type DetectorKind string

const (
	DetectorMalware   DetectorKind = "malware-lookup"
	DetectorTyposquat DetectorKind = "typosquat"
	DetectorScript    DetectorKind = "install-script"
	DetectorCredNet   DetectorKind = "cred-network"
)

// Category classifies what a signal is evidence of
type Category string

const (
	CategoryMalware          Category = "malware"
	CategoryTyposquat        Category = "typosquat"
	CategoryMaliciousScript  Category = "malicious-script"
	CategoryCredentialAccess Category = "credential-access"
	CategoryNetworkAccess    Category = "network-access"
	CategoryBenign           Category = "benign"
)

// PackageRef is the immutable identity of one scan unit
type PackageRef struct {
	Name     string
	Version  string
	Registry string
}

// String returns the name@version form used in reports and cache keys
func (r PackageRef) String() string {
	return fmt.Sprintf("%s@%s", r.Name, r.Version)
}

// Signal is one detector's finding for one package.
// Degraded marks a signal whose detector could not complete its lookup
// (timeout, outage); the severity is then a floor, not a measurement.
type Signal struct {
	Detector DetectorKind `json:"detector"`
	Severity int          `json:"severity"` // 0..100
	Category Category     `json:"category"`
	Evidence string       `json:"evidence"`
	Degraded bool         `json:"degraded,omitempty"`
}

// Decision is the discrete outcome for a package or operation
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionWarn  Decision = "warn"
	DecisionBlock Decision = "block"
)

// rank orders decisions by severity for worst-case folding
func (d Decision) rank() int {
	switch d {
	case DecisionBlock:
		return 2
	case DecisionWarn:
		return 1
	default:
		return 0
	}
}

// Worse returns the more severe of two decisions
func (d Decision) Worse(other Decision) Decision {
	if other.rank() > d.rank() {
		return other
	}
	return d
}

// PackageVerdict is the aggregated outcome for a single package
type PackageVerdict struct {
	Package  PackageRef `json:"package"`
	Score    int        `json:"score"` // 0..100
	Decision Decision   `json:"decision"`
	Signals  []Signal   `json:"signals"`
	Trusted  bool       `json:"trusted,omitempty"`
}

// Degraded reports whether any constituent signal was degraded
func (v PackageVerdict) Degraded() bool {
	for _, s := range v.Signals {
		if s.Degraded {
			return true
		}
	}
	return false
}

// OperationVerdict folds all package verdicts of one install operation
type OperationVerdict struct {
	Decision Decision         `json:"decision"`
	Packages []PackageVerdict `json:"packages"`
}

// Thresholds maps a score onto a decision. Score >= Block blocks,
// score >= Warn warns, anything below allows.
type Thresholds struct {
	Block int
	Warn  int
}

// DefaultThresholds returns the default decision thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{Block: 80, Warn: 30}
}
