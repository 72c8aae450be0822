package detector

import (
	"context"
	"fmt"
	"strings"

	"github.com/Salta1414/sapo-cli/internal/risk"
)

// CredNetDetector scans the package's install-time surface for
// credential harvesting and non-registry network egress patterns.
type CredNetDetector struct {
	rules *RuleSet
}

// NewCredNetDetector creates the detector with the built-in rules
func NewCredNetDetector() *CredNetDetector {
	return &CredNetDetector{rules: defaultCredNetRules}
}

// NewCredNetDetectorWithRules creates the detector with a custom rule set
func NewCredNetDetectorWithRules(rules *RuleSet) *CredNetDetector {
	return &CredNetDetector{rules: rules}
}

// Kind implements Detector
func (d *CredNetDetector) Kind() risk.DetectorKind {
	return risk.DetectorCredNet
}

// Evaluate accumulates severity across all matched rules, capped at
// 100: several weak indicators together are stronger evidence than
// any one of them alone.
func (d *CredNetDetector) Evaluate(_ context.Context, ref risk.PackageRef, meta *Metadata) risk.Signal {
	if meta == nil {
		return insufficientEvidence(risk.DetectorCredNet)
	}

	body := collectLifecycleScripts(meta.Scripts)
	if body == "" {
		return risk.Signal{
			Detector: risk.DetectorCredNet,
			Severity: 0,
			Category: risk.CategoryBenign,
			Evidence: "no install-time code surface to scan",
		}
	}

	matches := d.rules.Match(body)
	if len(matches) == 0 {
		return risk.Signal{
			Detector: risk.DetectorCredNet,
			Severity: 0,
			Category: risk.CategoryBenign,
			Evidence: "no credential or network access pattern matched",
		}
	}

	severity := 0
	category := risk.CategoryNetworkAccess
	var names []string
	for _, m := range matches {
		severity += m.Rule.Severity.Score()
		names = append(names, m.Rule.Name)
		// Credential access dominates when both kinds match
		if categoryOf(m.Rule, risk.CategoryNetworkAccess) == risk.CategoryCredentialAccess {
			category = risk.CategoryCredentialAccess
		}
	}
	if severity > 100 {
		severity = 100
	}

	return risk.Signal{
		Detector: risk.DetectorCredNet,
		Severity: severity,
		Category: category,
		Evidence: fmt.Sprintf("matched %d pattern(s): %s", len(matches), strings.Join(names, "; ")),
	}
}
