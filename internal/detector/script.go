package detector

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Salta1414/sapo-cli/internal/risk"
)

// ScriptDetector statically analyzes declared lifecycle install
// scripts for dangerous patterns.
type ScriptDetector struct {
	rules *RuleSet
}

// NewScriptDetector creates the detector with the built-in rules
func NewScriptDetector() *ScriptDetector {
	return &ScriptDetector{rules: defaultScriptRules}
}

// NewScriptDetectorWithRules creates the detector with a custom rule set
func NewScriptDetectorWithRules(rules *RuleSet) *ScriptDetector {
	return &ScriptDetector{rules: rules}
}

// Kind implements Detector
func (d *ScriptDetector) Kind() risk.DetectorKind {
	return risk.DetectorScript
}

// Evaluate inspects the package's lifecycle scripts. No scripts, or no
// matching pattern, is Benign. Severity is the strongest matched rule.
func (d *ScriptDetector) Evaluate(_ context.Context, ref risk.PackageRef, meta *Metadata) risk.Signal {
	if meta == nil {
		return insufficientEvidence(risk.DetectorScript)
	}

	body := collectLifecycleScripts(meta.Scripts)
	if body == "" {
		return risk.Signal{
			Detector: risk.DetectorScript,
			Severity: 0,
			Category: risk.CategoryBenign,
			Evidence: "no lifecycle install scripts declared",
		}
	}

	matches := d.rules.Match(body)
	if len(matches) == 0 {
		return risk.Signal{
			Detector: risk.DetectorScript,
			Severity: 0,
			Category: risk.CategoryBenign,
			Evidence: "lifecycle scripts present, no dangerous pattern matched",
		}
	}

	best := matches[0]
	for _, m := range matches[1:] {
		if m.Rule.Severity.Score() > best.Rule.Severity.Score() {
			best = m
		}
	}

	return risk.Signal{
		Detector: risk.DetectorScript,
		Severity: best.Rule.Severity.Score(),
		Category: categoryOf(best.Rule, risk.CategoryMaliciousScript),
		Evidence: fmt.Sprintf("%s: %s (matched %q)", best.Rule.Name, best.Rule.Description,
			firstMatch(best)),
	}
}

// collectLifecycleScripts joins the hook scripts in stable order so
// rule matching is deterministic.
func collectLifecycleScripts(scripts map[string]string) string {
	var hooks []string
	for _, hook := range lifecycleScripts {
		if body, ok := scripts[hook]; ok && strings.TrimSpace(body) != "" {
			hooks = append(hooks, hook+": "+body)
		}
	}
	sort.Strings(hooks)
	return strings.Join(hooks, "\n")
}

func firstMatch(m *RuleMatch) string {
	if len(m.MatchedText) == 0 {
		return ""
	}
	s := m.MatchedText[0]
	if len(s) > 60 {
		s = s[:57] + "..."
	}
	return s
}
