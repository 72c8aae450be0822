package risk

import (
	"fmt"
	"strings"

	"github.com/Salta1414/sapo-cli/internal/colorutil"
)

// FormatReport returns a human-readable report for a single package
func (v PackageVerdict) FormatReport() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Package: %s\n", colorutil.ColorizePackage(v.Package.String(), v.Score)))
	sb.WriteString(fmt.Sprintf("Score:   %s  Decision: %s\n",
		colorutil.ColorizeScore(v.Score),
		colorutil.ColorizeDecision(string(v.Decision))))

	if v.Trusted {
		sb.WriteString("Trusted package; detectors skipped.\n")
		return sb.String()
	}

	var findings, degraded []Signal
	for _, s := range v.Signals {
		switch {
		case s.Degraded:
			degraded = append(degraded, s)
		case s.Severity > 0:
			findings = append(findings, s)
		}
	}

	if len(findings) == 0 {
		sb.WriteString("Package is safe: no detector reported a finding.\n")
	} else {
		sb.WriteString("Findings:\n")
		for _, s := range findings {
			sb.WriteString(fmt.Sprintf("  %s [%s] %s\n",
				severityIcon(s.Severity), s.Detector, truncate(s.Evidence, 100)))
		}
	}

	for _, s := range degraded {
		sb.WriteString(fmt.Sprintf("  [?] [%s] degraded: %s\n", s.Detector, s.Evidence))
	}

	return sb.String()
}

// FormatReport returns a human-readable report for a whole operation,
// listing risky packages first and summarizing the rest.
func (op OperationVerdict) FormatReport() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Decision: %s  (%d packages scanned)\n",
		colorutil.ColorizeDecision(string(op.Decision)), len(op.Packages)))

	var clean int
	for _, v := range op.Packages {
		if v.Decision == DecisionAllow && !v.Degraded() {
			clean++
			continue
		}
		sb.WriteString("\n")
		sb.WriteString(v.FormatReport())
	}

	if clean > 0 {
		sb.WriteString(fmt.Sprintf("\n%d packages passed all detectors.\n", clean))
	}

	return sb.String()
}

func severityIcon(severity int) string {
	switch {
	case severity >= 80:
		return "[!]"
	case severity >= 30:
		return "[*]"
	default:
		return "[-]"
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
