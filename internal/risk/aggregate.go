package risk

import "sort"

// Aggregate combines detector signals into a package verdict.
// The score is the maximum severity across signals: one strong signal
// dominates, signals never dilute each other by averaging.
func Aggregate(ref PackageRef, signals []Signal, th Thresholds) PackageVerdict {
	score := 0
	for _, s := range signals {
		sev := s.Severity
		if sev < 0 {
			sev = 0
		}
		if sev > 100 {
			sev = 100
		}
		if sev > score {
			score = sev
		}
	}

	// Strongest evidence first in reports
	ordered := make([]Signal, len(signals))
	copy(ordered, signals)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Severity > ordered[j].Severity
	})

	return PackageVerdict{
		Package:  ref,
		Score:    score,
		Decision: th.Decide(score),
		Signals:  ordered,
	}
}

// Decide maps a score onto a decision
func (th Thresholds) Decide(score int) Decision {
	switch {
	case score >= th.Block:
		return DecisionBlock
	case score >= th.Warn:
		return DecisionWarn
	default:
		return DecisionAllow
	}
}

// TrustedVerdict is the verdict for a package matching the trust list.
// Detectors are skipped entirely, so the score is 0 regardless of any
// signal that would otherwise have fired.
func TrustedVerdict(ref PackageRef) PackageVerdict {
	return PackageVerdict{
		Package:  ref,
		Score:    0,
		Decision: DecisionAllow,
		Trusted:  true,
		Signals: []Signal{{
			Severity: 0,
			Category: CategoryBenign,
			Evidence: "package is on the trust list; detectors skipped",
		}},
	}
}

// Fold combines package verdicts into one operation verdict. The
// operation decision is the worst decision among its packages, so a
// single risky dependency gates the whole install.
func Fold(verdicts []PackageVerdict) OperationVerdict {
	op := OperationVerdict{
		Decision: DecisionAllow,
		Packages: verdicts,
	}
	for _, v := range verdicts {
		op.Decision = op.Decision.Worse(v.Decision)
	}
	return op
}
