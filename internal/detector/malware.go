package detector

import (
	"context"
	"fmt"

	"github.com/Salta1414/sapo-cli/internal/risk"
	"github.com/Salta1414/sapo-cli/internal/threatdb"
)

// LookupClient is what the malware detector needs from the threat
// database client.
type LookupClient interface {
	Lookup(ctx context.Context, name, version, registry string) (*threatdb.LookupResult, error)
}

// MalwareDetector queries the threat database for known-malware records
type MalwareDetector struct {
	client LookupClient
}

// NewMalwareDetector creates the known-malware lookup detector
func NewMalwareDetector(client LookupClient) *MalwareDetector {
	return &MalwareDetector{client: client}
}

// Kind implements Detector
func (d *MalwareDetector) Kind() risk.DetectorKind {
	return risk.DetectorMalware
}

// Evaluate looks the package up by name and version. A lookup failure
// yields a degraded zero-severity signal: an outage must neither grant
// trust nor block everything, and the aggregator must know the lookup
// did not actually run.
func (d *MalwareDetector) Evaluate(ctx context.Context, ref risk.PackageRef, _ *Metadata) risk.Signal {
	result, err := d.client.Lookup(ctx, ref.Name, ref.Version, ref.Registry)
	if err != nil {
		return risk.Signal{
			Detector: risk.DetectorMalware,
			Severity: 0,
			Category: risk.CategoryBenign,
			Evidence: fmt.Sprintf("threat database unavailable: %v", err),
			Degraded: true,
		}
	}

	if !result.Matched {
		return risk.Signal{
			Detector: risk.DetectorMalware,
			Severity: 0,
			Category: risk.CategoryBenign,
			Evidence: "no known-malware record",
		}
	}

	severity := result.Severity
	if severity <= 0 {
		severity = 100 // a match with no severity detail is still a match
	}
	evidence := result.Evidence
	if evidence == "" {
		evidence = fmt.Sprintf("%s is a known malicious package", ref)
	}

	return risk.Signal{
		Detector: risk.DetectorMalware,
		Severity: severity,
		Category: risk.CategoryMalware,
		Evidence: evidence,
	}
}
