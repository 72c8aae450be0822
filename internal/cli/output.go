package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Salta1414/sapo-cli/internal/risk"
)

// VerdictJSON is the JSON output for the scan command
type VerdictJSON struct {
	Package  string       `json:"package"`
	Version  string       `json:"version"`
	Registry string       `json:"registry"`
	Score    int          `json:"score"`
	Decision string       `json:"decision"`
	Trusted  bool         `json:"trusted,omitempty"`
	Cached   bool         `json:"cached,omitempty"`
	Degraded bool         `json:"degraded,omitempty"`
	Signals  []SignalJSON `json:"signals,omitempty"`
}

// SignalJSON is one detector finding
type SignalJSON struct {
	Detector string `json:"detector"`
	Severity int    `json:"severity"`
	Category string `json:"category"`
	Evidence string `json:"evidence"`
	Degraded bool   `json:"degraded,omitempty"`
}

// TrustEntryJSON is one trust-list row
type TrustEntryJSON struct {
	Name       string `json:"name"`
	Constraint string `json:"constraint"`
	AddedAt    string `json:"added_at"`
}

// StatusJSON is the JSON output for the status command
type StatusJSON struct {
	Version         string `json:"version"`
	Enabled         bool   `json:"enabled"`
	DeviceID        string `json:"device_id"`
	BlockAt         int    `json:"block_at"`
	WarnAt          int    `json:"warn_at"`
	CachedVerdicts  int    `json:"cached_verdicts"`
	TrustedPackages int    `json:"trusted_packages"`
	Config          string `json:"config"`
	Database        string `json:"database"`
	StoreError      string `json:"store_error,omitempty"`
}

func verdictJSON(v risk.PackageVerdict, cached bool) VerdictJSON {
	out := VerdictJSON{
		Package:  v.Package.Name,
		Version:  v.Package.Version,
		Registry: v.Package.Registry,
		Score:    v.Score,
		Decision: string(v.Decision),
		Trusted:  v.Trusted,
		Cached:   cached,
		Degraded: v.Degraded(),
	}
	for _, s := range v.Signals {
		out.Signals = append(out.Signals, SignalJSON{
			Detector: string(s.Detector),
			Severity: s.Severity,
			Category: string(s.Category),
			Evidence: s.Evidence,
			Degraded: s.Degraded,
		})
	}
	return out
}

func outputJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
