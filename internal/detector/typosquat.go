package detector

import (
	"context"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/Salta1414/sapo-cli/internal/risk"
)

// similarityThreshold is the minimum similarity to a popular name
// before a package is flagged as a likely typosquat.
const similarityThreshold = 0.75

// TyposquatDetector compares the package name against a list of
// popular package names using edit distance with keyboard-adjacency
// and transposition forgiveness.
type TyposquatDetector struct {
	popular map[string]struct{}
	names   []string
}

// NewTyposquatDetector creates the detector over the built-in popular list
func NewTyposquatDetector() *TyposquatDetector {
	return NewTyposquatDetectorWithNames(PopularPackages)
}

// NewTyposquatDetectorWithNames creates the detector over a custom list
func NewTyposquatDetectorWithNames(names []string) *TyposquatDetector {
	popular := make(map[string]struct{}, len(names))
	for _, n := range names {
		popular[n] = struct{}{}
	}
	return &TyposquatDetector{popular: popular, names: names}
}

// Kind implements Detector
func (d *TyposquatDetector) Kind() risk.DetectorKind {
	return risk.DetectorTyposquat
}

// Evaluate flags names that sit close to a popular package. A popular
// package is never flagged as impersonating itself: an exact match
// short-circuits to severity 0.
func (d *TyposquatDetector) Evaluate(_ context.Context, ref risk.PackageRef, _ *Metadata) risk.Signal {
	name := strings.ToLower(ref.Name)

	if _, ok := d.popular[name]; ok {
		return risk.Signal{
			Detector: risk.DetectorTyposquat,
			Severity: 0,
			Category: risk.CategoryBenign,
			Evidence: "name matches a known-popular package exactly",
		}
	}

	bestSim := 0.0
	bestMatch := ""
	for _, candidate := range d.names {
		sim := similarity(name, candidate)
		if sim > bestSim {
			bestSim = sim
			bestMatch = candidate
		}
	}

	if bestSim < similarityThreshold {
		return risk.Signal{
			Detector: risk.DetectorTyposquat,
			Severity: 0,
			Category: risk.CategoryBenign,
			Evidence: "name is not similar to any known-popular package",
		}
	}

	return risk.Signal{
		Detector: risk.DetectorTyposquat,
		Severity: int(bestSim*100 + 0.5),
		Category: risk.CategoryTyposquat,
		Evidence: fmt.Sprintf("name is %.0f%% similar to popular package %q; likely typosquat of %s",
			bestSim*100, bestMatch, bestMatch),
	}
}

// similarity maps edit distance into [0,1], where 1 is identical.
// An adjacent-key substitution or an adjacent transposition is a more
// plausible typo than an arbitrary edit, so those count half.
func similarity(a, b string) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}

	dist := float64(levenshtein.ComputeDistance(a, b))
	if dist == 1 && isAdjacentKeySubstitution(a, b) {
		dist = 0.5
	}
	if dist == 2 && isAdjacentTransposition(a, b) {
		dist = 1
	}

	return 1 - dist/float64(maxLen)
}

// qwertyNeighbors maps each key to the keys physically next to it
var qwertyNeighbors = map[rune]string{
	'q': "wa", 'w': "qes", 'e': "wrd", 'r': "etf", 't': "ryg", 'y': "tuh",
	'u': "yij", 'i': "uok", 'o': "ipl", 'p': "ol",
	'a': "qsz", 's': "awdx", 'd': "sefc", 'f': "drgv", 'g': "fthb",
	'h': "gyjn", 'j': "hukm", 'k': "jil", 'l': "kop",
	'z': "asx", 'x': "zsdc", 'c': "xdfv", 'v': "cfgb", 'b': "vghn",
	'n': "bhjm", 'm': "njk",
}

// isAdjacentKeySubstitution reports whether a and b differ by exactly
// one substitution of physically adjacent keys.
func isAdjacentKeySubstitution(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	diff := -1
	for i := range a {
		if a[i] != b[i] {
			if diff != -1 {
				return false
			}
			diff = i
		}
	}
	if diff == -1 {
		return false
	}
	neighbors, ok := qwertyNeighbors[rune(a[diff])]
	return ok && strings.ContainsRune(neighbors, rune(b[diff]))
}

// isAdjacentTransposition reports whether a and b are equal except for
// two swapped neighboring characters ("lodahs" vs "lodash").
func isAdjacentTransposition(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i+1 < len(a); i++ {
		if a[i] != b[i] {
			return a[i] == b[i+1] && a[i+1] == b[i] && a[i+2:] == b[i+2:]
		}
	}
	return false
}
