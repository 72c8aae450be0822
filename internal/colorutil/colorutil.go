// Package colorutil centralizes terminal coloring for decisions,
// scores, and severity so output stays consistent across commands.
package colorutil

import (
	"fmt"

	"github.com/fatih/color"
)

var (
	colorBlock = color.New(color.FgRed, color.Bold)
	colorWarn  = color.New(color.FgYellow, color.Bold)
	colorAllow = color.New(color.FgGreen)
	colorDim   = color.New(color.FgHiBlack)
)

// ApplyNoColor disables color output
func ApplyNoColor() {
	color.NoColor = true
}

// ColorizeDecision returns the decision string with appropriate color
func ColorizeDecision(decision string) string {
	switch decision {
	case "block":
		return colorBlock.Sprint("BLOCK")
	case "warn":
		return colorWarn.Sprint("WARN")
	case "allow":
		return colorAllow.Sprint("ALLOW")
	default:
		return decision
	}
}

// ColorizeScore returns the score colored by the band it falls in
func ColorizeScore(score int) string {
	s := fmt.Sprintf("%d/100", score)
	switch {
	case score >= 80:
		return colorBlock.Sprint(s)
	case score >= 30:
		return colorWarn.Sprint(s)
	default:
		return colorAllow.Sprint(s)
	}
}

// ColorizePackage returns a colored package string based on its score
func ColorizePackage(pkgInfo string, score int) string {
	switch {
	case score >= 80:
		return colorBlock.Sprint(pkgInfo)
	case score >= 30:
		return colorWarn.Sprint(pkgInfo)
	default:
		return colorAllow.Sprint(pkgInfo)
	}
}

// Dim returns secondary text in a muted color
func Dim(s string) string {
	return colorDim.Sprint(s)
}

// PrintOK prints a success line
func PrintOK(msg string) {
	fmt.Printf("  %s %s\n", colorAllow.Sprint("[+]"), msg)
}

// PrintWarning prints a warning line
func PrintWarning(msg string) {
	fmt.Printf("  %s %s\n", colorWarn.Sprint("[!]"), msg)
}

// PrintBlocked prints a blocked line
func PrintBlocked(msg string) {
	fmt.Printf("  %s %s\n", colorBlock.Sprint("[x]"), msg)
}

// PrintInfo prints an informational line
func PrintInfo(msg string) {
	fmt.Printf("  [i] %s\n", msg)
}

// PrintDetail prints an indented detail line
func PrintDetail(msg string) {
	fmt.Printf("      %s %s\n", colorDim.Sprint("|-"), msg)
}
