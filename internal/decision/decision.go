// Package decision holds the pure auto-merge decision function. It does
// no I/O: callers bring the AI score, the quality issue count, the
// configuration, and the changed filenames.
package decision

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mergegate/pkg/models"
)

// JUnitPresentScore is the heuristic score when a test-looking file is
// present among the changed files; absence scores zero.
const JUnitPresentScore = 90

// Input carries everything Decide and Explain need
type Input struct {
	AIScore      int
	IssueCount   int
	Config       models.AutoMergeConfig
	ChangedFiles []string
	JUnitScore   int
}

var javaExtensions = map[string]bool{
	".java":   true,
	".kt":     true,
	".kts":    true,
	".scala":  true,
	".groovy": true,
}

// HasJavaFile reports whether the changeset contains a Java-family file
func HasJavaFile(filenames []string) bool {
	for _, name := range filenames {
		if javaExtensions[strings.ToLower(filepath.Ext(name))] {
			return true
		}
	}
	return false
}

// JUnitHeuristic scores test presence across the changed files: 90 when
// any filename looks like a test, else 0
func JUnitHeuristic(filenames []string) int {
	for _, name := range filenames {
		base := strings.ToLower(filepath.Base(name))
		if strings.Contains(base, "test") || strings.Contains(base, "spec") {
			return JUnitPresentScore
		}
	}
	return 0
}

// Decide computes the auto-merge decision. Disabled config always means
// false. Mode selects the comparison direction for both thresholds; the
// JUnit requirement, when it applies, uses the same operator and combines
// with logical AND.
func Decide(in Input) bool {
	cfg := in.Config
	if !cfg.Enabled {
		return false
	}

	var base bool
	switch cfg.Mode {
	case models.ModeAtLeast:
		base = in.AIScore >= cfg.AIThreshold && in.IssueCount >= cfg.SonarThreshold
	default: // at-most
		base = in.AIScore <= cfg.AIThreshold && in.IssueCount <= cfg.SonarThreshold
	}

	if !junitApplies(in) {
		return base
	}

	threshold := *cfg.JUnitThreshold

	var junitOK bool
	if cfg.Mode == models.ModeAtLeast {
		junitOK = in.JUnitScore >= threshold
	} else {
		junitOK = in.JUnitScore <= threshold
	}

	return base && junitOK
}

// The JUnit check needs a configured threshold to compare against; with
// none set the requirement is not applicable.
func junitApplies(in Input) bool {
	return in.Config.RequireJUnitForJava && in.Config.JUnitThreshold != nil && HasJavaFile(in.ChangedFiles)
}

// Explain renders the exact comparisons Decide evaluated. Reproducible
// from the same inputs, for the decision history and debugging.
func Explain(in Input) string {
	cfg := in.Config
	if !cfg.Enabled {
		return "auto-merge disabled by configuration"
	}

	op := "<="
	if cfg.Mode == models.ModeAtLeast {
		op = ">="
	}

	var b strings.Builder
	fmt.Fprintf(&b, "mode=%s: ai %d %s %d = %t; issues %d %s %d = %t",
		cfg.Mode,
		in.AIScore, op, cfg.AIThreshold, compare(cfg.Mode, in.AIScore, cfg.AIThreshold),
		in.IssueCount, op, cfg.SonarThreshold, compare(cfg.Mode, in.IssueCount, cfg.SonarThreshold))

	if junitApplies(in) {
		threshold := *cfg.JUnitThreshold
		fmt.Fprintf(&b, "; junit %d %s %d = %t (java files present)",
			in.JUnitScore, op, threshold, compare(cfg.Mode, in.JUnitScore, threshold))
	}

	fmt.Fprintf(&b, " => decision=%t", Decide(in))
	return b.String()
}

func compare(mode models.ThresholdMode, value, threshold int) bool {
	if mode == models.ModeAtLeast {
		return value >= threshold
	}
	return value <= threshold
}
