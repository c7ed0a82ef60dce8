package orchestrator

import (
	"fmt"
	"strings"

	"github.com/mergegate/pkg/models"
)

// renderComment builds the markdown gate report posted (and re-posted)
// as the single managed PR comment
func renderComment(pr *models.PullRequestRef, report *models.QualityReport, review *models.AIReviewResult, willMerge bool, rationale string) string {
	var b strings.Builder

	b.WriteString("## Merge Gate Report\n\n")
	fmt.Fprintf(&b, "**PR #%d** %s\n\n", pr.Number, pr.Title)

	b.WriteString("### Quality Analysis\n\n")
	fmt.Fprintf(&b, "Gate status: **%s**\n\n", report.GateStatus)
	b.WriteString("| Metric | Value | Threshold | Status |\n")
	b.WriteString("|--------|-------|-----------|--------|\n")
	writeMetricRow(&b, report.Bugs)
	writeMetricRow(&b, report.Vulnerabilities)
	writeMetricRow(&b, report.CodeSmells)
	writeMetricRow(&b, report.Coverage)
	writeMetricRow(&b, report.Duplication)
	writeMetricRow(&b, report.SecurityHotspots)
	b.WriteString("\n")

	if len(report.Violations) > 0 {
		b.WriteString("**Violations:**\n\n")
		for _, v := range report.Violations {
			fmt.Fprintf(&b, "- %s\n", v)
		}
		b.WriteString("\n")
	}

	b.WriteString("### AI Review\n\n")
	if review.Fallback {
		b.WriteString("_The AI response could not be parsed; default scores are shown._\n\n")
	}
	fmt.Fprintf(&b, "**Overall score: %d/100** (%s", review.OverallScore, review.Provider)
	if review.Model != "" {
		fmt.Fprintf(&b, ", %s", review.Model)
	}
	b.WriteString(")\n\n")
	fmt.Fprintf(&b, "| Correctness | Security | Performance | Maintainability | Test Coverage |\n")
	fmt.Fprintf(&b, "|-------------|----------|-------------|-----------------|---------------|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d |\n\n",
		review.Categories.Correctness, review.Categories.Security,
		review.Categories.Performance, review.Categories.Maintainability,
		review.Categories.TestCoverage)

	if review.Summary != "" {
		fmt.Fprintf(&b, "%s\n\n", review.Summary)
	}

	if len(review.Suggestions) > 0 {
		b.WriteString("### Suggestions\n\n")
		for _, s := range review.Suggestions {
			fmt.Fprintf(&b, "- **[%s]** `%s`", strings.ToUpper(string(s.Severity)), s.File)
			if s.Line > 0 {
				fmt.Fprintf(&b, ":%d", s.Line)
			}
			fmt.Fprintf(&b, " %s", s.Message)
			if s.Remediation != "" {
				fmt.Fprintf(&b, " _(%s)_", s.Remediation)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("### Decision\n\n")
	if willMerge {
		b.WriteString("**Auto-merge: YES**\n\n")
	} else {
		b.WriteString("**Auto-merge: NO**\n\n")
	}
	fmt.Fprintf(&b, "%s\n", rationale)

	return b.String()
}

func writeMetricRow(b *strings.Builder, m models.MetricCheck) {
	status := "OK"
	if m.Exceeded {
		status = "FAIL"
	}
	fmt.Fprintf(b, "| %s | %s | %s | %s |\n", m.Metric, trimFloat(m.Value), trimFloat(m.Threshold), status)
}

// trimFloat prints whole numbers without a decimal tail
func trimFloat(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.1f", v)
}
