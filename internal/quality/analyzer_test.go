package quality

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mergegate/pkg/models"
)

func TestAnalyze_Deterministic(t *testing.T) {
	stats := SizeStats{Additions: 250, Deletions: 40, ChangedFiles: 7}
	thresholds := DefaultThresholds()

	first := Analyze(stats, 42, thresholds)
	second := Analyze(stats, 42, thresholds)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Expected identical reports for identical inputs:\n%s", diff)
	}
}

func TestAnalyze_DifferentInputsDiverge(t *testing.T) {
	stats := SizeStats{Additions: 250, Deletions: 40, ChangedFiles: 7}
	thresholds := DefaultThresholds()

	a := Analyze(stats, 42, thresholds)
	b := Analyze(stats, 43, thresholds)

	if cmp.Diff(a, b) == "" {
		t.Error("Expected different PR numbers to produce different reports")
	}
}

func TestAnalyze_MetricRanges(t *testing.T) {
	thresholds := DefaultThresholds()

	for pr := 1; pr <= 50; pr++ {
		stats := SizeStats{Additions: pr * 13, Deletions: pr * 3, ChangedFiles: pr % 9}
		r := Analyze(stats, pr, thresholds)

		if r.Bugs.Value < 0 || r.Bugs.Value >= 5 {
			t.Errorf("pr=%d: bugs %.0f out of [0,5)", pr, r.Bugs.Value)
		}
		if r.Vulnerabilities.Value < 0 || r.Vulnerabilities.Value >= 3 {
			t.Errorf("pr=%d: vulnerabilities %.0f out of [0,3)", pr, r.Vulnerabilities.Value)
		}
		if r.CodeSmells.Value < 0 || r.CodeSmells.Value >= 20 {
			t.Errorf("pr=%d: code smells %.0f out of [0,20)", pr, r.CodeSmells.Value)
		}
		if r.Coverage.Value < 70 || r.Coverage.Value > 95 {
			t.Errorf("pr=%d: coverage %.2f out of [70,95]", pr, r.Coverage.Value)
		}
		if r.Duplication.Value < 0 || r.Duplication.Value >= 5 {
			t.Errorf("pr=%d: duplication %.2f out of [0,5)", pr, r.Duplication.Value)
		}
		if len(r.Issues) > 20 {
			t.Errorf("pr=%d: %d issues exceeds the cap of 20", pr, len(r.Issues))
		}
	}
}

func TestAnalyze_GateStatusFollowsViolations(t *testing.T) {
	thresholds := DefaultThresholds()

	for pr := 1; pr <= 50; pr++ {
		stats := SizeStats{Additions: pr * 29, Deletions: pr * 7, ChangedFiles: pr % 12}
		r := Analyze(stats, pr, thresholds)

		if r.GateStatus == models.GateError && len(r.Violations) == 0 {
			t.Errorf("pr=%d: ERROR gate with no violations", pr)
		}
		if r.GateStatus == models.GateOK && len(r.Violations) > 0 {
			t.Errorf("pr=%d: OK gate with violations %v", pr, r.Violations)
		}
	}
}

func TestAnalyze_PermissiveThresholdsPass(t *testing.T) {
	loose := Thresholds{
		MaxBugs:             100,
		MaxVulnerabilities:  100,
		MaxCodeSmells:       100,
		MinCoverage:         0,
		MaxDuplication:      100,
		MaxSecurityHotspots: 100,
	}

	r := Analyze(SizeStats{Additions: 500, Deletions: 120, ChangedFiles: 14}, 9, loose)
	if r.GateStatus != models.GateOK {
		t.Errorf("Expected OK gate with permissive thresholds, got %s (%v)", r.GateStatus, r.Violations)
	}
}

func TestAnalyze_IssueTypeBanding(t *testing.T) {
	r := Analyze(SizeStats{Additions: 321, Deletions: 55, ChangedFiles: 6}, 77, DefaultThresholds())

	bugs := int(r.Bugs.Value)
	vulns := int(r.Vulnerabilities.Value)

	for i, issue := range r.Issues {
		var want models.IssueType
		switch {
		case i < bugs:
			want = models.IssueBug
		case i < bugs+vulns:
			want = models.IssueVulnerability
		default:
			want = models.IssueCodeSmell
		}
		if issue.Type != want {
			t.Errorf("issue %d: type %s, want %s", i, issue.Type, want)
		}
	}
}

func TestTotalIssues(t *testing.T) {
	r := Analyze(SizeStats{Additions: 100, Deletions: 20, ChangedFiles: 3}, 5, DefaultThresholds())

	want := int(r.Bugs.Value) + int(r.Vulnerabilities.Value) + int(r.CodeSmells.Value)
	if got := r.TotalIssues(); got != want {
		t.Errorf("TotalIssues() = %d, want %d", got, want)
	}
}

func TestSeed_OrderSensitive(t *testing.T) {
	a := Seed(SizeStats{Additions: 10, Deletions: 20, ChangedFiles: 3}, 1)
	b := Seed(SizeStats{Additions: 20, Deletions: 10, ChangedFiles: 3}, 1)
	if a == b {
		t.Error("Expected swapping additions and deletions to change the seed")
	}
}
