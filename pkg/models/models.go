package models

import (
	"time"
)

// Pull request models

// PRState represents the lifecycle state of a pull request
type PRState string

const (
	PRStateOpen   PRState = "open"
	PRStateClosed PRState = "closed"
	PRStateMerged PRState = "merged"
)

// PullRequestRef is an immutable snapshot of a pull request taken at
// list/fetch time. Size stats come from the hosting API detail endpoint.
type PullRequestRef struct {
	Number       int       `json:"number"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	State        PRState   `json:"state"`
	HeadBranch   string    `json:"head_branch"`
	BaseBranch   string    `json:"base_branch"`
	Additions    int       `json:"additions"`
	Deletions    int       `json:"deletions"`
	ChangedFiles int       `json:"changed_files"`
	Labels       []string  `json:"labels,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FileStatus represents a changed file's status in the diff
type FileStatus string

const (
	FileAdded    FileStatus = "added"
	FileModified FileStatus = "modified"
	FileRemoved  FileStatus = "removed"
)

// ChangedFile is one file of a pull request diff, fetched per analysis run
type ChangedFile struct {
	Filename string     `json:"filename"`
	Status   FileStatus `json:"status"`
	Patch    string     `json:"patch"`
}

// MergeableState is the hosting-service-reported readiness to merge
type MergeableState string

const (
	MergeStateClean    MergeableState = "clean"
	MergeStateDirty    MergeableState = "dirty"
	MergeStateUnstable MergeableState = "unstable"
	MergeStateBlocked  MergeableState = "blocked"
	MergeStateUnknown  MergeableState = "unknown"
)

// Mergeability describes whether and why a PR can merge right now.
// The hosting service may not have computed mergeability yet; that maps
// to MergeStateUnknown and callers may poll.
type Mergeability struct {
	Mergeable bool           `json:"mergeable"`
	State     MergeableState `json:"state"`
	BlockedBy []string       `json:"blocked_by,omitempty"`
	BehindBy  int            `json:"behind_by"`
	AheadBy   int            `json:"ahead_by"`
}

// Quality report models

// GateStatus is the aggregate pass/fail judgment of a quality report
type GateStatus string

const (
	GateOK    GateStatus = "OK"
	GateError GateStatus = "ERROR"
)

// MetricCheck is one metric value evaluated against its threshold
type MetricCheck struct {
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Exceeded  bool    `json:"exceeded"`
}

// IssueSeverity buckets synthesized quality issues
type IssueSeverity string

const (
	SeverityBlocker  IssueSeverity = "BLOCKER"
	SeverityCritical IssueSeverity = "CRITICAL"
	SeverityMajor    IssueSeverity = "MAJOR"
	SeverityMinor    IssueSeverity = "MINOR"
)

// IssueType classifies a synthesized quality issue
type IssueType string

const (
	IssueBug           IssueType = "BUG"
	IssueVulnerability IssueType = "VULNERABILITY"
	IssueCodeSmell     IssueType = "CODE_SMELL"
)

// QualityIssue is one synthesized finding in a quality report
type QualityIssue struct {
	Severity IssueSeverity `json:"severity"`
	Type     IssueType     `json:"type"`
	Rule     string        `json:"rule"`
	File     string        `json:"file"`
	Line     int           `json:"line"`
	Message  string        `json:"message"`
}

// QualityReport is a deterministic simulated static-analysis report.
// Header metric values are a pure function of PR size stats and number.
type QualityReport struct {
	Bugs             MetricCheck           `json:"bugs"`
	Vulnerabilities  MetricCheck           `json:"vulnerabilities"`
	CodeSmells       MetricCheck           `json:"code_smells"`
	Coverage         MetricCheck           `json:"coverage"`
	Duplication      MetricCheck           `json:"duplication"`
	SecurityHotspots MetricCheck           `json:"security_hotspots"`
	SeverityCounts   map[IssueSeverity]int `json:"severity_counts"`
	GateStatus       GateStatus            `json:"gate_status"`
	Issues           []QualityIssue        `json:"issues"`
	Violations       []string              `json:"violations"`
}

// TotalIssues returns the combined bug/vulnerability/code-smell count,
// the number the auto-merge decision compares against sonarThreshold.
func (r *QualityReport) TotalIssues() int {
	return int(r.Bugs.Value) + int(r.Vulnerabilities.Value) + int(r.CodeSmells.Value)
}

// AI review models

// SuggestionSeverity grades an AI review suggestion
type SuggestionSeverity string

const (
	SuggestionCritical SuggestionSeverity = "critical"
	SuggestionMajor    SuggestionSeverity = "major"
	SuggestionMinor    SuggestionSeverity = "minor"
	SuggestionInfo     SuggestionSeverity = "info"
)

// Suggestion is a single AI review finding
type Suggestion struct {
	Severity    SuggestionSeverity `json:"severity"`
	Type        string             `json:"type"`
	File        string             `json:"file"`
	Line        int                `json:"line,omitempty"`
	Message     string             `json:"message"`
	Remediation string             `json:"remediation,omitempty"`
	Status      string             `json:"status,omitempty"`
}

// CategoryScores are the five 0-100 category scores of an AI review
type CategoryScores struct {
	Correctness     int `json:"correctness"`
	Security        int `json:"security"`
	Performance     int `json:"performance"`
	Maintainability int `json:"maintainability"`
	TestCoverage    int `json:"test_coverage"`
}

// AIReviewResult is the normalized output of an AI review invocation.
// Never persisted beyond the active session.
type AIReviewResult struct {
	Summary      string         `json:"summary"`
	Title        string         `json:"title,omitempty"`
	Guide        string         `json:"guide,omitempty"`
	Suggestions  []Suggestion   `json:"suggestions,omitempty"`
	OverallScore int            `json:"overall_score"`
	Categories   CategoryScores `json:"categories"`
	Provider     string         `json:"provider"`
	Model        string         `json:"model"`
	CreatedAt    time.Time      `json:"created_at"`
	Fallback     bool           `json:"fallback,omitempty"` // true when parse failure forced default scores
}

// RequirementStatus maps a ticket requirement to its implementation state
type RequirementStatus string

const (
	RequirementImplemented RequirementStatus = "implemented"
	RequirementMissing     RequirementStatus = "missing"
	RequirementPartial     RequirementStatus = "partially_implemented"
	RequirementOutOfScope  RequirementStatus = "out_of_scope"
)

// RequirementMapping ties one ticket requirement to code evidence
type RequirementMapping struct {
	Requirement string            `json:"requirement"`
	Status      RequirementStatus `json:"status"`
	Evidence    string            `json:"evidence,omitempty"`
	Files       []string          `json:"files,omitempty"`
}

// BusinessLogicValidation is the result of validating PR changes against
// ticket requirements
type BusinessLogicValidation struct {
	Mappings       []RequirementMapping `json:"mappings"`
	AlignmentScore int                  `json:"alignment_score"`
	Summary        string               `json:"summary,omitempty"`
	Provider       string               `json:"provider"`
	CreatedAt      time.Time            `json:"created_at"`
}

// Auto-merge configuration and decision models

// ThresholdMode selects the comparison direction for auto-merge thresholds
type ThresholdMode string

const (
	ModeAtMost  ThresholdMode = "at-most"
	ModeAtLeast ThresholdMode = "at-least"
)

// AutoMergeConfig is the singleton threshold configuration
type AutoMergeConfig struct {
	Enabled             bool          `json:"enabled"`
	Mode                ThresholdMode `json:"mode"`
	AIThreshold         int           `json:"ai_threshold"`    // 0-100
	SonarThreshold      int           `json:"sonar_threshold"` // issue count, >= 0
	JUnitThreshold      *int          `json:"junit_threshold,omitempty"`
	RequireJUnitForJava bool          `json:"require_junit_for_java"`
	// AllowFallbackScore controls whether a default score produced by an
	// AI parse failure may drive the auto-merge decision. When false, a
	// fallback review forces the decision to false.
	AllowFallbackScore bool `json:"allow_fallback_score"`
}

// Decision is the recorded outcome of one pipeline run
type Decision string

const (
	DecisionWillMerge    Decision = "will_merge"
	DecisionWillNotMerge Decision = "will_not_merge"
	DecisionMerged       Decision = "merged"
	DecisionMergeFailed  Decision = "merge_failed"
	DecisionDisabled     Decision = "disabled"
)

// DecisionRecord is one immutable row of the per-PR decision history
type DecisionRecord struct {
	PRNumber       int           `json:"pr_number" db:"pr_number"`
	AIScore        int           `json:"ai_score" db:"ai_score"`
	SonarIssues    int           `json:"sonar_issues" db:"sonar_issues"`
	Mode           ThresholdMode `json:"mode" db:"mode"`
	AIThreshold    int           `json:"ai_threshold" db:"ai_threshold"`
	SonarThreshold int           `json:"sonar_threshold" db:"sonar_threshold"`
	Decision       Decision      `json:"decision" db:"decision"`
	Details        string        `json:"details" db:"details"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}

// Conflict resolution models

// ConflictFile is a changed file of a PR in mergeable_state=dirty
type ConflictFile struct {
	Filename         string `json:"filename"`
	HasBusinessLogic bool   `json:"has_business_logic"`
	Patch            string `json:"patch"`
}

// ResolutionStrategy selects how a conflicted file gets resolved
type ResolutionStrategy string

const (
	StrategyOurs       ResolutionStrategy = "ours"
	StrategyTheirs     ResolutionStrategy = "theirs"
	StrategyManual     ResolutionStrategy = "manual"
	StrategyAIAssisted ResolutionStrategy = "ai_assisted"
)

// ResolutionStatus tracks the per-file resolution state machine.
// resolved is terminal; there is no reverse transition.
type ResolutionStatus string

const (
	ResolutionPending  ResolutionStatus = "pending"
	ResolutionResolved ResolutionStatus = "resolved"
	ResolutionFailed   ResolutionStatus = "failed"
)

// ConflictResolution records how one conflicted file was resolved
type ConflictResolution struct {
	Filename    string             `json:"filename"`
	Strategy    ResolutionStrategy `json:"strategy"`
	Content     string             `json:"content,omitempty"`
	AIRationale string             `json:"ai_rationale,omitempty"`
	Status      ResolutionStatus   `json:"status"`
	ResolvedAt  time.Time          `json:"resolved_at"`
}

// ConflictClass is the AI's classification of what a conflict touches
type ConflictClass string

const (
	ConflictImports    ConflictClass = "imports"
	ConflictFormatting ConflictClass = "formatting"
	ConflictLogic      ConflictClass = "logic"
	ConflictStructure  ConflictClass = "structure"
	ConflictMixed      ConflictClass = "mixed"
)

// ConflictAnalysis is the AI's assessment of one conflicted file
type ConflictAnalysis struct {
	Classification  ConflictClass      `json:"classification"`
	Strategy        ResolutionStrategy `json:"recommended_strategy"`
	Rationale       string             `json:"rationale"`
	ResolvedContent string             `json:"resolved_content,omitempty"`
	Confidence      float64            `json:"confidence"`
}

// Ticket collaborator models

// TicketInfo is the read-only ticket lookup result, consumed purely as
// extra prompt text
type TicketInfo struct {
	Key                string   `json:"key"`
	Summary            string   `json:"summary"`
	Description        string   `json:"description"`
	AcceptanceCriteria string   `json:"acceptance_criteria,omitempty"`
	Attachments        []string `json:"attachments,omitempty"`
	Status             string   `json:"status"`
	Priority           string   `json:"priority"`
}
