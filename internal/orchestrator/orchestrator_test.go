package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/mergegate/internal/aireview"
	"github.com/mergegate/internal/configstore"
	"github.com/mergegate/internal/history"
	"github.com/mergegate/internal/hosting"
	"github.com/mergegate/pkg/models"
)

type fakeRepo struct {
	mu           sync.Mutex
	pr           models.PullRequestRef
	files        []models.ChangedFile
	mergeability models.Mergeability
	mergeErr     error

	comments []string
	merges   int
}

func (f *fakeRepo) GetPullRequest(ctx context.Context, prNumber int) (*models.PullRequestRef, error) {
	pr := f.pr
	pr.Number = prNumber
	return &pr, nil
}

func (f *fakeRepo) FetchFiles(ctx context.Context, prNumber int) ([]models.ChangedFile, error) {
	return f.files, nil
}

func (f *fakeRepo) GetMergeability(ctx context.Context, prNumber int) (*models.Mergeability, error) {
	m := f.mergeability
	return &m, nil
}

func (f *fakeRepo) UpsertComment(ctx context.Context, prNumber int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, body)
	return nil
}

func (f *fakeRepo) MergePR(ctx context.Context, prNumber int, strategy hosting.MergeStrategy) (*hosting.MergeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mergeErr != nil {
		return &hosting.MergeResult{}, f.mergeErr
	}
	f.merges++
	return &hosting.MergeResult{Merged: true, SHA: "deadbeef"}, nil
}

type fakeEngine struct {
	result   models.AIReviewResult
	err      error
	onReview func()
}

func (f *fakeEngine) Review(ctx context.Context, pr *models.PullRequestRef, files []models.ChangedFile, command aireview.Command, ticket *models.TicketInfo) (*models.AIReviewResult, error) {
	if f.onReview != nil {
		f.onReview()
	}
	if f.err != nil {
		return nil, f.err
	}
	r := f.result
	return &r, nil
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		pr: models.PullRequestRef{
			Title:        "Add worker pool",
			Author:       "dev",
			Additions:    120,
			Deletions:    30,
			ChangedFiles: 4,
		},
		files: []models.ChangedFile{
			{Filename: "pool.go", Status: models.FileModified, Patch: "+func NewPool() {}"},
			{Filename: "pool_test.go", Status: models.FileAdded, Patch: "+func TestNewPool(t *testing.T) {}"},
		},
		mergeability: models.Mergeability{Mergeable: true, State: models.MergeStateClean},
	}
}

func goodReview(score int) models.AIReviewResult {
	return models.AIReviewResult{
		Summary:      "looks fine",
		OverallScore: score,
		Categories: models.CategoryScores{
			Correctness: score, Security: score, Performance: score,
			Maintainability: score, TestCoverage: score,
		},
		Provider: "ollama",
	}
}

func saveConfig(t *testing.T, store configstore.Store, cfg models.AutoMergeConfig) {
	t.Helper()
	if err := configstore.SaveThresholds(context.Background(), store, cfg); err != nil {
		t.Fatalf("SaveThresholds failed: %v", err)
	}
}

func setup(t *testing.T, repo *fakeRepo, engine *fakeEngine, cfg models.AutoMergeConfig, opts Options) (*Orchestrator, *history.MemoryStore) {
	t.Helper()
	configs := configstore.NewMemoryStore()
	saveConfig(t, configs, cfg)
	hist := history.NewMemoryStore()
	return New(repo, engine, configs, hist, opts), hist
}

func singleRecord(t *testing.T, hist *history.MemoryStore, pr int) models.DecisionRecord {
	t.Helper()
	records, err := hist.List(context.Background(), pr)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected exactly one decision record, got %d", len(records))
	}
	return records[0]
}

func TestRun_MergesWhenDecisionTrue(t *testing.T) {
	repo := newFakeRepo()
	engine := &fakeEngine{result: goodReview(90)}
	cfg := models.AutoMergeConfig{
		Enabled: true, Mode: models.ModeAtLeast,
		AIThreshold: 80, SonarThreshold: 0, AllowFallbackScore: true,
	}
	orch, hist := setup(t, repo, engine, cfg, Options{})

	result, err := orch.Run(context.Background(), 5, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !result.Decision {
		t.Error("Expected a positive decision")
	}
	if repo.merges != 1 {
		t.Errorf("Expected one merge, got %d", repo.merges)
	}

	rec := singleRecord(t, hist, 5)
	if rec.Decision != models.DecisionMerged {
		t.Errorf("Expected merged record, got %s", rec.Decision)
	}
	if rec.AIScore != 90 {
		t.Errorf("Expected recorded AI score 90, got %d", rec.AIScore)
	}
}

func TestRun_DirtyPRRecordsMergeFailed(t *testing.T) {
	repo := newFakeRepo()
	repo.mergeability = models.Mergeability{Mergeable: false, State: models.MergeStateDirty}
	engine := &fakeEngine{result: goodReview(95)}
	cfg := models.AutoMergeConfig{
		Enabled: true, Mode: models.ModeAtLeast,
		AIThreshold: 80, SonarThreshold: 0, AllowFallbackScore: true,
	}
	orch, hist := setup(t, repo, engine, cfg, Options{})

	if _, err := orch.Run(context.Background(), 8, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if repo.merges != 0 {
		t.Errorf("Expected no merge against a dirty PR, got %d", repo.merges)
	}
	rec := singleRecord(t, hist, 8)
	if rec.Decision != models.DecisionMergeFailed {
		t.Errorf("Expected merge_failed record, got %s", rec.Decision)
	}
	if !strings.Contains(rec.Details, "conflict") {
		t.Errorf("Expected conflict classification in details, got %q", rec.Details)
	}
}

func TestRun_MergeErrorRecordsMergeFailed(t *testing.T) {
	repo := newFakeRepo()
	repo.mergeErr = hosting.ClassifyMergeFailure(405, "Required status check failing")
	engine := &fakeEngine{result: goodReview(95)}
	cfg := models.AutoMergeConfig{
		Enabled: true, Mode: models.ModeAtLeast,
		AIThreshold: 80, SonarThreshold: 0, AllowFallbackScore: true,
	}
	orch, hist := setup(t, repo, engine, cfg, Options{})

	if _, err := orch.Run(context.Background(), 9, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rec := singleRecord(t, hist, 9)
	if rec.Decision != models.DecisionMergeFailed {
		t.Errorf("Expected merge_failed record, got %s", rec.Decision)
	}
}

func TestRun_NegativeDecisionPostsComment(t *testing.T) {
	repo := newFakeRepo()
	engine := &fakeEngine{result: goodReview(60)}
	cfg := models.AutoMergeConfig{
		Enabled: true, Mode: models.ModeAtLeast,
		AIThreshold: 80, SonarThreshold: 0, AllowFallbackScore: true,
	}
	orch, hist := setup(t, repo, engine, cfg, Options{})

	result, err := orch.Run(context.Background(), 3, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Decision {
		t.Error("Expected a negative decision for score 60 against threshold 80")
	}
	if repo.merges != 0 {
		t.Error("Expected no merge")
	}
	if len(repo.comments) != 1 {
		t.Fatalf("Expected one gate comment, got %d", len(repo.comments))
	}
	if !strings.Contains(repo.comments[0], "Merge Gate Report") {
		t.Error("Expected the rendered gate report in the comment")
	}

	rec := singleRecord(t, hist, 3)
	if rec.Decision != models.DecisionWillNotMerge {
		t.Errorf("Expected will_not_merge record, got %s", rec.Decision)
	}
}

func TestRun_DisabledConfigRecordsDisabled(t *testing.T) {
	repo := newFakeRepo()
	engine := &fakeEngine{result: goodReview(99)}
	cfg := models.AutoMergeConfig{Mode: models.ModeAtLeast, AllowFallbackScore: true}
	orch, hist := setup(t, repo, engine, cfg, Options{})

	if _, err := orch.Run(context.Background(), 2, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if repo.merges != 0 {
		t.Error("Expected no merge while disabled")
	}
	rec := singleRecord(t, hist, 2)
	if rec.Decision != models.DecisionDisabled {
		t.Errorf("Expected disabled record, got %s", rec.Decision)
	}
}

func TestRun_DryRunRecordsWillMerge(t *testing.T) {
	repo := newFakeRepo()
	engine := &fakeEngine{result: goodReview(92)}
	cfg := models.AutoMergeConfig{
		Enabled: true, Mode: models.ModeAtLeast,
		AIThreshold: 80, SonarThreshold: 0, AllowFallbackScore: true,
	}
	orch, hist := setup(t, repo, engine, cfg, Options{DryRun: true})

	if _, err := orch.Run(context.Background(), 6, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if repo.merges != 0 {
		t.Error("Expected no merge in dry-run mode")
	}
	rec := singleRecord(t, hist, 6)
	if rec.Decision != models.DecisionWillMerge {
		t.Errorf("Expected will_merge record, got %s", rec.Decision)
	}
}

func TestRun_FallbackScoreBlockedWhenDisallowed(t *testing.T) {
	repo := newFakeRepo()
	review := goodReview(90)
	review.Fallback = true
	engine := &fakeEngine{result: review}
	cfg := models.AutoMergeConfig{
		Enabled: true, Mode: models.ModeAtLeast,
		AIThreshold: 80, SonarThreshold: 0, AllowFallbackScore: false,
	}
	orch, hist := setup(t, repo, engine, cfg, Options{})

	result, err := orch.Run(context.Background(), 4, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Decision {
		t.Error("Expected fallback score blocked from driving auto-merge")
	}
	if repo.merges != 0 {
		t.Error("Expected no merge")
	}
	rec := singleRecord(t, hist, 4)
	if rec.Decision != models.DecisionWillNotMerge {
		t.Errorf("Expected will_not_merge record, got %s", rec.Decision)
	}
	if !strings.Contains(rec.Details, "fallback") {
		t.Errorf("Expected fallback override noted in details, got %q", rec.Details)
	}
}

func TestRun_ReviewErrorContinuesOnFallback(t *testing.T) {
	repo := newFakeRepo()
	engine := &fakeEngine{err: errors.New("connection refused")}
	cfg := models.AutoMergeConfig{
		Enabled: true, Mode: models.ModeAtLeast,
		AIThreshold: 80, SonarThreshold: 0, AllowFallbackScore: true,
	}
	orch, hist := setup(t, repo, engine, cfg, Options{})

	result, err := orch.Run(context.Background(), 7, nil)
	if err != nil {
		t.Fatalf("Expected the run to survive a provider failure, got: %v", err)
	}

	if !result.Review.Fallback {
		t.Error("Expected a fallback review result")
	}
	if result.Review.OverallScore != aireview.DefaultScore {
		t.Errorf("Expected default score, got %d", result.Review.OverallScore)
	}
	rec := singleRecord(t, hist, 7)
	if rec.AIScore != aireview.DefaultScore {
		t.Errorf("Expected recorded default score, got %d", rec.AIScore)
	}
}

func TestRun_StaleSelectionDiscardsResults(t *testing.T) {
	repo := newFakeRepo()
	engine := &fakeEngine{result: goodReview(95)}
	cfg := models.AutoMergeConfig{
		Enabled: true, Mode: models.ModeAtLeast,
		AIThreshold: 80, SonarThreshold: 0, AllowFallbackScore: true,
	}
	orch, hist := setup(t, repo, engine, cfg, Options{})

	// The user moves to another PR while the review is in flight
	engine.onReview = func() { orch.Select(99) }

	_, err := orch.Run(context.Background(), 5, nil)
	if !errors.Is(err, ErrStaleSelection) {
		t.Fatalf("Expected ErrStaleSelection, got %v", err)
	}

	if repo.merges != 0 || len(repo.comments) != 0 {
		t.Error("Expected no side effects from a discarded run")
	}
	records, _ := hist.List(context.Background(), 5)
	if len(records) != 0 {
		t.Errorf("Expected no record for an abandoned run, got %d", len(records))
	}
	if orch.PRState(5) != StateIdle {
		t.Errorf("Expected the PR back at idle, got %s", orch.PRState(5))
	}
}

func TestRun_ConcurrentRunForSamePRRejected(t *testing.T) {
	repo := newFakeRepo()

	started := make(chan struct{})
	release := make(chan struct{})
	engine := &fakeEngine{result: goodReview(90)}
	engine.onReview = func() {
		close(started)
		<-release
	}

	cfg := models.AutoMergeConfig{
		Enabled: false, Mode: models.ModeAtMost, AllowFallbackScore: true,
	}
	orch, _ := setup(t, repo, engine, cfg, Options{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		orch.Run(context.Background(), 1, nil)
	}()

	<-started
	if _, err := orch.Run(context.Background(), 1, nil); !errors.Is(err, ErrRunInFlight) {
		t.Errorf("Expected ErrRunInFlight, got %v", err)
	}
	close(release)
	<-done
}

func TestRun_IssueCountFeedsDecision(t *testing.T) {
	repo := newFakeRepo()
	engine := &fakeEngine{result: goodReview(95)}
	// at-most mode with a zero issue budget: the seeded report's issue
	// count decides, and it rarely lands at zero for a sizable PR
	cfg := models.AutoMergeConfig{
		Enabled: true, Mode: models.ModeAtMost,
		AIThreshold: 100, SonarThreshold: 0, AllowFallbackScore: true,
	}
	orch, hist := setup(t, repo, engine, cfg, Options{})

	result, err := orch.Run(context.Background(), 11, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rec := singleRecord(t, hist, 11)
	if rec.SonarIssues != result.Report.TotalIssues() {
		t.Errorf("Expected recorded issue count %d to match the report, got %d",
			result.Report.TotalIssues(), rec.SonarIssues)
	}
	want := result.Report.TotalIssues() <= 0
	if result.Decision != want {
		t.Errorf("Expected decision %t for %d issues against budget 0", want, result.Report.TotalIssues())
	}
}

func TestRenderComment_IncludesSections(t *testing.T) {
	pr := &models.PullRequestRef{Number: 3, Title: "Add cache"}
	report := &models.QualityReport{
		Bugs:       models.MetricCheck{Metric: "bugs", Value: 1, Threshold: 0, Exceeded: true},
		GateStatus: models.GateError,
		Violations: []string{"bugs: 1.0 violates threshold 0.0"},
	}
	review := goodReview(85)
	review.Suggestions = []models.Suggestion{
		{Severity: models.SuggestionMinor, File: "cache.go", Line: 12, Message: "name the constant"},
	}

	body := renderComment(pr, report, &review, false, "mode=at-least: ai 85 >= 90 = false")

	for _, want := range []string{
		"Merge Gate Report", "Quality Analysis", "AI Review",
		"Auto-merge: NO", "cache.go", "bugs: 1.0 violates threshold 0.0",
		"85/100",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %q in the rendered comment", want)
		}
	}
}
