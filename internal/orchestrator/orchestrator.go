// Package orchestrator composes the quality analyzer, the AI review
// engine, the decision function, and the hosting client into the
// end-to-end gate pipeline for a selected pull request.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mergegate/internal/aireview"
	"github.com/mergegate/internal/configstore"
	"github.com/mergegate/internal/decision"
	"github.com/mergegate/internal/history"
	"github.com/mergegate/internal/hosting"
	"github.com/mergegate/internal/quality"
	"github.com/mergegate/pkg/models"
)

// State is the per-PR pipeline state
type State string

const (
	StateIdle             State = "idle"
	StateFilesFetching    State = "files_fetching"
	StateAnalyzing        State = "analyzing"
	StateDecisionComputed State = "decision_computed"
	StateMerging          State = "merging"
	StateCommentPosting   State = "comment_posting"
)

// ErrStaleSelection marks a run abandoned because its PR was no longer
// the active selection when results arrived
var ErrStaleSelection = errors.New("pipeline results discarded: pull request is no longer the active selection")

// ErrRunInFlight rejects a second concurrent run for the same PR
var ErrRunInFlight = errors.New("a pipeline run is already in flight for this pull request")

// RepositoryClient is the hosting surface the pipeline needs
type RepositoryClient interface {
	GetPullRequest(ctx context.Context, prNumber int) (*models.PullRequestRef, error)
	FetchFiles(ctx context.Context, prNumber int) ([]models.ChangedFile, error)
	GetMergeability(ctx context.Context, prNumber int) (*models.Mergeability, error)
	UpsertComment(ctx context.Context, prNumber int, body string) error
	MergePR(ctx context.Context, prNumber int, strategy hosting.MergeStrategy) (*hosting.MergeResult, error)
}

// ReviewEngine is the AI surface the pipeline needs
type ReviewEngine interface {
	Review(ctx context.Context, pr *models.PullRequestRef, files []models.ChangedFile, command aireview.Command, ticket *models.TicketInfo) (*models.AIReviewResult, error)
}

// Options tweaks pipeline behavior
type Options struct {
	// DryRun computes and records the decision but never executes the merge
	DryRun bool
	// MergeStrategy overrides the default squash strategy
	MergeStrategy hosting.MergeStrategy
	// Thresholds feed the quality analyzer
	Thresholds quality.Thresholds
}

// RunResult is everything one pipeline run produced
type RunResult struct {
	RunID    string
	PR       *models.PullRequestRef
	Files    []models.ChangedFile
	Report   *models.QualityReport
	Review   *models.AIReviewResult
	Decision bool
	Record   models.DecisionRecord
}

// Orchestrator runs gate pipelines, one at a time per PR
type Orchestrator struct {
	repo    RepositoryClient
	engine  ReviewEngine
	configs configstore.Store
	history history.Store
	opts    Options

	mu       sync.Mutex
	activePR int
	states   map[int]State
	running  map[int]bool
}

// New wires an orchestrator from injected collaborators
func New(repo RepositoryClient, engine ReviewEngine, configs configstore.Store, hist history.Store, opts Options) *Orchestrator {
	if opts.Thresholds == (quality.Thresholds{}) {
		opts.Thresholds = quality.DefaultThresholds()
	}
	return &Orchestrator{
		repo:    repo,
		engine:  engine,
		configs: configs,
		history: hist,
		opts:    opts,
		states:  make(map[int]State),
		running: make(map[int]bool),
	}
}

// Select makes a PR the active selection. Results from runs for other
// PRs are discarded from this point on.
func (o *Orchestrator) Select(prNumber int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.activePR = prNumber
}

// ActivePR returns the current active selection
func (o *Orchestrator) ActivePR() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activePR
}

// PRState reports the pipeline state for a PR
func (o *Orchestrator) PRState(prNumber int) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.states[prNumber]; ok {
		return s
	}
	return StateIdle
}

func (o *Orchestrator) setState(prNumber int, s State) {
	o.mu.Lock()
	o.states[prNumber] = s
	o.mu.Unlock()
}

func (o *Orchestrator) isActive(prNumber int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activePR == prNumber
}

// Run executes the full gate pipeline for one PR. Exactly one
// DecisionRecord is appended per completed run, on every branch; a run
// abandoned by the stale-selection guard records nothing and applies no
// side effects.
func (o *Orchestrator) Run(ctx context.Context, prNumber int, ticket *models.TicketInfo) (*RunResult, error) {
	o.mu.Lock()
	if o.running[prNumber] {
		o.mu.Unlock()
		return nil, ErrRunInFlight
	}
	o.running[prNumber] = true
	o.activePR = prNumber
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.running, prNumber)
		o.mu.Unlock()
		o.setState(prNumber, StateIdle)
	}()

	result := &RunResult{RunID: uuid.NewString()}
	logger := log.With().Str("run_id", result.RunID).Int("pr", prNumber).Logger()

	cfg, err := configstore.LoadThresholds(ctx, o.configs)
	if err != nil {
		// Treat an unreadable threshold blob as not-configured, not fatal
		logger.Error().Err(err).Msg("Could not load thresholds, auto-merge disabled for this run")
		cfg = models.AutoMergeConfig{Mode: models.ModeAtMost, AllowFallbackScore: true}
	}

	o.setState(prNumber, StateFilesFetching)

	pr, err := o.repo.GetPullRequest(ctx, prNumber)
	if err != nil {
		rec := o.appendRecord(ctx, prNumber, 0, 0, cfg, models.DecisionWillNotMerge,
			fmt.Sprintf("pull request fetch failed: %v", err))
		result.Record = rec
		return result, err
	}
	result.PR = pr

	files, err := o.repo.FetchFiles(ctx, prNumber)
	if err != nil {
		rec := o.appendRecord(ctx, prNumber, 0, 0, cfg, models.DecisionWillNotMerge,
			fmt.Sprintf("file fetch failed: %v", err))
		result.Record = rec
		return result, err
	}
	result.Files = files

	// Quality analysis and AI review have no mutual ordering; run both
	// and join before computing the decision.
	o.setState(prNumber, StateAnalyzing)

	var (
		wg        sync.WaitGroup
		report    *models.QualityReport
		review    *models.AIReviewResult
		reviewErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		report = quality.Analyze(quality.SizeStats{
			Additions:    pr.Additions,
			Deletions:    pr.Deletions,
			ChangedFiles: pr.ChangedFiles,
		}, prNumber, o.opts.Thresholds)
	}()
	go func() {
		defer wg.Done()
		review, reviewErr = o.engine.Review(ctx, pr, files, aireview.CommandFull, ticket)
	}()
	wg.Wait()

	// Stale-response guard: the user may have moved on to another PR
	// while the network calls were in flight.
	if !o.isActive(prNumber) {
		logger.Debug().Int("active", o.ActivePR()).Msg("Discarding results for stale selection")
		return nil, ErrStaleSelection
	}

	if reviewErr != nil {
		// Provider transport failure: carry the run forward on the
		// fallback result rather than aborting the pipeline.
		logger.Error().Err(reviewErr).Msg("AI review failed, continuing with fallback scores")
		review = &models.AIReviewResult{
			Summary:      fmt.Sprintf("AI review unavailable: %v", reviewErr),
			OverallScore: aireview.DefaultScore,
			Categories: models.CategoryScores{
				Correctness:     aireview.DefaultScore,
				Security:        aireview.DefaultScore,
				Performance:     aireview.DefaultScore,
				Maintainability: aireview.DefaultScore,
				TestCoverage:    aireview.DefaultScore,
			},
			Fallback:  true,
			CreatedAt: time.Now().UTC(),
		}
	}
	result.Report = report
	result.Review = review

	o.setState(prNumber, StateDecisionComputed)

	filenames := make([]string, len(files))
	for i, f := range files {
		filenames[i] = f.Filename
	}

	in := decision.Input{
		AIScore:      review.OverallScore,
		IssueCount:   report.TotalIssues(),
		Config:       cfg,
		ChangedFiles: filenames,
		JUnitScore:   decision.JUnitHeuristic(filenames),
	}

	shouldMerge := decision.Decide(in)
	rationale := decision.Explain(in)

	if shouldMerge && review.Fallback && !cfg.AllowFallbackScore {
		shouldMerge = false
		rationale += "; overridden: fallback AI score is not allowed to drive auto-merge"
	}
	result.Decision = shouldMerge

	body := renderComment(pr, report, review, shouldMerge, rationale)

	switch {
	case !cfg.Enabled:
		o.setState(prNumber, StateCommentPosting)
		o.postComment(ctx, prNumber, body, &logger)
		result.Record = o.appendRecord(ctx, prNumber, review.OverallScore, report.TotalIssues(), cfg,
			models.DecisionDisabled, rationale)

	case shouldMerge && !o.opts.DryRun:
		o.setState(prNumber, StateMerging)
		result.Record = o.executeMerge(ctx, prNumber, review.OverallScore, report.TotalIssues(), cfg, rationale, &logger)

	case shouldMerge:
		o.setState(prNumber, StateCommentPosting)
		o.postComment(ctx, prNumber, body, &logger)
		result.Record = o.appendRecord(ctx, prNumber, review.OverallScore, report.TotalIssues(), cfg,
			models.DecisionWillMerge, rationale+" (dry run, merge not executed)")

	default:
		o.setState(prNumber, StateCommentPosting)
		o.postComment(ctx, prNumber, body, &logger)
		result.Record = o.appendRecord(ctx, prNumber, review.OverallScore, report.TotalIssues(), cfg,
			models.DecisionWillNotMerge, rationale)
	}

	return result, nil
}

// executeMerge runs the merge branch, guarding against a dirty PR first
func (o *Orchestrator) executeMerge(ctx context.Context, prNumber, aiScore, issues int, cfg models.AutoMergeConfig, rationale string, logger *zerolog.Logger) models.DecisionRecord {
	mergeability, err := o.repo.GetMergeability(ctx, prNumber)
	if err == nil && mergeability.State == models.MergeStateDirty {
		conflictErr := hosting.ClassifyMergeFailure(409, "pull request has merge conflicts")
		logger.Error().Str("state", string(mergeability.State)).Msg("Merge aborted: PR is dirty")
		return o.appendRecord(ctx, prNumber, aiScore, issues, cfg, models.DecisionMergeFailed,
			fmt.Sprintf("%s; merge aborted: %v", rationale, conflictErr))
	}

	mergeResult, err := o.repo.MergePR(ctx, prNumber, o.opts.MergeStrategy)
	if err != nil {
		logger.Error().Err(err).Msg("Merge failed")
		return o.appendRecord(ctx, prNumber, aiScore, issues, cfg, models.DecisionMergeFailed,
			fmt.Sprintf("%s; merge failed: %v", rationale, err))
	}

	logger.Info().Str("sha", mergeResult.SHA).Msg("Pull request merged")
	return o.appendRecord(ctx, prNumber, aiScore, issues, cfg, models.DecisionMerged, rationale)
}

// postComment upserts the gate comment; a posting failure is logged and
// surfaced through the decision details, never fatal
func (o *Orchestrator) postComment(ctx context.Context, prNumber int, body string, logger *zerolog.Logger) {
	if err := o.repo.UpsertComment(ctx, prNumber, body); err != nil {
		logger.Error().Err(err).Msg("Could not post gate comment")
	}
}

// appendRecord writes the single DecisionRecord for this run
func (o *Orchestrator) appendRecord(ctx context.Context, prNumber, aiScore, issues int, cfg models.AutoMergeConfig, d models.Decision, details string) models.DecisionRecord {
	rec := models.DecisionRecord{
		PRNumber:       prNumber,
		AIScore:        aiScore,
		SonarIssues:    issues,
		Mode:           cfg.Mode,
		AIThreshold:    cfg.AIThreshold,
		SonarThreshold: cfg.SonarThreshold,
		Decision:       d,
		Details:        details,
		CreatedAt:      time.Now().UTC(),
	}

	if err := o.history.Append(ctx, rec); err != nil {
		log.Error().Err(err).Int("pr", prNumber).Msg("Could not append decision record")
	}
	return rec
}
