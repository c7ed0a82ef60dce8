package aireview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mergegate/internal/llm"
	"github.com/mergegate/internal/retry"
	"github.com/mergegate/pkg/models"
)

// DefaultScore is assigned to every score field when the provider output
// cannot be parsed. Parse failures never surface as errors.
const DefaultScore = 70

// fallbackExcerptLen bounds the raw-text excerpt used as the fallback summary
const fallbackExcerptLen = 300

// Engine dispatches review prompts to the configured provider strategy
// and normalizes responses into structured results
type Engine struct {
	cfg        Config
	strategy   Strategy
	httpClient *http.Client
	retryCfg   retry.Config
}

// NewEngine creates an engine for the configured provider
func NewEngine(cfg Config) (*Engine, error) {
	strategy, err := Lookup(cfg.Provider)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:        cfg,
		strategy:   strategy,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		retryCfg:   retry.ProviderConfig(),
	}, nil
}

// generate runs one prompt through the provider transport with backoff
// and returns the normalized plain-text payload
func (e *Engine) generate(ctx context.Context, prompt string) (string, error) {
	var text string

	result := retry.Do(ctx, e.retryCfg, func() error {
		req, err := e.strategy.BuildRequest(ctx, e.cfg, prompt)
		if err != nil {
			return err
		}

		resp, err := e.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("%s returned %d: %s", e.strategy.Name(), resp.StatusCode, llm.Excerpt(string(body), 200))
		}

		text, err = e.strategy.ExtractText(body)
		return err
	})

	if !result.Success {
		return "", fmt.Errorf("provider %s failed after %d attempts: %w",
			e.strategy.Name(), result.Attempts, result.LastError)
	}

	log.Debug().
		Str("provider", e.strategy.Name()).
		Int("attempts", result.Attempts).
		Int("bytes", len(text)).
		Msg("Provider response normalized to text")

	return text, nil
}

// reviewPayload is the structured shape the directive templates request
type reviewPayload struct {
	Summary      string              `json:"summary"`
	Title        string              `json:"title"`
	Guide        string              `json:"guide"`
	Suggestions  []models.Suggestion `json:"suggestions"`
	OverallScore int                 `json:"overall_score"`
	Categories   struct {
		Correctness     int `json:"correctness"`
		Security        int `json:"security"`
		Performance     int `json:"performance"`
		Maintainability int `json:"maintainability"`
		TestCoverage    int `json:"test_coverage"`
	} `json:"categories"`
}

// Review dispatches a review of the PR to the configured provider.
// Transport failures return an error; malformed provider output does not.
func (e *Engine) Review(ctx context.Context, pr *models.PullRequestRef, files []models.ChangedFile, command Command, ticket *models.TicketInfo) (*models.AIReviewResult, error) {
	prompt := BuildReviewPrompt(pr, files, command, ticket)

	raw, err := e.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return e.parseReview(raw), nil
}

// parseReview normalizes raw provider text into an AIReviewResult. On any
// parse failure it returns the default-score result instead of an error.
func (e *Engine) parseReview(raw string) *models.AIReviewResult {
	result := &models.AIReviewResult{
		Provider:  e.strategy.Name(),
		Model:     e.cfg.Model,
		CreatedAt: time.Now().UTC(),
	}

	var payload reviewPayload
	if _, err := llm.Decode(raw, &payload); err != nil {
		log.Debug().Err(err).Msg("Review parse failed, falling back to default scores")
		result.Summary = llm.Excerpt(raw, fallbackExcerptLen)
		result.OverallScore = DefaultScore
		result.Categories = models.CategoryScores{
			Correctness:     DefaultScore,
			Security:        DefaultScore,
			Performance:     DefaultScore,
			Maintainability: DefaultScore,
			TestCoverage:    DefaultScore,
		}
		result.Fallback = true
		return result
	}

	result.Summary = payload.Summary
	result.Title = payload.Title
	result.Guide = payload.Guide
	result.Suggestions = payload.Suggestions
	result.OverallScore = clampScore(payload.OverallScore)
	result.Categories = models.CategoryScores{
		Correctness:     clampScore(payload.Categories.Correctness),
		Security:        clampScore(payload.Categories.Security),
		Performance:     clampScore(payload.Categories.Performance),
		Maintainability: clampScore(payload.Categories.Maintainability),
		TestCoverage:    clampScore(payload.Categories.TestCoverage),
	}
	return result
}

// validationPayload is the structured shape of the validation directive
type validationPayload struct {
	Mappings       []models.RequirementMapping `json:"mappings"`
	AlignmentScore int                         `json:"alignment_score"`
	Summary        string                      `json:"summary"`
}

// ValidateBusinessLogic maps ticket requirements to code changes. Same
// call and failure-tolerant parse contract as Review.
func (e *Engine) ValidateBusinessLogic(ctx context.Context, pr *models.PullRequestRef, files []models.ChangedFile, ticket *models.TicketInfo) (*models.BusinessLogicValidation, error) {
	prompt := BuildValidationPrompt(pr, files, ticket)

	raw, err := e.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	validation := &models.BusinessLogicValidation{
		Provider:  e.strategy.Name(),
		CreatedAt: time.Now().UTC(),
	}

	var payload validationPayload
	if _, err := llm.Decode(raw, &payload); err != nil {
		log.Debug().Err(err).Msg("Validation parse failed, falling back to default score")
		validation.AlignmentScore = DefaultScore
		validation.Summary = llm.Excerpt(raw, fallbackExcerptLen)
		return validation, nil
	}

	validation.Mappings = payload.Mappings
	validation.AlignmentScore = clampScore(payload.AlignmentScore)
	validation.Summary = payload.Summary
	return validation, nil
}

// AnalyzeConflict classifies one conflicted file and recommends a
// resolution strategy. Unparseable output degrades to a manual
// recommendation rather than an error.
func (e *Engine) AnalyzeConflict(ctx context.Context, file models.ConflictFile) (*models.ConflictAnalysis, error) {
	prompt := BuildConflictPrompt(file)

	raw, err := e.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var analysis models.ConflictAnalysis
	if _, err := llm.Decode(raw, &analysis); err != nil {
		log.Debug().Err(err).Str("file", file.Filename).Msg("Conflict analysis parse failed, recommending manual resolution")
		return &models.ConflictAnalysis{
			Classification: models.ConflictMixed,
			Strategy:       models.StrategyManual,
			Rationale:      llm.Excerpt(raw, fallbackExcerptLen),
		}, nil
	}

	return &analysis, nil
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
