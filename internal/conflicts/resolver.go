// Package conflicts implements the merge-conflict workflow: detect a
// dirty PR, flag which conflicted files carry business logic, run AI
// classification, and track per-file resolutions. Resolution is one-way:
// once a file is resolved it stays resolved.
package conflicts

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mergegate/pkg/models"
)

// MergeabilityChecker is the slice of the hosting client the resolver needs
type MergeabilityChecker interface {
	GetMergeability(ctx context.Context, prNumber int) (*models.Mergeability, error)
	FetchFiles(ctx context.Context, prNumber int) ([]models.ChangedFile, error)
}

// ConflictAnalyzer is the slice of the AI engine the resolver needs
type ConflictAnalyzer interface {
	AnalyzeConflict(ctx context.Context, file models.ConflictFile) (*models.ConflictAnalysis, error)
}

// Resolver manages conflict detection and per-file resolution state
type Resolver struct {
	checker  MergeabilityChecker
	analyzer ConflictAnalyzer

	mu          sync.Mutex
	resolutions map[string]models.ConflictResolution // filename -> terminal state
}

// NewResolver wires a resolver over the hosting client and AI engine
func NewResolver(checker MergeabilityChecker, analyzer ConflictAnalyzer) *Resolver {
	return &Resolver{
		checker:     checker,
		analyzer:    analyzer,
		resolutions: make(map[string]models.ConflictResolution),
	}
}

var sourceExtensions = map[string]bool{
	".go": true, ".java": true, ".kt": true, ".scala": true,
	".py": true, ".rb": true, ".js": true, ".jsx": true,
	".ts": true, ".tsx": true, ".c": true, ".h": true,
	".cc": true, ".cpp": true, ".hpp": true, ".cs": true,
	".rs": true, ".swift": true, ".php": true, ".groovy": true,
}

// declarationRe matches function/class/interface/type declarations across
// the recognized source languages
var declarationRe = regexp.MustCompile(`(?m)^\s*[+-]?\s*(func\s+\w|class\s+\w|interface\s+\w|type\s+\w+\s+(struct|interface)|def\s+\w|(public|private|protected)\s+[\w<>\[\]]+\s+\w+\s*\(|fn\s+\w)`)

// HasBusinessLogic flags a file whose extension is in the recognized
// source set and whose diff text contains a declaration
func HasBusinessLogic(filename, patch string) bool {
	if !sourceExtensions[strings.ToLower(filepath.Ext(filename))] {
		return false
	}
	return declarationRe.MatchString(patch)
}

// CheckConflicts inspects a PR's mergeability and, when dirty, returns
// its changed files flagged for business logic. A clean or still-unknown
// mergeability returns no conflict files.
func (r *Resolver) CheckConflicts(ctx context.Context, prNumber int) ([]models.ConflictFile, *models.Mergeability, error) {
	mergeability, err := r.checker.GetMergeability(ctx, prNumber)
	if err != nil {
		return nil, nil, fmt.Errorf("check mergeability: %w", err)
	}

	if mergeability.State != models.MergeStateDirty {
		log.Debug().
			Int("pr", prNumber).
			Str("state", string(mergeability.State)).
			Msg("No conflicts to resolve")
		return nil, mergeability, nil
	}

	files, err := r.checker.FetchFiles(ctx, prNumber)
	if err != nil {
		return nil, mergeability, fmt.Errorf("fetch conflicted files: %w", err)
	}

	conflicts := make([]models.ConflictFile, 0, len(files))
	for _, f := range files {
		conflicts = append(conflicts, models.ConflictFile{
			Filename:         f.Filename,
			HasBusinessLogic: HasBusinessLogic(f.Filename, f.Patch),
			Patch:            f.Patch,
		})
	}

	log.Debug().Int("pr", prNumber).Int("files", len(conflicts)).Msg("Classified conflicted files")
	return conflicts, mergeability, nil
}

// AnalyzeWithAI asks the AI engine to classify one conflicted file. For
// files carrying business logic any auto-resolution recommendation is
// downgraded to manual and resolved content is discarded.
func (r *Resolver) AnalyzeWithAI(ctx context.Context, file models.ConflictFile) (*models.ConflictAnalysis, error) {
	analysis, err := r.analyzer.AnalyzeConflict(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("analyze conflict in %s: %w", file.Filename, err)
	}

	if file.HasBusinessLogic && analysis.Strategy == models.StrategyAIAssisted {
		log.Debug().
			Str("file", file.Filename).
			Msg("Downgrading ai_assisted recommendation for business-logic file")
		analysis.Strategy = models.StrategyManual
		analysis.ResolvedContent = ""
	}

	return analysis, nil
}

// Resolve records the terminal resolution for one conflicted file. A file
// flagged hasBusinessLogic must never resolve via ai_assisted; callers
// must force manual, ours, or theirs.
func (r *Resolver) Resolve(ctx context.Context, file models.ConflictFile, strategy models.ResolutionStrategy, content string) (*models.ConflictResolution, error) {
	if file.HasBusinessLogic && strategy == models.StrategyAIAssisted {
		return nil, fmt.Errorf("file %s contains business logic and cannot be resolved via ai_assisted; use manual, ours, or theirs", file.Filename)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.resolutions[file.Filename]; ok && existing.Status == models.ResolutionResolved {
		return nil, fmt.Errorf("file %s is already resolved via %s", file.Filename, existing.Strategy)
	}

	resolution := models.ConflictResolution{
		Filename:   file.Filename,
		Strategy:   strategy,
		Content:    content,
		Status:     models.ResolutionResolved,
		ResolvedAt: time.Now().UTC(),
	}
	r.resolutions[file.Filename] = resolution

	log.Debug().
		Str("file", file.Filename).
		Str("strategy", string(strategy)).
		Msg("Recorded conflict resolution")

	return &resolution, nil
}

// Resolution returns the recorded resolution for a file, if any
func (r *Resolver) Resolution(filename string) (models.ConflictResolution, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.resolutions[filename]
	return res, ok
}
