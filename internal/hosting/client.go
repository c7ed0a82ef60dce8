// Package hosting wraps the code-hosting REST API: pull request listing,
// per-file diffs, mergeability, idempotent gate comments, and merge
// execution. Calls go over plain HTTP against a configurable base URL.
package hosting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/mergegate/pkg/models"
)

// CommentMarker tags the single gate comment mergegate maintains per PR.
// Invisible in rendered markdown.
const CommentMarker = "<!-- mergegate:gate-report -->"

// MergeStrategy selects the merge method for MergePR
type MergeStrategy string

const (
	MergeSquash MergeStrategy = "squash"
	MergeMerge  MergeStrategy = "merge"
	MergeRebase MergeStrategy = "rebase"
)

// MergeResult is the classified outcome of a merge attempt
type MergeResult struct {
	Merged  bool
	Message string
	SHA     string
}

// Client talks to one repository on the hosting service
type Client struct {
	baseURL    string
	owner      string
	repo       string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter

	// ordered credential-header schemes, tried in sequence on 401/403
	authSchemes []string

	mu          sync.Mutex
	commentIDs  map[string]int64       // owner/repo/number -> stored comment id
	upsertLocks map[string]*sync.Mutex // serializes the full upsert per PR
	viewer      string                 // cached acting identity login
}

// NewClient creates a client for one owner/repo pair
func NewClient(baseURL, owner, repo, token string) *Client {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &Client{
		baseURL:     baseURL,
		owner:       owner,
		repo:        repo,
		token:       token,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(5), 10),
		authSchemes: []string{"token", "Bearer"},
		commentIDs:  make(map[string]int64),
		upsertLocks: make(map[string]*sync.Mutex),
	}
}

// do executes one API call, walking the credential-header scheme list on
// permission errors. The response body is decoded into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, payload interface{}, out interface{}) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	var lastStatus int
	var lastBody string

	for i, scheme := range c.authSchemes {
		var body io.Reader
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				return 0, fmt.Errorf("encode request body: %w", err)
			}
			body = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return 0, err
		}
		req.Header.Set("Authorization", scheme+" "+c.token)
		req.Header.Set("Accept", "application/vnd.github.v3+json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return 0, err
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return resp.StatusCode, readErr
		}

		lastStatus = resp.StatusCode
		lastBody = apiMessage(data)

		if resp.StatusCode == 401 || resp.StatusCode == 403 {
			if i < len(c.authSchemes)-1 {
				log.Debug().
					Str("scheme", scheme).
					Int("status", resp.StatusCode).
					Str("path", path).
					Msg("Credential scheme rejected, trying next scheme")
				continue
			}
			return lastStatus, classifyStatus(lastStatus, lastBody)
		}

		if resp.StatusCode >= 400 {
			return lastStatus, classifyStatus(lastStatus, lastBody)
		}

		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return lastStatus, fmt.Errorf("decode response: %w", err)
			}
		}
		return lastStatus, nil
	}

	return lastStatus, classifyStatus(lastStatus, lastBody)
}

// apiMessage pulls the message field out of an API error body
func apiMessage(data []byte) string {
	var envelope struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &envelope) == nil && envelope.Message != "" {
		return envelope.Message
	}
	if len(data) > 200 {
		data = data[:200]
	}
	return string(data)
}

// prPayload is the wire shape shared by the list and detail endpoints
type prPayload struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
	Merged bool   `json:"merged"`
	User   struct {
		Login string `json:"login"`
	} `json:"user"`
	Head struct {
		Ref string `json:"ref"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Additions      int       `json:"additions"`
	Deletions      int       `json:"deletions"`
	ChangedFiles   int       `json:"changed_files"`
	Mergeable      *bool     `json:"mergeable"`
	MergeableState string    `json:"mergeable_state"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (p *prPayload) toRef() models.PullRequestRef {
	state := models.PRState(p.State)
	if p.Merged {
		state = models.PRStateMerged
	}

	ref := models.PullRequestRef{
		Number:       p.Number,
		Title:        p.Title,
		Author:       p.User.Login,
		State:        state,
		HeadBranch:   p.Head.Ref,
		BaseBranch:   p.Base.Ref,
		Additions:    p.Additions,
		Deletions:    p.Deletions,
		ChangedFiles: p.ChangedFiles,
		UpdatedAt:    p.UpdatedAt,
	}
	for _, l := range p.Labels {
		ref.Labels = append(ref.Labels, l.Name)
	}
	return ref
}

// ListPullRequests returns open pull requests, newest updates first
func (c *Client) ListPullRequests(ctx context.Context) ([]models.PullRequestRef, error) {
	var refs []models.PullRequestRef

	for page := 1; page <= 3; page++ {
		path := fmt.Sprintf("/repos/%s/%s/pulls?state=open&sort=updated&direction=desc&per_page=50&page=%d",
			c.owner, c.repo, page)

		var payload []prPayload
		if _, err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
			return nil, err
		}

		for i := range payload {
			refs = append(refs, payload[i].toRef())
		}
		if len(payload) < 50 {
			break
		}
	}

	log.Debug().Int("count", len(refs)).Msg("Listed open pull requests")
	return refs, nil
}

// GetPullRequest fetches one PR's detail snapshot, including size stats
func (c *Client) GetPullRequest(ctx context.Context, prNumber int) (*models.PullRequestRef, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", c.owner, c.repo, prNumber)

	var payload prPayload
	if _, err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}

	ref := payload.toRef()
	return &ref, nil
}

// FetchFiles returns the changed files of a PR with per-file patch text
func (c *Client) FetchFiles(ctx context.Context, prNumber int) ([]models.ChangedFile, error) {
	var files []models.ChangedFile

	for page := 1; page <= 5; page++ {
		path := fmt.Sprintf("/repos/%s/%s/pulls/%d/files?per_page=100&page=%d",
			c.owner, c.repo, prNumber, page)

		var payload []struct {
			Filename string `json:"filename"`
			Status   string `json:"status"`
			Patch    string `json:"patch"`
		}
		if _, err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
			return nil, err
		}

		for _, f := range payload {
			files = append(files, models.ChangedFile{
				Filename: f.Filename,
				Status:   models.FileStatus(f.Status),
				Patch:    f.Patch,
			})
		}
		if len(payload) < 100 {
			break
		}
	}

	return files, nil
}

// GetMergeability reports whether a PR can merge right now. A mergeability
// the service has not computed yet maps to MergeStateUnknown, never an
// error; callers may poll.
func (c *Client) GetMergeability(ctx context.Context, prNumber int) (*models.Mergeability, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", c.owner, c.repo, prNumber)

	var payload prPayload
	if _, err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}

	result := &models.Mergeability{State: models.MergeStateUnknown}

	if payload.Mergeable != nil {
		result.Mergeable = *payload.Mergeable
	}
	switch payload.MergeableState {
	case "clean":
		result.State = models.MergeStateClean
	case "dirty":
		result.State = models.MergeStateDirty
	case "unstable":
		result.State = models.MergeStateUnstable
	case "blocked":
		result.State = models.MergeStateBlocked
		result.BlockedBy = append(result.BlockedBy, "required status checks or reviews")
	}

	// ahead/behind come from the compare endpoint; best effort only
	comparePath := fmt.Sprintf("/repos/%s/%s/compare/%s...%s",
		c.owner, c.repo, payload.Base.Ref, payload.Head.Ref)
	var compare struct {
		AheadBy  int `json:"ahead_by"`
		BehindBy int `json:"behind_by"`
	}
	if _, err := c.do(ctx, http.MethodGet, comparePath, nil, &compare); err == nil {
		result.AheadBy = compare.AheadBy
		result.BehindBy = compare.BehindBy
	}

	return result, nil
}

// viewerLogin returns the acting identity's login, cached after first use
func (c *Client) viewerLogin(ctx context.Context) string {
	c.mu.Lock()
	cached := c.viewer
	c.mu.Unlock()
	if cached != "" {
		return cached
	}

	var payload struct {
		Login string `json:"login"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/user", nil, &payload); err != nil {
		log.Debug().Err(err).Msg("Could not resolve acting identity, marker match only")
		return ""
	}

	c.mu.Lock()
	c.viewer = payload.Login
	c.mu.Unlock()
	return payload.Login
}

func (c *Client) commentKey(prNumber int) string {
	return fmt.Sprintf("%s/%s/%d", c.owner, c.repo, prNumber)
}

// upsertLock returns the mutex serializing comment upserts for one PR
func (c *Client) upsertLock(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.upsertLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		c.upsertLocks[key] = lock
	}
	return lock
}

// UpsertComment maintains exactly one marker-tagged comment per PR, safe
// under repeated and retried invocation. Stored-id fast path first, then
// marker search over existing comments, then create-and-remember.
func (c *Client) UpsertComment(ctx context.Context, prNumber int, body string) error {
	if body == "" {
		return fmt.Errorf("comment body must not be empty")
	}
	if !bytes.Contains([]byte(body), []byte(CommentMarker)) {
		body = CommentMarker + "\n" + body
	}

	key := c.commentKey(prNumber)

	// Concurrent retries for the same PR must not each create a comment;
	// the whole check-search-create sequence runs under one lock.
	lock := c.upsertLock(key)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	storedID, hasStored := c.commentIDs[key]
	c.mu.Unlock()

	if hasStored {
		if err := c.updateComment(ctx, storedID, body); err == nil {
			return nil
		} else if !IsKind(err, KindNotFound) && !IsKind(err, KindAuth) {
			return err
		}
		// Stored id stale: fall back to the marker search
		log.Debug().Int64("comment_id", storedID).Msg("Stored comment id unusable, searching by marker")
	}

	foundID, err := c.findMarkerComment(ctx, prNumber)
	if err != nil {
		return err
	}

	if foundID != 0 {
		if err := c.updateComment(ctx, foundID, body); err != nil {
			return err
		}
		c.mu.Lock()
		c.commentIDs[key] = foundID
		c.mu.Unlock()
		return nil
	}

	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", c.owner, c.repo, prNumber)
	var created struct {
		ID int64 `json:"id"`
	}
	if _, err := c.do(ctx, http.MethodPost, path, map[string]string{"body": body}, &created); err != nil {
		return err
	}

	c.mu.Lock()
	c.commentIDs[key] = created.ID
	c.mu.Unlock()

	log.Debug().Int("pr", prNumber).Int64("comment_id", created.ID).Msg("Created gate comment")
	return nil
}

func (c *Client) updateComment(ctx context.Context, commentID int64, body string) error {
	path := fmt.Sprintf("/repos/%s/%s/issues/comments/%d", c.owner, c.repo, commentID)
	_, err := c.do(ctx, http.MethodPatch, path, map[string]string{"body": body}, nil)
	return err
}

// findMarkerComment scans existing PR comments for the gate marker
// authored by the acting identity
func (c *Client) findMarkerComment(ctx context.Context, prNumber int) (int64, error) {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments?per_page=100", c.owner, c.repo, prNumber)

	var payload []struct {
		ID   int64  `json:"id"`
		Body string `json:"body"`
		User struct {
			Login string `json:"login"`
		} `json:"user"`
	}
	if _, err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return 0, err
	}

	viewer := c.viewerLogin(ctx)
	for _, comment := range payload {
		if !bytes.Contains([]byte(comment.Body), []byte(CommentMarker)) {
			continue
		}
		if viewer != "" && comment.User.Login != viewer {
			continue
		}
		return comment.ID, nil
	}
	return 0, nil
}

// MergePR executes the merge. Failures come back classified into the
// error taxonomy with actionable hints attached.
func (c *Client) MergePR(ctx context.Context, prNumber int, strategy MergeStrategy) (*MergeResult, error) {
	if strategy == "" {
		strategy = MergeSquash
	}

	pr, err := c.GetPullRequest(ctx, prNumber)
	title := fmt.Sprintf("Merge pull request #%d", prNumber)
	if err == nil {
		title = fmt.Sprintf("%s (#%d)", pr.Title, prNumber)
	}

	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/merge", c.owner, c.repo, prNumber)
	payload := map[string]string{
		"merge_method": string(strategy),
		"commit_title": title,
	}

	var result struct {
		Merged  bool   `json:"merged"`
		Message string `json:"message"`
		SHA     string `json:"sha"`
	}
	status, err := c.do(ctx, http.MethodPut, path, payload, &result)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return &MergeResult{Message: apiErr.Message}, ClassifyMergeFailure(apiErr.StatusCode, apiErr.Message)
		}
		return nil, err
	}
	if status >= 400 || !result.Merged {
		return &MergeResult{Message: result.Message}, ClassifyMergeFailure(status, result.Message)
	}

	log.Debug().Int("pr", prNumber).Str("sha", result.SHA).Msg("Merged pull request")
	return &MergeResult{Merged: true, Message: result.Message, SHA: result.SHA}, nil
}
