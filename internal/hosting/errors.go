package hosting

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures from the hosting API and AI providers
type ErrorKind string

const (
	KindAuth              ErrorKind = "auth"
	KindNotFound          ErrorKind = "not_found"
	KindRateLimitOrServer ErrorKind = "rate_limit_or_server"
	KindConflict          ErrorKind = "conflict"
	KindPolicyBlocked     ErrorKind = "policy_blocked"
	KindConfiguration     ErrorKind = "configuration"
)

// APIError is a classified hosting-API failure with actionable guidance
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Hint       string
}

func (e *APIError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s (%d): %s - %s", e.Kind, e.StatusCode, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
}

// IsKind reports whether err is an APIError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// ClassifyMergeFailure reclassifies a raw merge-endpoint failure into the
// error taxonomy and attaches guidance for the operator.
func ClassifyMergeFailure(status int, message string) *APIError {
	lower := strings.ToLower(message)

	switch {
	case status == 401 || status == 403:
		return &APIError{
			Kind:       KindAuth,
			StatusCode: status,
			Message:    message,
			Hint:       "check that the token has repo scope and merge permission on this repository",
		}
	case status == 404:
		return &APIError{
			Kind:       KindNotFound,
			StatusCode: status,
			Message:    message,
			Hint:       "pull request not found; it may have been closed or the repository renamed",
		}
	case status == 405 && strings.Contains(lower, "draft"):
		return &APIError{
			Kind:       KindPolicyBlocked,
			StatusCode: status,
			Message:    message,
			Hint:       "draft pull requests cannot be merged; mark the PR ready for review first",
		}
	case status == 405 || status == 422:
		if strings.Contains(lower, "conflict") || strings.Contains(lower, "dirty") {
			return &APIError{
				Kind:       KindConflict,
				StatusCode: status,
				Message:    message,
				Hint:       "the branch has merge conflicts; resolve them or rebase onto the base branch",
			}
		}
		return &APIError{
			Kind:       KindPolicyBlocked,
			StatusCode: status,
			Message:    message,
			Hint:       "branch protection or required status checks are blocking the merge",
		}
	case status == 409:
		return &APIError{
			Kind:       KindConflict,
			StatusCode: status,
			Message:    message,
			Hint:       "the branch has merge conflicts; resolve them or rebase onto the base branch",
		}
	case status == 429 || status >= 500:
		return &APIError{
			Kind:       KindRateLimitOrServer,
			StatusCode: status,
			Message:    message,
			Hint:       "hosting service throttled or failed; retry after a short delay",
		}
	default:
		return &APIError{
			Kind:       KindRateLimitOrServer,
			StatusCode: status,
			Message:    message,
		}
	}
}

// classifyStatus maps a non-merge endpoint failure into the taxonomy
func classifyStatus(status int, message string) *APIError {
	switch {
	case status == 401 || status == 403:
		return &APIError{Kind: KindAuth, StatusCode: status, Message: message}
	case status == 404:
		return &APIError{Kind: KindNotFound, StatusCode: status, Message: message}
	case status == 429 || status >= 500:
		return &APIError{Kind: KindRateLimitOrServer, StatusCode: status, Message: message}
	default:
		return &APIError{Kind: KindRateLimitOrServer, StatusCode: status, Message: message}
	}
}
