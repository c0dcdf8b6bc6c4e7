// Package retryclassifier distinguishes transient failures (network, rate
// limit, timeout, infra) eligible for retry from model-output failures
// (bad code, failed tests) which are never retried automatically.
package retryclassifier

import (
	"strings"

	"github.com/jpequegn/benchflow-eval/internal/model"
)

var nonRetryable = map[model.FailureReason]bool{
	model.ReasonCompilationFailed:      true,
	model.ReasonTestsFailed:            true,
	model.ReasonMissingRequiredPattern: true,
	model.ReasonForbiddenPattern:       true,
	model.ReasonCustomCheckFailed:      true,
}

var transient = map[model.FailureReason]bool{
	model.ReasonLLMCallFailed:  true,
	model.ReasonTimeout:        true,
	model.ReasonRateLimit:      true,
	model.ReasonNetwork:        true,
	model.ReasonContainerError: true,
}

var transientTokens = []string{"429", "500", "502", "503", "econnreset", "enotfound", "connection"}

// IsTransient reports whether result's last attempt failed for a reason
// eligible for retry. Non-retryable reasons win if any reason on the last
// attempt is non-retryable, even alongside transient-looking ones.
// Conservative default: unknown reason sets are treated as not transient.
func IsTransient(result *model.TaskExecutionResult) bool {
	if result == nil || result.Success {
		return false
	}
	last := result.LastAttempt()
	if last == nil {
		return false
	}

	for _, reason := range last.FailureReasons {
		if nonRetryable[model.FailureReason(strings.ToLower(string(reason)))] {
			return false
		}
	}
	for _, reason := range last.FailureReasons {
		lower := strings.ToLower(string(reason))
		if transient[model.FailureReason(lower)] {
			return true
		}
		for _, tok := range transientTokens {
			if strings.Contains(lower, tok) {
				return true
			}
		}
	}
	return false
}
