package router

import "strings"

// errorClass is the router's classification of a provider failure, used to
// decide whether to retry, skip the provider for this turn, disable its
// registry row, or fail immediately (spec §4.4 failure classes).
type errorClass int

const (
	classUnknown errorClass = iota
	classTransient
	classAuthFailure
	classModelNotFound
)

// classify maps a raw provider error to a retry/skip decision. Matching is
// substring-based against the wrapped error text, same approach the teacher
// uses for IsRetryableError rather than parsing structured provider error
// types that vary per SDK.
func classify(err error) errorClass {
	if err == nil {
		return classUnknown
	}
	msg := strings.ToLower(err.Error())

	switch {
	case contains(msg, "401"), contains(msg, "unauthorized"), contains(msg, "invalid api key"), contains(msg, "authentication"):
		return classAuthFailure
	case contains(msg, "model not found"), contains(msg, "does not exist"), contains(msg, "no such model"):
		return classModelNotFound
	case contains(msg, "econnreset"), contains(msg, "etimedout"), contains(msg, "connection refused"),
		contains(msg, "timeout"), contains(msg, "429"), contains(msg, "rate limit"),
		contains(msg, "500"), contains(msg, "502"), contains(msg, "503"), contains(msg, "504"):
		return classTransient
	default:
		return classUnknown
	}
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}

// isRetryable reports whether the router should retry the same provider
// after a backoff.
func isRetryable(err error) bool {
	return classify(err) == classTransient
}
