// Package retry implements failure classification and bounded exponential
// backoff for service execution attempts.
//
// The classifier is pluggable. The default treats structural errors as fatal
// and network/timeout/service failures as retryable; components with stricter
// needs inject their own. Every attempt is observable via a retry.attempt
// event.
package retry
