// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package provider

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

const fieldRetryAfter = "retry_after"

// contentPolicyMarkers identify 400-class refusals caused by safety filters.
var contentPolicyMarkers = []string{
	"content_policy",
	"content policy",
	"content_filter",
	"safety",
	"responsible ai",
}

// ClassifyHTTP maps an upstream HTTP failure onto the provider error codes.
// retryAfter is the raw Retry-After header value, if any.
func ClassifyHTTP(providerName string, status int, retryAfter string, cause error) error {
	fields := []pawerr.Attr{pawerr.FieldProvider(providerName), pawerr.Field("status", status)}
	msg := providerName + ": upstream returned HTTP " + strconv.Itoa(status)
	if cause == nil {
		cause = errors.New(http.StatusText(status))
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return pawerr.Wrap(cause, pawerr.CodeProviderAuthUnauthorized, msg, fields...)
	case status == http.StatusTooManyRequests:
		if d, ok := ParseRetryAfter(retryAfter, time.Now()); ok {
			fields = append(fields, pawerr.Field(fieldRetryAfter, d))
		}
		return pawerr.Wrap(cause, pawerr.CodeProviderRateLimited, msg, fields...)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return pawerr.Wrap(cause, pawerr.CodeProviderUpstreamTimeout, msg, fields...)
	case status >= 500:
		return pawerr.Wrap(cause, pawerr.CodeProviderUpstreamFailure, msg, fields...)
	case status >= 400:
		if cause != nil && isContentPolicy(cause.Error()) {
			return pawerr.Wrap(cause, pawerr.CodeProviderContentPolicy, msg, fields...)
		}
		return pawerr.Wrap(cause, pawerr.CodeProviderRequestInvalid, msg, fields...)
	default:
		return pawerr.Wrap(cause, pawerr.CodeProviderUpstreamFailure, msg, fields...)
	}
}

// Classify maps transport-level failures that carry no HTTP status. Errors
// that already carry a code, and caller cancellation, are returned unchanged.
func Classify(providerName string, err error) error {
	if err == nil || pawerr.CodeOf(err) != "" || errors.Is(err, context.Canceled) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return pawerr.Wrap(err, pawerr.CodeProviderUpstreamTimeout, providerName+": request timed out", pawerr.FieldProvider(providerName))
	default:
		return pawerr.Wrap(err, pawerr.CodeProviderUpstreamFailure, providerName+": request failed", pawerr.FieldProvider(providerName))
	}
}

// ContentPolicyError reports a reply withheld by the provider's safety filter.
func ContentPolicyError(providerName, reason string) error {
	return pawerr.New(pawerr.CodeProviderContentPolicy,
		providerName+": response blocked by content policy: "+reason, pawerr.FieldProvider(providerName))
}

func isContentPolicy(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range contentPolicyMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// RetryAfter returns the server-requested delay attached to a rate-limit error.
func RetryAfter(err error) (time.Duration, bool) {
	d, ok := pawerr.FieldsOf(err)[fieldRetryAfter].(time.Duration)
	return d, ok
}

// ParseRetryAfter accepts both forms of the Retry-After header: delay
// seconds or an HTTP date.
func ParseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
