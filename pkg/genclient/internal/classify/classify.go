// Package classify maps provider transport failures and HTTP statuses to faults.
package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"sitebuilder/pkg/faults"
)

// Options tunes a single provider call.
type Options struct {
	Temperature float32
	MaxTokens   int
}

// Status classifies an HTTP status returned by provider.
//
//	401, 403        -> authentication
//	429, 5xx        -> network (retryable)
//	other 4xx       -> api
func Status(provider string, status int, cause error, body string) error {
	switch {
	case status == 401 || status == 403:
		return faults.Auth(cause, fmt.Sprintf("%s rejected credentials (status %d)", provider, status)).WithStatus(status)
	case status == 429:
		return faults.Network(cause, provider+" rate limit exceeded").WithStatus(status)
	case status >= 500:
		return faults.Network(cause, fmt.Sprintf("%s server error (status %d)", provider, status)).WithStatus(status)
	case status >= 400:
		apiErr := faults.API(status, body, fmt.Sprintf("%s rejected the request", provider))
		apiErr.Err = cause
		return apiErr
	default:
		return faults.Wrap(faults.TypeInternal, cause, fmt.Sprintf("%s returned unexpected status %d", provider, status))
	}
}

// Transport classifies an error that carried no HTTP status.
func Transport(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return faults.Network(err, provider+" request interrupted")
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return faults.Network(err, provider+" unreachable")
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "eof"):
		return faults.Network(err, provider+" unreachable")
	case strings.Contains(msg, "api key"), strings.Contains(msg, "unauthorized"):
		return faults.Auth(err, provider+" rejected credentials")
	default:
		return faults.Network(err, provider+" call failed")
	}
}

// Empty reports a response without usable text.
func Empty(provider string) error {
	return faults.Malformed(nil, provider+" returned an empty response")
}
