// Package provider holds what the registrar and hosting clients share:
// the provider error taxonomy and the bounded retry loop for transient
// failures.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/wait"
)

// Error is a non-2xx response from a provider API.
type Error struct {
	Status int
	Body   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.Status, e.Body)
}

// Transient reports whether the response is worth retrying. Rate limits
// are transient; every other 4xx is permanent.
func (e *Error) Transient() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// IsPermanent reports whether err is a provider response that retrying
// cannot fix. Network-level errors are never permanent.
func IsPermanent(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return !pe.Transient()
	}
	return false
}

// DefaultBackoff gives three attempts: immediately, after 1s, after 2s.
func DefaultBackoff() wait.Backoff {
	return wait.Backoff{
		Duration: time.Second,
		Factor:   2,
		Steps:    3,
	}
}

// Retry runs op until it succeeds, returns a permanent error, or the
// backoff is exhausted. ctx is honored between attempts, never
// mid-attempt, so an issued write always completes.
func Retry(ctx context.Context, log *logrus.Entry, backoff wait.Backoff, op func() error) error {
	var lastErr error
	err := wait.ExponentialBackoffWithContext(ctx, backoff, func() (bool, error) {
		lastErr = op()
		if lastErr == nil {
			return true, nil
		}
		if IsPermanent(lastErr) {
			return false, lastErr
		}
		log.WithError(lastErr).Debug("transient provider error, will retry")
		return false, nil
	})
	if err != nil && lastErr != nil {
		return lastErr
	}
	return err
}
