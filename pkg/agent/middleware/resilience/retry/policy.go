// Package retry retries oracle calls that failed for transport reasons.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"agentflow/pkg/agent/llmerrors"
)

// Config defines retry behavior.
type Config struct {
	MaxAttempts   int           `json:"max_attempts"`
	InitialDelay  time.Duration `json:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor"`
	Jitter        bool          `json:"jitter"`
}

// DefaultConfig is three attempts with exponential backoff from one second.
//
//nolint:gochecknoglobals // default config pattern
var DefaultConfig = Config{
	MaxAttempts:   3,
	InitialDelay:  time.Second,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// Classifier decides whether an error is worth another attempt.
type Classifier func(error) bool

// ShouldRetry retries connection failures, timeouts, 429 and 5xx.
// Other 4xx and cancellation are returned immediately.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		return llmErr.IsRetryable()
	}

	// A per-call deadline; the middleware checks the caller's context separately.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	s := strings.ToLower(err.Error())
	for _, clientErr := range []string{"400", "401", "403", "404"} {
		if strings.Contains(s, clientErr) {
			return false
		}
	}
	for _, pat := range []string{
		"timeout", "connection", "network", "temporary", "eof",
		"rate", "429", "500", "502", "503", "504",
	} {
		if strings.Contains(s, pat) {
			return true
		}
	}
	return false
}

// Policy couples a Config with a Classifier.
type Policy struct {
	Classifier Classifier
	Config     Config
}

// NewPolicy creates a policy; a nil classifier uses ShouldRetry.
func NewPolicy(config Config, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = ShouldRetry
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Policy{Config: config, Classifier: classifier}
}

// CalculateDelay returns the wait before attempt (1-based). Attempt 1 has none.
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := time.Duration(float64(p.Config.InitialDelay) * math.Pow(p.Config.BackoffFactor, float64(attempt-2)))
	if p.Config.MaxDelay > 0 && delay > p.Config.MaxDelay {
		delay = p.Config.MaxDelay
	}
	if p.Config.Jitter && delay > 0 {
		// +/-10%
		delay += time.Duration((rand.Float64()*0.2 - 0.1) * float64(delay))
	}
	return delay
}

// ShouldRetry applies the policy's classifier.
func (p *Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}
