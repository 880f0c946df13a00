package upstream

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig enables a circuit breaker in front of the store. Only
// transport failures and 5xx responses count against it; a 4xx is the store
// working correctly.
type BreakerConfig struct {
	ConsecutiveFailures uint32
	Cooldown            time.Duration
}

func newBreaker(cfg BreakerConfig, logger zerolog.Logger) *gobreaker.CircuitBreaker[*response] {
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "fhir-store",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var ue *Error
			return errors.As(err, &ue) && ue.StatusCode >= 400 && ue.StatusCode < 500
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
