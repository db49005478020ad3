package utils

import (
	"context"
	"time"
)

// Retry ejecuta una función con reintentos y espera fija entre intentos
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	return RetryWithBackoff(ctx, attempts, func(int) time.Duration { return delay }, fn)
}

// RetryWithBackoff ejecuta fn hasta attempts veces, al menos una. backoff(n) es
// la espera tras el n-ésimo fallo (desde 1). Si todo falla se devuelve el último error.
func RetryWithBackoff(ctx context.Context, attempts int, backoff func(n int) time.Duration, fn func() error) error {
	attempts = max(attempts, 1)
	var err error
	for i := 1; i <= attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if i == attempts {
			break
		}

		select {
		case <-time.After(backoff(i)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// LinearBackoff espera n × unit tras el n-ésimo fallo.
func LinearBackoff(unit time.Duration) func(int) time.Duration {
	return func(n int) time.Duration { return time.Duration(n) * unit }
}

// ExponentialBackoff waits base × multiplier^(n-1), capped at max when max > 0.
func ExponentialBackoff(base time.Duration, multiplier float64, max time.Duration) func(int) time.Duration {
	return func(n int) time.Duration {
		d := float64(base)
		for i := 1; i < n; i++ {
			d *= multiplier
			if max > 0 && d >= float64(max) {
				return max
			}
		}
		if max > 0 && time.Duration(d) > max {
			return max
		}
		return time.Duration(d)
	}
}
