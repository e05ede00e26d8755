package domain

import "errors"

// Error kinds that cross component boundaries. Everything not matched by
// one of these sentinels is treated as transient and goes through the
// bounded retry path.
var (
	// ErrReauthRequired means the upstream rejected the refresh token.
	// Terminal: re-authorization has to happen out of band, so the job
	// fails immediately and the tenant is flagged disconnected.
	ErrReauthRequired = errors.New("upstream reauthorization required")

	// ErrRateLimited is resolved inside the record client by waiting;
	// it only surfaces when the retry bound is exhausted.
	ErrRateLimited = errors.New("upstream rate limited")

	// ErrJobConflict: the tenant already has a non-terminal job.
	ErrJobConflict = errors.New("tenant already has an active job")

	ErrJobNotFound    = errors.New("job not found")
	ErrTenantNotFound = errors.New("tenant not found")
	ErrLeadNotFound   = errors.New("lead not found")

	// ErrJobCancelled is the cooperative-abort signal: the processor saw
	// the job marked cancelled (or its row deleted) at a checkpoint.
	ErrJobCancelled = errors.New("job cancelled by user")
)

// ErrorKind labels an error for the job's error_kind column.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrReauthRequired):
		return "reauth_required"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrJobCancelled):
		return "cancelled"
	default:
		return "transient"
	}
}
