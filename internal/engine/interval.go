package engine

import "time"

// computeInterval determines how often an account should be re-checked based
// on how recently it last played. Active players settle into short intervals,
// dormant accounts back off to a few hours between checks.
func computeInterval(lastMatchTime *time.Time, now time.Time) time.Duration {
	if lastMatchTime == nil {
		// Never seen a match; nothing suggests activity
		return 6 * time.Hour
	}

	elapsed := now.Sub(*lastMatchTime)

	switch {
	case elapsed < time.Hour:
		return 2 * time.Minute
	case elapsed < 6*time.Hour:
		return 10 * time.Minute
	case elapsed < 24*time.Hour:
		return 30 * time.Minute
	case elapsed < 7*24*time.Hour:
		return 2 * time.Hour
	default:
		return 6 * time.Hour
	}
}

// isEligible reports whether an account is due for a check. Accounts that
// have never been checked are always eligible.
func isEligible(lastMatchTime, lastCheckedAt *time.Time, now time.Time) bool {
	if lastCheckedAt == nil {
		return true
	}
	return now.Sub(*lastCheckedAt) >= computeInterval(lastMatchTime, now)
}
