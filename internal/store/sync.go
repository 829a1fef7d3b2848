package store

import (
	"fmt"
	"time"
)

// DataFreshness represents the freshness of cached data.
type DataFreshness struct {
	Key         string
	LastUpdated time.Time
	IsFresh     bool
	Age         time.Duration
}

// Freshness reports whether the entry under key was synced within ttl.
func Freshness(cache PriceCache, key string, ttl time.Duration, now time.Time) *DataFreshness {
	lastSync := cache.GetLastSync(key)
	f := &DataFreshness{Key: key, LastUpdated: lastSync}
	if lastSync.IsZero() {
		return f
	}
	f.Age = now.Sub(lastSync)
	f.IsFresh = f.Age < ttl
	return f
}

// FormatFreshness returns a human-readable freshness string.
func FormatFreshness(freshness *DataFreshness) string {
	if freshness.LastUpdated.IsZero() {
		return "Never synced"
	}

	age := freshness.Age
	var ageStr string

	switch {
	case age < time.Minute:
		ageStr = "just now"
	case age < time.Hour:
		ageStr = fmt.Sprintf("%d minutes ago", int(age.Minutes()))
	case age < 24*time.Hour:
		ageStr = fmt.Sprintf("%d hours ago", int(age.Hours()))
	default:
		ageStr = fmt.Sprintf("%d days ago", int(age.Hours()/24))
	}

	if freshness.IsFresh {
		return fmt.Sprintf("Updated %s", ageStr)
	}
	return fmt.Sprintf("Stale, updated %s", ageStr)
}
