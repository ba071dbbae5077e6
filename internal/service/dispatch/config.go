package dispatch

import "time"

type Config struct {
	BaseRadiusKm      float64
	GrowthFactor      float64
	MaxRadiusKm       float64
	OfferTimeout      time.Duration
	MaxSearchDuration time.Duration
	RoundDelay        time.Duration
	CandidateLimit    int
	// LocationFreshness bounds the age of a driver's latest sample, 0 disables the bound
	LocationFreshness time.Duration
	// StoreRetryLimit is the number of consecutive store failures a search tolerates
	StoreRetryLimit int
}

// DefaultConfig mirrors the production defaults
func DefaultConfig() Config {
	return Config{
		BaseRadiusKm:      5,
		GrowthFactor:      1.5,
		MaxRadiusKm:       50,
		OfferTimeout:      30 * time.Second,
		MaxSearchDuration: 120 * time.Second,
		RoundDelay:        10 * time.Second,
		CandidateLimit:    10,
		StoreRetryLimit:   3,
	}
}

// NextRadius grows r by the factor without passing ceiling. The result is never below r.
func NextRadius(r, growth, ceiling float64) float64 {
	next := r * growth
	if next > ceiling {
		next = ceiling
	}
	if next < r {
		return r
	}
	return next
}
