package config

import "errors"

// Configuration errors returned by Config.Validate. They are fatal to a run and surface before
// any URL is fetched.
var (
	ErrMissingScraperSettings = errors.New("missing scraper settings")
	ErrInvalidDelay           = errors.New("invalid delay: must be between 0.1 and 2.0 seconds")
	ErrInvalidConcurrency     = errors.New("invalid max concurrency: must be between 1 and 20")
	ErrInvalidTimeout         = errors.New("invalid timeout")
)
