package executionclient

import "time"

const (
	DefaultConnectionTimeout = 10 * time.Second
	DefaultRequestTimeout    = 10 * time.Second
)
