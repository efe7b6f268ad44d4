package cache

import "fmt"

func RateLimitKey(clientKey string) string {
	return fmt.Sprintf("ratelimit:%s", clientKey)
}

func WorkerReadyKey() string {
	return "worker:ready"
}
