package cache

import "fmt"

func JobKey(jobID string) string {
	return fmt.Sprintf("urban:job:%s", jobID)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("urban:ratelimit:%s", client)
}
