package shared

import "fmt"

// JobLockKey builds redis keys for single-runner background jobs.
func JobLockKey(job string) string {
	return fmt.Sprintf("dynaflow:jobs:%s:lock", job)
}
