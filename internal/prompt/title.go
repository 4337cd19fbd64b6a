package prompt

import "time"

// RunTitle formats the delivery heading for one run.
func RunTitle(jobName string, at time.Time) string {
	return "[" + jobName + "] " + at.UTC().Format("2006-01-02 15:04") + " +00:00 UTC"
}
