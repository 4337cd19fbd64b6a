// Package prompt compiles job templates into prompts and builds the variable
// sets for the post-processing pass.
package prompt

import (
	"regexp"
	"time"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// Compile substitutes {{name}} placeholders from vars plus built-ins seeded
// from the run's scheduled instant, so a late-running worker still produces
// output consistent with when the job was supposed to fire. User variables
// shadow built-ins; unknown placeholders are left as written.
func Compile(template string, vars map[string]string, scheduledFor time.Time) string {
	at := scheduledFor.UTC()
	builtins := map[string]string{
		"now":      at.Format(time.RFC3339),
		"date":     at.Format("2006-01-02"),
		"time":     at.Format("15:04"),
		"timezone": "UTC",
	}

	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		if v, ok := builtins[name]; ok {
			return v
		}
		return m
	})
}
