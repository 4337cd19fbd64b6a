package prompt

import (
	"encoding/json"
	"strings"

	"prompt-job-runner/internal/domain/ports/adapter"
)

// PostConfig is the normalized post-processing setup for one run.
type PostConfig struct {
	Enabled  bool
	Template string
	Warning  string
}

// NormalizePostConfig enables the second pass only when the flag is set and
// the template is non-blank. Enabled-but-blank is reported as a warning, not
// an error.
func NormalizePostConfig(enabled bool, template string) PostConfig {
	hasTemplate := strings.TrimSpace(template) != ""
	cfg := PostConfig{
		Enabled:  enabled && hasTemplate,
		Template: template,
	}
	if enabled && !hasTemplate {
		cfg.Warning = "post prompt is enabled but empty; skipping"
	}
	return cfg
}

const maxSources = 5

// FormatSources renders up to five citations as a "Sources" block, or ""
// when there are none.
func FormatSources(citations []adapter.Citation) string {
	var lines []string
	for _, c := range citations {
		if strings.TrimSpace(c.URL) == "" {
			continue
		}
		if t := strings.TrimSpace(c.Title); t != "" {
			lines = append(lines, "- "+t+": "+c.URL)
		} else {
			lines = append(lines, "- "+c.URL)
		}
		if len(lines) == maxSources {
			break
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "Sources:\n" + strings.Join(lines, "\n")
}

// BuildPostVariables merges the primary pass's result into the job's variable
// set for compiling the post-processing template.
func BuildPostVariables(base map[string]string, output string, citations []adapter.Citation, usedTool bool, model string) map[string]string {
	out := make(map[string]string, len(base)+5)
	for k, v := range base {
		out[k] = v
	}

	sourcesJSON := "[]"
	if b, err := json.Marshal(citations); err == nil && citations != nil {
		sourcesJSON = string(b)
	}

	out["output"] = output
	out["sources"] = FormatSources(citations)
	out["sources_json"] = sourcesJSON
	out["used_tool"] = boolString(usedTool)
	out["model"] = model
	return out
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
