package coretools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harun/nava/pkg/toolexecutor"
)

// SummaryFile is written into the workspace when terminate carries a summary.
const SummaryFile = "session_summary.md"

func terminateTool(opts Options) toolexecutor.Tool {
	return toolexecutor.MustFuncTool(
		"terminate",
		"Terminate the interaction when the request is met OR if the assistant cannot proceed further with the task. "+
			"When you have finished all the tasks, call this tool to end the work.",
		[]toolexecutor.Parameter{
			{Name: "status", Type: "string", Description: "The finish status of the interaction.", Required: true, Enum: []string{"success", "failure"}},
			{Name: "summary", Type: "string", Description: "A Markdown summary of the session: what was accomplished and any key findings."},
			{Name: "follow_up_suggestions", Type: "array", Description: "Up to 3 suggested follow-up questions or actions for the user."},
		},
		func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			status, _ := params["status"].(string)
			summary, _ := params["summary"].(string)

			var b strings.Builder
			fmt.Fprintf(&b, "The interaction has been completed with status: %s", status)

			if strings.TrimSpace(summary) != "" {
				if err := writeSummary(opts.WorkspaceRoot, summary); err != nil {
					fmt.Fprintf(&b, "\n\nFailed to save session summary: %v", err)
				} else {
					fmt.Fprintf(&b, "\n\nSession summary saved to `%s`.", SummaryFile)
				}
			}

			if suggestions := toStringSlice(params["follow_up_suggestions"]); len(suggestions) > 0 {
				b.WriteString("\n\n**Suggested Follow-up:**")
				for i, s := range suggestions {
					fmt.Fprintf(&b, "\n%d. %s", i+1, s)
				}
			}
			return b.String(), nil
		},
	)
}

func writeSummary(root, summary string) error {
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(root, SummaryFile), []byte(summary), 0644)
}
