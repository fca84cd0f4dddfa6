package browser

import (
	"fmt"
	"strings"
)

const nextStepTemplate = `What should I do next to achieve my goal?

Current browser state:
%s

When you see the current state, decide on the next browser action or use another tool.
If the task is complete, call terminate.`

// NextStepPrompt formats the planning prompt used while the browser is in play.
func NextStepPrompt(state *State) string {
	var b strings.Builder
	if state == nil || state.URL == "" {
		b.WriteString("No page is open.")
	} else {
		fmt.Fprintf(&b, "URL: %s", state.URL)
		if state.Title != "" {
			fmt.Fprintf(&b, "\nTitle: %s", state.Title)
		}
	}
	return fmt.Sprintf(nextStepTemplate, b.String())
}
