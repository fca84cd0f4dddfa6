package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harun/nava/pkg/toolexecutor"
)

// ToolName is the capability name of the browser tool.
const ToolName = "browser_use"

const (
	actionGoToURL  = "go_to_url"
	actionGetText  = "get_text"
	actionGetState = "get_state"
	actionBack     = "back"
)

// Tool exposes b as the browser_use capability.
func (b *Browser) Tool() toolexecutor.Tool {
	return toolexecutor.MustFuncTool(
		ToolName,
		"Interact with a web browser: navigate to a URL, read the page text, inspect the current state or go back.",
		[]toolexecutor.Parameter{
			{Name: "action", Type: "string", Description: "The browser action to perform.", Required: true,
				Enum: []string{actionGoToURL, actionGetText, actionGetState, actionBack}},
			{Name: "url", Type: "string", Description: "URL for 'go_to_url'."},
		},
		b.execute,
	)
}

func (b *Browser) execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	action, _ := params["action"].(string)
	url, _ := params["url"].(string)

	switch action {
	case actionGoToURL:
		if url == "" {
			return nil, fmt.Errorf("URL is required for '%s' action", actionGoToURL)
		}
		if err := b.validator.ValidateURL(url); err != nil {
			return nil, err
		}
		fmt.Fprintf(toolexecutor.Output(ctx), "Navigating to %s\n", url)
		state, err := b.Navigate(ctx, url)
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("Navigated to %s", state.URL), nil

	case actionBack:
		fmt.Fprintln(toolexecutor.Output(ctx), "Navigating back")
		state, err := b.Back(ctx)
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("Navigated back to %s", state.URL), nil

	case actionGetText:
		return b.Text(ctx)

	case actionGetState:
		state, err := b.State(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(state)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}

	return nil, fmt.Errorf("unknown browser action: %s", action)
}
