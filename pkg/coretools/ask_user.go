package coretools

import (
	"context"
	"errors"
	"strings"

	"github.com/harun/nava/pkg/toolexecutor"
)

func askUserTool(input InputFunc) toolexecutor.Tool {
	return toolexecutor.MustFuncTool(
		"ask_user",
		"Ask the user a question and wait for their response. "+
			"Use this tool when you need clarification, confirmation, or additional information from the user.",
		[]toolexecutor.Parameter{
			{Name: "question", Type: "string", Description: "The question to ask the user.", Required: true},
		},
		func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			question, _ := params["question"].(string)
			if strings.TrimSpace(question) == "" {
				return nil, errors.New("question is required")
			}
			return input(ctx, question)
		},
	).WithTimeout(0)
}
