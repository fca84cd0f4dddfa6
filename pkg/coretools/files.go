package coretools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/harun/nava/pkg/toolexecutor"
)

const defaultReadLimit = 200000

func readFileTool(opts Options) toolexecutor.Tool {
	return toolexecutor.MustFuncTool(
		"read_file",
		"Read a file from the workspace.",
		[]toolexecutor.Parameter{
			{Name: "path", Type: "string", Description: "Relative file path", Required: true},
			{Name: "max_bytes", Type: "integer", Description: "Maximum bytes to read (default 200000)", Default: defaultReadLimit},
		},
		func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			pathValue, _ := params["path"].(string)
			target, err := resolvePathInWorkspace(opts.WorkspaceRoot, pathValue)
			if err != nil {
				return nil, err
			}

			data, truncated, err := readFileWithLimit(target, int64(intParam(params["max_bytes"], defaultReadLimit)))
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"path":      pathValue,
				"content":   string(data),
				"truncated": truncated,
				"bytes":     len(data),
			}, nil
		},
	)
}

func writeFileTool(opts Options) toolexecutor.Tool {
	return toolexecutor.MustFuncTool(
		"write_file",
		"Write content to a file in the workspace.",
		[]toolexecutor.Parameter{
			{Name: "path", Type: "string", Description: "Relative file path", Required: true},
			{Name: "content", Type: "string", Description: "File content", Required: true},
			{Name: "append", Type: "boolean", Description: "Append to file (default false)"},
		},
		func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			pathValue, _ := params["path"].(string)
			target, err := resolvePathInWorkspace(opts.WorkspaceRoot, pathValue)
			if err != nil {
				return nil, err
			}
			content, _ := params["content"].(string)
			appendMode, _ := params["append"].(bool)

			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return nil, err
			}

			flag := os.O_CREATE | os.O_WRONLY
			if appendMode {
				flag |= os.O_APPEND
			} else {
				flag |= os.O_TRUNC
			}
			f, err := os.OpenFile(target, flag, 0644)
			if err != nil {
				return nil, err
			}
			if _, err := f.WriteString(content); err != nil {
				f.Close()
				return nil, err
			}
			if err := f.Close(); err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"path":   pathValue,
				"bytes":  len(content),
				"append": appendMode,
			}, nil
		},
	)
}

func editFileTool(opts Options) toolexecutor.Tool {
	return toolexecutor.MustFuncTool(
		"edit_file",
		"Replace text in a workspace file.",
		[]toolexecutor.Parameter{
			{Name: "path", Type: "string", Description: "Relative file path", Required: true},
			{Name: "search", Type: "string", Description: "Text to search for", Required: true},
			{Name: "replace", Type: "string", Description: "Replacement text", Required: true},
			{Name: "replace_all", Type: "boolean", Description: "Replace all occurrences (default false)"},
		},
		func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			pathValue, _ := params["path"].(string)
			target, err := resolvePathInWorkspace(opts.WorkspaceRoot, pathValue)
			if err != nil {
				return nil, err
			}
			search, _ := params["search"].(string)
			replace, _ := params["replace"].(string)
			replaceAll, _ := params["replace_all"].(bool)
			if search == "" {
				return nil, fmt.Errorf("search is required")
			}

			data, err := os.ReadFile(target)
			if err != nil {
				return nil, err
			}
			content := string(data)

			occurrences := strings.Count(content, search)
			if occurrences == 0 {
				return nil, fmt.Errorf("search text not found")
			}
			var updated string
			if replaceAll {
				updated = strings.ReplaceAll(content, search, replace)
			} else {
				occurrences = 1
				updated = strings.Replace(content, search, replace, 1)
			}

			if err := os.WriteFile(target, []byte(updated), 0644); err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"path":        pathValue,
				"occurrences": occurrences,
			}, nil
		},
	)
}

func readFileWithLimit(path string, limit int64) ([]byte, bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer file.Close()

	if limit <= 0 {
		limit = defaultReadLimit
	}
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, file, limit); err != nil && !errors.Is(err, io.EOF) {
		return nil, false, err
	}
	extra := make([]byte, 1)
	n, _ := file.Read(extra)
	return buf.Bytes(), n > 0, nil
}

func resolvePathInWorkspace(workspaceRoot string, pathValue string) (string, error) {
	pathValue = strings.TrimSpace(pathValue)
	if pathValue == "" {
		return "", fmt.Errorf("path is required")
	}
	if strings.Contains(pathValue, "://") {
		return "", fmt.Errorf("path must be a local file")
	}
	root, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return "", err
	}
	candidate := pathValue
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(root, candidate)
	}
	candidate = filepath.Clean(candidate)

	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside workspace root", pathValue)
	}
	return candidate, nil
}
