package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/reviewpilot/internal/fsview"
)

// toolDefinitions returns the repository-inspection tools offered to
// the model. The cross-repository analysis tool is only offered when a
// sub-analyzer is wired in.
func toolDefinitions(withSubAnalyzer bool) []llms.Tool {
	tools := []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "read_file",
				Description: "Read a file from the repository, each line prefixed with its 0-indexed line number. Optionally restrict to an inclusive line range.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"file_path":  map[string]any{"type": "string", "description": "Path relative to the repository root"},
						"start_line": map[string]any{"type": "integer", "description": "First line to read, 0-indexed (default 0)"},
						"end_line":   map[string]any{"type": "integer", "description": "Last line to read inclusive (default: end of file)"},
					},
					"required": []string{"file_path"},
				},
			},
		},
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "read_directory",
				Description: "List the repository's directory structure, including hidden entries.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
				},
			},
		},
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "grep",
				Description: "Search repository files for a regular-expression pattern.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"search_pattern": map[string]any{"type": "string"},
						"file_pattern":   map[string]any{"type": "string", "description": "Glob for file names, e.g. *.go (default: all files)"},
						"case_sensitive": map[string]any{"type": "boolean", "description": "Default true"},
						"context_lines":  map[string]any{"type": "integer", "description": "Lines of context around each match (default 0)"},
					},
					"required": []string{"search_pattern"},
				},
			},
		},
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "find_files",
				Description: "Find files whose name matches a glob pattern, e.g. *_test.go.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"file_pattern": map[string]any{"type": "string"},
					},
					"required": []string{"file_pattern"},
				},
			},
		},
	}

	if withSubAnalyzer {
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "analyse_relevant_repo",
				Description: "Analyse a repository other than the one under review. Only the final message of that analysis is returned.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"repository_name": map[string]any{"type": "string"},
						"prompt":          map[string]any{"type": "string"},
					},
					"required": []string{"repository_name", "prompt"},
				},
			},
		})
	}

	return tools
}

// callTool executes one tool call against the input's capabilities.
// Tool failures are reported back to the model as text, never as Go
// errors; a bad tool argument should not sink the whole analysis.
func callTool(ctx context.Context, in *Input, call llms.ToolCall) string {
	var args map[string]any
	if call.FunctionCall == nil {
		return "error: empty tool call"
	}
	if err := json.Unmarshal([]byte(call.FunctionCall.Arguments), &args); err != nil {
		return fmt.Sprintf("error: invalid tool arguments: %v", err)
	}

	switch call.FunctionCall.Name {
	case "read_file":
		path, _ := args["file_path"].(string)
		start := intArg(args, "start_line", 0)
		end := intArg(args, "end_line", -1)
		out, err := in.Files.ReadFile(path, start, end)
		if err != nil {
			return err.Error()
		}
		return out

	case "read_directory":
		out, err := in.Files.Tree()
		if err != nil {
			return err.Error()
		}
		return "Directory structure:\n" + out

	case "grep":
		pattern, _ := args["search_pattern"].(string)
		caseSensitive := true
		if v, ok := args["case_sensitive"].(bool); ok {
			caseSensitive = v
		}
		glob, _ := args["file_pattern"].(string)
		out, err := in.Files.Search(pattern, fsviewSearchOptions(glob, caseSensitive, intArg(args, "context_lines", 0)))
		if err != nil {
			return err.Error()
		}
		return out

	case "find_files":
		glob, _ := args["file_pattern"].(string)
		files, err := in.Files.FindFiles(glob)
		if err != nil {
			return err.Error()
		}
		if len(files) == 0 {
			return fmt.Sprintf("No files found matching pattern %q", glob)
		}
		return fmt.Sprintf("Found %d file(s) matching %q:\n%s", len(files), glob, strings.Join(files, "\n"))

	case "analyse_relevant_repo":
		if in.SubAnalyzer == nil {
			return "error: cross-repository analysis is not available"
		}
		repo, _ := args["repository_name"].(string)
		prompt, _ := args["prompt"].(string)
		out, err := in.SubAnalyzer.AnalyzeRepo(ctx, repo, prompt)
		if err != nil {
			return fmt.Sprintf("error analysing %s: %v", repo, err)
		}
		return out

	default:
		return fmt.Sprintf("error: unknown tool %q", call.FunctionCall.Name)
	}
}

func fsviewSearchOptions(glob string, caseSensitive bool, contextLines int) fsview.SearchOptions {
	return fsview.SearchOptions{
		FileGlob:      glob,
		CaseSensitive: caseSensitive,
		ContextLines:  contextLines,
	}
}

func intArg(args map[string]any, key string, fallback int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return fallback
}
