package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"github.com/reviewpilot/internal/fsview"
	"github.com/reviewpilot/internal/workspace"
)

const agentSystemPrompt = `We have been given a repository and some review comments to address. An analysis agent has decided that code changes are required. Go through the review feedback and make the necessary changes.

Use the tools to read files, inspect the directory structure and write updated file contents. Edit only what the feedback requires.

Your final message must be a commit message for the changes you have made. Make it concise and to the point.`

// AgentExecutor edits files through a multi-turn tool loop. Exceeding
// maxTurns aborts with ErrTurnBudgetExceeded instead of committing
// partial work.
type AgentExecutor struct {
	llm      llms.Model
	maxTurns int
}

// NewAgentExecutor wraps a model with a turn budget.
func NewAgentExecutor(llm llms.Model, maxTurns int) *AgentExecutor {
	if maxTurns <= 0 {
		maxTurns = 25
	}
	return &AgentExecutor{llm: llm, maxTurns: maxTurns}
}

func editingTools() []llms.Tool {
	return []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "read_file",
				Description: "Read a file from the repository, each line prefixed with its 0-indexed line number.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"file_path": map[string]any{"type": "string"},
					},
					"required": []string{"file_path"},
				},
			},
		},
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "read_directory",
				Description: "List the repository's directory structure.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
				},
			},
		},
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "write_file",
				Description: "Replace a file's entire contents, creating it if needed.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"file_path": map[string]any{"type": "string"},
						"content":   map[string]any{"type": "string"},
					},
					"required": []string{"file_path", "content"},
				},
			},
		},
	}
}

// Execute runs the editing loop until the model stops calling tools,
// then extracts a commit message from its final message.
func (e *AgentExecutor) Execute(ctx context.Context, ws *workspace.Workspace, req *Request) (string, error) {
	view := fsview.New(ws.Dir)

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, agentSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, buildInstruction(req)),
	}
	tools := editingTools()

	for turn := 0; turn < e.maxTurns; turn++ {
		resp, err := e.llm.GenerateContent(ctx, messages, llms.WithTools(tools))
		if err != nil {
			return "", fmt.Errorf("editing request failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("editing model returned no choices")
		}

		choice := resp.Choices[0]
		if len(choice.ToolCalls) == 0 {
			return extractCommitMessage(choice.Content), nil
		}

		assistant := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		for _, call := range choice.ToolCalls {
			assistant.Parts = append(assistant.Parts, call)
		}
		messages = append(messages, assistant)

		for _, call := range choice.ToolCalls {
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: call.ID,
					Name:       toolName(call),
					Content:    e.callEditingTool(ws, view, call),
				}},
			})
		}
	}

	return "", fmt.Errorf("%w: %d turns", ErrTurnBudgetExceeded, e.maxTurns)
}

func toolName(call llms.ToolCall) string {
	if call.FunctionCall == nil {
		return ""
	}
	return call.FunctionCall.Name
}

func (e *AgentExecutor) callEditingTool(ws *workspace.Workspace, view *fsview.View, call llms.ToolCall) string {
	if call.FunctionCall == nil {
		return "error: empty tool call"
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(call.FunctionCall.Arguments), &args); err != nil {
		return fmt.Sprintf("error: invalid tool arguments: %v", err)
	}

	switch call.FunctionCall.Name {
	case "read_file":
		path, _ := args["file_path"].(string)
		out, err := view.ReadFile(path, 0, -1)
		if err != nil {
			return err.Error()
		}
		return out

	case "read_directory":
		out, err := view.Tree()
		if err != nil {
			return err.Error()
		}
		return out

	case "write_file":
		path, _ := args["file_path"].(string)
		content, _ := args["content"].(string)
		if err := writeWorkspaceFile(ws.Dir, path, content); err != nil {
			return fmt.Sprintf("error writing %s: %v", path, err)
		}
		log.Debug().Str("file", path).Str("repo", ws.Repo).Msg("agent wrote file")
		return fmt.Sprintf("wrote %s (%d bytes)", path, len(content))

	default:
		return fmt.Sprintf("error: unknown tool %q", call.FunctionCall.Name)
	}
}
