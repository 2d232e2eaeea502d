package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"github.com/reviewpilot/internal/fsview"
	"github.com/reviewpilot/internal/workspace"
)

const subAgentSystemPrompt = `You are a GitHub code review assistant. Your task is to analyze repository code based on the prompt given to you.

Use the provided tools to read files, list the directory structure and search the repository.

Only your final message will be presented back to the caller, so make sure everything that needs to be conveyed is in the final message.`

const maxSubAnalysisTurns = 10

// RepoAnalyzer answers analysis questions about repositories other than
// the one under review. Each question gets a fresh read-only clone.
type RepoAnalyzer struct {
	owner      string
	workspaces *workspace.Manager
	llm        llms.Model
}

// NewRepoAnalyzer creates an analyzer that clones repositories of the
// given owner.
func NewRepoAnalyzer(owner string, workspaces *workspace.Manager, llm llms.Model) *RepoAnalyzer {
	return &RepoAnalyzer{owner: owner, workspaces: workspaces, llm: llm}
}

// AnalyzeRepo clones the repository at its default branch and runs a
// bounded tool loop over it, returning the model's final message.
func (a *RepoAnalyzer) AnalyzeRepo(ctx context.Context, repo, prompt string) (string, error) {
	ws, err := a.workspaces.Clone(ctx, a.owner, repo)
	if err != nil {
		return "", err
	}
	defer ws.Release()

	log.Info().Str("repo", repo).Msg("running cross-repository analysis")

	// Sub-analysis is read-only and never delegates further.
	in := &Input{
		Owner: a.owner,
		Repo:  repo,
		Files: fsview.New(ws.Dir),
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, subAgentSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	tools := toolDefinitions(false)

	for turn := 0; turn < maxSubAnalysisTurns; turn++ {
		resp, err := a.llm.GenerateContent(ctx, messages, llms.WithTools(tools))
		if err != nil {
			return "", fmt.Errorf("sub-analysis request failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("sub-analysis returned no choices")
		}

		choice := resp.Choices[0]
		if len(choice.ToolCalls) == 0 {
			return choice.Content, nil
		}

		assistant := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		for _, call := range choice.ToolCalls {
			assistant.Parts = append(assistant.Parts, call)
		}
		messages = append(messages, assistant)

		for _, call := range choice.ToolCalls {
			name := ""
			if call.FunctionCall != nil {
				name = call.FunctionCall.Name
			}
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: call.ID,
					Name:       name,
					Content:    callTool(ctx, in, call),
				}},
			})
		}
	}

	return "", fmt.Errorf("sub-analysis did not converge within %d turns", maxSubAnalysisTurns)
}
