package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"github.com/reviewpilot/internal/retry"
	"github.com/reviewpilot/pkg/models"
)

const systemPrompt = `You are a GitHub code review assistant. Your task is to analyze repository code and GitHub review comments to determine the appropriate action.

Given a repository and review comments, you should:
1. Analyze the code context around the comment
2. Understand the reviewer's feedback
3. Determine if a reply is needed or if code changes are required
4. Provide structured reasoning for your decision

Comments may have gone stale: the pull request can change after a comment was written. Each comment carries both its current line and the original line it was written against. Before recommending any action, verify that the comment still corresponds to the current file content at the referenced line.

Language rules:
- Prefer replying in the same language used by the latest review comment(s).
- If the review comment language cannot be determined, prefer the primary language used in the repository or code comments if available.
- If neither can be determined, default to English.
- If the reviewer explicitly requests a response language, follow their request.

Use the provided tools to inspect the repository before deciding.

When you are done, respond with ONLY a JSON object:
{
  "action_type": "reply" | "code_change" | "no_action",
  "comment_reply": "reply text (may be empty)",
  "fix_prompt": "instructions for a code-change executor (may be empty)",
  "reasoning": "your analysis and reasoning for the decision"
}`

// maxAnalysisTurns bounds the tool loop so a confused model cannot spin
// forever.
const maxAnalysisTurns = 15

// LangchainEngine analyzes threads with a tool-calling language model.
type LangchainEngine struct {
	llm         llms.Model
	temperature float64
	maxTokens   int
	retryCfg    retry.Config
}

// NewLangchainEngine wraps an existing model.
func NewLangchainEngine(llm llms.Model, temperature float64, maxTokens int) *LangchainEngine {
	return &LangchainEngine{
		llm:         llm,
		temperature: temperature,
		maxTokens:   maxTokens,
		retryCfg:    retry.LLMConfig(),
	}
}

// Analyze drives the model over the thread, diff and repository tools
// until it produces a structured decision.
func (e *LangchainEngine) Analyze(ctx context.Context, in *Input) (*models.Decision, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, BuildUserMessage(in)),
	}
	tools := toolDefinitions(in.SubAnalyzer != nil)

	for turn := 0; turn < maxAnalysisTurns; turn++ {
		var resp *llms.ContentResponse
		res := retry.Do(ctx, e.retryCfg, func() error {
			var err error
			resp, err = e.llm.GenerateContent(ctx, messages,
				llms.WithTools(tools),
				llms.WithTemperature(e.temperature),
				llms.WithMaxTokens(e.maxTokens))
			return err
		})
		if !res.Success {
			return nil, fmt.Errorf("analysis request failed: %w", res.LastError)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("%w: model returned no choices", ErrMalformedDecision)
		}

		choice := resp.Choices[0]
		if len(choice.ToolCalls) == 0 {
			return ParseDecision(choice.Content)
		}

		// Echo the assistant's tool calls, then answer each one.
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
			log.Debug().Str("tool", name).Str("thread", in.Thread.ID).
				Int("turn", turn).Msg("executing tool call")

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

	return nil, fmt.Errorf("%w: no decision after %d turns", ErrMalformedDecision, maxAnalysisTurns)
}

// BuildUserMessage renders the thread, PR metadata and diff into the
// analysis request.
func BuildUserMessage(in *Input) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Please analyze the GitHub repository %s/%s and the following review comment thread:\n\n", in.Owner, in.Repo)
	sb.WriteString("Comment Thread:\n")

	for i, c := range in.Thread.Comments {
		label := "Root Comment"
		if i > 0 {
			label = fmt.Sprintf("Reply #%d", i)
		}
		fmt.Fprintf(&sb, "\n%s:\n", label)
		fmt.Fprintf(&sb, "- Author: %s\n", orUnknown(c.Author))
		fmt.Fprintf(&sb, "- Created: %s\n", c.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
		fmt.Fprintf(&sb, "- Body: %s\n", orUnknown(c.Body))
		fmt.Fprintf(&sb, "- File: %s\n", orUnknown(c.Path))
		fmt.Fprintf(&sb, "- Line: %s (original line: %s)\n", lineStr(c.Line), lineStr(c.OriginalLine))
	}

	root := in.Thread.Root()
	fmt.Fprintf(&sb, "\nPR Number: %d\n", in.Thread.PullRequestNumber)
	fmt.Fprintf(&sb, "File: %s\n", orUnknown(root.Path))
	fmt.Fprintf(&sb, "Line: %s\n", lineStr(root.Line))
	fmt.Fprintf(&sb, "\nPR Diff:\n%s\n", in.Diff)

	sb.WriteString("\nPlease analyze the entire comment thread along with the PR diff to understand the code changes and determine if this requires a reply, code changes, or no action. Consider the context of all comments in the thread and how they relate to the actual code changes.\n")

	return sb.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func lineStr(n *int) string {
	if n == nil {
		return "Unknown"
	}
	return fmt.Sprintf("%d", *n)
}
