package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/reviewpilot/internal/fsview"
	"github.com/reviewpilot/internal/retry"
	"github.com/reviewpilot/pkg/models"
)

func TestParseDecision_PlainJSON(t *testing.T) {
	raw := `{"action_type":"reply","comment_reply":"Good catch, fixed.","fix_prompt":"","reasoning":"The comment is valid."}`

	decision, err := ParseDecision(raw)
	require.NoError(t, err)
	assert.Equal(t, models.ActionReply, decision.ActionType)
	assert.Equal(t, "Good catch, fixed.", decision.CommentReply)
}

func TestParseDecision_FencedJSON(t *testing.T) {
	raw := "```json\n{\"action_type\":\"no_action\",\"comment_reply\":\"\",\"fix_prompt\":\"\",\"reasoning\":\"Already addressed.\"}\n```"

	decision, err := ParseDecision(raw)
	require.NoError(t, err)
	assert.Equal(t, models.ActionNoAction, decision.ActionType)
}

func TestParseDecision_JSONEmbeddedInProse(t *testing.T) {
	raw := `Language: English
Here is my analysis: {"action_type":"code_change","comment_reply":"Done.","fix_prompt":"Rename the variable.","reasoning":"Reviewer is right."} Let me know.`

	decision, err := ParseDecision(raw)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCodeChange, decision.ActionType)
	assert.Equal(t, "Rename the variable.", decision.FixPrompt)
}

func TestParseDecision_RepairsTrailingComma(t *testing.T) {
	raw := `{"action_type":"reply","comment_reply":"ok","fix_prompt":"","reasoning":"fine",}`

	decision, err := ParseDecision(raw)
	require.NoError(t, err)
	assert.Equal(t, models.ActionReply, decision.ActionType)
}

func TestParseDecision_UnknownActionType(t *testing.T) {
	raw := `{"action_type":"escalate","comment_reply":"","fix_prompt":"","reasoning":""}`

	_, err := ParseDecision(raw)
	assert.ErrorIs(t, err, ErrMalformedDecision)
}

func TestParseDecision_MissingActionType(t *testing.T) {
	raw := `{"comment_reply":"hello","fix_prompt":"","reasoning":""}`

	_, err := ParseDecision(raw)
	assert.ErrorIs(t, err, ErrMalformedDecision)
}

func TestParseDecision_Garbage(t *testing.T) {
	_, err := ParseDecision("I could not come to a conclusion, sorry!")
	assert.ErrorIs(t, err, ErrMalformedDecision)
}

func testThread() *models.Thread {
	line := 14
	origLine := 12
	return &models.Thread{
		ID:                "THREAD1",
		PullRequestNumber: 42,
		Comments: []models.Comment{
			{
				ID:                "C1",
				Author:            "alice",
				Body:              "This loop can panic on empty input.",
				Path:              "main.go",
				CreatedAt:         time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
				ThreadID:          "THREAD1",
				PullRequestNumber: 42,
				Line:              &line,
				OriginalLine:      &origLine,
			},
			{
				ID:                "C2",
				Author:            "bob",
				Body:              "Good point, will fix.",
				Path:              "main.go",
				ReplyTo:           "C1",
				CreatedAt:         time.Date(2025, 3, 1, 10, 5, 0, 0, time.UTC),
				ThreadID:          "THREAD1",
				PullRequestNumber: 42,
			},
		},
	}
}

func TestBuildUserMessage(t *testing.T) {
	in := &Input{
		Owner:  "acme",
		Repo:   "widgets",
		Thread: testThread(),
		Diff:   "diff --git a/main.go b/main.go\n+fixed",
	}

	msg := BuildUserMessage(in)
	assert.Contains(t, msg, "acme/widgets")
	assert.Contains(t, msg, "Root Comment:")
	assert.Contains(t, msg, "Reply #1:")
	assert.Contains(t, msg, "- Author: alice")
	assert.Contains(t, msg, "This loop can panic")
	assert.Contains(t, msg, "Line: 14 (original line: 12)")
	assert.Contains(t, msg, "PR Number: 42")
	assert.Contains(t, msg, "diff --git")
}

// scriptedModel replays canned responses in order.
type scriptedModel struct {
	responses []*llms.ContentResponse
	calls     int
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	resp := m.responses[m.calls]
	m.calls++
	return resp, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", nil
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}
}

func toolCallResponse(name, arguments string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{{
			ID:   "call-1",
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      name,
				Arguments: arguments,
			},
		}},
	}}}
}

func TestLangchainEngine_ToolLoopThenDecision(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"),
		[]byte("package main\n\nfunc main() {}\n"), 0644))

	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCallResponse("read_file", `{"file_path":"main.go"}`),
		textResponse(`{"action_type":"reply","comment_reply":"The code looks fine now.","fix_prompt":"","reasoning":"Verified against current file content."}`),
	}}

	e := NewLangchainEngine(model, 0.2, 1024)
	decision, err := e.Analyze(context.Background(), &Input{
		Owner:  "acme",
		Repo:   "widgets",
		Thread: testThread(),
		Diff:   "diff",
		Files:  fsview.New(root),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ActionReply, decision.ActionType)
	assert.Equal(t, 2, model.calls)
}

// flakyModel fails a fixed number of times before delegating to the
// scripted responses.
type flakyModel struct {
	failures int
	inner    *scriptedModel
	calls    int
}

func (m *flakyModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls++
	if m.calls <= m.failures {
		return nil, errors.New("upstream timeout")
	}
	return m.inner.GenerateContent(ctx, messages, options...)
}

func (m *flakyModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", nil
}

func TestLangchainEngine_RetriesTransientModelFailure(t *testing.T) {
	model := &flakyModel{
		failures: 2,
		inner: &scriptedModel{responses: []*llms.ContentResponse{
			textResponse(`{"action_type":"no_action","comment_reply":"","fix_prompt":"","reasoning":"Nothing to do."}`),
		}},
	}

	e := NewLangchainEngine(model, 0.2, 1024)
	e.retryCfg = retry.Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Strategy: retry.Linear}

	decision, err := e.Analyze(context.Background(), &Input{
		Owner:  "acme",
		Repo:   "widgets",
		Thread: testThread(),
		Files:  fsview.New(t.TempDir()),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ActionNoAction, decision.ActionType)
	assert.Equal(t, 3, model.calls)
}

func TestLangchainEngine_ExhaustedRetriesSurfaceError(t *testing.T) {
	model := &flakyModel{failures: 10, inner: &scriptedModel{}}

	e := NewLangchainEngine(model, 0.2, 1024)
	e.retryCfg = retry.Config{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Strategy: retry.Linear}

	_, err := e.Analyze(context.Background(), &Input{
		Owner:  "acme",
		Repo:   "widgets",
		Thread: testThread(),
		Files:  fsview.New(t.TempDir()),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream timeout")
	assert.Equal(t, 2, model.calls)
}

func TestLangchainEngine_MalformedFinalAnswer(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{
		textResponse("I think we should probably do something about this."),
	}}

	e := NewLangchainEngine(model, 0.2, 1024)
	_, err := e.Analyze(context.Background(), &Input{
		Owner:  "acme",
		Repo:   "widgets",
		Thread: testThread(),
		Files:  fsview.New(t.TempDir()),
	})
	assert.ErrorIs(t, err, ErrMalformedDecision)
}
