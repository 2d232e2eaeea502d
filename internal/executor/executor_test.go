package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/reviewpilot/internal/workspace"
)

func TestExtractCommitMessage(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{
			name:   "labelled commit message",
			output: "All done.\nCommit message: Fix nil check in parser\n",
			want:   "Fix nil check in parser",
		},
		{
			name:   "summary line",
			output: "Here is a summary of the changes I made to the loop.\n",
			want:   "Here is a summary of the changes I made to the loop.",
		},
		{
			name:   "plain final message",
			output: "\n\nGuard against empty input slice\n",
			want:   "Guard against empty input slice",
		},
		{
			name:   "empty output falls back to default",
			output: "  \n\n",
			want:   defaultCommitMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractCommitMessage(tt.output))
		})
	}
}

func TestCollectSourceFiles(t *testing.T) {
	root := t.TempDir()
	files := []string{
		"main.go",
		"lib/util.py",
		"node_modules/dep/index.js",
		".hidden/secret.go",
		"docs/readme.md",
		"vendor/pkg/code.go",
	}
	for _, f := range files {
		full := filepath.Join(root, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte("content"), 0644))
	}

	got, err := collectSourceFiles(root, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main.go", filepath.Join("lib", "util.py")}, got,
		"hidden dirs, build dirs and non-source files are skipped")
}

func TestCollectSourceFiles_BoundedCount(t *testing.T) {
	root := t.TempDir()
	for _, f := range []string{"a.go", "b.go", "c.go", "d.go"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, f), []byte("x"), 0644))
	}

	got, err := collectSourceFiles(root, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

// scriptedModel replays canned responses in order.
type scriptedModel struct {
	responses []*llms.ContentResponse
	calls     int
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if m.calls >= len(m.responses) {
		return m.responses[len(m.responses)-1], nil
	}
	resp := m.responses[m.calls]
	m.calls++
	return resp, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", nil
}

func testWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"),
		[]byte("package main\n\nfunc main() {}\n"), 0644))
	return &workspace.Workspace{Dir: dir, Owner: "acme", Repo: "widgets", PRNumber: 7}
}

func TestOneShotExecutor_AppliesFileBlocks(t *testing.T) {
	ws := testWorkspace(t)

	model := &scriptedModel{responses: []*llms.ContentResponse{{
		Choices: []*llms.ContentChoice{{Content: "<<<file: main.go>>>\npackage main\n\nfunc main() { println(\"fixed\") }\n<<<end>>>\n\nCommit message: Print a message on startup\n"}},
	}}}

	exec := NewOneShotExecutor(model, 10)
	msg, err := exec.Execute(context.Background(), ws, &Request{
		FixPrompt: "print something in main",
		Reasoning: "reviewer asked for observable output",
	})
	require.NoError(t, err)
	assert.Equal(t, "Print a message on startup", msg)

	data, err := os.ReadFile(filepath.Join(ws.Dir, "main.go"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `println("fixed")`)
}

func TestOneShotExecutor_NoFileBlocksIsAnError(t *testing.T) {
	ws := testWorkspace(t)

	model := &scriptedModel{responses: []*llms.ContentResponse{{
		Choices: []*llms.ContentChoice{{Content: "I don't think any changes are needed."}},
	}}}

	exec := NewOneShotExecutor(model, 10)
	_, err := exec.Execute(context.Background(), ws, &Request{FixPrompt: "fix it"})
	require.Error(t, err, "an editor that edits nothing must fail distinguishably")
}

func TestAgentExecutor_WritesFilesThenCommitMessage(t *testing.T) {
	ws := testWorkspace(t)

	model := &scriptedModel{responses: []*llms.ContentResponse{
		{Choices: []*llms.ContentChoice{{ToolCalls: []llms.ToolCall{{
			ID:   "call-1",
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      "write_file",
				Arguments: `{"file_path":"main.go","content":"package main\n\nfunc main() { println(\"agent\") }\n"}`,
			},
		}}}}},
		{Choices: []*llms.ContentChoice{{Content: "Handle review feedback in main"}}},
	}}

	exec := NewAgentExecutor(model, 5)
	msg, err := exec.Execute(context.Background(), ws, &Request{FixPrompt: "fix main"})
	require.NoError(t, err)
	assert.Equal(t, "Handle review feedback in main", msg)

	data, err := os.ReadFile(filepath.Join(ws.Dir, "main.go"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `println("agent")`)
}

func TestAgentExecutor_TurnBudgetExceeded(t *testing.T) {
	ws := testWorkspace(t)

	// The model keeps calling tools and never concludes.
	model := &scriptedModel{responses: []*llms.ContentResponse{
		{Choices: []*llms.ContentChoice{{ToolCalls: []llms.ToolCall{{
			ID:   "call-loop",
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      "read_directory",
				Arguments: `{}`,
			},
		}}}}},
	}}

	exec := NewAgentExecutor(model, 3)
	_, err := exec.Execute(context.Background(), ws, &Request{FixPrompt: "fix"})
	assert.ErrorIs(t, err, ErrTurnBudgetExceeded)
}

func TestWriteWorkspaceFile_RejectsEscape(t *testing.T) {
	ws := testWorkspace(t)

	err := writeWorkspaceFile(ws.Dir, "../outside.txt", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
}
