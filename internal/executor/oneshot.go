package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"github.com/reviewpilot/internal/workspace"
)

const oneShotSystemPrompt = `You are a code editor. You receive a set of source files and an instruction describing required changes. Rewrite only the files that need changes.

For every file you change, output a block in exactly this format:

<<<file: path/relative/to/repo>>>
full new file contents
<<<end>>>

After all file blocks, output a single line:

Commit message: <concise commit message>`

// sourceExtensions marks files the one-shot editor will offer to the
// model.
var sourceExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".tsx": true,
	".jsx": true, ".java": true, ".rb": true, ".rs": true, ".c": true,
	".cc": true, ".cpp": true, ".h": true, ".hpp": true, ".cs": true,
	".php": true, ".kt": true, ".swift": true, ".scala": true,
}

// skippedDirs are never descended into when collecting candidate files.
var skippedDirs = map[string]bool{
	"__pycache__": true, "node_modules": true, "vendor": true,
	"venv": true, "env": true, "build": true, "dist": true,
	"target": true,
}

var fileBlockRe = regexp.MustCompile(`(?s)<<<file: (.+?)>>>\n(.*?)<<<end>>>`)

// OneShotExecutor hands the model a bounded list of source files and an
// instruction in one request and applies the file rewrites it returns.
type OneShotExecutor struct {
	llm      llms.Model
	maxFiles int
}

// NewOneShotExecutor wraps a model with a file-count bound.
func NewOneShotExecutor(llm llms.Model, maxFiles int) *OneShotExecutor {
	if maxFiles <= 0 {
		maxFiles = 10
	}
	return &OneShotExecutor{llm: llm, maxFiles: maxFiles}
}

// collectSourceFiles returns up to maxFiles source files, depth-first,
// skipping hidden and build directories.
func collectSourceFiles(root string, maxFiles int) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") || skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if len(files) >= maxFiles {
			return filepath.SkipAll
		}
		if sourceExtensions[filepath.Ext(d.Name())] {
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return relErr
			}
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Execute sends the bounded file set plus instruction to the model and
// writes back every returned file block.
func (e *OneShotExecutor) Execute(ctx context.Context, ws *workspace.Workspace, req *Request) (string, error) {
	files, err := collectSourceFiles(ws.Dir, e.maxFiles)
	if err != nil {
		return "", fmt.Errorf("failed to collect source files: %w", err)
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no source files found in %s", ws.Dir)
	}

	var sb strings.Builder
	sb.WriteString(buildInstruction(req))
	sb.WriteString("\nFiles:\n")
	for _, rel := range files {
		data, err := os.ReadFile(filepath.Join(ws.Dir, rel))
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", rel, err)
		}
		fmt.Fprintf(&sb, "\n<<<file: %s>>>\n%s<<<end>>>\n", rel, string(data))
	}

	resp, err := e.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, oneShotSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, sb.String()),
	})
	if err != nil {
		return "", fmt.Errorf("editing request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("editing model returned no choices")
	}

	output := resp.Choices[0].Content
	blocks := fileBlockRe.FindAllStringSubmatch(output, -1)
	if len(blocks) == 0 {
		return "", fmt.Errorf("editor output contained no file blocks")
	}

	for _, block := range blocks {
		path := strings.TrimSpace(block[1])
		if err := writeWorkspaceFile(ws.Dir, path, block[2]); err != nil {
			return "", fmt.Errorf("failed to apply edit to %s: %w", path, err)
		}
		log.Debug().Str("file", path).Str("repo", ws.Repo).Msg("one-shot editor wrote file")
	}

	// The commit message follows the last file block.
	tail := output[fileBlockRe.FindAllStringIndex(output, -1)[len(blocks)-1][1]:]
	return extractCommitMessage(tail), nil
}
