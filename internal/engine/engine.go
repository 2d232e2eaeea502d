// Package engine decides what a review-comment thread needs: a reply,
// a code change, or nothing. The real implementation drives an LLM with
// repository-inspection tools; the contract is small enough that tests
// back it with deterministic stubs.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/reviewpilot/internal/fsview"
	"github.com/reviewpilot/pkg/models"
)

// ErrMalformedDecision indicates the underlying reasoning process could
// not produce a valid structured decision. Callers treat this as
// recoverable for the current thread only.
var ErrMalformedDecision = errors.New("malformed decision")

// SubAnalyzer delegates a read-only analysis question to a different
// repository than the one under review.
type SubAnalyzer interface {
	AnalyzeRepo(ctx context.Context, repo, prompt string) (string, error)
}

// Input is everything the engine may consult for one thread.
type Input struct {
	Owner  string
	Repo   string
	Thread *models.Thread
	Diff   string
	// Files exposes the prepared checkout read-only.
	Files *fsview.View
	// SubAnalyzer is optional; nil disables cross-repository analysis.
	SubAnalyzer SubAnalyzer
}

// Engine classifies one thread into exactly one Decision.
type Engine interface {
	Analyze(ctx context.Context, in *Input) (*models.Decision, error)
}

// ParseDecision decodes a model's textual output into a Decision. Code
// fences are stripped and malformed JSON goes through a repair pass
// before giving up. An unknown or missing action_type is a malformed
// decision even when the JSON itself parses.
func ParseDecision(raw string) (*models.Decision, error) {
	text := stripCodeFence(raw)

	var decision models.Decision
	if err := json.Unmarshal([]byte(text), &decision); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(text)
		if repairErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
		}
		if err := json.Unmarshal([]byte(repaired), &decision); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
		}
	}

	if !decision.ActionType.Valid() {
		return nil, fmt.Errorf("%w: unknown action_type %q", ErrMalformedDecision, decision.ActionType)
	}

	return &decision, nil
}

// stripCodeFence removes a surrounding ```json ... ``` block if present
// and otherwise extracts the outermost JSON object from surrounding
// prose.
func stripCodeFence(s string) string {
	text := strings.TrimSpace(s)

	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}

	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first >= 0 && last > first {
		return text[first : last+1]
	}
	return text
}
