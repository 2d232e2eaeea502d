package models

import (
	"time"
)

// Comment represents a single review comment fetched from the code host.
// Comments are immutable once fetched; line numbers are carried both as
// they are now and as they were when the comment was written, because a
// PR can be updated after the comment was made.
type Comment struct {
	ID                string    `json:"id"`
	DatabaseID        *int64    `json:"databaseId,omitempty"`
	URL               string    `json:"url,omitempty"`
	Body              string    `json:"body"`
	Author            string    `json:"author"`
	CreatedAt         time.Time `json:"createdAt"`
	Path              string    `json:"path,omitempty"`
	ReplyTo           string    `json:"replyTo,omitempty"` // parent comment id, empty for root comments
	ThreadID          string    `json:"threadId"`
	PullRequestNumber int       `json:"pullRequestNumber"`
	StartLine         *int      `json:"startLine,omitempty"`
	Line              *int      `json:"line,omitempty"`
	OriginalStartLine *int      `json:"originalStartLine,omitempty"`
	OriginalLine      *int      `json:"originalLine,omitempty"`
}

// IsRoot reports whether the comment is a top-level (non-reply) comment.
func (c *Comment) IsRoot() bool {
	return c.ReplyTo == ""
}

// Thread is an ordered comment chain anchored to one code location.
// Comments[0] is always the root; the rest are sorted by creation time.
type Thread struct {
	ID                string
	PullRequestNumber int
	Comments          []Comment
}

// Root returns the thread's root comment.
func (t *Thread) Root() *Comment {
	return &t.Comments[0]
}

// Replies returns every comment after the root, in creation order.
func (t *Thread) Replies() []Comment {
	return t.Comments[1:]
}

// PullRequest carries the subset of PR metadata the workflow needs.
type PullRequest struct {
	Number     int    `json:"number"`
	URL        string `json:"url,omitempty"`
	Title      string `json:"title,omitempty"`
	HeadBranch string `json:"headRefName,omitempty"`
	BaseBranch string `json:"baseRefName,omitempty"`
}

// ActionType classifies what a review thread needs.
type ActionType string

const (
	ActionReply      ActionType = "reply"
	ActionCodeChange ActionType = "code_change"
	ActionNoAction   ActionType = "no_action"
)

// Valid reports whether the action type is one of the three known values.
func (a ActionType) Valid() bool {
	switch a {
	case ActionReply, ActionCodeChange, ActionNoAction:
		return true
	}
	return false
}

// Decision is the structured outcome of analyzing one thread. It is
// produced exactly once per thread per run and never revised.
type Decision struct {
	ActionType   ActionType `json:"action_type"`
	CommentReply string     `json:"comment_reply"`
	FixPrompt    string     `json:"fix_prompt"`
	Reasoning    string     `json:"reasoning"`
}

// CreatedComment describes the comment produced by a reply mutation.
type CreatedComment struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}
