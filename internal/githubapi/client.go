// Package githubapi is a small GraphQL client for the GitHub API,
// covering only the queries and mutations the review-thread workflow
// needs. It does not use the official client; the workflow's query
// shapes are simple enough that direct HTTP requests keep the surface
// area minimal.
package githubapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/reviewpilot/internal/retry"
	"github.com/reviewpilot/pkg/models"
)

const defaultEndpoint = "https://api.github.com/graphql"

var (
	// ErrRepositoryNotFound indicates the owner/name pair does not resolve.
	ErrRepositoryNotFound = errors.New("repository not found")
	// ErrCommentNotFound indicates a comment id does not resolve to a
	// review comment.
	ErrCommentNotFound = errors.New("comment not found")
	// ErrThreadNotFound indicates no review thread contains the comment.
	ErrThreadNotFound = errors.New("thread not found for comment")
)

// Client issues GraphQL queries and mutations against the GitHub API.
type Client struct {
	endpoint string
	token    string
	client   *http.Client
	limiter  *rate.Limiter
	retryCfg retry.Config
}

// NewClient creates a client for the given endpoint. An empty endpoint
// uses the public GitHub API.
func NewClient(endpoint, token string) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	return &Client{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(5), 10),
		retryCfg: retry.TransportConfig(),
	}
}

// statusError is an HTTP-level failure from the GraphQL endpoint.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GraphQL HTTP %d: %s", e.StatusCode, e.Body)
}

// transient reports whether the failure is a server-side condition worth
// retrying. Client errors (auth, bad query) never are.
func (e *statusError) transient() bool {
	return e.StatusCode >= 500
}

// graphQLError is a well-formed response whose errors array is non-empty.
type graphQLError struct {
	Messages []string
}

func (e *graphQLError) Error() string {
	return fmt.Sprintf("GraphQL errors: %s", strings.Join(e.Messages, "; "))
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

// post performs a single GraphQL request and decodes the data envelope
// into out.
func (c *Client) post(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	payload, err := json.Marshal(map[string]interface{}{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(envelope.Errors) > 0 {
		gqlErr := &graphQLError{}
		for _, e := range envelope.Errors {
			gqlErr.Messages = append(gqlErr.Messages, e.Message)
		}
		return gqlErr
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode data: %w", err)
		}
	}

	return nil
}

// run executes the request with the transport retry profile. Only
// transient server errors are retried; everything else propagates on
// the first attempt.
func (c *Client) run(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var permanent error
	result := retry.Do(ctx, c.retryCfg, func() error {
		err := c.post(ctx, query, variables, out)
		if err == nil {
			return nil
		}
		var se *statusError
		if errors.As(err, &se) && se.transient() {
			return err
		}
		permanent = err
		return nil
	})

	if permanent != nil {
		return permanent
	}
	if !result.Success {
		return result.LastError
	}
	return nil
}

// ListOpenPullRequests enumerates the repository's open PRs, most
// recently updated first. A non-zero limit stops pagination early.
func (c *Client) ListOpenPullRequests(ctx context.Context, owner, repo string, limit int) ([]models.PullRequest, error) {
	var prs []models.PullRequest
	cursor := ""

	for {
		variables := map[string]interface{}{"owner": owner, "name": repo}
		if cursor != "" {
			variables["cursor"] = cursor
		}

		var data struct {
			Repository *struct {
				PullRequests struct {
					PageInfo pageInfo             `json:"pageInfo"`
					Nodes    []models.PullRequest `json:"nodes"`
				} `json:"pullRequests"`
			} `json:"repository"`
		}
		if err := c.run(ctx, queryOpenPullRequests, variables, &data); err != nil {
			return nil, err
		}
		if data.Repository == nil {
			return nil, fmt.Errorf("%w: %s/%s", ErrRepositoryNotFound, owner, repo)
		}

		conn := data.Repository.PullRequests
		for _, pr := range conn.Nodes {
			prs = append(prs, pr)
			if limit > 0 && len(prs) >= limit {
				return prs, nil
			}
		}

		if !conn.PageInfo.HasNextPage {
			break
		}
		cursor = conn.PageInfo.EndCursor
	}

	return prs, nil
}

// ListReviewThreadIDs enumerates review-thread ids for one PR. A PR that
// disappeared between pagination calls (closed or deleted mid-scan)
// yields an empty list rather than an error.
func (c *Client) ListReviewThreadIDs(ctx context.Context, owner, repo string, prNumber int) ([]string, error) {
	var ids []string
	cursor := ""

	for {
		variables := map[string]interface{}{
			"owner": owner, "name": repo, "number": prNumber,
		}
		if cursor != "" {
			variables["cursor"] = cursor
		}

		var data struct {
			Repository *struct {
				PullRequest *struct {
					ReviewThreads struct {
						PageInfo pageInfo `json:"pageInfo"`
						Nodes    []struct {
							ID string `json:"id"`
						} `json:"nodes"`
					} `json:"reviewThreads"`
				} `json:"pullRequest"`
			} `json:"repository"`
		}
		if err := c.run(ctx, queryReviewThreadIDs, variables, &data); err != nil {
			return nil, err
		}
		if data.Repository == nil {
			return nil, fmt.Errorf("%w: %s/%s", ErrRepositoryNotFound, owner, repo)
		}
		if data.Repository.PullRequest == nil {
			log.Debug().Int("pr", prNumber).Msg("pull request vanished mid-scan, skipping")
			return nil, nil
		}

		conn := data.Repository.PullRequest.ReviewThreads
		for _, n := range conn.Nodes {
			ids = append(ids, n.ID)
		}

		if !conn.PageInfo.HasNextPage {
			break
		}
		cursor = conn.PageInfo.EndCursor
	}

	return ids, nil
}

// rawComment mirrors the comment node shape on the wire.
type rawComment struct {
	ID         string    `json:"id"`
	DatabaseID *int64    `json:"databaseId"`
	URL        string    `json:"url"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
	Path       string    `json:"path"`
	Author     *struct {
		Login string `json:"login"`
	} `json:"author"`
	ReplyTo *struct {
		ID string `json:"id"`
	} `json:"replyTo"`
	StartLine         *int `json:"startLine"`
	Line              *int `json:"line"`
	OriginalStartLine *int `json:"originalStartLine"`
	OriginalLine      *int `json:"originalLine"`
}

func (rc *rawComment) toModel(threadID string, prNumber int) models.Comment {
	c := models.Comment{
		ID:                rc.ID,
		DatabaseID:        rc.DatabaseID,
		URL:               rc.URL,
		Body:              rc.Body,
		CreatedAt:         rc.CreatedAt,
		Path:              rc.Path,
		ThreadID:          threadID,
		PullRequestNumber: prNumber,
		StartLine:         rc.StartLine,
		Line:              rc.Line,
		OriginalStartLine: rc.OriginalStartLine,
		OriginalLine:      rc.OriginalLine,
	}
	if rc.Author != nil {
		c.Author = rc.Author.Login
	}
	if rc.ReplyTo != nil {
		c.ReplyTo = rc.ReplyTo.ID
	}
	return c
}

// ListThreadComments fetches every comment of one review thread, stamped
// with the owning thread id and PR number.
func (c *Client) ListThreadComments(ctx context.Context, threadID string, prNumber int) ([]models.Comment, error) {
	var comments []models.Comment
	cursor := ""

	for {
		variables := map[string]interface{}{"id": threadID}
		if cursor != "" {
			variables["cursor"] = cursor
		}

		var data struct {
			Node *struct {
				ID       string `json:"id"`
				Comments struct {
					PageInfo pageInfo     `json:"pageInfo"`
					Nodes    []rawComment `json:"nodes"`
				} `json:"comments"`
			} `json:"node"`
		}
		if err := c.run(ctx, queryThreadComments, variables, &data); err != nil {
			return nil, err
		}
		if data.Node == nil {
			break
		}

		conn := data.Node.Comments
		for i := range conn.Nodes {
			comments = append(comments, conn.Nodes[i].toModel(threadID, prNumber))
		}

		if !conn.PageInfo.HasNextPage {
			break
		}
		cursor = conn.PageInfo.EndCursor
	}

	return comments, nil
}

// PullRequestInfo reads one PR's head/base branch names and title.
func (c *Client) PullRequestInfo(ctx context.Context, owner, repo string, number int) (*models.PullRequest, error) {
	variables := map[string]interface{}{
		"owner": owner, "name": repo, "number": number,
	}

	var data struct {
		Repository *struct {
			PullRequest *models.PullRequest `json:"pullRequest"`
		} `json:"repository"`
	}
	if err := c.run(ctx, queryPullRequestInfo, variables, &data); err != nil {
		return nil, err
	}
	if data.Repository == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrRepositoryNotFound, owner, repo)
	}
	if data.Repository.PullRequest == nil {
		return nil, fmt.Errorf("pull request #%d not found in %s/%s", number, owner, repo)
	}

	return data.Repository.PullRequest, nil
}

// ReplyToThread posts a reply to a review thread and returns the created
// comment.
func (c *Client) ReplyToThread(ctx context.Context, threadID, body string) (*models.CreatedComment, error) {
	variables := map[string]interface{}{"threadId": threadID, "body": body}

	var data struct {
		AddPullRequestReviewThreadReply *struct {
			Comment struct {
				ID        string    `json:"id"`
				URL       string    `json:"url"`
				CreatedAt time.Time `json:"createdAt"`
				Author    *struct {
					Login string `json:"login"`
				} `json:"author"`
			} `json:"comment"`
		} `json:"addPullRequestReviewThreadReply"`
	}
	if err := c.run(ctx, mutationReplyToThread, variables, &data); err != nil {
		return nil, err
	}
	if data.AddPullRequestReviewThreadReply == nil {
		return nil, fmt.Errorf("reply mutation returned no comment for thread %s", threadID)
	}

	created := &models.CreatedComment{
		ID:        data.AddPullRequestReviewThreadReply.Comment.ID,
		URL:       data.AddPullRequestReviewThreadReply.Comment.URL,
		CreatedAt: data.AddPullRequestReviewThreadReply.Comment.CreatedAt,
	}
	if a := data.AddPullRequestReviewThreadReply.Comment.Author; a != nil {
		created.Author = a.Login
	}
	return created, nil
}

// ThreadForComment resolves a bare review-comment id to its parent
// thread id by scanning the owning PR's threads.
func (c *Client) ThreadForComment(ctx context.Context, owner, repo, commentID string) (string, error) {
	var data struct {
		Node *struct {
			ID          string `json:"id"`
			PullRequest *struct {
				Number int `json:"number"`
			} `json:"pullRequest"`
		} `json:"node"`
	}
	if err := c.run(ctx, queryCommentPullRequest, map[string]interface{}{"id": commentID}, &data); err != nil {
		return "", err
	}
	if data.Node == nil || data.Node.PullRequest == nil {
		return "", fmt.Errorf("%w: %s", ErrCommentNotFound, commentID)
	}

	prNumber := data.Node.PullRequest.Number
	threadIDs, err := c.ListReviewThreadIDs(ctx, owner, repo, prNumber)
	if err != nil {
		return "", err
	}

	for _, threadID := range threadIDs {
		comments, err := c.ListThreadComments(ctx, threadID, prNumber)
		if err != nil {
			return "", err
		}
		for _, cm := range comments {
			if cm.ID == commentID {
				return threadID, nil
			}
		}
	}

	return "", fmt.Errorf("%w: %s", ErrThreadNotFound, commentID)
}
