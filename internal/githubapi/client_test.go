package githubapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewpilot/internal/retry"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewClient(server.URL, "test-token")
	c.retryCfg = retry.Config{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		Strategy:   retry.Linear,
	}
	return c
}

func graphQLRequest(t *testing.T, r *http.Request) (query string, variables map[string]interface{}) {
	t.Helper()
	var payload struct {
		Query     string                 `json:"query"`
		Variables map[string]interface{} `json:"variables"`
	}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	return payload.Query, payload.Variables
}

func TestListOpenPullRequests_Paginates(t *testing.T) {
	pages := []string{
		`{"data":{"repository":{"pullRequests":{
			"pageInfo":{"hasNextPage":true,"endCursor":"CUR1"},
			"nodes":[{"number":7,"url":"https://example.com/7","headRefName":"feat-7","baseRefName":"main"}]}}}}`,
		`{"data":{"repository":{"pullRequests":{
			"pageInfo":{"hasNextPage":false,"endCursor":""},
			"nodes":[{"number":9,"url":"https://example.com/9","headRefName":"feat-9","baseRefName":"main"}]}}}}`,
	}

	call := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, vars := graphQLRequest(t, r)
		if call == 1 {
			assert.Equal(t, "CUR1", vars["cursor"])
		}
		w.Write([]byte(pages[call]))
		call++
	})

	prs, err := client.ListOpenPullRequests(context.Background(), "acme", "widgets", 0)
	require.NoError(t, err)
	require.Len(t, prs, 2)
	assert.Equal(t, 7, prs[0].Number)
	assert.Equal(t, 9, prs[1].Number)
	assert.Equal(t, "feat-9", prs[1].HeadBranch)
	assert.Equal(t, 2, call)
}

func TestListOpenPullRequests_LimitStopsPagination(t *testing.T) {
	call := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		call++
		w.Write([]byte(`{"data":{"repository":{"pullRequests":{
			"pageInfo":{"hasNextPage":true,"endCursor":"CUR"},
			"nodes":[{"number":1},{"number":2},{"number":3}]}}}}`))
	})

	prs, err := client.ListOpenPullRequests(context.Background(), "acme", "widgets", 2)
	require.NoError(t, err)
	assert.Len(t, prs, 2)
	assert.Equal(t, 1, call, "limit must stop pagination early")
}

func TestRun_RetriesTransientServerErrors(t *testing.T) {
	call := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		call++
		if call <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"data":{"repository":{"pullRequests":{
			"pageInfo":{"hasNextPage":false,"endCursor":""},
			"nodes":[{"number":4}]}}}}`))
	})

	prs, err := client.ListOpenPullRequests(context.Background(), "acme", "widgets", 0)
	require.NoError(t, err, "503 twice then 200 must succeed without surfacing an error")
	require.Len(t, prs, 1)
	assert.Equal(t, 4, prs[0].Number)
	assert.Equal(t, 3, call)
}

func TestRun_DoesNotRetryClientErrors(t *testing.T) {
	call := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		call++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Bad credentials"}`))
	})

	_, err := client.ListOpenPullRequests(context.Background(), "acme", "widgets", 0)
	require.Error(t, err)
	assert.Equal(t, 1, call, "4xx responses must not be retried")

	var se *statusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
}

func TestRun_GraphQLErrorsAreNotRetried(t *testing.T) {
	call := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		call++
		w.Write([]byte(`{"data":null,"errors":[{"message":"Something went wrong"}]}`))
	})

	_, err := client.ListOpenPullRequests(context.Background(), "acme", "widgets", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Something went wrong")
	assert.Equal(t, 1, call)
}

func TestListOpenPullRequests_RepositoryNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"repository":null}}`))
	})

	_, err := client.ListOpenPullRequests(context.Background(), "acme", "gone", 0)
	assert.ErrorIs(t, err, ErrRepositoryNotFound)
}

func TestListReviewThreadIDs_PullRequestVanished(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"repository":{"pullRequest":null}}}`))
	})

	ids, err := client.ListReviewThreadIDs(context.Background(), "acme", "widgets", 12)
	require.NoError(t, err, "a vanished PR is skipped, not an error")
	assert.Empty(t, ids)
}

func TestListThreadComments_StampsThreadAndPR(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"node":{"id":"THREAD1","comments":{
			"pageInfo":{"hasNextPage":false,"endCursor":""},
			"nodes":[
				{"id":"C1","databaseId":101,"body":"root body","createdAt":"2025-03-01T10:00:00Z",
				 "path":"main.go","author":{"login":"alice"},"replyTo":null,"line":14,"originalLine":12},
				{"id":"C2","body":"reply body","createdAt":"2025-03-01T10:05:00Z",
				 "path":"main.go","author":null,"replyTo":{"id":"C1"}}
			]}}}}`))
	})

	comments, err := client.ListThreadComments(context.Background(), "THREAD1", 42)
	require.NoError(t, err)
	require.Len(t, comments, 2)

	root := comments[0]
	assert.Equal(t, "C1", root.ID)
	assert.Equal(t, "THREAD1", root.ThreadID)
	assert.Equal(t, 42, root.PullRequestNumber)
	assert.Equal(t, "alice", root.Author)
	assert.True(t, root.IsRoot())
	require.NotNil(t, root.Line)
	assert.Equal(t, 14, *root.Line)
	require.NotNil(t, root.OriginalLine)
	assert.Equal(t, 12, *root.OriginalLine)

	reply := comments[1]
	assert.Equal(t, "C1", reply.ReplyTo)
	assert.Empty(t, reply.Author, "deleted authors decode as empty")
}

func TestReplyToThread_ReturnsCreatedComment(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, vars := graphQLRequest(t, r)
		assert.Equal(t, "THREAD1", vars["threadId"])
		assert.Equal(t, "thanks, fixed", vars["body"])
		w.Write([]byte(`{"data":{"addPullRequestReviewThreadReply":{"comment":{
			"id":"NEW1","url":"https://example.com/NEW1",
			"createdAt":"2025-03-01T11:00:00Z","author":{"login":"reviewpilot"}}}}}`))
	})

	created, err := client.ReplyToThread(context.Background(), "THREAD1", "thanks, fixed")
	require.NoError(t, err)
	assert.Equal(t, "NEW1", created.ID)
	assert.Equal(t, "reviewpilot", created.Author)
}

func TestThreadForComment_ResolvesViaOwningPR(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query, vars := graphQLRequest(t, r)
		switch {
		case strings.Contains(query, "PullRequestReviewComment"):
			w.Write([]byte(`{"data":{"node":{"id":"C2","pullRequest":{"number":5}}}}`))
		case strings.Contains(query, "reviewThreads"):
			w.Write([]byte(`{"data":{"repository":{"pullRequest":{"reviewThreads":{
				"pageInfo":{"hasNextPage":false,"endCursor":""},
				"nodes":[{"id":"T1"},{"id":"T2"}]}}}}}`))
		case vars["id"] == "T1":
			w.Write([]byte(`{"data":{"node":{"id":"T1","comments":{
				"pageInfo":{"hasNextPage":false,"endCursor":""},
				"nodes":[{"id":"OTHER","createdAt":"2025-03-01T09:00:00Z"}]}}}}`))
		default:
			w.Write([]byte(`{"data":{"node":{"id":"T2","comments":{
				"pageInfo":{"hasNextPage":false,"endCursor":""},
				"nodes":[{"id":"C2","createdAt":"2025-03-01T10:00:00Z"}]}}}}`))
		}
	})

	threadID, err := client.ThreadForComment(context.Background(), "acme", "widgets", "C2")
	require.NoError(t, err)
	assert.Equal(t, "T2", threadID)
}

func TestThreadForComment_UnknownComment(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"node":null}}`))
	})

	_, err := client.ThreadForComment(context.Background(), "acme", "widgets", "NOPE")
	assert.ErrorIs(t, err, ErrCommentNotFound)
}
