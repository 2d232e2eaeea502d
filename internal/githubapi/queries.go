package githubapi

// GraphQL documents for the review-thread scan. Pagination is
// cursor-based on every connection (pageInfo { hasNextPage endCursor }).

const queryOpenPullRequests = `
query($owner: String!, $name: String!, $cursor: String) {
  repository(owner: $owner, name: $name) {
    pullRequests(
      states: OPEN
      first: 50
      after: $cursor
      orderBy: { field: UPDATED_AT, direction: DESC }
    ) {
      pageInfo { hasNextPage endCursor }
      nodes { number url title headRefName baseRefName }
    }
  }
}
`

const queryReviewThreadIDs = `
query($owner: String!, $name: String!, $number: Int!, $cursor: String) {
  repository(owner: $owner, name: $name) {
    pullRequest(number: $number) {
      reviewThreads(first: 50, after: $cursor) {
        pageInfo { hasNextPage endCursor }
        nodes { id }
      }
    }
  }
}
`

const queryThreadComments = `
query($id: ID!, $cursor: String) {
  node(id: $id) {
    ... on PullRequestReviewThread {
      id
      path
      comments(first: 100, after: $cursor) {
        pageInfo { hasNextPage endCursor }
        nodes {
          id
          databaseId
          url
          body
          createdAt
          path
          author { login }
          replyTo { id }
          startLine
          line
          originalStartLine
          originalLine
        }
      }
    }
  }
}
`

const queryPullRequestInfo = `
query($owner: String!, $name: String!, $number: Int!) {
  repository(owner: $owner, name: $name) {
    pullRequest(number: $number) {
      number
      url
      title
      headRefName
      baseRefName
    }
  }
}
`

const queryCommentPullRequest = `
query($id: ID!) {
  node(id: $id) {
    ... on PullRequestReviewComment {
      id
      pullRequest { number }
    }
  }
}
`

const mutationReplyToThread = `
mutation($threadId: ID!, $body: String!) {
  addPullRequestReviewThreadReply(input: {
    pullRequestReviewThreadId: $threadId
    body: $body
  }) {
    comment {
      id
      url
      createdAt
      author { login }
    }
  }
}
`
