// Package gateway provides a gateway to the GitHub API,
// abstracting away pagination, throttling and the underlying REST and GraphQL clients.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/shurcooL/githubv4"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
)

// DefaultAPIURL is the public GitHub REST endpoint.
const DefaultAPIURL = "https://api.github.com"

const (
	perPage   = "100"
	userAgent = "pr-engagement"
)

// Fetcher defines the behavior of a gateway for fetching review activity from one repository.
type Fetcher interface {
	// PrimeRateBudget seeds the shared rate budget before any REST traffic.
	PrimeRateBudget(ctx context.Context) error
	FetchPullRequests(ctx context.Context, since time.Time) ([]*github.PullRequest, error)
	FetchReviews(ctx context.Context, number int) ([]*github.PullRequestReview, error)
	FetchReviewComments(ctx context.Context, number int, since time.Time) ([]*github.PullRequestComment, error)
	FetchIssueComments(ctx context.Context, since time.Time) ([]*github.IssueComment, error)
}

// Options tunes the transport and pagination of a GitHubGateway.
type Options struct {
	APIURL         string
	RequestTimeout time.Duration
	PageDelay      time.Duration
	RetryDelay     time.Duration
}

// GitHubGateway is the concrete implementation of the Fetcher interface.
type GitHubGateway struct {
	restClient    *github.Client
	paginator     *Paginator
	graphqlClient *githubv4.Client
	owner         string
	repo          string
	logger        logrus.FieldLogger
}

// repositoryQuery resolves the browser URL of a repository, which differs from the
// API host on GitHub Enterprise.
type repositoryQuery struct {
	Repository struct {
		URL githubv4.URI
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// NewGitHubGateway is a constructor that creates a new instance of GitHubGateway.
// budget is shared with any other gateway of the same run; nil creates a private one.
func NewGitHubGateway(token, owner, repo string, opts Options, budget *RateBudget, logger logrus.FieldLogger) (*GitHubGateway, error) {
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(1*time.Hour, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := &http.Client{
		Timeout: opts.RequestTimeout,
		Transport: &oauth2.Transport{
			Base:   rateLimitWaiter,
			Source: ts,
		},
	}

	apiURL := strings.TrimSuffix(opts.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	restClient := github.NewClient(httpClient)
	restClient.UserAgent = userAgent
	var graphqlClient *githubv4.Client
	if apiURL == DefaultAPIURL {
		graphqlClient = githubv4.NewClient(httpClient)
	} else {
		baseURL, err := url.Parse(apiURL + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid API URL %q: %w", opts.APIURL, err)
		}
		restClient.BaseURL = baseURL
		// GitHub Enterprise serves REST under /api/v3 and GraphQL under /api/graphql.
		graphqlClient = githubv4.NewEnterpriseClient(strings.TrimSuffix(apiURL, "/v3")+"/graphql", httpClient)
	}

	var pagOpts []PaginatorOption
	if opts.PageDelay > 0 {
		pagOpts = append(pagOpts, WithPageDelay(opts.PageDelay))
	}
	if opts.RetryDelay > 0 {
		pagOpts = append(pagOpts, WithRetryDelay(opts.RetryDelay))
	}

	return &GitHubGateway{
		restClient:    restClient,
		paginator:     NewPaginator(restClient, budget, logger, pagOpts...),
		graphqlClient: graphqlClient,
		owner:         owner,
		repo:          repo,
		logger:        logger,
	}, nil
}

func (g *GitHubGateway) repoPath(suffix string) string {
	return fmt.Sprintf("/repos/%s/%s%s", url.PathEscape(g.owner), url.PathEscape(g.repo), suffix)
}

// PrimeRateBudget reads the REST core quota from /rate_limit, which costs no quota
// itself, and seeds the shared budget. It makes a single attempt since the first
// listing response refreshes the budget anyway.
func (g *GitHubGateway) PrimeRateBudget(ctx context.Context) error {
	limits, _, err := g.restClient.RateLimit.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to query rate limit: %w", err)
	}
	core := limits.GetCore()
	if core == nil {
		return errors.New("rate limit response has no core quota")
	}
	g.paginator.Budget().Set(core.Remaining, core.Reset.Time, time.Now())
	g.logger.WithFields(logrus.Fields{
		"remaining": core.Remaining,
		"reset_at":  core.Reset.Time,
	}).Debug("Primed rate budget")
	return nil
}

// RepositoryWebURL asks the GraphQL API for the repository's browser URL.
// The lookup is retried twice at most.
func (g *GitHubGateway) RepositoryWebURL(ctx context.Context) (string, error) {
	var q repositoryQuery
	variables := map[string]interface{}{
		"owner": githubv4.String(g.owner),
		"name":  githubv4.String(g.repo),
	}
	err := RetryWithBackoff(ctx, 2, 500*time.Millisecond, func(ctx context.Context) error {
		return g.graphqlClient.Query(ctx, &q, variables)
	})
	if err != nil {
		return "", fmt.Errorf("failed to look up repository %s/%s: %w", g.owner, g.repo, err)
	}
	if q.Repository.URL.URL == nil {
		return "", fmt.Errorf("repository %s/%s has no URL", g.owner, g.repo)
	}
	return q.Repository.URL.String(), nil
}

// FetchPullRequests lists every PR sorted by last update, newest first, and stops
// paginating once a page ends with a PR last updated before since. Results are not
// filtered further; the caller applies the window.
func (g *GitHubGateway) FetchPullRequests(ctx context.Context, since time.Time) ([]*github.PullRequest, error) {
	g.logger.Println("Fetching pull requests...")
	params := url.Values{
		"state":     {"all"},
		"sort":      {"updated"},
		"direction": {"desc"},
		"per_page":  {perPage},
	}
	// Only update order guarantees pages age monotonically; creation order does not.
	stillInWindow := func(page []*github.PullRequest) bool {
		if len(page) == 0 {
			return false
		}
		return !page[len(page)-1].GetUpdatedAt().Before(since)
	}
	prs, err := FetchAllPages(ctx, g.paginator, g.repoPath("/pulls"), params, stillInWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to list pull requests: %w", err)
	}
	g.logger.Printf("Completed fetching %d pull requests.", len(prs))
	return prs, nil
}

// FetchReviews lists every review submitted on a PR.
func (g *GitHubGateway) FetchReviews(ctx context.Context, number int) ([]*github.PullRequestReview, error) {
	params := url.Values{"per_page": {perPage}}
	reviews, err := FetchAllPages[*github.PullRequestReview](ctx, g.paginator, g.repoPath(fmt.Sprintf("/pulls/%d/reviews", number)), params, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews for PR #%d: %w", number, err)
	}
	return reviews, nil
}

// FetchReviewComments lists the inline review comments on a PR created or updated since since.
func (g *GitHubGateway) FetchReviewComments(ctx context.Context, number int, since time.Time) ([]*github.PullRequestComment, error) {
	params := url.Values{
		"per_page": {perPage},
		"since":    {since.UTC().Format(time.RFC3339)},
	}
	comments, err := FetchAllPages[*github.PullRequestComment](ctx, g.paginator, g.repoPath(fmt.Sprintf("/pulls/%d/comments", number)), params, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list review comments for PR #%d: %w", number, err)
	}
	return comments, nil
}

// FetchIssueComments lists the repository's issue-level comments updated since since.
// No upper bound is applied.
func (g *GitHubGateway) FetchIssueComments(ctx context.Context, since time.Time) ([]*github.IssueComment, error) {
	g.logger.Println("Fetching issue comments...")
	params := url.Values{
		"sort":      {"created"},
		"direction": {"desc"},
		"since":     {since.UTC().Format(time.RFC3339)},
		"per_page":  {perPage},
	}
	comments, err := FetchAllPages[*github.IssueComment](ctx, g.paginator, g.repoPath("/issues/comments"), params, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list issue comments: %w", err)
	}
	g.logger.Printf("Completed fetching %d issue comments.", len(comments))
	return comments, nil
}
