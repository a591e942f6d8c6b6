package usecase

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/pr-engagement/internal/domain"
	"github.com/naka-gawa/pr-engagement/internal/staging"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockFetcher is a mock implementation of the gateway.Fetcher interface.
// It allows us to simulate the behavior of the GitHub gateway without making real API calls.
type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) PrimeRateBudget(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockFetcher) FetchPullRequests(ctx context.Context, since time.Time) ([]*github.PullRequest, error) {
	args := m.Called(ctx, since)
	// We need to handle the case where the returned slice is nil (e.g., when an error occurs).
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*github.PullRequest), args.Error(1)
}

func (m *mockFetcher) FetchReviews(ctx context.Context, number int) ([]*github.PullRequestReview, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*github.PullRequestReview), args.Error(1)
}

func (m *mockFetcher) FetchReviewComments(ctx context.Context, number int, since time.Time) ([]*github.PullRequestComment, error) {
	args := m.Called(ctx, number, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*github.PullRequestComment), args.Error(1)
}

func (m *mockFetcher) FetchIssueComments(ctx context.Context, since time.Time) ([]*github.IssueComment, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*github.IssueComment), args.Error(1)
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var testWindow = domain.Window{
	Start: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC),
}

func user(login string) *github.User {
	return &github.User{Login: github.String(login), Type: github.String("User")}
}

func bot(login string) *github.User {
	return &github.User{Login: github.String(login), Type: github.String("Bot")}
}

func ts(t time.Time) *github.Timestamp {
	return &github.Timestamp{Time: t}
}

func pr(number int, author *github.User, updated time.Time, merged *time.Time) *github.PullRequest {
	p := &github.PullRequest{Number: github.Int(number), User: author, UpdatedAt: ts(updated)}
	if merged != nil {
		p.MergedAt = ts(*merged)
	}
	return p
}

func TestCollector_Collect(t *testing.T) {
	mergedIn := time.Date(2026, 10, 3, 0, 0, 0, 0, time.UTC)
	mergedBefore := time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC)
	prs := []*github.PullRequest{
		pr(4, user("a"), time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), nil), // updated after the window
		pr(3, user("a"), time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC), &mergedIn),
		pr(2, user("b"), time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC), &mergedBefore),
		pr(1, user("a"), time.Date(2026, 9, 25, 0, 0, 0, 0, time.UTC), nil),
	}
	reviews3 := []*github.PullRequestReview{{ID: github.Int64(30), User: user("b"), State: github.String("APPROVED")}}
	reviews2 := []*github.PullRequestReview{}
	comments3 := []*github.PullRequestComment{{ID: github.Int64(31), User: user("b")}}
	issueComments := []*github.IssueComment{{ID: github.Int64(99), User: user("c"), IssueURL: github.String("https://api.github.com/repos/o/r/issues/3")}}

	fetcher := new(mockFetcher)
	fetcher.On("PrimeRateBudget", mock.Anything).Return(nil)
	fetcher.On("FetchPullRequests", mock.Anything, testWindow.Start).Return(prs, nil)
	fetcher.On("FetchReviews", mock.Anything, 3).Return(reviews3, nil)
	fetcher.On("FetchReviews", mock.Anything, 2).Return(reviews2, nil)
	fetcher.On("FetchReviewComments", mock.Anything, 3, testWindow.Start).Return(comments3, nil)
	fetcher.On("FetchReviewComments", mock.Anything, 2, testWindow.Start).Return([]*github.PullRequestComment{}, nil)
	fetcher.On("FetchIssueComments", mock.Anything, testWindow.Start).Return(issueComments, nil)

	store := staging.NewMemoryStore()
	collector := NewCollector(fetcher, store, discardLogger(), 1)

	err := collector.Collect(context.Background(), testWindow)

	require.NoError(t, err)
	fetcher.AssertExpectations(t)
	fetcher.AssertNotCalled(t, "FetchReviews", mock.Anything, 1)
	fetcher.AssertNotCalled(t, "FetchReviews", mock.Anything, 4)

	staged, _ := store.PullRequests()
	require.Len(t, staged, 2)
	assert.Equal(t, 3, staged[0].GetNumber())
	assert.Equal(t, 2, staged[1].GetNumber())

	merged, _ := store.MergedPullRequests()
	require.Len(t, merged, 1)
	assert.Equal(t, 3, merged[0].GetNumber())

	storedReviews, _ := store.Reviews()
	assert.Equal(t, reviews3, storedReviews[3])
	storedComments, _ := store.ReviewComments()
	assert.Equal(t, comments3, storedComments[3])
	storedIssueComments, _ := store.IssueComments()
	assert.Equal(t, issueComments, storedIssueComments)
}

func TestCollector_CollectErrors(t *testing.T) {
	inWindow := time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC)
	apiErr := errors.New("github api error")

	testCases := []struct {
		name  string
		setup func(f *mockFetcher)
	}{
		{
			name: "listing pull requests fails",
			setup: func(f *mockFetcher) {
				f.On("FetchPullRequests", mock.Anything, mock.Anything).Return(nil, apiErr)
			},
		},
		{
			name: "reviews for one PR fail",
			setup: func(f *mockFetcher) {
				f.On("FetchPullRequests", mock.Anything, mock.Anything).Return([]*github.PullRequest{pr(1, user("a"), inWindow, nil)}, nil)
				f.On("FetchReviews", mock.Anything, 1).Return(nil, apiErr)
				f.On("FetchReviewComments", mock.Anything, 1, mock.Anything).Return([]*github.PullRequestComment{}, nil).Maybe()
			},
		},
		{
			name: "issue comments fail",
			setup: func(f *mockFetcher) {
				f.On("FetchPullRequests", mock.Anything, mock.Anything).Return([]*github.PullRequest{}, nil)
				f.On("FetchIssueComments", mock.Anything, mock.Anything).Return(nil, apiErr)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fetcher := new(mockFetcher)
			fetcher.On("PrimeRateBudget", mock.Anything).Return(nil)
			tc.setup(fetcher)
			collector := NewCollector(fetcher, staging.NewMemoryStore(), discardLogger(), DefaultBatchSize)

			err := collector.Collect(context.Background(), testWindow)

			require.Error(t, err)
			assert.ErrorIs(t, err, apiErr)
			assert.Contains(t, err.Error(), "failed to collect GitHub data")
		})
	}
}

func TestCollector_PrimeFailureIsNotFatal(t *testing.T) {
	fetcher := new(mockFetcher)
	fetcher.On("PrimeRateBudget", mock.Anything).Return(errors.New("graphql unavailable"))
	fetcher.On("FetchPullRequests", mock.Anything, mock.Anything).Return([]*github.PullRequest{}, nil)
	fetcher.On("FetchIssueComments", mock.Anything, mock.Anything).Return([]*github.IssueComment{}, nil)

	err := NewCollector(fetcher, staging.NewMemoryStore(), discardLogger(), 0).Collect(context.Background(), testWindow)

	assert.NoError(t, err)
}

// countingFetcher records how many per-PR fetches are in flight at once.
type countingFetcher struct {
	prs      []*github.PullRequest
	inFlight int32
	peak     int32
}

func (f *countingFetcher) track() func() {
	n := atomic.AddInt32(&f.inFlight, 1)
	for {
		peak := atomic.LoadInt32(&f.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&f.peak, peak, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return func() { atomic.AddInt32(&f.inFlight, -1) }
}

func (f *countingFetcher) PrimeRateBudget(ctx context.Context) error { return nil }

func (f *countingFetcher) FetchPullRequests(ctx context.Context, since time.Time) ([]*github.PullRequest, error) {
	return f.prs, nil
}

func (f *countingFetcher) FetchReviews(ctx context.Context, number int) ([]*github.PullRequestReview, error) {
	defer f.track()()
	return nil, nil
}

func (f *countingFetcher) FetchReviewComments(ctx context.Context, number int, since time.Time) ([]*github.PullRequestComment, error) {
	defer f.track()()
	return nil, nil
}

func (f *countingFetcher) FetchIssueComments(ctx context.Context, since time.Time) ([]*github.IssueComment, error) {
	return nil, nil
}

func TestCollector_BoundsConcurrencyByBatch(t *testing.T) {
	inWindow := time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC)
	fetcher := &countingFetcher{}
	for i := 1; i <= 12; i++ {
		fetcher.prs = append(fetcher.prs, pr(i, user("a"), inWindow, nil))
	}
	store := staging.NewMemoryStore()

	err := NewCollector(fetcher, store, discardLogger(), 3).Collect(context.Background(), testWindow)

	require.NoError(t, err)
	// Each PR issues two requests, so a batch of three has at most six in flight.
	assert.LessOrEqual(t, atomic.LoadInt32(&fetcher.peak), int32(6))
	reviews, _ := store.Reviews()
	assert.Len(t, reviews, 12)
}
