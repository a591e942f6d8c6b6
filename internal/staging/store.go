// Package staging holds the raw per-resource documents produced by collection
// until aggregation reads them back. Documents keep GitHub's field names.
package staging

import (
	"sort"
	"sync"

	"github.com/google/go-github/v62/github"
)

// Writer receives the five documents of a collection run. Per-PR writes may be
// called concurrently for different PR numbers.
type Writer interface {
	WritePullRequests(prs []*github.PullRequest) error
	WriteMergedPullRequests(prs []*github.PullRequest) error
	WriteReviews(number int, reviews []*github.PullRequestReview) error
	WriteReviewComments(number int, comments []*github.PullRequestComment) error
	WriteIssueComments(comments []*github.IssueComment) error
}

// Reader returns the documents written by a Writer.
type Reader interface {
	PullRequests() ([]*github.PullRequest, error)
	MergedPullRequests() ([]*github.PullRequest, error)
	Reviews() (map[int][]*github.PullRequestReview, error)
	ReviewComments() (map[int][]*github.PullRequestComment, error)
	IssueComments() ([]*github.IssueComment, error)
}

// Store is both ends of the staging boundary.
type Store interface {
	Writer
	Reader
}

// MemoryStore keeps staged documents in process memory.
type MemoryStore struct {
	mu             sync.Mutex
	pulls          []*github.PullRequest
	mergedPulls    []*github.PullRequest
	reviews        map[int][]*github.PullRequestReview
	reviewComments map[int][]*github.PullRequestComment
	issueComments  []*github.IssueComment
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reviews:        make(map[int][]*github.PullRequestReview),
		reviewComments: make(map[int][]*github.PullRequestComment),
	}
}

func (s *MemoryStore) WritePullRequests(prs []*github.PullRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pulls = prs
	return nil
}

func (s *MemoryStore) WriteMergedPullRequests(prs []*github.PullRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergedPulls = prs
	return nil
}

func (s *MemoryStore) WriteReviews(number int, reviews []*github.PullRequestReview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews[number] = reviews
	return nil
}

func (s *MemoryStore) WriteReviewComments(number int, comments []*github.PullRequestComment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviewComments[number] = comments
	return nil
}

func (s *MemoryStore) WriteIssueComments(comments []*github.IssueComment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issueComments = comments
	return nil
}

func (s *MemoryStore) PullRequests() ([]*github.PullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulls, nil
}

func (s *MemoryStore) MergedPullRequests() ([]*github.PullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergedPulls, nil
}

func (s *MemoryStore) Reviews() (map[int][]*github.PullRequestReview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reviews, nil
}

func (s *MemoryStore) ReviewComments() (map[int][]*github.PullRequestComment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reviewComments, nil
}

func (s *MemoryStore) IssueComments() ([]*github.IssueComment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueComments, nil
}

// SortedKeys returns the PR numbers of a per-PR document in ascending order.
func SortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
