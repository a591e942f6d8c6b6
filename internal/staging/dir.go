package staging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/go-github/v62/github"
)

const (
	pullsFile            = "pulls.json"
	mergedPullsFile      = "merged_pulls.json"
	issueCommentsFile    = "comments.json"
	reviewsPrefix        = "reviews_"
	reviewCommentsPrefix = "pr_comments_"
)

// DirStore stages each document as a JSON file in a directory.
type DirStore struct {
	dir string
}

// NewDirStore creates dir if needed and returns a store rooted there.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory %s: %w", dir, err)
	}
	return &DirStore{dir: dir}, nil
}

// Dir is the directory the store writes to.
func (s *DirStore) Dir() string {
	return s.dir
}

func (s *DirStore) write(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func (s *DirStore) read(name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

// perPR lists files named <prefix><number>.json and returns them keyed by number.
func (s *DirStore) perPR(prefix string) (map[int]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list staging directory: %w", err)
	}
	files := make(map[int]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		number, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json"))
		if err != nil {
			return nil, fmt.Errorf("unexpected staging file %s", name)
		}
		files[number] = name
	}
	return files, nil
}

func (s *DirStore) WritePullRequests(prs []*github.PullRequest) error {
	return s.write(pullsFile, prs)
}

func (s *DirStore) WriteMergedPullRequests(prs []*github.PullRequest) error {
	return s.write(mergedPullsFile, prs)
}

func (s *DirStore) WriteReviews(number int, reviews []*github.PullRequestReview) error {
	return s.write(fmt.Sprintf("%s%d.json", reviewsPrefix, number), reviews)
}

func (s *DirStore) WriteReviewComments(number int, comments []*github.PullRequestComment) error {
	return s.write(fmt.Sprintf("%s%d.json", reviewCommentsPrefix, number), comments)
}

func (s *DirStore) WriteIssueComments(comments []*github.IssueComment) error {
	return s.write(issueCommentsFile, comments)
}

func (s *DirStore) PullRequests() ([]*github.PullRequest, error) {
	var prs []*github.PullRequest
	if err := s.read(pullsFile, &prs); err != nil {
		return nil, err
	}
	return prs, nil
}

func (s *DirStore) MergedPullRequests() ([]*github.PullRequest, error) {
	var prs []*github.PullRequest
	if err := s.read(mergedPullsFile, &prs); err != nil {
		return nil, err
	}
	return prs, nil
}

func (s *DirStore) Reviews() (map[int][]*github.PullRequestReview, error) {
	files, err := s.perPR(reviewsPrefix)
	if err != nil {
		return nil, err
	}
	out := make(map[int][]*github.PullRequestReview, len(files))
	for number, name := range files {
		var reviews []*github.PullRequestReview
		if err := s.read(name, &reviews); err != nil {
			return nil, err
		}
		out[number] = reviews
	}
	return out, nil
}

func (s *DirStore) ReviewComments() (map[int][]*github.PullRequestComment, error) {
	files, err := s.perPR(reviewCommentsPrefix)
	if err != nil {
		return nil, err
	}
	out := make(map[int][]*github.PullRequestComment, len(files))
	for number, name := range files {
		var comments []*github.PullRequestComment
		if err := s.read(name, &comments); err != nil {
			return nil, err
		}
		out[number] = comments
	}
	return out, nil
}

func (s *DirStore) IssueComments() ([]*github.IssueComment, error) {
	var comments []*github.IssueComment
	if err := s.read(issueCommentsFile, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}
