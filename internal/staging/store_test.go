package staging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-github/v62/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	dir, err := NewDirStore(filepath.Join(t.TempDir(), "staging"))
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"dir":    dir,
	}
}

func TestStore_WriteThenRead(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			prs := []*github.PullRequest{
				{Number: github.Int(1), User: &github.User{Login: github.String("a"), Type: github.String("User")}},
				{Number: github.Int(2), User: &github.User{Login: github.String("b"), Type: github.String("User")}},
			}
			require.NoError(t, store.WritePullRequests(prs))
			require.NoError(t, store.WriteMergedPullRequests(prs[:1]))
			require.NoError(t, store.WriteReviews(1, []*github.PullRequestReview{{ID: github.Int64(10), State: github.String("APPROVED")}}))
			require.NoError(t, store.WriteReviews(2, []*github.PullRequestReview{}))
			require.NoError(t, store.WriteReviewComments(1, []*github.PullRequestComment{{ID: github.Int64(20)}}))
			require.NoError(t, store.WriteIssueComments([]*github.IssueComment{{ID: github.Int64(30), IssueURL: github.String("https://api.github.com/repos/o/r/issues/2")}}))

			gotPRs, err := store.PullRequests()
			require.NoError(t, err)
			require.Len(t, gotPRs, 2)
			assert.Equal(t, "b", gotPRs[1].GetUser().GetLogin())

			merged, err := store.MergedPullRequests()
			require.NoError(t, err)
			require.Len(t, merged, 1)
			assert.Equal(t, 1, merged[0].GetNumber())

			reviews, err := store.Reviews()
			require.NoError(t, err)
			assert.Equal(t, []int{1, 2}, SortedKeys(reviews))
			assert.Equal(t, "APPROVED", reviews[1][0].GetState())

			comments, err := store.ReviewComments()
			require.NoError(t, err)
			assert.Equal(t, int64(20), comments[1][0].GetID())

			issueComments, err := store.IssueComments()
			require.NoError(t, err)
			assert.Equal(t, "https://api.github.com/repos/o/r/issues/2", issueComments[0].GetIssueURL())
		})
	}
}

func TestDirStore_UsesRawFileNames(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDirStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.WritePullRequests(nil))
	require.NoError(t, store.WriteMergedPullRequests(nil))
	require.NoError(t, store.WriteReviews(12, nil))
	require.NoError(t, store.WriteReviewComments(12, nil))
	require.NoError(t, store.WriteIssueComments(nil))

	for _, name := range []string{"pulls.json", "merged_pulls.json", "reviews_12.json", "pr_comments_12.json", "comments.json"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestDirStore_RejectsForeignPerPRFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDirStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reviews_abc.json"), []byte("[]"), 0o644))

	_, err = store.Reviews()

	assert.ErrorContains(t, err, "reviews_abc.json")
}

func TestDirStore_MissingDocumentsReadEmpty(t *testing.T) {
	store, err := NewDirStore(t.TempDir())
	require.NoError(t, err)

	prs, err := store.PullRequests()
	require.NoError(t, err)
	assert.Empty(t, prs)

	reviews, err := store.Reviews()
	require.NoError(t, err)
	assert.Empty(t, reviews)
}
