package usecase

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/pr-engagement/internal/domain"
	"github.com/naka-gawa/pr-engagement/internal/staging"
	"github.com/sirupsen/logrus"
)

const (
	botUserType   = "Bot"
	approvedState = "APPROVED"
)

// Aggregator folds the staged documents into a single activity log.
type Aggregator struct {
	logger logrus.FieldLogger
}

// NewAggregator creates a new Aggregator instance.
func NewAggregator(logger logrus.FieldLogger) *Aggregator {
	return &Aggregator{logger: logger}
}

// Aggregate reads the five staged documents and emits one event per non-bot record,
// in the order: PRs, merges, reviews, review comments, issue comments. The PR author
// index is built first since every later stream needs it.
func (a *Aggregator) Aggregate(r staging.Reader) (*domain.ActivityLog, error) {
	a.logger.Println("Usecase: Starting activity aggregation...")
	log := domain.NewActivityLog()

	prs, err := r.PullRequests()
	if err != nil {
		return nil, fmt.Errorf("failed to read pull requests: %w", err)
	}
	for _, pr := range prs {
		if !isHuman(pr.GetUser()) {
			continue
		}
		user := pr.GetUser().GetLogin()
		log.Append(domain.ActivityEvent{User: user, Kind: domain.KindPRCreated, PRNumber: pr.GetNumber()})
		log.PRAuthors[pr.GetNumber()] = user
	}

	merged, err := r.MergedPullRequests()
	if err != nil {
		return nil, fmt.Errorf("failed to read merged pull requests: %w", err)
	}
	for _, pr := range merged {
		if !isHuman(pr.GetUser()) {
			continue
		}
		log.Append(domain.ActivityEvent{User: pr.GetUser().GetLogin(), Kind: domain.KindPRMerged, PRNumber: pr.GetNumber()})
	}

	reviews, err := r.Reviews()
	if err != nil {
		return nil, fmt.Errorf("failed to read reviews: %w", err)
	}
	for _, number := range staging.SortedKeys(reviews) {
		for _, review := range reviews[number] {
			if !isHuman(review.GetUser()) {
				continue
			}
			kind := domain.KindReview
			if review.GetState() == approvedState {
				kind = domain.KindApproval
			}
			log.Append(domain.ActivityEvent{
				User:     review.GetUser().GetLogin(),
				Kind:     kind,
				PRNumber: number,
				EventID:  review.GetID(),
				PRAuthor: log.PRAuthors[number],
			})
		}
	}

	reviewComments, err := r.ReviewComments()
	if err != nil {
		return nil, fmt.Errorf("failed to read review comments: %w", err)
	}
	for _, number := range staging.SortedKeys(reviewComments) {
		for _, comment := range reviewComments[number] {
			if !isHuman(comment.GetUser()) {
				continue
			}
			log.Append(domain.ActivityEvent{
				User:     comment.GetUser().GetLogin(),
				Kind:     domain.KindReviewComment,
				PRNumber: number,
				EventID:  comment.GetID(),
				PRAuthor: log.PRAuthors[number],
			})
		}
	}

	issueComments, err := r.IssueComments()
	if err != nil {
		return nil, fmt.Errorf("failed to read issue comments: %w", err)
	}
	for _, comment := range issueComments {
		if !isHuman(comment.GetUser()) {
			continue
		}
		number, ok := issueNumber(comment.GetIssueURL())
		if !ok {
			a.logger.WithField("comment_id", comment.GetID()).Debug("Skipping comment without an issue reference")
			continue
		}
		log.Append(domain.ActivityEvent{
			User:     comment.GetUser().GetLogin(),
			Kind:     domain.KindIssueComment,
			PRNumber: number,
			EventID:  comment.GetID(),
			PRAuthor: log.PRAuthors[number],
		})
	}

	a.logger.WithFields(logrus.Fields{"events": len(log.Events), "prs": log.TotalPRs()}).Println("Usecase: Aggregation complete.")
	return log, nil
}

// isHuman rejects bot accounts and records with no author (deleted users).
func isHuman(u *github.User) bool {
	return u != nil && u.GetLogin() != "" && u.GetType() != botUserType
}

// issueNumber parses the trailing path segment of an issue URL such as
// https://api.github.com/repos/o/r/issues/42.
func issueNumber(issueURL string) (int, bool) {
	if issueURL == "" {
		return 0, false
	}
	segment := issueURL[strings.LastIndex(issueURL, "/")+1:]
	number, err := strconv.Atoi(segment)
	if err != nil || number <= 0 {
		return 0, false
	}
	return number, true
}
