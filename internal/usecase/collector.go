// Package usecase contains the business logic of the application.
package usecase

import (
	"context"
	"fmt"

	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/pr-engagement/internal/domain"
	"github.com/naka-gawa/pr-engagement/internal/gateway"
	"github.com/naka-gawa/pr-engagement/internal/staging"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is how many PRs have their reviews and comments fetched at once.
const DefaultBatchSize = 5

// Collector is the use case for pulling a window of review activity into staging.
type Collector struct {
	fetcher   gateway.Fetcher
	store     staging.Writer
	logger    logrus.FieldLogger
	batchSize int
}

// NewCollector creates a new Collector instance. A batchSize below 1 uses DefaultBatchSize.
func NewCollector(fetcher gateway.Fetcher, store staging.Writer, logger logrus.FieldLogger, batchSize int) *Collector {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Collector{
		fetcher:   fetcher,
		store:     store,
		logger:    logger,
		batchSize: batchSize,
	}
}

// Collect fetches the PRs updated in the window, their reviews and review comments,
// and the repository's issue comments since the window start, writing each
// document to the store. Any failure aborts the whole collection.
func (c *Collector) Collect(ctx context.Context, window domain.Window) error {
	if err := c.collect(ctx, window); err != nil {
		return fmt.Errorf("failed to collect GitHub data: %w", err)
	}
	return nil
}

func (c *Collector) collect(ctx context.Context, window domain.Window) error {
	c.logger.Println("Usecase: Starting data collection...")

	if err := c.fetcher.PrimeRateBudget(ctx); err != nil {
		// The budget is advisory; response headers will fill it in.
		c.logger.WithError(err).Warn("Could not prime rate budget")
	}

	all, err := c.fetcher.FetchPullRequests(ctx, window.Start)
	if err != nil {
		return err
	}

	updated := make([]*github.PullRequest, 0, len(all))
	for _, pr := range all {
		if window.Contains(pr.GetUpdatedAt().Time) {
			updated = append(updated, pr)
		}
	}
	if len(updated) == 0 {
		c.logger.Warnf("No PRs found within date range: %s to %s", window.Start, window.End)
	}
	if err := c.store.WritePullRequests(updated); err != nil {
		return err
	}

	merged := make([]*github.PullRequest, 0)
	for _, pr := range updated {
		if pr.MergedAt != nil && window.Contains(pr.GetMergedAt().Time) {
			merged = append(merged, pr)
		}
	}
	if err := c.store.WriteMergedPullRequests(merged); err != nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{"prs": len(updated), "merged": len(merged)}).Debug("Filtered pull requests to window")

	// Batches run one after another; requests inside a batch run concurrently.
	for start := 0; start < len(updated); start += c.batchSize {
		batch := updated[start:min(start+c.batchSize, len(updated))]
		if err := c.collectBatch(ctx, window, batch); err != nil {
			return err
		}
		c.logger.Debugf("Collected reviews and comments for %d/%d PRs", start+len(batch), len(updated))
	}

	comments, err := c.fetcher.FetchIssueComments(ctx, window.Start)
	if err != nil {
		return err
	}
	if err := c.store.WriteIssueComments(comments); err != nil {
		return err
	}

	c.logger.Println("Usecase: Data collection complete.")
	return nil
}

func (c *Collector) collectBatch(ctx context.Context, window domain.Window, batch []*github.PullRequest) error {
	eg, egCtx := errgroup.WithContext(ctx)
	for _, pr := range batch {
		number := pr.GetNumber()

		eg.Go(func() error {
			reviews, err := c.fetcher.FetchReviews(egCtx, number)
			if err != nil {
				return err
			}
			return c.store.WriteReviews(number, reviews)
		})

		eg.Go(func() error {
			comments, err := c.fetcher.FetchReviewComments(egCtx, number, window.Start)
			if err != nil {
				return err
			}
			return c.store.WriteReviewComments(number, comments)
		})
	}
	return eg.Wait()
}
