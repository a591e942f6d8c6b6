package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/naka-gawa/pr-engagement/internal/domain"
	"github.com/naka-gawa/pr-engagement/internal/gateway"
	"github.com/naka-gawa/pr-engagement/internal/staging"
	"github.com/sirupsen/logrus"
)

// Weights are the scoring knobs of a run.
type Weights struct {
	Breadth                float64
	DepthDiminishingFactor float64
}

// Analyzer runs collection, aggregation and scoring for one repository.
type Analyzer struct {
	collector  *Collector
	aggregator *Aggregator
	store      staging.Reader
	weights    Weights
	logger     logrus.FieldLogger
}

// NewAnalyzer wires a Collector and Aggregator around a shared staging store.
func NewAnalyzer(fetcher gateway.Fetcher, store staging.Store, weights Weights, batchSize int, logger logrus.FieldLogger) *Analyzer {
	return &Analyzer{
		collector:  NewCollector(fetcher, store, logger, batchSize),
		aggregator: NewAggregator(logger),
		store:      store,
		weights:    weights,
		logger:     logger,
	}
}

// Run performs one full analysis. Nothing is returned if any stage fails.
func (a *Analyzer) Run(ctx context.Context, org, repo string, window domain.Window) (*domain.Report, error) {
	runID := uuid.NewString()
	a.logger.WithFields(logrus.Fields{
		"run_id": runID,
		"repo":   org + "/" + repo,
		"start":  window.Start,
		"end":    window.End,
	}).Info("Starting engagement analysis")

	if err := a.collector.Collect(ctx, window); err != nil {
		return nil, err
	}
	log, err := a.aggregator.Aggregate(a.store)
	if err != nil {
		return nil, err
	}

	totalPRs := log.TotalPRs()
	rows := Score(log, totalPRs, a.weights.Breadth, a.weights.DepthDiminishingFactor)
	return &domain.Report{
		RunID:        runID,
		Organization: org,
		Repository:   repo,
		Window:       window,
		Rows:         rows,
		Summary:      Summarize(rows, totalPRs, a.weights.Breadth, a.weights.DepthDiminishingFactor),
		Log:          log,
	}, nil
}
