package usecase

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/naka-gawa/pr-engagement/internal/domain"
)

// ComputeScore blends depth and breadth into one value rounded to two decimals.
// Depth passes through 1 - factor^depth so repeated engagement saturates toward 1;
// breadth is weighted by breadthWeight.
func ComputeScore(depth, breadth, breadthWeight, depthDiminishingFactor float64) float64 {
	scaledDepth := 1 - math.Pow(depthDiminishingFactor, depth)
	score := (scaledDepth + breadth*breadthWeight) / (1 + breadthWeight)
	// stats.Round rounds half away from zero and only fails on NaN.
	rounded, err := stats.Round(score, 2)
	if err != nil {
		return 0
	}
	return rounded
}

// Fold builds one UserEngagement per user from the log, in order of first appearance.
// Every comment and approval counts except self-comments, including those on PRs
// missing from the log's author index.
func Fold(log *domain.ActivityLog) []*domain.UserEngagement {
	created := make(map[string]int)
	for _, e := range log.Events {
		if e.Kind == domain.KindPRCreated {
			created[e.User]++
		}
	}

	byUser := make(map[string]*domain.UserEngagement)
	var order []*domain.UserEngagement
	for _, e := range log.Engagements() {
		ue, ok := byUser[e.User]
		if !ok {
			ue = &domain.UserEngagement{
				User:             e.User,
				PRsCreated:       created[e.User],
				UniquePRsTouched: make(map[int]struct{}),
			}
			byUser[e.User] = ue
			order = append(order, ue)
		}

		switch {
		case e.Kind.IsComment():
			ue.Comments++
		case e.Kind == domain.KindApproval:
			ue.Approvals++
		default:
			continue
		}
		// A PR missing from the author index (bot-authored, or outside the
		// window) still counts as someone else's.
		if log.PRAuthors[e.PRNumber] != e.User {
			ue.UniquePRsTouched[e.PRNumber] = struct{}{}
		}
	}
	return order
}

// Score ranks every user in the log by combined score, highest first.
// Users with equal scores keep their order of first appearance.
func Score(log *domain.ActivityLog, totalPRs int, breadthWeight, depthDiminishingFactor float64) []domain.ScoreRow {
	engagements := Fold(log)
	rows := make([]domain.ScoreRow, 0, len(engagements))
	for _, ue := range engagements {
		row := domain.ScoreRow{
			User:          ue.User,
			Comments:      ue.Comments,
			Approvals:     ue.Approvals,
			PRsCreated:    ue.PRsCreated,
			EngagementSum: ue.Comments + ue.Approvals,
			UniquePRs:     len(ue.UniquePRsTouched),
			OthersPRs:     totalPRs - ue.PRsCreated,
		}
		if row.OthersPRs > 0 {
			row.Depth = float64(row.EngagementSum) / float64(row.OthersPRs)
			row.Breadth = float64(row.UniquePRs) / float64(row.OthersPRs)
		}
		row.CombinedScore = ComputeScore(row.Depth, row.Breadth, breadthWeight, depthDiminishingFactor)
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CombinedScore > rows[j].CombinedScore
	})
	return rows
}

// Summarize describes the distribution of combined scores across the team.
func Summarize(rows []domain.ScoreRow, totalPRs int, breadthWeight, depthDiminishingFactor float64) domain.Summary {
	summary := domain.Summary{
		Participants:  len(rows),
		TotalPRs:      totalPRs,
		BreadthWeight: breadthWeight,
		DepthFactor:   depthDiminishingFactor,
	}
	if len(rows) == 0 {
		return summary
	}
	scores := make(stats.Float64Data, 0, len(rows))
	for _, row := range rows {
		scores = append(scores, row.CombinedScore)
	}
	summary.MeanScore, _ = stats.Mean(scores)
	summary.MedianScore, _ = stats.Median(scores)
	summary.MaxScore, _ = stats.Max(scores)
	summary.MeanScore, _ = stats.Round(summary.MeanScore, 2)
	summary.MedianScore, _ = stats.Round(summary.MedianScore, 2)
	return summary
}
