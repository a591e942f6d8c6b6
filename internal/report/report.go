// Package report renders an engagement report for people and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/naka-gawa/pr-engagement/internal/domain"
)

const (
	maxNameWidth = 20
	rule         = "=========================================================================="
)

// Options controls presentation only.
type Options struct {
	// WithNames prints logins in full instead of truncating them.
	WithNames bool
	// RepoWebURL prefixes PR links in the detailed report.
	RepoWebURL string
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, r *domain.Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// WriteSummary writes the ranked table followed by the team summary.
func WriteSummary(w io.Writer, r *domain.Report, opts Options) error {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "        REPORT FOR %s/%s  %s .. %s\n", r.Organization, r.Repository,
		r.Window.Start.Format("2006-01-02 15:04"), r.Window.End.Format("2006-01-02 15:04"))
	fmt.Fprintln(w, rule)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "User\tComments\tApprovals\tDepth\tBreadth (w=%g)\tCombined\n", r.Summary.BreadthWeight)
	for _, row := range r.Rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f (%d/%d)\t%.2f (%d/%d)\t%.2f\n",
			displayName(row.User, opts.WithNames),
			row.Comments,
			row.Approvals,
			row.Depth, row.EngagementSum, row.OthersPRs,
			row.Breadth, row.UniquePRs, row.OthersPRs,
			row.CombinedScore,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := r.Summary
	_, err := fmt.Fprintf(w, "\n%d participants, %d PRs. Combined score mean %.2f, median %.2f, max %.2f\n",
		s.Participants, s.TotalPRs, s.MeanScore, s.MedianScore, s.MaxScore)
	return err
}

// WriteDetailed lists, per user, the PRs they approved and the PRs they commented on.
// Self-comments are left out, as in scoring.
func WriteDetailed(w io.Writer, r *domain.Report, opts Options) error {
	type userDetail struct {
		approved      []int
		commentCounts map[int]int
		commented     []int
	}
	details := make(map[string]*userDetail)
	var users []string

	for _, e := range r.Log.Engagements() {
		if e.Kind != domain.KindApproval && !e.Kind.IsComment() {
			continue
		}
		d, ok := details[e.User]
		if !ok {
			d = &userDetail{commentCounts: make(map[int]int)}
			details[e.User] = d
			users = append(users, e.User)
		}
		if e.Kind == domain.KindApproval {
			d.approved = appendUnique(d.approved, e.PRNumber)
			continue
		}
		if d.commentCounts[e.PRNumber] == 0 {
			d.commented = append(d.commented, e.PRNumber)
		}
		d.commentCounts[e.PRNumber]++
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "        DETAILED ACTIVITY REPORT")
	fmt.Fprintln(w, rule)
	for _, user := range users {
		d := details[user]
		fmt.Fprintf(w, "\n>> User: %s\n", displayName(user, opts.WithNames))
		if len(d.approved) > 0 {
			fmt.Fprintln(w, "   === APPROVED PRs ===")
			for _, n := range d.approved {
				fmt.Fprintf(w, "   - PR #%d (author=%s): %s\n", n, author(r.Log, n), prLink(opts.RepoWebURL, n))
			}
		}
		if len(d.commented) > 0 {
			fmt.Fprintln(w, "   === COMMENTS ===")
			for _, n := range d.commented {
				fmt.Fprintf(w, "   - PR #%d (author=%s): %d comments - %s\n", n, author(r.Log, n), d.commentCounts[n], prLink(opts.RepoWebURL, n))
			}
		}
	}
	_, err := fmt.Fprintln(w, "\n"+rule)
	return err
}

func displayName(user string, full bool) string {
	if full || len(user) <= maxNameWidth {
		return user
	}
	return user[:maxNameWidth]
}

func author(log *domain.ActivityLog, number int) string {
	if a, ok := log.PRAuthors[number]; ok {
		return a
	}
	return "unknown"
}

func prLink(repoWebURL string, number int) string {
	return fmt.Sprintf("%s/pull/%d", strings.TrimSuffix(repoWebURL, "/"), number)
}

func appendUnique(list []int, n int) []int {
	i := sort.SearchInts(list, n)
	if i < len(list) && list[i] == n {
		return list
	}
	list = append(list, 0)
	copy(list[i+1:], list[i:])
	list[i] = n
	return list
}
