// Package domain contains the core data structures and domain logic for the application.
package domain

import "time"

// Window is the closed time range an analysis run covers.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside [Start, End].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// EventKind identifies what a contributor did.
type EventKind string

const (
	KindPRCreated     EventKind = "pr_created"
	KindPRMerged      EventKind = "pr_merged"
	KindReview        EventKind = "review"
	KindApproval      EventKind = "approval"
	KindReviewComment EventKind = "review_comment"
	// KindIssueComment is the plain "comment" kind; review comments carry their own.
	KindIssueComment EventKind = "comment"
)

// IsComment reports whether the kind is one of the two comment flavors.
func (k EventKind) IsComment() bool {
	return k == KindReviewComment || k == KindIssueComment
}

// ActivityEvent is one normalized unit of activity on a pull request.
// EventID and PRAuthor are zero for PR creation and merge events.
type ActivityEvent struct {
	User     string    `json:"user"`
	Kind     EventKind `json:"kind"`
	PRNumber int       `json:"pr_number"`
	EventID  int64     `json:"event_id,omitempty"`
	PRAuthor string    `json:"pr_author,omitempty"`
}

// IsSelfComment reports whether the event is a comment left by the PR's own author.
// Self-comments never count as engagement.
func (e ActivityEvent) IsSelfComment() bool {
	return e.Kind.IsComment() && e.PRAuthor != "" && e.User == e.PRAuthor
}

// ActivityLog is the canonical, append-only record of one analysis run.
type ActivityLog struct {
	Events []ActivityEvent `json:"events"`
	// PRAuthors maps a PR number to the login of its (non-bot) author.
	PRAuthors map[int]string `json:"pr_authors"`
}

// NewActivityLog returns an empty log ready for appends.
func NewActivityLog() *ActivityLog {
	return &ActivityLog{PRAuthors: make(map[int]string)}
}

// Append records an event.
func (l *ActivityLog) Append(e ActivityEvent) {
	l.Events = append(l.Events, e)
}

// TotalPRs is the number of distinct PRs authored by non-bot users in the window.
func (l *ActivityLog) TotalPRs() int {
	return len(l.PRAuthors)
}

// Engagements returns the log with self-comments removed, preserving order.
// It is the single place the self-comment rule is applied; scoring and
// detailed reporting both read from it.
func (l *ActivityLog) Engagements() []ActivityEvent {
	out := make([]ActivityEvent, 0, len(l.Events))
	for _, e := range l.Events {
		if e.IsSelfComment() {
			continue
		}
		out = append(out, e)
	}
	return out
}

// UserEngagement is the per-user fold of the engagement log.
type UserEngagement struct {
	User             string
	PRsCreated       int
	Comments         int
	Approvals        int
	UniquePRsTouched map[int]struct{}
}

// ScoreRow is the ranked, externally visible result for one contributor.
type ScoreRow struct {
	User          string  `json:"user"`
	Comments      int     `json:"comments"`
	Approvals     int     `json:"approvals"`
	PRsCreated    int     `json:"prs_created"`
	EngagementSum int     `json:"engagement_sum"`
	UniquePRs     int     `json:"unique_prs"`
	OthersPRs     int     `json:"others_prs"`
	Depth         float64 `json:"depth"`
	Breadth       float64 `json:"breadth"`
	CombinedScore float64 `json:"combined_score"`
}

// Summary describes the team as a whole.
type Summary struct {
	Participants  int     `json:"participants"`
	TotalPRs      int     `json:"total_prs"`
	MeanScore     float64 `json:"mean_score"`
	MedianScore   float64 `json:"median_score"`
	MaxScore      float64 `json:"max_score"`
	BreadthWeight float64 `json:"breadth_weight"`
	DepthFactor   float64 `json:"depth_diminishing_factor"`
}

// Report bundles everything handed to the reporting sink.
type Report struct {
	RunID        string       `json:"run_id"`
	Organization string       `json:"organization"`
	Repository   string       `json:"repository"`
	Window       Window       `json:"window"`
	Rows         []ScoreRow   `json:"rows"`
	Summary      Summary      `json:"summary"`
	Log          *ActivityLog `json:"-"`
}
