package core

import (
	"time"
)

// Routing thresholds applied to verdicts
const (
	MarkAsSpamThreshold        = 0.7
	ReviewThreshold            = 0.4
	SuspiciousThreshold        = 0.3
	DefaultAutoAssignThreshold = 0.5
)

// Decide maps a verdict to the routing decision a message store should apply.
// Only a not_spam verdict with a confident project is auto-assigned; everything
// other than definite spam lands in manual review.
func Decide(v CombinedVerdict, autoAssignThreshold float64, now time.Time) TriageDecision {
	d := TriageDecision{
		Verdict:   v,
		DecidedAt: now,
	}

	switch v.Spam.Category {
	case CategorySpam:
		d.Status = StatusSpam
	case CategoryNotSpam:
		d.SuggestedProject = v.Project.ProjectID
		if ShouldAutoAssign(v.Project, autoAssignThreshold) {
			d.Status = StatusNotSpam
			d.ProjectID = v.Project.ProjectID
		} else {
			d.Status = StatusPossibleSpam
			d.Unassigned = true
			d.NeedsReview = true
		}
	default:
		d.Status = StatusPossibleSpam
		d.Unassigned = true
		d.NeedsReview = true
	}

	return d
}

// ShouldMarkAsSpam reports a confident spam call
func ShouldMarkAsSpam(check SpamCheck) bool {
	return check.IsSpam && check.Confidence >= MarkAsSpamThreshold
}

// ShouldFlagForReview reports a borderline spam call, or a not-spam call that still looks suspicious
func ShouldFlagForReview(check SpamCheck) bool {
	if check.IsSpam {
		return check.Confidence >= ReviewThreshold && check.Confidence < MarkAsSpamThreshold
	}
	return check.Confidence > SuspiciousThreshold
}

// ShouldAutoAssign reports whether a project verdict is confident enough to route without review
func ShouldAutoAssign(p ProjectVerdict, threshold float64) bool {
	return p.ProjectID != nil && p.Confidence >= threshold
}
