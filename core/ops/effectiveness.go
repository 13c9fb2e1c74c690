package ops

import (
	"sort"
	"strings"
	"time"

	"huntdesk-ops/core/store"
)

const repeatFailureLookback = 24 * time.Hour

// EffectivenessInsights aggregates what keeps failing, computed over the
// failed outcomes only.
type EffectivenessInsights struct {
	TopCodes       []KeyCount `json:"top_codes,omitempty"`
	TopReasons     []KeyCount `json:"top_reasons,omitempty"`
	RepeatRequests []string   `json:"repeat_requests,omitempty"`
}

type DueReport struct {
	DueItems []store.ResolutionOutcome `json:"due_items"`
	Insights EffectivenessInsights     `json:"insights"`
}

// IsDue reports whether an outcome should be reviewed: still unknown,
// older than the minimum review age, and past any deferral.
func IsDue(outcome store.ResolutionOutcome, reviewAge time.Duration, now time.Time) bool {
	if outcome.EffectivenessState != store.EffectivenessUnknown {
		return false
	}
	if now.Sub(outcome.CreatedAt) < reviewAge {
		return false
	}
	if outcome.EffectivenessDeferredUntil != nil && now.Before(*outcome.EffectivenessDeferredUntil) {
		return false
	}
	return true
}

// ComputeDue partitions outcomes into due-for-review items and failure
// insights. Insights look only at outcomes already reviewed as fail.
func ComputeDue(outcomes []store.ResolutionOutcome, reviewAge time.Duration, now time.Time) DueReport {
	report := DueReport{DueItems: []store.ResolutionOutcome{}}
	codeCounts := map[string]int{}
	reasonCounts := map[string]int{}
	failuresByRequest := map[string]int{}
	for _, outcome := range outcomes {
		if IsDue(outcome, reviewAge, now) {
			report.DueItems = append(report.DueItems, outcome)
		}
		if outcome.EffectivenessState != store.EffectivenessFail {
			continue
		}
		if outcome.Code != "" {
			codeCounts[outcome.Code]++
		}
		for _, tag := range reasonTags(outcome.EffectivenessReason) {
			reasonCounts[tag]++
		}
		if outcome.RequestID != "" && now.Sub(outcome.CreatedAt) <= repeatFailureLookback {
			failuresByRequest[outcome.RequestID]++
		}
	}
	report.Insights = EffectivenessInsights{
		TopCodes:       topCounts(codeCounts, 5),
		TopReasons:     topCounts(reasonCounts, 5),
		RepeatRequests: repeatedKeys(failuresByRequest),
	}
	return report
}

// reasonTags splits a free-text failure reason into comparable tags.
func reasonTags(reason string) []string {
	var tags []string
	for _, part := range strings.FieldsFunc(reason, func(r rune) bool { return r == ',' || r == ';' }) {
		tag := strings.ToLower(strings.TrimSpace(part))
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func repeatedKeys(counts map[string]int) []string {
	var res []string
	for key, n := range counts {
		if n > 1 {
			res = append(res, key)
		}
	}
	sort.Strings(res)
	return res
}
