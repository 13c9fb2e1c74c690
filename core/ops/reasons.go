package ops

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"huntdesk-ops/core/store"
)

// Reason codes, worst first. Codes outside this list rank below all of
// them and among themselves by count alone.
const (
	ReasonBillingFailure  = "billing_failure"
	ReasonWebhookFailure  = "webhook_failure"
	ReasonCheckoutError   = "checkout_error"
	ReasonPortalError     = "portal_error"
	ReasonRateLimited     = "rate_limited"
	ReasonSupportEscalate = "support_escalation"
	ReasonStaleFollowup   = "stale_followup"
)

var reasonRank = map[string]int{
	ReasonBillingFailure:  0,
	ReasonWebhookFailure:  1,
	ReasonCheckoutError:   2,
	ReasonPortalError:     3,
	ReasonRateLimited:     4,
	ReasonSupportEscalate: 5,
	ReasonStaleFollowup:   6,
}

var reasonTitles = map[string]string{
	ReasonBillingFailure:  "Billing failure",
	ReasonWebhookFailure:  "Webhook delivery failing",
	ReasonCheckoutError:   "Checkout errors",
	ReasonPortalError:     "Portal errors",
	ReasonRateLimited:     "Rate limiting",
	ReasonSupportEscalate: "Support escalation",
	ReasonStaleFollowup:   "Stale follow-up",
}

// ResolveCaseReason picks one reason for a case from its merged sources.
// The result depends only on the multiset of sources, never on their
// arrival order: dedup by (code, primarySource) summing counts and taking
// the max lastSeenAt, then rank by code priority, count, recency.
func ResolveCaseReason(sources []store.CaseReasonSource, now time.Time) *store.CaseReason {
	merged := MergeReasonSources(sources)
	if len(merged) == 0 {
		return nil
	}
	best := merged[0]
	for _, src := range merged[1:] {
		if reasonLess(src, best) {
			best = src
		}
	}
	return &store.CaseReason{
		Code:          best.Code,
		Title:         reasonTitle(best.Code),
		Detail:        best.Detail,
		PrimarySource: best.PrimarySource,
		ComputedAt:    now.UTC(),
	}
}

// MergeReasonSources dedups by (code, primarySource): counts sum, the
// freshest detail and window label win, lastSeenAt takes the max. Output
// order is deterministic regardless of input order.
func MergeReasonSources(sources []store.CaseReasonSource) []store.CaseReasonSource {
	type key struct{ code, primary string }
	byKey := map[key]store.CaseReasonSource{}
	for _, src := range sources {
		// Key normalization must mirror the queue-source upsert, or replays
		// that converge in SQL would stay split here.
		code := strings.ToLower(strings.TrimSpace(src.Code))
		if code == "" {
			continue
		}
		primary := strings.TrimSpace(src.PrimarySource)
		k := key{code: code, primary: primary}
		cur, ok := byKey[k]
		if !ok {
			src.Code = code
			src.PrimarySource = primary
			if src.Count <= 0 {
				src.Count = 1
			}
			byKey[k] = src
			continue
		}
		n := src.Count
		if n <= 0 {
			n = 1
		}
		cur.Count += n
		if src.LastSeenAt.After(cur.LastSeenAt) {
			cur.LastSeenAt = src.LastSeenAt
			if src.Detail != "" {
				cur.Detail = src.Detail
			}
			if src.WindowLabel != "" {
				cur.WindowLabel = src.WindowLabel
			}
		}
		byKey[k] = cur
	}
	res := make([]store.CaseReasonSource, 0, len(byKey))
	for _, src := range byKey {
		res = append(res, src)
	}
	sort.Slice(res, func(i, j int) bool { return reasonLess(res[i], res[j]) })
	return res
}

// reasonLess orders a before b when a is the stronger reason.
func reasonLess(a, b store.CaseReasonSource) bool {
	ra, rb := rankOf(a.Code), rankOf(b.Code)
	if ra != rb {
		return ra < rb
	}
	if a.Count != b.Count {
		return a.Count > b.Count
	}
	if !a.LastSeenAt.Equal(b.LastSeenAt) {
		return a.LastSeenAt.After(b.LastSeenAt)
	}
	if a.Code != b.Code {
		return a.Code < b.Code
	}
	return a.PrimarySource < b.PrimarySource
}

func rankOf(code string) int {
	if r, ok := reasonRank[code]; ok {
		return r
	}
	return len(reasonRank)
}

func reasonTitle(code string) string {
	if t, ok := reasonTitles[code]; ok {
		return t
	}
	return fmt.Sprintf("Queued: %s", code)
}
