package ops

import (
	"sort"
	"strings"
	"time"

	"huntdesk-ops/config"
	"huntdesk-ops/core/store"
)

const (
	StateGreen = "green"
	StateAmber = "amber"
	StateRed   = "red"
)

const (
	SignalWebhookFailure = "webhook_failures"
	SignalWebhookError   = "webhook_errors"
	SignalPortalError    = "portal_errors"
	SignalCheckoutError  = "checkout_errors"
	SignalRateLimit      = "rate_limit_hits"
)

const (
	TrendImproving = "improving"
	TrendStable    = "stable"
	TrendWorsening = "worsening"
)

type SignalStatus struct {
	Signal string `json:"signal"`
	Count  int    `json:"count"`
	State  string `json:"state"`
}

type KeyCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type TopRepeats struct {
	RequestIDs []KeyCount `json:"request_ids,omitempty"`
	Codes      []KeyCount `json:"codes,omitempty"`
	Surfaces   []KeyCount `json:"surfaces,omitempty"`
}

type TrendBucket struct {
	Start    time.Time `json:"start"`
	Score    int       `json:"score"`
	State    string    `json:"state"`
	Dominant string    `json:"dominant,omitempty"`
}

type HealthTrend struct {
	Buckets   []TrendBucket `json:"buckets"`
	Direction string        `json:"direction"`
}

// HealthSnapshot is the rolling verdict. It is recomputed on demand from the
// record stream; nothing here is persisted.
type HealthSnapshot struct {
	Status     string         `json:"status"`
	WindowMins int            `json:"window_minutes"`
	ComputedAt time.Time      `json:"computed_at"`
	Signals    []SignalStatus `json:"signals"`
	TopRepeats TopRepeats     `json:"top_repeats"`
	Trend      HealthTrend    `json:"trend"`
}

// Scorer derives Green/Amber/Red verdicts from weighted incident counts.
type Scorer struct {
	cfg config.HealthConfig
}

func NewScorer(cfg config.HealthConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Snapshot computes the verdict for the window ending at now, plus the trend
// over recent history. recent must cover at least the trend span.
func (s *Scorer) Snapshot(recent []store.IncidentRecord, now time.Time) HealthSnapshot {
	window := time.Duration(s.windowMinutes()) * time.Minute
	inWindow := recordsBetween(recent, now.Add(-window), now)
	signals := s.scoreSignals(inWindow)
	snapshot := HealthSnapshot{
		Status:     worstState(signals),
		WindowMins: s.windowMinutes(),
		ComputedAt: now.UTC(),
		Signals:    signals,
		TopRepeats: topRepeats(inWindow, 5),
		Trend:      s.trend(recent, now),
	}
	return snapshot
}

func (s *Scorer) windowMinutes() int {
	if s.cfg.WindowMinutes > 0 {
		return s.cfg.WindowMinutes
	}
	return 15
}

func (s *Scorer) trendHours() int {
	if s.cfg.TrendHours > 0 {
		return s.cfg.TrendHours
	}
	return 24
}

func (s *Scorer) scoreSignals(records []store.IncidentRecord) []SignalStatus {
	counts := map[string]int{}
	for _, rec := range records {
		if signal := ClassifySignal(rec); signal != "" {
			counts[signal]++
		}
	}
	res := []SignalStatus{
		{Signal: SignalWebhookFailure, Count: counts[SignalWebhookFailure], State: stateFor(counts[SignalWebhookFailure], s.cfg.WebhookFailureAmber, s.cfg.WebhookFailureRed)},
		{Signal: SignalWebhookError, Count: counts[SignalWebhookError], State: stateFor(counts[SignalWebhookError], s.cfg.WebhookErrorAmber, s.cfg.WebhookErrorRed)},
		{Signal: SignalPortalError, Count: counts[SignalPortalError], State: stateFor(counts[SignalPortalError], s.cfg.PortalErrorAmber, s.cfg.PortalErrorRed)},
		{Signal: SignalCheckoutError, Count: counts[SignalCheckoutError], State: stateFor(counts[SignalCheckoutError], s.cfg.CheckoutErrorAmber, s.cfg.CheckoutErrorRed)},
		{Signal: SignalRateLimit, Count: counts[SignalRateLimit], State: stateFor(counts[SignalRateLimit], s.cfg.RateLimitAmber, s.cfg.RateLimitRed)},
	}
	return res
}

// ClassifySignal maps a record onto one of the health signals, or "" when it
// carries no health weight (it still participates in grouping).
func ClassifySignal(rec store.IncidentRecord) string {
	name := strings.ToLower(strings.TrimSpace(rec.EventName))
	code := strings.ToLower(strings.TrimSpace(rec.Code))
	switch {
	case name == "webhook_failed" || name == "webhook_failure" || code == "webhook_failed":
		return SignalWebhookFailure
	case name == "webhook_error" || strings.HasPrefix(code, "webhook_"):
		return SignalWebhookError
	case code == "rate_limited" || name == "rate_limited" || name == "rate_limit_hit":
		return SignalRateLimit
	case rec.Surface == store.SurfacePortal:
		return SignalPortalError
	case rec.Surface == store.SurfaceCheckout:
		return SignalCheckoutError
	}
	return ""
}

/// stateFor applies the fixed cut-offs: zero is always green, amber from the
// amber threshold, red from the red threshold.
func stateFor(count, amber, red int) string {
	if amber <= 0 {
		amber = 1
	}
	if red <= amber {
		red = amber + 1
	}
	switch {
	case count >= red:
		return StateRed
	case count >= amber:
		return StateAmber
	default:
		return StateGreen
	}
}

// worstState: red dominates amber dominates green.
func worstState(signals []SignalStatus) string {
	worst := StateGreen
	for _, sig := range signals {
		if sig.State == StateRed {
			return StateRed
		}
		if sig.State == StateAmber {
			worst = StateAmber
		}
	}
	return worst
}

func stateScore(state string) int {
	switch state {
	case StateRed:
		return 20
	case StateAmber:
		return 60
	default:
		return 100
	}
}

func (s *Scorer) trend(records []store.IncidentRecord, now time.Time) HealthTrend {
	window := time.Duration(s.windowMinutes()) * time.Minute
	span := time.Duration(s.trendHours()) * time.Hour
	start := now.Add(-span)
	bucketCount := int(span / window)
	if bucketCount <= 0 {
		bucketCount = 1
	}
	buckets := make([]TrendBucket, 0, bucketCount)
	for i := 0; i < bucketCount; i++ {
		bucketStart := start.Add(time.Duration(i) * window)
		inBucket := recordsBetween(records, bucketStart, bucketStart.Add(window))
		signals := s.scoreSignals(inBucket)
		state := worstState(signals)
		buckets = append(buckets, TrendBucket{
			Start:    bucketStart.UTC(),
			Score:    stateScore(state),
			State:    state,
			Dominant: dominantSignal(signals),
		})
	}
	return HealthTrend{Buckets: buckets, Direction: trendDirection(buckets)}
}

func dominantSignal(signals []SignalStatus) string {
	dominant := ""
	bestState := StateGreen
	bestCount := 0
	for _, sig := range signals {
		if sig.Count == 0 {
			continue
		}
		if stateScore(sig.State) < stateScore(bestState) || (sig.State == bestState && sig.Count > bestCount) || dominant == "" {
			dominant = sig.Signal
			bestState = sig.State
			bestCount = sig.Count
		}
	}
	return dominant
}

// trendDirection compares the mean bucket score of the two halves of the
// span; a small delta reads as stable.
func trendDirection(buckets []TrendBucket) string {
	if len(buckets) < 2 {
		return TrendStable
	}
	half := len(buckets) / 2
	firstMean := meanScore(buckets[:half])
	secondMean := meanScore(buckets[half:])
	diff := secondMean - firstMean
	switch {
	case diff > 5:
		return TrendImproving
	case diff < -5:
		return TrendWorsening
	default:
		return TrendStable
	}
}

func meanScore(buckets []TrendBucket) float64 {
	if len(buckets) == 0 {
		return 0
	}
	sum := 0
	for _, b := range buckets {
		sum += b.Score
	}
	return float64(sum) / float64(len(buckets))
}

func recordsBetween(records []store.IncidentRecord, from, to time.Time) []store.IncidentRecord {
	var res []store.IncidentRecord
	for _, rec := range records {
		if !rec.At.Before(from) && rec.At.Before(to) {
			res = append(res, rec)
		}
	}
	return res
}

func topRepeats(records []store.IncidentRecord, limit int) TopRepeats {
	requestCounts := map[string]int{}
	codeCounts := map[string]int{}
	surfaceCounts := map[string]int{}
	for _, rec := range records {
		if rec.RequestID != "" {
			requestCounts[rec.RequestID]++
		}
		if rec.Code != "" {
			codeCounts[strings.ToLower(rec.Code)]++
		}
		surfaceCounts[rec.Surface]++
	}
	return TopRepeats{
		RequestIDs: topCounts(requestCounts, limit),
		Codes:      topCounts(codeCounts, limit),
		Surfaces:   topCounts(surfaceCounts, limit),
	}
}

func topCounts(counts map[string]int, limit int) []KeyCount {
	res := make([]KeyCount, 0, len(counts))
	for key, n := range counts {
		res = append(res, KeyCount{Key: key, Count: n})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Count != res[j].Count {
			return res[i].Count > res[j].Count
		}
		return res[i].Key < res[j].Key
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res
}
