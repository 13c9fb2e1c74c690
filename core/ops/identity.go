package ops

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"huntdesk-ops/core/store"
	"huntdesk-ops/core/utils"
)

// Observation is one sighting of a request id from a single source
// (audit log, training harness, support form, webhook payload).
type Observation struct {
	Source string
	UserID string
	Email  string
	Path   string
	At     time.Time
	Meta   map[string]string
}

const resolveRetries = 3

// Resolver fuses observations into one RequestContext per request id.
// Merges never replace: an established user id is kept, sources union,
// meta keys are first-writer-wins.
type Resolver struct {
	contexts store.ContextsStore
	log      *utils.Logger
}

func NewResolver(contexts store.ContextsStore, log *utils.Logger) *Resolver {
	return &Resolver{contexts: contexts, log: log}
}

// Resolve merges obs into the context for requestID, creating it on first
// sight. Concurrent merges are retried on version conflict; the result is
// order-independent for the fields that matter (userId, sources, meta).
func (r *Resolver) Resolve(ctx context.Context, requestID string, obs Observation) (*store.RequestContext, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, fmt.Errorf("resolve: empty request id")
	}
	at := obs.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	source := strings.TrimSpace(obs.Source)
	if source == "" {
		source = "unknown"
	}
	masked := MaskEmail(obs.Email)

	for attempt := 0; attempt < resolveRetries; attempt++ {
		existing, err := r.contexts.GetContext(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			fresh := store.RequestContext{
				RequestID:    requestID,
				UserID:       strings.TrimSpace(obs.UserID),
				EmailMasked:  masked,
				Source:       source,
				Confidence:   confidenceFor(1),
				Sources:      map[string]time.Time{source: at.UTC()},
				FirstSeenAt:  at.UTC(),
				LastSeenAt:   at.UTC(),
				LastSeenPath: obs.Path,
				Meta:         cloneMeta(obs.Meta),
			}
			err = r.contexts.CreateContext(ctx, &fresh)
			if err == nil {
				return r.contexts.GetContext(ctx, requestID)
			}
			if !errors.Is(err, store.ErrConflict) {
				return nil, err
			}
			// Lost the create race, merge into the winner's row.
			continue
		}

		merged := mergeObservation(*existing, obs, source, masked, at)
		err = r.contexts.UpdateContext(ctx, &merged, existing.Version)
		if err == nil {
			return r.contexts.GetContext(ctx, requestID)
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("resolve %s: %w", requestID, store.ErrConflict)
}

func mergeObservation(existing store.RequestContext, obs Observation, source, masked string, at time.Time) store.RequestContext {
	merged := existing
	if merged.Sources == nil {
		merged.Sources = map[string]time.Time{}
	} else {
		merged.Sources = cloneTimes(existing.Sources)
	}
	if prev, ok := merged.Sources[source]; !ok || at.After(prev) {
		merged.Sources[source] = at.UTC()
	}
	// Adopt identity only when none is established. The store guards this
	// again with a conditional update, so a racing writer cannot clobber it.
	if merged.UserID == "" {
		merged.UserID = strings.TrimSpace(obs.UserID)
	}
	if merged.EmailMasked == "" {
		merged.EmailMasked = masked
	}
	if merged.Meta == nil {
		merged.Meta = map[string]string{}
	} else {
		merged.Meta = cloneMeta(existing.Meta)
	}
	for k, v := range obs.Meta {
		if _, ok := merged.Meta[k]; !ok {
			merged.Meta[k] = v
		}
	}
	if at.After(merged.LastSeenAt) {
		merged.LastSeenAt = at.UTC()
		if obs.Path != "" {
			merged.LastSeenPath = obs.Path
		}
	}
	if at.Before(merged.FirstSeenAt) {
		merged.FirstSeenAt = at.UTC()
	}
	merged.Confidence = confidenceFor(len(merged.Sources))
	return merged
}

// confidenceFor ranks by how many independent sources corroborate the
// context, not by any single source's quality.
func confidenceFor(distinctSources int) string {
	switch {
	case distinctSources >= 3:
		return store.ConfidenceHigh
	case distinctSources == 2:
		return store.ConfidenceMedium
	default:
		return store.ConfidenceLow
	}
}

func cloneMeta(m map[string]string) map[string]string {
	res := make(map[string]string, len(m))
	for k, v := range m {
		res[k] = v
	}
	return res
}

func cloneTimes(m map[string]time.Time) map[string]time.Time {
	res := make(map[string]time.Time, len(m))
	for k, v := range m {
		res[k] = v
	}
	return res
}
