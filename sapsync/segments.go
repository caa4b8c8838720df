package sapsync

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/partners_backend/config"
	"github.com/mmdatafocus/partners_backend/models"
	"github.com/sirupsen/logrus"
)

// SegmentObserver is notified after every segment state transition,
// including the intermediate processing one. The default observer persists
// the snapshot, so a crash mid-run leaves durable state consistent with the
// last completed or failed segment and Retry can resume from there.
type SegmentObserver func(ctx context.Context, state *models.PartnerSegmentState)

// IntegrationResult is what every engine operation returns: the full
// per-segment state list, whether every requested segment succeeded, and a
// sparse partner-field update to merge (currently only the SAP id produced
// by the primary-record segment).
type IntegrationResult struct {
	States         []*models.PartnerSegmentState
	Completed      bool
	PartnerUpdates map[string]any
}

// SegmentEngine pushes one partner to SAP segment by segment, in the fixed
// order primary_record -> addresses -> roles -> banks, stopping at the
// first failure.
type SegmentEngine struct {
	cfg      Config
	client   Dispatcher
	observer SegmentObserver
	logger   *logrus.Logger
}

func NewSegmentEngine(cfg Config, client Dispatcher, observer SegmentObserver) *SegmentEngine {
	if observer == nil {
		observer = func(context.Context, *models.PartnerSegmentState) {}
	}
	return &SegmentEngine{
		cfg:      cfg,
		client:   client,
		observer: observer,
		logger:   config.GetLogger(),
	}
}

// stateIndex returns the partner's segment states keyed by segment,
// assuming EnsureSegmentStates ran (all four present, canonical order).
func stateIndex(partner *models.Partner) map[models.SyncSegment]*models.PartnerSegmentState {
	index := make(map[models.SyncSegment]*models.PartnerSegmentState, len(partner.SegmentStates))
	for _, s := range partner.SegmentStates {
		index[s.Segment] = s
	}
	return index
}

// canonicalOrder filters the requested segments down to known ones and
// re-sorts them into dispatch order. Callers may pass any order; execution
// order is always canonical (the fail-fast contract depends on it).
func canonicalOrder(segments []models.SyncSegment) []models.SyncSegment {
	if len(segments) == 0 {
		return models.AllSegments()
	}
	requested := make(map[models.SyncSegment]bool, len(segments))
	for _, s := range segments {
		requested[s] = true
	}
	var out []models.SyncSegment
	for _, s := range models.AllSegments() {
		if requested[s] {
			out = append(out, s)
		}
	}
	return out
}

// Integrate runs the given segments (default: all four) sequentially.
// External failures are recorded into segment state and halt the run; they
// are never returned as an error.
func (e *SegmentEngine) Integrate(ctx context.Context, partner *models.Partner, segments ...models.SyncSegment) IntegrationResult {
	targets := canonicalOrder(segments)
	index := stateIndex(partner)
	updates := map[string]any{}

	if !e.cfg.Enabled {
		for _, seg := range targets {
			state := index[seg]
			now := time.Now()
			state.Status = models.SegmentStatusSuccess
			state.LastAttemptAt = &now
			state.LastSuccessAt = &now
			state.Message = "sap sync disabled; segment marked as synced without dispatch"
			state.ErrorMessage = ""
			e.observer(ctx, state)
		}
		return IntegrationResult{States: partner.SegmentStates, Completed: true, PartnerUpdates: updates}
	}

	if !e.cfg.Configured() {
		for _, seg := range targets {
			state := index[seg]
			now := time.Now()
			state.Status = models.SegmentStatusError
			state.LastAttemptAt = &now
			state.ErrorMessage = "sap connection settings are missing; check base url and credentials"
			e.observer(ctx, state)
		}
		return IntegrationResult{States: partner.SegmentStates, Completed: false, PartnerUpdates: updates}
	}

	completed := true
	for _, seg := range targets {
		state := index[seg]
		now := time.Now()
		state.Status = models.SegmentStatusProcessing
		state.LastAttemptAt = &now
		state.ErrorMessage = ""
		e.observer(ctx, state)

		request := buildSegmentRequest(partner, seg)
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout())
		body, err := e.client.Dispatch(callCtx, request.Method, request.Path, request.Payload)
		cancel()

		if err != nil {
			state.Status = models.SegmentStatusError
			state.ErrorMessage = err.Error()
			e.observer(ctx, state)
			e.logger.WithFields(logrus.Fields{
				"module":  "sapsync",
				"partner": partner.ID,
				"segment": string(seg),
			}).Error(err.Error())
			completed = false
			// Fail fast: remaining segments stay untouched (pending or
			// whatever they already were).
			break
		}

		success := time.Now()
		state.Status = models.SegmentStatusSuccess
		state.LastSuccessAt = &success
		state.Message = fmt.Sprintf("segment %s synced", seg)
		if seg == models.SegmentPrimaryRecord {
			if externalId := extractExternalId(body); externalId != "" {
				state.ExternalId = externalId
				updates["sap_id"] = externalId
				partner.SapId = externalId
			}
		}
		e.observer(ctx, state)
	}

	return IntegrationResult{States: partner.SegmentStates, Completed: completed, PartnerUpdates: updates}
}

// Retry re-runs segments. With no explicit list it targets exactly the
// segments whose current status is not success; when that set is empty it
// is a no-op reporting completed.
func (e *SegmentEngine) Retry(ctx context.Context, partner *models.Partner, segments ...models.SyncSegment) IntegrationResult {
	targets := segments
	if len(targets) == 0 {
		index := stateIndex(partner)
		for _, seg := range models.AllSegments() {
			if state, ok := index[seg]; ok && state.Status != models.SegmentStatusSuccess {
				targets = append(targets, seg)
			}
		}
		if len(targets) == 0 {
			return IntegrationResult{States: partner.SegmentStates, Completed: true, PartnerUpdates: map[string]any{}}
		}
	}
	return e.Integrate(ctx, partner, targets...)
}

// MarkAsError rewrites the given segments (default: all) to error with the
// supplied reason, without any network activity. Used when a workflow
// decision such as a rejection invalidates integration state.
func (e *SegmentEngine) MarkAsError(ctx context.Context, partner *models.Partner, reason string, segments ...models.SyncSegment) []*models.PartnerSegmentState {
	targets := canonicalOrder(segments)
	index := stateIndex(partner)
	for _, seg := range targets {
		state := index[seg]
		now := time.Now()
		state.Status = models.SegmentStatusError
		state.LastAttemptAt = &now
		state.ErrorMessage = reason
		e.observer(ctx, state)
	}
	return partner.SegmentStates
}

// AllSuccessful reports whether every segment state is success.
func AllSuccessful(states []*models.PartnerSegmentState) bool {
	if len(states) == 0 {
		return false
	}
	for _, s := range states {
		if s.Status != models.SegmentStatusSuccess {
			return false
		}
	}
	return true
}
