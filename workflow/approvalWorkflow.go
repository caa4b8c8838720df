package workflow

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/partners_backend/config"
	"github.com/mmdatafocus/partners_backend/models"
	"github.com/mmdatafocus/partners_backend/sapsync"
	"github.com/mmdatafocus/partners_backend/utils"
	"github.com/sirupsen/logrus"
)

// Stage capabilities. Each substantive stage maps to one capability; the
// terminal finalized stage accepts no direct action.
const (
	CapabilityFiscal     = "partner:approve:fiscal"
	CapabilityPurchasing = "partner:approve:purchasing"
	CapabilityMasterData = "partner:approve:master_data"
)

// Actor is the identity performing a workflow action, resolved from the
// session token by the middleware.
type Actor struct {
	Id           int
	Name         string
	Capabilities []string
	IsAdmin      bool
}

func ActorFromContext(ctx context.Context) Actor {
	actor := Actor{}
	if id, ok := utils.GetUserIdFromContext(ctx); ok {
		actor.Id = id
	}
	if name, ok := utils.GetUserNameFromContext(ctx); ok {
		actor.Name = name
	}
	if caps, ok := utils.GetCapabilitiesFromContext(ctx); ok {
		actor.Capabilities = caps
	}
	if isAdmin, ok := utils.GetIsAdminFromContext(ctx); ok {
		actor.IsAdmin = isAdmin
	}
	return actor
}

func stageCapability(stage models.ApprovalStage) (string, error) {
	switch stage {
	case models.StageFiscal:
		return CapabilityFiscal, nil
	case models.StagePurchasing:
		return CapabilityPurchasing, nil
	case models.StageMasterData:
		return CapabilityMasterData, nil
	case models.StageFinalized:
		return "", utils.NewValidationError("stage finalized accepts no direct action")
	default:
		return "", utils.NewValidationError("unknown approval stage %q", stage)
	}
}

func (a Actor) can(capability string) bool {
	return a.IsAdmin || slices.Contains(a.Capabilities, capability)
}

type workflowPartnerStore interface {
	Get(ctx context.Context, id string) (*models.Partner, error)
	Save(ctx context.Context, partner *models.Partner) error
	UpdateFields(ctx context.Context, id string, fields map[string]any) error
}

type workflowSegmentStore interface {
	Ensure(ctx context.Context, partnerID string) ([]*models.PartnerSegmentState, error)
}

type workflowHistoryStore interface {
	Append(ctx context.Context, entry *models.ApprovalHistoryEntry) error
}

// integrationEngine is what the workflow needs from the segment engine.
type integrationEngine interface {
	Integrate(ctx context.Context, partner *models.Partner, segments ...models.SyncSegment) sapsync.IntegrationResult
	Retry(ctx context.Context, partner *models.Partner, segments ...models.SyncSegment) sapsync.IntegrationResult
	MarkAsError(ctx context.Context, partner *models.Partner, reason string, segments ...models.SyncSegment) []*models.PartnerSegmentState
}

// WorkflowResult is the structured outcome returned to API callers: the
// partner after the transition plus the integration outcome when segments
// were dispatched.
type WorkflowResult struct {
	Partner     *models.Partner            `json:"partner"`
	Integration *sapsync.IntegrationResult `json:"integration,omitempty"`
}

// ApprovalWorkflow is the state machine over (status, approval stage).
// External failures never fail a workflow call; they land in segment state.
type ApprovalWorkflow struct {
	partners workflowPartnerStore
	segments workflowSegmentStore
	history  workflowHistoryStore
	engine   integrationEngine
	logger   *logrus.Logger
}

func NewApprovalWorkflow(partners workflowPartnerStore, segments workflowSegmentStore, history workflowHistoryStore, engine integrationEngine) *ApprovalWorkflow {
	return &ApprovalWorkflow{
		partners: partners,
		segments: segments,
		history:  history,
		engine:   engine,
		logger:   config.GetLogger(),
	}
}

// NewDefaultApprovalWorkflow wires the workflow against the gorm stores and
// the live SAP client, with an observer that persists every segment
// transition before the next dispatch.
func NewDefaultApprovalWorkflow() *ApprovalWorkflow {
	cfg := sapsync.LoadConfig()
	store := models.SegmentStateStore{}
	observer := func(ctx context.Context, state *models.PartnerSegmentState) {
		if err := store.Save(ctx, state); err != nil {
			config.GetLogger().WithFields(logrus.Fields{
				"module":  "workflow",
				"partner": state.PartnerID,
				"segment": string(state.Segment),
			}).Error(err.Error())
		}
	}
	engine := sapsync.NewSegmentEngine(cfg, sapsync.NewClient(cfg), observer)
	return NewApprovalWorkflow(models.PartnerStore{}, store, models.ApprovalHistoryStore{}, engine)
}

// lockPartner obtains a best-effort per-partner redis lock. When redis is
// not configured or the lock cannot be obtained the call proceeds anyway;
// single-writer per partner is a convention, not an enforced guarantee.
func (w *ApprovalWorkflow) lockPartner(ctx context.Context, partnerID string) func() {
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}
	}
	lock, err := locker.Obtain(ctx, fmt.Sprintf("partner:%s", partnerID), 30*time.Second, nil)
	if err != nil {
		if err == redislock.ErrNotObtained {
			w.logger.WithFields(logrus.Fields{
				"module":  "workflow",
				"partner": partnerID,
			}).Warn("could not obtain partner lock; proceeding without it")
		}
		return func() {}
	}
	return func() { _ = lock.Release(ctx) }
}

// Submit moves a draft or rejected partner into review at the fiscal stage
// and pushes the primary record to SAP as an existence check.
func (w *ApprovalWorkflow) Submit(ctx context.Context, partnerID string, actor Actor) (*WorkflowResult, error) {
	release := w.lockPartner(ctx, partnerID)
	defer release()

	partner, err := w.partners.Get(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	if partner.Status != models.PartnerStatusDraft && partner.Status != models.PartnerStatusRejected {
		return nil, utils.NewValidationError("partner in status %s cannot be submitted", partner.Status)
	}

	partner.Status = models.PartnerStatusInReview
	partner.ApprovalStage = models.StageFiscal
	if err := w.partners.Save(ctx, partner); err != nil {
		return nil, err
	}
	if err := w.history.Append(ctx, &models.ApprovalHistoryEntry{
		PartnerID: partner.ID,
		Stage:     models.StageFiscal,
		Action:    models.ActionSubmitted,
		ActorId:   actor.Id,
		ActorName: actor.Name,
	}); err != nil {
		return nil, err
	}

	states, err := w.segments.Ensure(ctx, partner.ID)
	if err != nil {
		return nil, err
	}
	partner.SegmentStates = states

	result := w.engine.Integrate(ctx, partner, models.SegmentPrimaryRecord)
	if err := w.applyPartnerUpdates(ctx, partner, result.PartnerUpdates); err != nil {
		return nil, err
	}
	return &WorkflowResult{Partner: partner, Integration: &result}, nil
}

// ApproveStage records an approval at exactly the partner's current stage
// and advances it. Approving the last substantive stage finalizes the
// partner and runs the full integration automatically.
func (w *ApprovalWorkflow) ApproveStage(ctx context.Context, partnerID string, stage models.ApprovalStage, actor Actor, notes string) (*WorkflowResult, error) {
	capability, err := stageCapability(stage)
	if err != nil {
		return nil, err
	}
	if !actor.can(capability) {
		return nil, utils.NewPermissionError("actor lacks capability for stage %s", stage)
	}

	release := w.lockPartner(ctx, partnerID)
	defer release()

	partner, err := w.partners.Get(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	if partner.Status != models.PartnerStatusInReview {
		return nil, utils.NewValidationError("partner in status %s cannot be approved", partner.Status)
	}
	if partner.ApprovalStage != stage {
		return nil, utils.NewValidationError("partner is at stage %s, not %s", partner.ApprovalStage, stage)
	}

	if err := w.history.Append(ctx, &models.ApprovalHistoryEntry{
		PartnerID: partner.ID,
		Stage:     stage,
		Action:    models.ActionApproved,
		ActorId:   actor.Id,
		ActorName: actor.Name,
		Notes:     notes,
	}); err != nil {
		return nil, err
	}

	next, _ := models.NextStage(stage)
	partner.ApprovalStage = next
	if next == models.StageFinalized {
		partner.Status = models.PartnerStatusApproved
	}
	if err := w.partners.Save(ctx, partner); err != nil {
		return nil, err
	}

	if next != models.StageFinalized {
		return &WorkflowResult{Partner: partner}, nil
	}
	return w.finalize(ctx, partner)
}

// Approve runs the full integration for a finalized partner and settles its
// status on the outcome.
func (w *ApprovalWorkflow) Approve(ctx context.Context, partnerID string) (*WorkflowResult, error) {
	release := w.lockPartner(ctx, partnerID)
	defer release()

	partner, err := w.loadFinalized(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	return w.finalize(ctx, partner)
}

// RejectStage moves the partner to rejected at its current stage and voids
// every integration segment.
func (w *ApprovalWorkflow) RejectStage(ctx context.Context, partnerID string, stage models.ApprovalStage, actor Actor, reason string) (*WorkflowResult, error) {
	capability, err := stageCapability(stage)
	if err != nil {
		return nil, err
	}
	if !actor.can(capability) {
		return nil, utils.NewPermissionError("actor lacks capability for stage %s", stage)
	}

	release := w.lockPartner(ctx, partnerID)
	defer release()

	partner, err := w.partners.Get(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	if partner.Status != models.PartnerStatusInReview {
		return nil, utils.NewValidationError("partner in status %s cannot be rejected", partner.Status)
	}
	if partner.ApprovalStage != stage {
		return nil, utils.NewValidationError("partner is at stage %s, not %s", partner.ApprovalStage, stage)
	}

	partner.Status = models.PartnerStatusRejected
	if err := w.partners.Save(ctx, partner); err != nil {
		return nil, err
	}
	if err := w.history.Append(ctx, &models.ApprovalHistoryEntry{
		PartnerID: partner.ID,
		Stage:     stage,
		Action:    models.ActionRejected,
		ActorId:   actor.Id,
		ActorName: actor.Name,
		Notes:     reason,
	}); err != nil {
		return nil, err
	}

	states, err := w.segments.Ensure(ctx, partner.ID)
	if err != nil {
		return nil, err
	}
	partner.SegmentStates = states

	message := "integration cancelled: partner rejected"
	if reason != "" {
		message = fmt.Sprintf("integration cancelled: partner rejected (%s)", reason)
	}
	w.engine.MarkAsError(ctx, partner, message)
	return &WorkflowResult{Partner: partner}, nil
}

// RetrySapIntegration re-attempts every non-successful segment of a
// finalized partner.
func (w *ApprovalWorkflow) RetrySapIntegration(ctx context.Context, partnerID string) (*WorkflowResult, error) {
	release := w.lockPartner(ctx, partnerID)
	defer release()

	partner, err := w.loadFinalized(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	return w.finalize(ctx, partner)
}

// TriggerSegment re-runs one named segment of a finalized partner.
func (w *ApprovalWorkflow) TriggerSegment(ctx context.Context, partnerID string, segmentName string) (*WorkflowResult, error) {
	segment, ok := models.ParseSegment(segmentName)
	if !ok {
		return nil, utils.NewValidationError("unknown segment %q", segmentName)
	}

	release := w.lockPartner(ctx, partnerID)
	defer release()

	partner, err := w.loadFinalized(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	result := w.engine.Retry(ctx, partner, segment)
	if err := w.settleStatus(ctx, partner, result); err != nil {
		return nil, err
	}
	return &WorkflowResult{Partner: partner, Integration: &result}, nil
}

func (w *ApprovalWorkflow) loadFinalized(ctx context.Context, partnerID string) (*models.Partner, error) {
	partner, err := w.partners.Get(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	if partner.ApprovalStage != models.StageFinalized {
		return nil, utils.NewValidationError("partner is at stage %s; integration requires finalized", partner.ApprovalStage)
	}
	states, err := w.segments.Ensure(ctx, partner.ID)
	if err != nil {
		return nil, err
	}
	partner.SegmentStates = states
	return partner, nil
}

func (w *ApprovalWorkflow) finalize(ctx context.Context, partner *models.Partner) (*WorkflowResult, error) {
	if len(partner.SegmentStates) == 0 {
		states, err := w.segments.Ensure(ctx, partner.ID)
		if err != nil {
			return nil, err
		}
		partner.SegmentStates = states
	}
	result := w.engine.Retry(ctx, partner)
	if err := w.settleStatus(ctx, partner, result); err != nil {
		return nil, err
	}
	return &WorkflowResult{Partner: partner, Integration: &result}, nil
}

// settleStatus merges the integration outcome back onto the partner:
// integrated when every segment succeeded, otherwise approved.
func (w *ApprovalWorkflow) settleStatus(ctx context.Context, partner *models.Partner, result sapsync.IntegrationResult) error {
	updates := map[string]any{}
	for k, v := range result.PartnerUpdates {
		updates[k] = v
	}
	if sapsync.AllSuccessful(partner.SegmentStates) {
		partner.Status = models.PartnerStatusIntegrated
	} else {
		partner.Status = models.PartnerStatusApproved
	}
	updates["status"] = partner.Status
	return w.partners.UpdateFields(ctx, partner.ID, updates)
}

func (w *ApprovalWorkflow) applyPartnerUpdates(ctx context.Context, partner *models.Partner, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return w.partners.UpdateFields(ctx, partner.ID, updates)
}
