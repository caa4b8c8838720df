package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mmdatafocus/partners_backend/models"
	"github.com/mmdatafocus/partners_backend/sapsync"
	"github.com/mmdatafocus/partners_backend/utils"
)

// NOTE: These tests are intentionally DB-free. Stores are in-memory fakes
// and the segment engine talks to a fake dispatcher.

type memoryStore struct {
	partners map[string]*models.Partner
	states   map[string][]*models.PartnerSegmentState
	history  []*models.ApprovalHistoryEntry
	updates  map[string][]map[string]any
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		partners: map[string]*models.Partner{},
		states:   map[string][]*models.PartnerSegmentState{},
		updates:  map[string][]map[string]any{},
	}
}

func (s *memoryStore) add(p *models.Partner) {
	s.partners[p.ID] = p
	var states []*models.PartnerSegmentState
	for _, seg := range models.AllSegments() {
		states = append(states, &models.PartnerSegmentState{
			PartnerID: p.ID,
			Segment:   seg,
			Status:    models.SegmentStatusPending,
		})
	}
	s.states[p.ID] = states
	p.SegmentStates = states
}

func (s *memoryStore) Get(ctx context.Context, id string) (*models.Partner, error) {
	p, ok := s.partners[id]
	if !ok {
		return nil, utils.NewNotFoundError("partner %s not found", id)
	}
	return p, nil
}

func (s *memoryStore) Save(ctx context.Context, partner *models.Partner) error {
	s.partners[partner.ID] = partner
	return nil
}

func (s *memoryStore) UpdateFields(ctx context.Context, id string, fields map[string]any) error {
	s.updates[id] = append(s.updates[id], fields)
	return nil
}

func (s *memoryStore) Ensure(ctx context.Context, partnerID string) ([]*models.PartnerSegmentState, error) {
	return s.states[partnerID], nil
}

func (s *memoryStore) Append(ctx context.Context, entry *models.ApprovalHistoryEntry) error {
	s.history = append(s.history, entry)
	return nil
}

type recordingDispatcher struct {
	calls   []string
	failAll bool
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, method, path string, payload any) (map[string]any, error) {
	d.calls = append(d.calls, method+" "+path)
	if d.failAll {
		return nil, errors.New("sap api error 500")
	}
	return map[string]any{"businessPartner": "BP-77"}, nil
}

func newTestWorkflow(store *memoryStore, dispatcher *recordingDispatcher) *ApprovalWorkflow {
	cfg := sapsync.Config{Enabled: true, BaseURL: "http://sap.test", Username: "u", Password: "p", TimeoutMs: 1000}
	engine := sapsync.NewSegmentEngine(cfg, dispatcher, nil)
	return NewApprovalWorkflow(store, store, store, engine)
}

func draftPartner(store *memoryStore) *models.Partner {
	p := &models.Partner{
		ID:            "p-1",
		SequentialId:  1,
		PersonType:    models.PersonTypeLegalEntity,
		Nature:        models.PartnerNatureCustomer,
		Status:        models.PartnerStatusDraft,
		ApprovalStage: models.StageFiscal,
		LegalName:     "ACME Ltda",
		Document:      "11222333000181",
	}
	store.add(p)
	return p
}

func reviewer(capabilities ...string) Actor {
	return Actor{Id: 10, Name: "Ana Reviewer", Capabilities: capabilities}
}

func TestSubmit_MovesDraftIntoReviewAndChecksPrimaryRecord(t *testing.T) {
	store := newMemoryStore()
	dispatcher := &recordingDispatcher{}
	w := newTestWorkflow(store, dispatcher)
	partner := draftPartner(store)

	result, err := w.Submit(context.Background(), partner.ID, reviewer())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if partner.Status != models.PartnerStatusInReview {
		t.Errorf("status = %s, want in_review", partner.Status)
	}
	if partner.ApprovalStage != models.StageFiscal {
		t.Errorf("stage = %s, want fiscal", partner.ApprovalStage)
	}
	if len(store.history) != 1 || store.history[0].Action != models.ActionSubmitted {
		t.Errorf("expected one submitted history entry, got %+v", store.history)
	}
	if len(dispatcher.calls) != 1 || !strings.HasPrefix(dispatcher.calls[0], "POST ") {
		t.Errorf("expected one primary-record dispatch, got %v", dispatcher.calls)
	}
	if result.Integration == nil || !result.Integration.Completed {
		t.Error("primary-record check should have completed")
	}
}

func TestSubmit_RejectedPartnerCanBeResubmitted(t *testing.T) {
	store := newMemoryStore()
	w := newTestWorkflow(store, &recordingDispatcher{})
	partner := draftPartner(store)
	partner.Status = models.PartnerStatusRejected
	partner.ApprovalStage = models.StagePurchasing

	if _, err := w.Submit(context.Background(), partner.ID, reviewer()); err != nil {
		t.Fatalf("resubmit failed: %v", err)
	}
	if partner.ApprovalStage != models.StageFiscal {
		t.Errorf("resubmit should reset stage to fiscal, got %s", partner.ApprovalStage)
	}
}

func TestSubmit_InReviewPartnerIsRejected(t *testing.T) {
	store := newMemoryStore()
	w := newTestWorkflow(store, &recordingDispatcher{})
	partner := draftPartner(store)
	partner.Status = models.PartnerStatusInReview

	_, err := w.Submit(context.Background(), partner.ID, reviewer())
	var validationErr *utils.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestApproveStage_WithoutCapabilityChangesNothing(t *testing.T) {
	store := newMemoryStore()
	w := newTestWorkflow(store, &recordingDispatcher{})
	partner := draftPartner(store)
	partner.Status = models.PartnerStatusInReview
	partner.ApprovalStage = models.StageMasterData

	_, err := w.ApproveStage(context.Background(), partner.ID, models.StageMasterData, reviewer(CapabilityFiscal), "")
	var permissionErr *utils.PermissionError
	if !errors.As(err, &permissionErr) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
	if partner.ApprovalStage != models.StageMasterData || partner.Status != models.PartnerStatusInReview {
		t.Error("a permission failure must not mutate state")
	}
	if len(store.history) != 0 {
		t.Error("a permission failure must not append history")
	}
}

func TestApproveStage_AdvancesOneStageAtATime(t *testing.T) {
	store := newMemoryStore()
	dispatcher := &recordingDispatcher{}
	w := newTestWorkflow(store, dispatcher)
	partner := draftPartner(store)
	partner.Status = models.PartnerStatusInReview

	if _, err := w.ApproveStage(context.Background(), partner.ID, models.StageFiscal, reviewer(CapabilityFiscal), "ok"); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	if partner.ApprovalStage != models.StagePurchasing {
		t.Errorf("stage = %s, want purchasing (never skips)", partner.ApprovalStage)
	}
	if partner.Status != models.PartnerStatusInReview {
		t.Errorf("status = %s, want in_review", partner.Status)
	}
	if len(dispatcher.calls) != 0 {
		t.Errorf("intermediate approval should not dispatch segments, got %v", dispatcher.calls)
	}
}

func TestApproveStage_AtWrongStageIsValidationError(t *testing.T) {
	store := newMemoryStore()
	w := newTestWorkflow(store, &recordingDispatcher{})
	partner := draftPartner(store)
	partner.Status = models.PartnerStatusInReview
	partner.ApprovalStage = models.StagePurchasing

	_, err := w.ApproveStage(context.Background(), partner.ID, models.StageFiscal, reviewer(CapabilityFiscal), "")
	var validationErr *utils.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestApproveStage_FinalStageFinalizesAndIntegrates(t *testing.T) {
	store := newMemoryStore()
	dispatcher := &recordingDispatcher{}
	w := newTestWorkflow(store, dispatcher)
	partner := draftPartner(store)
	partner.Status = models.PartnerStatusInReview
	partner.ApprovalStage = models.StageMasterData

	result, err := w.ApproveStage(context.Background(), partner.ID, models.StageMasterData, reviewer(CapabilityMasterData), "")
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	if partner.ApprovalStage != models.StageFinalized {
		t.Errorf("stage = %s, want finalized", partner.ApprovalStage)
	}
	if partner.Status != models.PartnerStatusIntegrated {
		t.Errorf("status = %s, want integrated (all segments succeeded)", partner.Status)
	}
	if len(dispatcher.calls) != 4 {
		t.Errorf("expected all four segments dispatched, got %v", dispatcher.calls)
	}
	if result.Integration == nil || !result.Integration.Completed {
		t.Error("integration should have completed")
	}
}

func TestApproveStage_FinalStageWithFailingSapStaysApproved(t *testing.T) {
	store := newMemoryStore()
	dispatcher := &recordingDispatcher{failAll: true}
	w := newTestWorkflow(store, dispatcher)
	partner := draftPartner(store)
	partner.Status = models.PartnerStatusInReview
	partner.ApprovalStage = models.StageMasterData

	result, err := w.ApproveStage(context.Background(), partner.ID, models.StageMasterData, reviewer(CapabilityMasterData), "")
	if err != nil {
		t.Fatalf("a SAP failure must not fail the workflow call: %v", err)
	}
	if partner.Status != models.PartnerStatusApproved {
		t.Errorf("status = %s, want approved", partner.Status)
	}
	if result.Integration.Completed {
		t.Error("integration should not report completed")
	}
}

func TestApproveStage_FinalizedAcceptsNoDirectAction(t *testing.T) {
	store := newMemoryStore()
	w := newTestWorkflow(store, &recordingDispatcher{})
	partner := draftPartner(store)

	_, err := w.ApproveStage(context.Background(), partner.ID, models.StageFinalized, reviewer(CapabilityMasterData), "")
	var validationErr *utils.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError for finalized stage, got %v", err)
	}
}

func TestRejectStage_VoidsEverySegment(t *testing.T) {
	store := newMemoryStore()
	dispatcher := &recordingDispatcher{}
	w := newTestWorkflow(store, dispatcher)
	partner := draftPartner(store)
	partner.Status = models.PartnerStatusInReview
	partner.ApprovalStage = models.StagePurchasing
	for _, s := range partner.SegmentStates {
		s.Status = models.SegmentStatusSuccess
	}

	_, err := w.RejectStage(context.Background(), partner.ID, models.StagePurchasing, reviewer(CapabilityPurchasing), "dados divergentes")
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}

	if partner.Status != models.PartnerStatusRejected {
		t.Errorf("status = %s, want rejected", partner.Status)
	}
	if partner.ApprovalStage != models.StagePurchasing {
		t.Errorf("stage = %s, want purchasing (stays put)", partner.ApprovalStage)
	}
	for _, s := range partner.SegmentStates {
		if s.Status != models.SegmentStatusError {
			t.Errorf("segment %s = %s, want error", s.Segment, s.Status)
		}
	}
	if len(store.history) != 1 || store.history[0].Action != models.ActionRejected || store.history[0].Notes != "dados divergentes" {
		t.Errorf("expected one rejected history entry with the reason, got %+v", store.history)
	}
	if len(dispatcher.calls) != 0 {
		t.Errorf("rejection must not dispatch to SAP, got %v", dispatcher.calls)
	}
}

func TestRetrySapIntegration_RequiresFinalizedStage(t *testing.T) {
	store := newMemoryStore()
	w := newTestWorkflow(store, &recordingDispatcher{})
	partner := draftPartner(store)
	partner.ApprovalStage = models.StageFiscal

	_, err := w.RetrySapIntegration(context.Background(), partner.ID)
	var validationErr *utils.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestTriggerSegment_UnknownSegmentIsValidationError(t *testing.T) {
	store := newMemoryStore()
	w := newTestWorkflow(store, &recordingDispatcher{})
	partner := draftPartner(store)
	partner.ApprovalStage = models.StageFinalized

	_, err := w.TriggerSegment(context.Background(), partner.ID, "bogus")
	var validationErr *utils.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestTriggerSegment_RunsOnlyTheNamedSegment(t *testing.T) {
	store := newMemoryStore()
	dispatcher := &recordingDispatcher{}
	w := newTestWorkflow(store, dispatcher)
	partner := draftPartner(store)
	partner.Status = models.PartnerStatusApproved
	partner.ApprovalStage = models.StageFinalized
	partner.SapId = "BP-77"

	_, err := w.TriggerSegment(context.Background(), partner.ID, "banks")
	if err != nil {
		t.Fatalf("trigger failed: %v", err)
	}
	if len(dispatcher.calls) != 1 || !strings.Contains(dispatcher.calls[0], "/banks") {
		t.Errorf("expected a single banks dispatch, got %v", dispatcher.calls)
	}
}

func TestWorkflow_UnknownPartnerIsNotFound(t *testing.T) {
	store := newMemoryStore()
	w := newTestWorkflow(store, &recordingDispatcher{})

	_, err := w.Submit(context.Background(), "missing", reviewer())
	var notFoundErr *utils.NotFoundError
	if !errors.As(err, &notFoundErr) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
