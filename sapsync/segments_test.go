package sapsync

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mmdatafocus/partners_backend/models"
	"github.com/mmdatafocus/partners_backend/utils"
)

// NOTE: These tests are intentionally DB-free. The engine talks to a fake
// dispatcher and an in-memory observer; persistence is exercised elsewhere.

type fakeDispatcher struct {
	calls    []string
	response map[string]any
	failPath string
	failErr  error
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, method, path string, payload any) (map[string]any, error) {
	d.calls = append(d.calls, method+" "+path)
	if d.failPath != "" && strings.Contains(path, d.failPath) {
		return nil, d.failErr
	}
	return d.response, nil
}

func testPartner() *models.Partner {
	p := &models.Partner{
		ID:           "partner-1",
		SequentialId: 7,
		PersonType:   models.PersonTypeLegalEntity,
		Nature:       models.PartnerNatureCustomer,
		Status:       models.PartnerStatusApproved,
		LegalName:    "ACME Ltda",
		Document:     "11222333000181",
	}
	for _, seg := range models.AllSegments() {
		p.SegmentStates = append(p.SegmentStates, &models.PartnerSegmentState{
			PartnerID: p.ID,
			Segment:   seg,
			Status:    models.SegmentStatusPending,
		})
	}
	return p
}

func enabledConfig() Config {
	return Config{Enabled: true, BaseURL: "http://sap.test", Username: "u", Password: "p", TimeoutMs: 1000}
}

func statusOf(t *testing.T, p *models.Partner, seg models.SyncSegment) models.SegmentStatus {
	t.Helper()
	for _, s := range p.SegmentStates {
		if s.Segment == seg {
			return s.Status
		}
	}
	t.Fatalf("segment %s not found", seg)
	return ""
}

func TestIntegrate_DisabledMarksEverySegmentSuccess(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	engine := NewSegmentEngine(Config{Enabled: false}, dispatcher, nil)
	partner := testPartner()

	result := engine.Integrate(context.Background(), partner)

	if !result.Completed {
		t.Error("disabled sync should report completed")
	}
	for _, seg := range models.AllSegments() {
		if got := statusOf(t, partner, seg); got != models.SegmentStatusSuccess {
			t.Errorf("segment %s = %s, want success", seg, got)
		}
	}
	if len(dispatcher.calls) != 0 {
		t.Errorf("disabled sync made %d external calls", len(dispatcher.calls))
	}
}

func TestIntegrate_UnconfiguredMarksEverySegmentError(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	engine := NewSegmentEngine(Config{Enabled: true}, dispatcher, nil)
	partner := testPartner()

	result := engine.Integrate(context.Background(), partner)

	if result.Completed {
		t.Error("unconfigured sync should not report completed")
	}
	for _, seg := range models.AllSegments() {
		if got := statusOf(t, partner, seg); got != models.SegmentStatusError {
			t.Errorf("segment %s = %s, want error", seg, got)
		}
	}
	if len(dispatcher.calls) != 0 {
		t.Errorf("unconfigured sync made %d external calls", len(dispatcher.calls))
	}
}

func TestIntegrate_FailFastLeavesRemainingPending(t *testing.T) {
	dispatcher := &fakeDispatcher{
		response: map[string]any{"businessPartner": "BP-900"},
		failPath: "/addresses",
		failErr:  utils.NewExternalError("sap api error 500", nil),
	}
	engine := NewSegmentEngine(enabledConfig(), dispatcher, nil)
	partner := testPartner()

	result := engine.Integrate(context.Background(), partner)

	if result.Completed {
		t.Error("a failed segment should not report completed")
	}
	if got := statusOf(t, partner, models.SegmentPrimaryRecord); got != models.SegmentStatusSuccess {
		t.Errorf("primary_record = %s, want success", got)
	}
	if got := statusOf(t, partner, models.SegmentAddresses); got != models.SegmentStatusError {
		t.Errorf("addresses = %s, want error", got)
	}
	if got := statusOf(t, partner, models.SegmentRoles); got != models.SegmentStatusPending {
		t.Errorf("roles = %s, want pending (never attempted)", got)
	}
	if got := statusOf(t, partner, models.SegmentBanks); got != models.SegmentStatusPending {
		t.Errorf("banks = %s, want pending (never attempted)", got)
	}
	if len(dispatcher.calls) != 2 {
		t.Errorf("expected 2 dispatches (primary + addresses), got %d: %v", len(dispatcher.calls), dispatcher.calls)
	}
}

func TestIntegrate_CapturesExternalIdFromPrimaryRecord(t *testing.T) {
	dispatcher := &fakeDispatcher{response: map[string]any{"businessPartner": "BP-900"}}
	engine := NewSegmentEngine(enabledConfig(), dispatcher, nil)
	partner := testPartner()

	result := engine.Integrate(context.Background(), partner)

	if !result.Completed {
		t.Error("expected full success")
	}
	if result.PartnerUpdates["sap_id"] != "BP-900" {
		t.Errorf("sap_id update = %v, want BP-900", result.PartnerUpdates["sap_id"])
	}
	if partner.SapId != "BP-900" {
		t.Errorf("partner.SapId = %q, want BP-900", partner.SapId)
	}
	for _, s := range partner.SegmentStates {
		if s.Segment == models.SegmentPrimaryRecord && s.ExternalId != "BP-900" {
			t.Errorf("primary segment ExternalId = %q, want BP-900", s.ExternalId)
		}
	}
}

func TestRetry_NoFailedSegmentsIsNoOp(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	engine := NewSegmentEngine(enabledConfig(), dispatcher, nil)
	partner := testPartner()
	for _, s := range partner.SegmentStates {
		s.Status = models.SegmentStatusSuccess
	}

	result := engine.Retry(context.Background(), partner)

	if !result.Completed {
		t.Error("retry with nothing to do should report completed")
	}
	if len(dispatcher.calls) != 0 {
		t.Errorf("retry no-op made %d external calls", len(dispatcher.calls))
	}
}

func TestRetry_TargetsOnlyNonSuccessfulSegments(t *testing.T) {
	dispatcher := &fakeDispatcher{response: map[string]any{}}
	engine := NewSegmentEngine(enabledConfig(), dispatcher, nil)
	partner := testPartner()
	partner.SapId = "BP-900"
	for _, s := range partner.SegmentStates {
		if s.Segment == models.SegmentPrimaryRecord {
			s.Status = models.SegmentStatusSuccess
		} else {
			s.Status = models.SegmentStatusError
		}
	}

	result := engine.Retry(context.Background(), partner)

	if !result.Completed {
		t.Error("expected retried segments to succeed")
	}
	if len(dispatcher.calls) != 3 {
		t.Fatalf("expected 3 dispatches, got %d: %v", len(dispatcher.calls), dispatcher.calls)
	}
	for _, call := range dispatcher.calls {
		if strings.HasPrefix(call, "POST ") {
			t.Errorf("primary record should not have been re-dispatched: %s", call)
		}
	}
}

func TestMarkAsError_RewritesEverySegmentWithoutDispatch(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	engine := NewSegmentEngine(enabledConfig(), dispatcher, nil)
	partner := testPartner()
	for _, s := range partner.SegmentStates {
		s.Status = models.SegmentStatusSuccess
	}

	engine.MarkAsError(context.Background(), partner, "integration cancelled: partner rejected")

	for _, s := range partner.SegmentStates {
		if s.Status != models.SegmentStatusError {
			t.Errorf("segment %s = %s, want error", s.Segment, s.Status)
		}
		if s.ErrorMessage == "" {
			t.Errorf("segment %s should carry the rejection reason", s.Segment)
		}
	}
	if len(dispatcher.calls) != 0 {
		t.Errorf("markAsError made %d external calls", len(dispatcher.calls))
	}
}

func TestIntegrate_ObserverSeesEveryTransitionInOrder(t *testing.T) {
	dispatcher := &fakeDispatcher{
		response: map[string]any{"businessPartner": "BP-1"},
		failPath: "/roles",
		failErr:  errors.New(TimeoutErrorMessage),
	}
	var transitions []string
	observer := func(ctx context.Context, state *models.PartnerSegmentState) {
		transitions = append(transitions, string(state.Segment)+":"+string(state.Status))
	}
	engine := NewSegmentEngine(enabledConfig(), dispatcher, observer)
	partner := testPartner()

	engine.Integrate(context.Background(), partner)

	want := []string{
		"primary_record:processing", "primary_record:success",
		"addresses:processing", "addresses:success",
		"roles:processing", "roles:error",
	}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}
