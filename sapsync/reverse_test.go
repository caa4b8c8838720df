package sapsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/mmdatafocus/partners_backend/models"
	"github.com/mmdatafocus/partners_backend/utils"
)

// NOTE: These tests are intentionally DB-free. The SAP listing and the
// stores are in-memory fakes.

type scriptedLister struct {
	pages []PartnerPage
	errAt int // 1-based page number that fails; 0 disables
	calls []int
}

func (l *scriptedLister) ListPartners(ctx context.Context, page, pageSize int, updatedAfter *string) (PartnerPage, error) {
	l.calls = append(l.calls, page)
	if l.errAt > 0 && page == l.errAt {
		return PartnerPage{}, errors.New("sap listing failed")
	}
	if len(l.pages) == 0 {
		return PartnerPage{}, nil
	}
	result := l.pages[0]
	l.pages = l.pages[1:]
	return result, nil
}

type reverseFakeStore struct {
	partners     map[string]*models.Partner
	bySeq        map[int]*models.Partner
	bySap        map[string]*models.Partner
	byDoc        map[string]*models.Partner
	fieldUpdates map[string][]map[string]any
	lookups      []string

	jobs       []*models.AuditJob
	jobUpdates []map[string]any
	logs       []*models.AuditLog
	saved      []*models.PartnerSegmentState
	saveErr    error
}

func newReverseFakeStore() *reverseFakeStore {
	return &reverseFakeStore{
		partners:     map[string]*models.Partner{},
		bySeq:        map[int]*models.Partner{},
		bySap:        map[string]*models.Partner{},
		byDoc:        map[string]*models.Partner{},
		fieldUpdates: map[string][]map[string]any{},
	}
}

func (s *reverseFakeStore) add(p *models.Partner) {
	s.partners[p.ID] = p
	if p.SequentialId > 0 {
		s.bySeq[p.SequentialId] = p
	}
	if p.SapId != "" {
		s.bySap[p.SapId] = p
	}
	if p.Document != "" {
		s.byDoc[p.Document] = p
	}
}

func (s *reverseFakeStore) Get(ctx context.Context, id string) (*models.Partner, error) {
	s.lookups = append(s.lookups, "id:"+id)
	if p, ok := s.partners[id]; ok {
		return p, nil
	}
	return nil, utils.NewNotFoundError("partner %s not found", id)
}

func (s *reverseFakeStore) FindBySequentialId(ctx context.Context, sequentialId int) (*models.Partner, error) {
	s.lookups = append(s.lookups, fmt.Sprintf("seq:%d", sequentialId))
	if p, ok := s.bySeq[sequentialId]; ok {
		return p, nil
	}
	return nil, utils.NewNotFoundError("partner with sequential id %d not found", sequentialId)
}

func (s *reverseFakeStore) FindBySapId(ctx context.Context, sapId string) (*models.Partner, error) {
	s.lookups = append(s.lookups, "sap:"+sapId)
	if p, ok := s.bySap[sapId]; ok {
		return p, nil
	}
	return nil, utils.NewNotFoundError("partner with sap id %s not found", sapId)
}

func (s *reverseFakeStore) FindByDocument(ctx context.Context, document string) (*models.Partner, error) {
	s.lookups = append(s.lookups, "doc:"+document)
	if p, ok := s.byDoc[document]; ok {
		return p, nil
	}
	return nil, utils.NewNotFoundError("partner with document %s not found", document)
}

func (s *reverseFakeStore) UpdateFields(ctx context.Context, id string, fields map[string]any) error {
	s.fieldUpdates[id] = append(s.fieldUpdates[id], fields)
	return nil
}

func (s *reverseFakeStore) CreateJob(ctx context.Context, job *models.AuditJob) error {
	job.ID = len(s.jobs) + 1
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *reverseFakeStore) UpdateJob(ctx context.Context, id int, fields map[string]any) error {
	s.jobUpdates = append(s.jobUpdates, fields)
	return nil
}

func (s *reverseFakeStore) AppendLog(ctx context.Context, entry *models.AuditLog) error {
	s.logs = append(s.logs, entry)
	return nil
}

func (s *reverseFakeStore) Save(ctx context.Context, state *models.PartnerSegmentState) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, state)
	return nil
}

func newReverseSync(cfg Config, lister Lister, store *reverseFakeStore) *ReverseSync {
	return NewReverseSync(cfg, lister, store, store, store)
}

func reverseConfig() Config {
	return Config{Enabled: true, BaseURL: "http://sap.test", Username: "u", Password: "p", TimeoutMs: 1000, PageSize: 2}
}

func rawItem(t *testing.T, payload map[string]any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestRun_DisabledIsANoOp(t *testing.T) {
	lister := &scriptedLister{}
	store := newReverseFakeStore()
	sync := newReverseSync(Config{Enabled: false}, lister, store)

	summary := sync.Run(context.Background())

	if summary.Message != "sap sync disabled; reverse sync skipped" {
		t.Errorf("message = %q", summary.Message)
	}
	if len(lister.calls) != 0 {
		t.Error("disabled sync must not call SAP")
	}
}

func TestRun_UnconfiguredIsANoOp(t *testing.T) {
	lister := &scriptedLister{}
	store := newReverseFakeStore()
	sync := newReverseSync(Config{Enabled: true}, lister, store)

	summary := sync.Run(context.Background())

	if summary.Message != "sap connection settings are missing; reverse sync skipped" {
		t.Errorf("message = %q", summary.Message)
	}
	if len(lister.calls) != 0 {
		t.Error("unconfigured sync must not call SAP")
	}
}

func TestRun_NextPageBeatsEveryOtherSignal(t *testing.T) {
	// Pages report both NextPage and HasMore; NextPage wins, and a
	// non-advancing NextPage terminates.
	lister := &scriptedLister{pages: []PartnerPage{
		{NextPage: intPtr(5), HasMore: boolPtr(false)},
		{NextPage: intPtr(5), HasMore: boolPtr(true)},
	}}
	store := newReverseFakeStore()
	sync := newReverseSync(reverseConfig(), lister, store)

	summary := sync.Run(context.Background())

	if summary.Pages != 2 {
		t.Errorf("pages = %d, want 2", summary.Pages)
	}
	if len(lister.calls) != 2 || lister.calls[0] != 1 || lister.calls[1] != 5 {
		t.Errorf("calls = %v, want [1 5]", lister.calls)
	}
}

func TestRun_HasMoreFalseStops(t *testing.T) {
	full := make([]json.RawMessage, 2) // full page: the size heuristic alone would continue
	for i := range full {
		full[i] = json.RawMessage(`{}`)
	}
	lister := &scriptedLister{pages: []PartnerPage{{Items: full, HasMore: boolPtr(false)}}}
	store := newReverseFakeStore()
	sync := newReverseSync(reverseConfig(), lister, store)

	summary := sync.Run(context.Background())

	if summary.Pages != 1 {
		t.Errorf("pages = %d, want 1", summary.Pages)
	}
}

func TestRun_ShortPageStopsWhenNoExplicitSignal(t *testing.T) {
	full := []json.RawMessage{json.RawMessage(`{}`), json.RawMessage(`{}`)}
	short := []json.RawMessage{json.RawMessage(`{}`)}
	lister := &scriptedLister{pages: []PartnerPage{{Items: full}, {Items: short}}}
	store := newReverseFakeStore()
	sync := newReverseSync(reverseConfig(), lister, store)

	summary := sync.Run(context.Background())

	if summary.Pages != 2 {
		t.Errorf("pages = %d, want 2", summary.Pages)
	}
	if len(lister.calls) != 2 || lister.calls[1] != 2 {
		t.Errorf("calls = %v, want [1 2]", lister.calls)
	}
	if summary.Seen != 3 {
		t.Errorf("seen = %d, want 3", summary.Seen)
	}
}

func TestRun_LocatePrefersStrongerIdentifiers(t *testing.T) {
	byId := &models.Partner{ID: "p-by-id", Nature: models.PartnerNatureCustomer}
	bySeq := &models.Partner{ID: "p-by-seq", SequentialId: 12, Nature: models.PartnerNatureCustomer}
	store := newReverseFakeStore()
	store.add(byId)
	store.add(bySeq)

	// The payload carries every identifier; the internal id must win.
	item := rawItem(t, map[string]any{
		"internal_id": "p-by-id",
		"partnerId":   12,
		"legalName":   "Novo Nome Ltda",
	})
	lister := &scriptedLister{pages: []PartnerPage{{Items: []json.RawMessage{item}}}}
	sync := newReverseSync(reverseConfig(), lister, store)

	summary := sync.Run(context.Background())

	if summary.Updated != 1 {
		t.Fatalf("updated = %d, want 1 (%s)", summary.Updated, summary.Message)
	}
	if len(store.fieldUpdates["p-by-id"]) != 1 {
		t.Errorf("updates landed on %v, want p-by-id", store.fieldUpdates)
	}
	if len(store.fieldUpdates["p-by-seq"]) != 0 {
		t.Error("the sequential-id match must not be used when the internal id resolves")
	}
}

func TestRun_FallsThroughToWeakerIdentifiers(t *testing.T) {
	partner := &models.Partner{ID: "p-doc", Document: "11222333000181", Nature: models.PartnerNatureSupplier}
	store := newReverseFakeStore()
	store.add(partner)

	item := rawItem(t, map[string]any{
		"internal_id":     "unknown-id",
		"businessPartner": "BP-404",
		"document":        "11.222.333/0001-81",
		"email":           "fiscal@acme.com.br",
	})
	lister := &scriptedLister{pages: []PartnerPage{{Items: []json.RawMessage{item}}}}
	sync := newReverseSync(reverseConfig(), lister, store)

	summary := sync.Run(context.Background())

	if summary.Updated != 1 {
		t.Fatalf("updated = %d, want 1", summary.Updated)
	}
	want := []string{"id:unknown-id", "sap:BP-404", "doc:11222333000181"}
	if len(store.lookups) != len(want) {
		t.Fatalf("lookups = %v, want %v", store.lookups, want)
	}
	for i, lookup := range want {
		if store.lookups[i] != lookup {
			t.Errorf("lookup[%d] = %s, want %s", i, store.lookups[i], lookup)
		}
	}
}

func TestRun_IdenticalPayloadIsSkippedWithoutJob(t *testing.T) {
	partner := &models.Partner{
		ID:        "p-same",
		SapId:     "BP-1",
		LegalName: "ACME Ltda",
		Email:     "contato@acme.com.br",
		Nature:    models.PartnerNatureCustomer,
	}
	store := newReverseFakeStore()
	store.add(partner)

	item := rawItem(t, map[string]any{
		"businessPartner": "BP-1",
		"legalName":       "ACME Ltda",
		"email":           "contato@acme.com.br",
	})
	lister := &scriptedLister{pages: []PartnerPage{{Items: []json.RawMessage{item}}}}
	sync := newReverseSync(reverseConfig(), lister, store)

	summary := sync.Run(context.Background())

	if summary.Skipped != 1 || summary.Updated != 0 {
		t.Errorf("summary = %+v, want one skip", summary)
	}
	if len(store.jobs) != 0 {
		t.Error("a quiet run must not create an audit job")
	}
	if summary.JobId != nil {
		t.Error("summary must carry no job id")
	}
}

func TestRun_UpdateCreatesOneLazyJobAndCompletesIt(t *testing.T) {
	first := &models.Partner{ID: "p-1", SapId: "BP-1", LegalName: "Alpha Ltda", Nature: models.PartnerNatureCustomer}
	second := &models.Partner{ID: "p-2", SapId: "BP-2", LegalName: "Beta Ltda", Nature: models.PartnerNatureCustomer}
	store := newReverseFakeStore()
	store.add(first)
	store.add(second)

	items := []json.RawMessage{
		rawItem(t, map[string]any{"businessPartner": "BP-1", "legalName": "Alpha Comércio Ltda"}),
		rawItem(t, map[string]any{"businessPartner": "BP-2", "legalName": "Beta Indústria Ltda"}),
	}
	lister := &scriptedLister{pages: []PartnerPage{{Items: items}}}
	sync := newReverseSync(reverseConfig(), lister, store)

	summary := sync.Run(context.Background())

	if summary.Updated != 2 {
		t.Fatalf("updated = %d, want 2 (%s)", summary.Updated, summary.Message)
	}
	if len(store.jobs) != 1 {
		t.Fatalf("jobs = %d, want exactly one for the whole run", len(store.jobs))
	}
	job := store.jobs[0]
	if job.Scope != models.AuditScopeBatch || job.TriggeredBy != "reverse_sync" {
		t.Errorf("job = %+v", job)
	}
	if summary.JobId == nil || *summary.JobId != job.ID {
		t.Errorf("summary job id = %v, want %d", summary.JobId, job.ID)
	}
	if len(store.logs) != 2 {
		t.Errorf("logs = %d, want one per updated partner", len(store.logs))
	}

	if len(store.jobUpdates) != 1 {
		t.Fatalf("job updates = %v, want one completion", store.jobUpdates)
	}
	completion := store.jobUpdates[0]
	if completion["status"] != models.AuditJobStatusCompleted {
		t.Errorf("completion status = %v", completion["status"])
	}
	ids := models.DecodePartnerIds(completion["partner_ids_json"].([]byte))
	if len(ids) != 2 || ids[0] != "p-1" || ids[1] != "p-2" {
		t.Errorf("completed partner ids = %v", ids)
	}
}

func TestRun_BadPayloadCountsAsErrorWithoutAborting(t *testing.T) {
	partner := &models.Partner{ID: "p-ok", SapId: "BP-9", LegalName: "Gamma Ltda", Nature: models.PartnerNatureCustomer}
	store := newReverseFakeStore()
	store.add(partner)

	items := []json.RawMessage{
		json.RawMessage(`{"businessPartner": 3.5, "legalName": {`), // malformed
		rawItem(t, map[string]any{"businessPartner": "BP-9", "legalName": "Gamma Comércio Ltda"}),
	}
	lister := &scriptedLister{pages: []PartnerPage{{Items: items}}}
	sync := newReverseSync(reverseConfig(), lister, store)

	summary := sync.Run(context.Background())

	if summary.Errors != 1 {
		t.Errorf("errors = %d, want 1", summary.Errors)
	}
	if summary.Updated != 1 {
		t.Errorf("updated = %d, want the good payload still processed", summary.Updated)
	}
}

func TestRun_ListingFailureStopsWithError(t *testing.T) {
	lister := &scriptedLister{errAt: 1}
	store := newReverseFakeStore()
	sync := newReverseSync(reverseConfig(), lister, store)

	summary := sync.Run(context.Background())

	if summary.Errors != 1 || summary.Pages != 0 {
		t.Errorf("summary = %+v, want one error and no pages", summary)
	}
	if summary.Message != "sap listing failed" {
		t.Errorf("message = %q", summary.Message)
	}
}

func TestRun_SegmentStatusFromSapIsPersisted(t *testing.T) {
	partner := &models.Partner{
		ID:     "p-seg",
		SapId:  "BP-5",
		Nature: models.PartnerNatureCustomer,
		SegmentStates: []*models.PartnerSegmentState{
			{PartnerID: "p-seg", Segment: models.SegmentBanks, Status: models.SegmentStatusPending},
		},
	}
	store := newReverseFakeStore()
	store.add(partner)

	item := rawItem(t, map[string]any{
		"businessPartner": "BP-5",
		"segments": []map[string]any{
			{"segment": "banks", "status": "success"},
		},
	})
	lister := &scriptedLister{pages: []PartnerPage{{Items: []json.RawMessage{item}}}}
	sync := newReverseSync(reverseConfig(), lister, store)

	summary := sync.Run(context.Background())

	if summary.Updated != 1 {
		t.Fatalf("updated = %d, want 1 (%s)", summary.Updated, summary.Message)
	}
	if len(store.saved) != 1 || store.saved[0].Status != models.SegmentStatusSuccess {
		t.Errorf("saved states = %+v, want banks success", store.saved)
	}
	if len(store.logs) != 1 {
		t.Fatalf("logs = %d, want 1", len(store.logs))
	}
	diffs := store.logs[0].Differences()
	if len(diffs) != 1 || diffs[0].Field != "segments.banks.status" {
		t.Errorf("differences = %+v", diffs)
	}
}

func TestRun_UnsavedSegmentStatusIsNotReported(t *testing.T) {
	partner := &models.Partner{
		ID:     "p-seg",
		SapId:  "BP-5",
		Nature: models.PartnerNatureCustomer,
		SegmentStates: []*models.PartnerSegmentState{
			{PartnerID: "p-seg", Segment: models.SegmentBanks, Status: models.SegmentStatusPending},
		},
	}
	store := newReverseFakeStore()
	store.add(partner)
	store.saveErr = errors.New("save failed")

	item := rawItem(t, map[string]any{
		"businessPartner": "BP-5",
		"segments": []map[string]any{
			{"segment": "banks", "status": "success"},
		},
	})
	lister := &scriptedLister{pages: []PartnerPage{{Items: []json.RawMessage{item}}}}
	sync := newReverseSync(reverseConfig(), lister, store)

	summary := sync.Run(context.Background())

	if summary.Updated != 0 || summary.Skipped != 1 {
		t.Errorf("summary = %+v, want the partner skipped", summary)
	}
	if len(store.jobs) != 0 || len(store.logs) != 0 {
		t.Error("an unpersisted segment change must leave no job or log entry")
	}
	if partner.SegmentStates[0].Status != models.SegmentStatusPending {
		t.Errorf("status = %s, want the stored pending restored", partner.SegmentStates[0].Status)
	}
}
