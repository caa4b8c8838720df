package models

import "context"

// Store adapters wrap the package-level persistence functions so the
// engines (sapsync, workflow) can depend on narrow interfaces and be tested
// with fakes.

type PartnerStore struct{}

func (PartnerStore) Get(ctx context.Context, id string) (*Partner, error) {
	return GetPartner(ctx, id)
}

func (PartnerStore) FindByDocument(ctx context.Context, document string) (*Partner, error) {
	return FindPartnerByDocument(ctx, document)
}

func (PartnerStore) FindBySequentialId(ctx context.Context, sequentialId int) (*Partner, error) {
	return FindPartnerBySequentialId(ctx, sequentialId)
}

func (PartnerStore) FindBySapId(ctx context.Context, sapId string) (*Partner, error) {
	return FindPartnerBySapId(ctx, sapId)
}

func (PartnerStore) Save(ctx context.Context, partner *Partner) error {
	return SavePartner(ctx, partner)
}

func (PartnerStore) UpdateFields(ctx context.Context, id string, fields map[string]any) error {
	return UpdatePartnerFields(ctx, id, fields)
}

type SegmentStateStore struct{}

func (SegmentStateStore) Ensure(ctx context.Context, partnerID string) ([]*PartnerSegmentState, error) {
	return EnsureSegmentStates(ctx, partnerID)
}

func (SegmentStateStore) Save(ctx context.Context, state *PartnerSegmentState) error {
	return SaveSegmentState(ctx, state)
}

type ApprovalHistoryStore struct{}

func (ApprovalHistoryStore) Append(ctx context.Context, entry *ApprovalHistoryEntry) error {
	return AppendApprovalHistory(ctx, entry)
}

type AuditStore struct{}

func (AuditStore) CreateJob(ctx context.Context, job *AuditJob) error {
	return CreateAuditJob(ctx, job)
}

func (AuditStore) GetJob(ctx context.Context, id int) (*AuditJob, error) {
	return GetAuditJob(ctx, id)
}

func (AuditStore) UpdateJob(ctx context.Context, id int, fields map[string]any) error {
	return UpdateAuditJob(ctx, id, fields)
}

func (AuditStore) AppendLog(ctx context.Context, entry *AuditLog) error {
	return AppendAuditLog(ctx, entry)
}

type ChangeRequestStore struct{}

func (ChangeRequestStore) MostRecentForPartner(ctx context.Context, partnerID string, limit int) ([]*ChangeRequest, error) {
	return MostRecentChangeRequests(ctx, partnerID, limit)
}

func (ChangeRequestStore) Create(ctx context.Context, input *NewChangeRequest) (*ChangeRequest, error) {
	return CreateChangeRequest(ctx, input)
}
