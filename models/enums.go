package models

// Person type of the partner master record.
type PersonType string

const (
	PersonTypeLegalEntity   PersonType = "legal_entity"
	PersonTypeNaturalPerson PersonType = "natural_person"
)

// Relationship nature towards the company.
type PartnerNature string

const (
	PartnerNatureCustomer PartnerNature = "customer"
	PartnerNatureSupplier PartnerNature = "supplier"
	PartnerNatureBoth     PartnerNature = "both"
)

func ValidPartnerNature(v string) bool {
	switch PartnerNature(v) {
	case PartnerNatureCustomer, PartnerNatureSupplier, PartnerNatureBoth:
		return true
	}
	return false
}

// Lifecycle status of the partner record.
type PartnerStatus string

const (
	PartnerStatusDraft      PartnerStatus = "draft"
	PartnerStatusInReview   PartnerStatus = "in_review"
	PartnerStatusApproved   PartnerStatus = "approved"
	PartnerStatusRejected   PartnerStatus = "rejected"
	PartnerStatusIntegrated PartnerStatus = "integrated"
)

// ApprovalStage is one step of the sequential human-approval workflow.
// The order is fixed; Finalized is terminal and accepts no direct action.
type ApprovalStage string

const (
	StageFiscal     ApprovalStage = "fiscal"
	StagePurchasing ApprovalStage = "purchasing"
	StageMasterData ApprovalStage = "master_data"
	StageFinalized  ApprovalStage = "finalized"
)

var approvalStageOrder = []ApprovalStage{StageFiscal, StagePurchasing, StageMasterData, StageFinalized}

// NextStage returns the stage following s in the fixed order. ok is false
// for Finalized and for unknown values.
func NextStage(s ApprovalStage) (ApprovalStage, bool) {
	for i, stage := range approvalStageOrder {
		if stage == s && i+1 < len(approvalStageOrder) {
			return approvalStageOrder[i+1], true
		}
	}
	return "", false
}

func ValidApprovalStage(v string) bool {
	for _, stage := range approvalStageOrder {
		if stage == ApprovalStage(v) {
			return true
		}
	}
	return false
}

// ApprovalAction recorded in the append-only approval history.
type ApprovalAction string

const (
	ActionSubmitted ApprovalAction = "submitted"
	ActionApproved  ApprovalAction = "approved"
	ActionRejected  ApprovalAction = "rejected"
)

// SyncSegment is one independently-tracked portion of the partner record
// pushed to SAP. The set is closed and the order is significant: the engine
// always dispatches in this order and stops at the first failure.
type SyncSegment string

const (
	SegmentPrimaryRecord SyncSegment = "primary_record"
	SegmentAddresses     SyncSegment = "addresses"
	SegmentRoles         SyncSegment = "roles"
	SegmentBanks         SyncSegment = "banks"
)

var syncSegmentOrder = []SyncSegment{SegmentPrimaryRecord, SegmentAddresses, SegmentRoles, SegmentBanks}

// AllSegments returns the full segment set in canonical dispatch order.
func AllSegments() []SyncSegment {
	out := make([]SyncSegment, len(syncSegmentOrder))
	copy(out, syncSegmentOrder)
	return out
}

// SegmentOrder returns the dispatch position of s, or -1 for unknown values.
func SegmentOrder(s SyncSegment) int {
	for i, seg := range syncSegmentOrder {
		if seg == s {
			return i
		}
	}
	return -1
}

func ParseSegment(v string) (SyncSegment, bool) {
	s := SyncSegment(v)
	return s, SegmentOrder(s) >= 0
}

// SegmentStatus of one (partner, segment) pair.
type SegmentStatus string

const (
	SegmentStatusPending    SegmentStatus = "pending"
	SegmentStatusProcessing SegmentStatus = "processing"
	SegmentStatusSuccess    SegmentStatus = "success"
	SegmentStatusError      SegmentStatus = "error"
)

// Audit job scope and lifecycle.
type AuditScope string

const (
	AuditScopeIndividual AuditScope = "individual"
	AuditScopeBatch      AuditScope = "batch"
)

type AuditJobStatus string

const (
	AuditJobStatusQueued    AuditJobStatus = "queued"
	AuditJobStatusRunning   AuditJobStatus = "running"
	AuditJobStatusCompleted AuditJobStatus = "completed"
	AuditJobStatusError     AuditJobStatus = "error"
	// Registered marks jobs created as a side effect of an externally
	// originated change request. The job runner never picks these up.
	AuditJobStatusRegistered AuditJobStatus = "registered"
)

type AuditResult string

const (
	AuditResultOk           AuditResult = "ok"
	AuditResultInconsistent AuditResult = "inconsistent"
	AuditResultError        AuditResult = "error"
)

// DiffSource tags which reference produced a field difference.
type DiffSource string

const (
	DiffSourceExternal      DiffSource = "external"
	DiffSourceChangeRequest DiffSource = "change_request"
)

// Change request classification.
type ChangeRequestType string

const (
	ChangeRequestTypeIndividual ChangeRequestType = "individual"
	ChangeRequestTypeBatch      ChangeRequestType = "batch"
	ChangeRequestTypeAudit      ChangeRequestType = "audit"
)

func ValidChangeRequestType(v string) bool {
	switch ChangeRequestType(v) {
	case ChangeRequestTypeIndividual, ChangeRequestTypeBatch, ChangeRequestTypeAudit:
		return true
	}
	return false
}

type ChangeRequestStatus string

const (
	ChangeRequestStatusPending  ChangeRequestStatus = "pending"
	ChangeRequestStatusApproved ChangeRequestStatus = "approved"
	ChangeRequestStatusRejected ChangeRequestStatus = "rejected"
)

type ChangeRequestOrigin string

const (
	ChangeRequestOriginInternal ChangeRequestOrigin = "internal"
	ChangeRequestOriginExternal ChangeRequestOrigin = "external"
)

func ValidChangeRequestOrigin(v string) bool {
	switch ChangeRequestOrigin(v) {
	case ChangeRequestOriginInternal, ChangeRequestOriginExternal:
		return true
	}
	return false
}
