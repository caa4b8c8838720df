package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mmdatafocus/partners_backend/config"
	"github.com/mmdatafocus/partners_backend/utils"
	"gorm.io/gorm"
)

// AuditJob is one unit of reconciliation work over an ordered, de-duplicated
// set of partner ids. queued -> running -> completed | error. The registered
// status is terminal from birth (see AuditJobStatusRegistered).
type AuditJob struct {
	ID             int            `gorm:"primary_key" json:"id"`
	Scope          AuditScope     `gorm:"size:20;not null" json:"scope"`
	Status         AuditJobStatus `gorm:"size:20;not null;default:'queued'" json:"status"`
	PartnerIdsJSON []byte         `gorm:"type:json" json:"partner_ids"`
	TriggeredBy    string         `gorm:"size:100" json:"triggered_by"`
	StartedAt      *time.Time     `json:"started_at"`
	FinishedAt     *time.Time     `json:"finished_at"`
	ErrorMessage   string         `gorm:"type:text" json:"error_message"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// EncodePartnerIds preserves order and drops duplicates.
func EncodePartnerIds(ids []string) []byte {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	b, _ := json.Marshal(out)
	return b
}

func DecodePartnerIds(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil
	}
	return ids
}

// FieldDifference is one field-level divergence between the stored partner
// and the reference used for the comparison.
type FieldDifference struct {
	Field    string            `json:"field"`
	Label    string            `json:"label"`
	Before   any               `json:"before"`
	After    any               `json:"after"`
	Source   DiffSource        `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AuditLog is one per-(job, partner) outcome row.
type AuditLog struct {
	ID               int         `gorm:"primary_key" json:"id"`
	JobId            int         `gorm:"index;not null" json:"job_id"`
	PartnerID        string      `gorm:"size:36;index;not null" json:"partner_id"`
	Result           AuditResult `gorm:"size:20;not null" json:"result"`
	DifferencesJSON  []byte      `gorm:"type:json" json:"differences"`
	ExternalDataJSON []byte      `gorm:"type:json" json:"external_data"`
	Message          string      `gorm:"type:text" json:"message"`
	CreatedAt        time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

func (l *AuditLog) Differences() []FieldDifference {
	if len(l.DifferencesJSON) == 0 {
		return nil
	}
	var diffs []FieldDifference
	if err := json.Unmarshal(l.DifferencesJSON, &diffs); err != nil {
		return nil
	}
	return diffs
}

func EncodeDifferences(diffs []FieldDifference) []byte {
	if len(diffs) == 0 {
		return nil
	}
	b, _ := json.Marshal(diffs)
	return b
}

func CreateAuditJob(ctx context.Context, job *AuditJob) error {
	db := config.GetDB()
	if job.Status == "" {
		job.Status = AuditJobStatusQueued
	}
	return db.WithContext(ctx).Create(job).Error
}

func GetAuditJob(ctx context.Context, id int) (*AuditJob, error) {
	db := config.GetDB()
	var job AuditJob
	err := db.WithContext(ctx).First(&job, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("audit job %d not found", id)
		}
		return nil, err
	}
	return &job, nil
}

func UpdateAuditJob(ctx context.Context, id int, fields map[string]any) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&AuditJob{}).Where("id = ?", id).Updates(fields).Error
}

func AppendAuditLog(ctx context.Context, entry *AuditLog) error {
	db := config.GetDB()
	return db.WithContext(ctx).Create(entry).Error
}

func ListAuditLogs(ctx context.Context, jobId int) ([]*AuditLog, error) {
	db := config.GetDB()
	var logs []*AuditLog
	err := db.WithContext(ctx).
		Where("job_id = ?", jobId).
		Order("created_at ASC, id ASC").
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func ListAuditLogsForPartner(ctx context.Context, partnerID string, limit int) ([]*AuditLog, error) {
	db := config.GetDB()
	if limit <= 0 {
		limit = 50
	}
	var logs []*AuditLog
	err := db.WithContext(ctx).
		Where("partner_id = ?", partnerID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
