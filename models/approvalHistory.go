package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/partners_backend/config"
)

// ApprovalHistoryEntry is one row of the append-only approval trail.
// Entries are never updated or deleted.
type ApprovalHistoryEntry struct {
	ID        int            `gorm:"primary_key" json:"id"`
	PartnerID string         `gorm:"size:36;index;not null" json:"partner_id"`
	Stage     ApprovalStage  `gorm:"size:20;not null" json:"stage"`
	Action    ApprovalAction `gorm:"size:20;not null" json:"action"`
	ActorId   int            `gorm:"index;not null" json:"actor_id"`
	ActorName string         `gorm:"size:100" json:"actor_name"`
	Notes     string         `gorm:"type:text" json:"notes"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func AppendApprovalHistory(ctx context.Context, entry *ApprovalHistoryEntry) error {
	db := config.GetDB()
	return db.WithContext(ctx).Create(entry).Error
}

func GetApprovalHistory(ctx context.Context, partnerID string) ([]*ApprovalHistoryEntry, error) {
	db := config.GetDB()
	var entries []*ApprovalHistoryEntry
	err := db.WithContext(ctx).
		Where("partner_id = ?", partnerID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
