package models

import (
	"context"
	"sort"
	"time"

	"github.com/mmdatafocus/partners_backend/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PartnerSegmentState tracks the SAP integration of one (partner, segment)
// pair. Created pending; each attempt moves pending/error -> processing ->
// success|error. A success is never reverted automatically.
type PartnerSegmentState struct {
	ID            int           `gorm:"primary_key" json:"id"`
	PartnerID     string        `gorm:"size:36;uniqueIndex:idx_partner_segment,priority:1;not null" json:"partner_id"`
	Segment       SyncSegment   `gorm:"size:20;uniqueIndex:idx_partner_segment,priority:2;not null" json:"segment"`
	Status        SegmentStatus `gorm:"size:20;not null;default:'pending'" json:"status"`
	LastAttemptAt *time.Time    `json:"last_attempt_at"`
	LastSuccessAt *time.Time    `json:"last_success_at"`
	Message       string        `gorm:"type:text" json:"message"`
	ErrorMessage  string        `gorm:"type:text" json:"error_message"`
	// ExternalId is only meaningful for the primary-record segment.
	ExternalId string    `gorm:"size:50" json:"external_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func sortSegmentStates(states []*PartnerSegmentState) {
	sort.SliceStable(states, func(i, j int) bool {
		return SegmentOrder(states[i].Segment) < SegmentOrder(states[j].Segment)
	})
}

// EnsureSegmentStates returns the partner's segment states in canonical
// order, creating missing ones as pending.
func EnsureSegmentStates(ctx context.Context, partnerID string) ([]*PartnerSegmentState, error) {
	db := config.GetDB()

	var states []*PartnerSegmentState
	if err := db.WithContext(ctx).Where("partner_id = ?", partnerID).Find(&states).Error; err != nil {
		return nil, err
	}

	known := make(map[SyncSegment]bool, len(states))
	for _, s := range states {
		known[s.Segment] = true
	}
	for _, seg := range AllSegments() {
		if known[seg] {
			continue
		}
		state := &PartnerSegmentState{
			PartnerID: partnerID,
			Segment:   seg,
			Status:    SegmentStatusPending,
		}
		if err := db.WithContext(ctx).Create(state).Error; err != nil {
			return nil, err
		}
		states = append(states, state)
	}

	sortSegmentStates(states)
	return states, nil
}

// SaveSegmentState upserts one segment state row. The segment engine calls
// this through its observer after every transition, so the durable state
// never lags the in-flight run by more than one segment.
func SaveSegmentState(ctx context.Context, state *PartnerSegmentState) error {
	db := config.GetDB()
	if state.ID != 0 {
		return db.WithContext(ctx).Save(state).Error
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "partner_id"}, {Name: "segment"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "last_attempt_at", "last_success_at",
			"message", "error_message", "external_id", "updated_at",
		}),
	}).Create(state).Error
}

func GetSegmentStates(ctx context.Context, partnerID string) ([]*PartnerSegmentState, error) {
	db := config.GetDB()
	var states []*PartnerSegmentState
	err := db.WithContext(ctx).Where("partner_id = ?", partnerID).Find(&states).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	sortSegmentStates(states)
	return states, nil
}
