package models

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/mmdatafocus/partners_backend/config"
	"github.com/mmdatafocus/partners_backend/utils"
)

// ChangeRequestField is one proposed field edit inside a change request
// payload.
type ChangeRequestField struct {
	Field         string `json:"field"`
	Label         string `json:"label"`
	PreviousValue any    `json:"previous_value"`
	NewValue      any    `json:"new_value"`
}

// ChangeRequest is a proposed, not-yet-applied edit to a partner. The most
// recent pending one doubles as the audit reference when no external source
// is available.
type ChangeRequest struct {
	ID          int                 `gorm:"primary_key" json:"id"`
	PartnerID   string              `gorm:"size:36;index;not null" json:"partner_id"`
	RequestType ChangeRequestType   `gorm:"size:20;not null" json:"request_type"`
	Status      ChangeRequestStatus `gorm:"size:20;not null;default:'pending'" json:"status"`
	Motivo      string              `gorm:"type:text;not null" json:"motivo"`
	Origin      ChangeRequestOrigin `gorm:"size:20;not null;default:'internal'" json:"origin"`
	PayloadJSON []byte              `gorm:"type:json" json:"payload"`
	CreatedAt   time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (cr *ChangeRequest) Fields() []ChangeRequestField {
	if len(cr.PayloadJSON) == 0 {
		return nil
	}
	var fields []ChangeRequestField
	if err := json.Unmarshal(cr.PayloadJSON, &fields); err != nil {
		return nil
	}
	return fields
}

type NewChangeRequest struct {
	PartnerID   string               `json:"partner_id" binding:"required"`
	RequestType ChangeRequestType    `json:"request_type" binding:"required"`
	Motivo      string               `json:"motivo" binding:"required"`
	Origin      ChangeRequestOrigin  `json:"origin"`
	Fields      []ChangeRequestField `json:"fields"`
}

// validate normalizes defaults and enforces the closed type/origin enums,
// the way the reverse-sync mapper allow-lists incoming values.
func (input *NewChangeRequest) validate() error {
	if strings.TrimSpace(input.Motivo) == "" {
		return utils.NewValidationError("motivo is required")
	}
	if input.RequestType == "" {
		input.RequestType = ChangeRequestTypeIndividual
	}
	if !ValidChangeRequestType(string(input.RequestType)) {
		return utils.NewValidationError("invalid change request type %q", input.RequestType)
	}
	if input.Origin == "" {
		input.Origin = ChangeRequestOriginInternal
	}
	if !ValidChangeRequestOrigin(string(input.Origin)) {
		return utils.NewValidationError("invalid change request origin %q", input.Origin)
	}
	return nil
}

func CreateChangeRequest(ctx context.Context, input *NewChangeRequest) (*ChangeRequest, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	if _, err := GetPartner(ctx, input.PartnerID); err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(input.Fields)

	cr := &ChangeRequest{
		PartnerID:   input.PartnerID,
		RequestType: input.RequestType,
		Status:      ChangeRequestStatusPending,
		Motivo:      input.Motivo,
		Origin:      input.Origin,
		PayloadJSON: payload,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(cr).Error; err != nil {
		return nil, err
	}
	return cr, nil
}

// MostRecentChangeRequests returns the partner's change requests newest
// first, bounded by limit.
func MostRecentChangeRequests(ctx context.Context, partnerID string, limit int) ([]*ChangeRequest, error) {
	if limit <= 0 {
		limit = 10
	}
	db := config.GetDB()
	var requests []*ChangeRequest
	err := db.WithContext(ctx).
		Where("partner_id = ?", partnerID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}
