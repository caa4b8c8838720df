package models

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/partners_backend/config"
	"github.com/mmdatafocus/partners_backend/utils"
	"gorm.io/gorm"
)

// Partner is the business partner master record. Lifecycle status and
// approval stage are only advanced by the approval workflow; segment states
// are only advanced by the SAP segment engine.
type Partner struct {
	ID           string `gorm:"size:36;primary_key" json:"id"`
	SequentialId int    `gorm:"uniqueIndex;not null" json:"sequential_id"`
	// SapId is assigned by the primary-record segment on first successful
	// integration; empty until then.
	SapId string `gorm:"size:50;index" json:"sap_id"`

	PersonType    PersonType    `gorm:"size:20;not null" json:"person_type" binding:"required"`
	Nature        PartnerNature `gorm:"size:20;not null" json:"nature" binding:"required"`
	Status        PartnerStatus `gorm:"size:20;not null;default:'draft'" json:"status"`
	ApprovalStage ApprovalStage `gorm:"size:20;not null;default:'fiscal'" json:"approval_stage"`

	LegalName string `gorm:"size:255;not null" json:"legal_name" binding:"required"`
	TradeName string `gorm:"size:255" json:"trade_name"`
	// Document is stored digits-only and is globally unique.
	Document string `gorm:"size:14;uniqueIndex;not null" json:"document" binding:"required"`

	StateTaxId     string `gorm:"size:30" json:"state_tax_id"`
	MunicipalTaxId string `gorm:"size:30" json:"municipal_tax_id"`
	Suframa        string `gorm:"size:20" json:"suframa"`
	TaxRegime      string `gorm:"size:50" json:"tax_regime"`

	Email   string `gorm:"size:100" json:"email"`
	Phone   string `gorm:"size:20" json:"phone"`
	Mobile  string `gorm:"size:20" json:"mobile"`
	Website string `gorm:"size:255" json:"website"`

	Addresses       []*PartnerAddress       `gorm:"foreignKey:PartnerID;constraint:OnDelete:CASCADE" json:"addresses"`
	Banks           []*PartnerBank          `gorm:"foreignKey:PartnerID;constraint:OnDelete:CASCADE" json:"banks"`
	Carriers        []*PartnerCarrier       `gorm:"foreignKey:PartnerID;constraint:OnDelete:CASCADE" json:"carriers"`
	SupplierProfile *SupplierProfile        `gorm:"foreignKey:PartnerID" json:"supplier_profile"`
	SalesProfile    *SalesProfile           `gorm:"foreignKey:PartnerID" json:"sales_profile"`
	CreditProfile   *CreditProfile          `gorm:"foreignKey:PartnerID" json:"credit_profile"`
	SegmentStates   []*PartnerSegmentState  `gorm:"foreignKey:PartnerID" json:"segment_states"`
	ApprovalHistory []*ApprovalHistoryEntry `gorm:"foreignKey:PartnerID" json:"approval_history"`

	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsLegalEntity reports whether the partner is audited against the external
// registry (only legal entities are).
func (p *Partner) IsLegalEntity() bool {
	return p.PersonType == PersonTypeLegalEntity
}

// HasCarriers feeds the derived TRANSPORTER role.
func (p *Partner) HasCarriers() bool {
	return len(p.Carriers) > 0
}

// PrimaryAddress returns the first address, which is the primary one.
func (p *Partner) PrimaryAddress() *PartnerAddress {
	if len(p.Addresses) == 0 {
		return nil
	}
	return p.Addresses[0]
}

// SapPath is the identifier used in SAP resource paths: the SAP id once
// assigned, otherwise the sequential id.
func (p *Partner) SapPath() string {
	if p.SapId != "" {
		return p.SapId
	}
	return strconv.Itoa(p.SequentialId)
}

type NewPartner struct {
	PersonType     PersonType           `json:"person_type" binding:"required"`
	Nature         PartnerNature        `json:"nature" binding:"required"`
	LegalName      string               `json:"legal_name" binding:"required"`
	TradeName      string               `json:"trade_name"`
	Document       string               `json:"document" binding:"required"`
	StateTaxId     string               `json:"state_tax_id"`
	MunicipalTaxId string               `json:"municipal_tax_id"`
	Suframa        string               `json:"suframa"`
	TaxRegime      string               `json:"tax_regime"`
	Email          string               `json:"email"`
	Phone          string               `json:"phone"`
	Mobile         string               `json:"mobile"`
	Website        string               `json:"website"`
	Addresses      []*NewPartnerAddress `json:"addresses"`
	Banks          []*NewPartnerBank    `json:"banks"`
	Carriers       []*NewPartnerCarrier `json:"carriers"`
}

// documentLookup is the uniqueness probe used by validate. A variable so
// tests can exercise the check without a database.
var documentLookup = FindPartnerByDocument

func (input *NewPartner) validate(ctx context.Context) error {
	doc := utils.DigitsOnly(input.Document)
	switch input.PersonType {
	case PersonTypeLegalEntity:
		if !utils.IsValidCNPJ(doc) {
			return utils.NewValidationError("invalid CNPJ %q", input.Document)
		}
	case PersonTypeNaturalPerson:
		if !utils.IsValidCPF(doc) {
			return utils.NewValidationError("invalid CPF %q", input.Document)
		}
	default:
		return utils.NewValidationError("invalid person type %q", input.PersonType)
	}
	if !ValidPartnerNature(string(input.Nature)) {
		return utils.NewValidationError("invalid partner nature %q", input.Nature)
	}
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return utils.NewValidationError("invalid email %q", input.Email)
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return utils.NewValidationError("invalid phone %q", input.Phone)
		}
	}
	for _, addr := range input.Addresses {
		if addr.Cep != "" && !utils.IsValidCEP(addr.Cep) {
			return utils.NewValidationError("invalid CEP %q", addr.Cep)
		}
	}
	existing, err := documentLookup(ctx, doc)
	if err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
		return err
	}
	if existing != nil {
		return utils.NewValidationError("a partner with document %s already exists", doc)
	}
	return nil
}

func CreatePartner(ctx context.Context, input *NewPartner) (*Partner, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	db := config.GetDB()
	partner := &Partner{
		ID:             uuid.NewString(),
		PersonType:     input.PersonType,
		Nature:         input.Nature,
		Status:         PartnerStatusDraft,
		ApprovalStage:  StageFiscal,
		LegalName:      input.LegalName,
		TradeName:      input.TradeName,
		Document:       utils.DigitsOnly(input.Document),
		StateTaxId:     input.StateTaxId,
		MunicipalTaxId: input.MunicipalTaxId,
		Suframa:        input.Suframa,
		TaxRegime:      input.TaxRegime,
		Email:          input.Email,
		Phone:          input.Phone,
		Mobile:         input.Mobile,
		Website:        input.Website,
		IsActive:       utils.NewTrue(),
	}

	for i, addr := range input.Addresses {
		partner.Addresses = append(partner.Addresses, addr.toModel(partner.ID, i))
	}
	for _, bank := range input.Banks {
		partner.Banks = append(partner.Banks, bank.toModel(partner.ID))
	}
	for _, carrier := range input.Carriers {
		partner.Carriers = append(partner.Carriers, carrier.toModel(partner.ID))
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The sequential id is assigned exactly once, at creation.
		var maxSeq int
		if err := tx.Model(&Partner{}).Select("COALESCE(MAX(sequential_id), 0)").Scan(&maxSeq).Error; err != nil {
			return err
		}
		partner.SequentialId = maxSeq + 1

		if err := tx.Create(partner).Error; err != nil {
			return err
		}
		for _, seg := range AllSegments() {
			state := &PartnerSegmentState{
				PartnerID: partner.ID,
				Segment:   seg,
				Status:    SegmentStatusPending,
			}
			if err := tx.Create(state).Error; err != nil {
				return err
			}
			partner.SegmentStates = append(partner.SegmentStates, state)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return partner, nil
}

func GetPartner(ctx context.Context, id string) (*Partner, error) {
	db := config.GetDB()
	var partner Partner

	err := db.WithContext(ctx).
		Preload("Addresses", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Banks").
		Preload("Carriers").
		Preload("SupplierProfile").
		Preload("SalesProfile").
		Preload("CreditProfile").
		Preload("SegmentStates").
		Preload("ApprovalHistory", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		First(&partner, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("partner %s not found", id)
		}
		return nil, err
	}
	sortSegmentStates(partner.SegmentStates)
	return &partner, nil
}

func FindPartnerByDocument(ctx context.Context, document string) (*Partner, error) {
	return findPartnerBy(ctx, "document = ?", utils.DigitsOnly(document))
}

func FindPartnerBySequentialId(ctx context.Context, sequentialId int) (*Partner, error) {
	return findPartnerBy(ctx, "sequential_id = ?", sequentialId)
}

func FindPartnerBySapId(ctx context.Context, sapId string) (*Partner, error) {
	return findPartnerBy(ctx, "sap_id = ?", sapId)
}

func findPartnerBy(ctx context.Context, query string, arg any) (*Partner, error) {
	db := config.GetDB()
	var partner Partner
	err := db.WithContext(ctx).Where(query, arg).First(&partner).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return GetPartner(ctx, partner.ID)
}

// PartnerFilter narrows ListPartners. Zero values mean "no filter".
type PartnerFilter struct {
	Status   PartnerStatus
	Stage    ApprovalStage
	Nature   PartnerNature
	Document string
	Search   string
	Page     int
	PageSize int
}

func ListPartners(ctx context.Context, filter PartnerFilter) ([]*Partner, int64, error) {
	db := config.GetDB()
	query := db.WithContext(ctx).Model(&Partner{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Stage != "" {
		query = query.Where("approval_stage = ?", filter.Stage)
	}
	if filter.Nature != "" {
		query = query.Where("nature = ? OR nature = ?", filter.Nature, PartnerNatureBoth)
	}
	if filter.Document != "" {
		query = query.Where("document = ?", utils.DigitsOnly(filter.Document))
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("legal_name LIKE ? OR trade_name LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	var partners []*Partner
	err := query.
		Preload("SegmentStates").
		Order("sequential_id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&partners).Error
	if err != nil {
		return nil, 0, err
	}
	for _, p := range partners {
		sortSegmentStates(p.SegmentStates)
	}
	return partners, total, nil
}

// SavePartner persists the partner's own columns. Associations are saved
// through their own store functions.
func SavePartner(ctx context.Context, partner *Partner) error {
	db := config.GetDB()
	return db.WithContext(ctx).Omit(
		"Addresses", "Banks", "Carriers",
		"SupplierProfile", "SalesProfile", "CreditProfile",
		"SegmentStates", "ApprovalHistory",
	).Save(partner).Error
}

// UpdatePartnerFields applies a sparse column update (e.g. the sap_id merge
// produced by the primary-record segment).
func UpdatePartnerFields(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	db := config.GetDB()
	return db.WithContext(ctx).Model(&Partner{}).Where("id = ?", id).Updates(fields).Error
}
