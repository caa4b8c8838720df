package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PartnerAddress is one entry of the partner's ordered address list.
// Position 0 is the primary address.
type PartnerAddress struct {
	ID         int       `gorm:"primary_key" json:"id"`
	PartnerID  string    `gorm:"size:36;index;not null" json:"partner_id"`
	Position   int       `gorm:"not null;default:0" json:"position"`
	Street     string    `gorm:"size:255" json:"street"`
	Number     string    `gorm:"size:20" json:"number"`
	Complement string    `gorm:"size:100" json:"complement"`
	District   string    `gorm:"size:100" json:"district"`
	City       string    `gorm:"size:100" json:"city"`
	State      string    `gorm:"size:2" json:"state"`
	Cep        string    `gorm:"size:9" json:"cep"`
	Country    string    `gorm:"size:50;default:'BR'" json:"country"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPartnerAddress struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement"`
	District   string `json:"district"`
	City       string `json:"city"`
	State      string `json:"state"`
	Cep        string `json:"cep"`
	Country    string `json:"country"`
}

func (input *NewPartnerAddress) toModel(partnerID string, position int) *PartnerAddress {
	country := input.Country
	if country == "" {
		country = "BR"
	}
	return &PartnerAddress{
		PartnerID:  partnerID,
		Position:   position,
		Street:     input.Street,
		Number:     input.Number,
		Complement: input.Complement,
		District:   input.District,
		City:       input.City,
		State:      input.State,
		Cep:        input.Cep,
		Country:    country,
	}
}

type PartnerBank struct {
	ID        int       `gorm:"primary_key" json:"id"`
	PartnerID string    `gorm:"size:36;index;not null" json:"partner_id"`
	BankCode  string    `gorm:"size:10" json:"bank_code"`
	BankName  string    `gorm:"size:100" json:"bank_name"`
	Agency    string    `gorm:"size:20" json:"agency"`
	Account   string    `gorm:"size:30" json:"account"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPartnerBank struct {
	BankCode string `json:"bank_code"`
	BankName string `json:"bank_name"`
	Agency   string `json:"agency"`
	Account  string `json:"account"`
}

func (input *NewPartnerBank) toModel(partnerID string) *PartnerBank {
	return &PartnerBank{
		PartnerID: partnerID,
		BankCode:  input.BankCode,
		BankName:  input.BankName,
		Agency:    input.Agency,
		Account:   input.Account,
	}
}

// PartnerCarrier is one carrier used by the partner. Any entry yields the
// derived TRANSPORTER role on the SAP side.
type PartnerCarrier struct {
	ID        int       `gorm:"primary_key" json:"id"`
	PartnerID string    `gorm:"size:36;index;not null" json:"partner_id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Document  string    `gorm:"size:14" json:"document"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPartnerCarrier struct {
	Name     string `json:"name" binding:"required"`
	Document string `json:"document"`
}

func (input *NewPartnerCarrier) toModel(partnerID string) *PartnerCarrier {
	return &PartnerCarrier{
		PartnerID: partnerID,
		Name:      input.Name,
		Document:  input.Document,
	}
}

type SupplierProfile struct {
	ID           int       `gorm:"primary_key" json:"id"`
	PartnerID    string    `gorm:"size:36;uniqueIndex;not null" json:"partner_id"`
	PaymentTerms string    `gorm:"size:50" json:"payment_terms"`
	PurchaseOrg  string    `gorm:"size:20" json:"purchase_org"`
	LeadTimeDays int       `gorm:"default:0" json:"lead_time_days"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type SalesProfile struct {
	ID            int       `gorm:"primary_key" json:"id"`
	PartnerID     string    `gorm:"size:36;uniqueIndex;not null" json:"partner_id"`
	SalesOrg      string    `gorm:"size:20" json:"sales_org"`
	PriceListCode string    `gorm:"size:20" json:"price_list_code"`
	SalesPersonId int       `gorm:"default:0" json:"sales_person_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type CreditProfile struct {
	ID            int             `gorm:"primary_key" json:"id"`
	PartnerID     string          `gorm:"size:36;uniqueIndex;not null" json:"partner_id"`
	CreditLimit   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"credit_limit"`
	CreditGranted decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"credit_granted"`
	PaymentTerms  string          `gorm:"size:50" json:"payment_terms"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
