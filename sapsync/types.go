package sapsync

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/mmdatafocus/partners_backend/models"
	"github.com/mmdatafocus/partners_backend/utils"
)

const (
	RoleCustomer    = "CUSTOMER"
	RoleVendor      = "VENDOR"
	RoleTransporter = "TRANSPORTER"
)

// RolesForPartner derives the SAP role set from the relationship nature
// plus TRANSPORTER when the partner carries any carrier entries.
func RolesForPartner(p *models.Partner) []string {
	var roles []string
	switch p.Nature {
	case models.PartnerNatureCustomer:
		roles = append(roles, RoleCustomer)
	case models.PartnerNatureSupplier:
		roles = append(roles, RoleVendor)
	case models.PartnerNatureBoth:
		roles = append(roles, RoleCustomer, RoleVendor)
	}
	if p.HasCarriers() {
		roles = append(roles, RoleTransporter)
	}
	return roles
}

// segmentRequest is the static per-segment mapping from partner fields to
// the SAP call that pushes them.
type segmentRequest struct {
	Method  string
	Path    string
	Payload any
}

func buildSegmentRequest(p *models.Partner, segment models.SyncSegment) segmentRequest {
	switch segment {
	case models.SegmentPrimaryRecord:
		return segmentRequest{
			Method: http.MethodPost,
			Path:   "/api/business-partners",
			Payload: map[string]any{
				"partnerId":  p.SequentialId,
				"personType": string(p.PersonType),
				"legalName":  p.LegalName,
				"tradeName":  p.TradeName,
				"document":   p.Document,
				"taxRegime":  p.TaxRegime,
				"email":      p.Email,
				"phone":      p.Phone,
			},
		}
	case models.SegmentAddresses:
		addresses := make([]map[string]any, 0, len(p.Addresses))
		for _, addr := range p.Addresses {
			addresses = append(addresses, map[string]any{
				"street":     addr.Street,
				"number":     addr.Number,
				"complement": addr.Complement,
				"district":   addr.District,
				"city":       addr.City,
				"state":      addr.State,
				"cep":        utils.DigitsOnly(addr.Cep),
				"country":    addr.Country,
				"primary":    addr.Position == 0,
			})
		}
		return segmentRequest{
			Method:  http.MethodPut,
			Path:    "/api/business-partners/" + p.SapPath() + "/addresses",
			Payload: map[string]any{"addresses": addresses},
		}
	case models.SegmentRoles:
		return segmentRequest{
			Method:  http.MethodPut,
			Path:    "/api/business-partners/" + p.SapPath() + "/roles",
			Payload: map[string]any{"roles": RolesForPartner(p)},
		}
	case models.SegmentBanks:
		banks := make([]map[string]any, 0, len(p.Banks))
		for _, bank := range p.Banks {
			banks = append(banks, map[string]any{
				"bankCode": bank.BankCode,
				"bankName": bank.BankName,
				"agency":   bank.Agency,
				"account":  bank.Account,
			})
		}
		return segmentRequest{
			Method:  http.MethodPut,
			Path:    "/api/business-partners/" + p.SapPath() + "/banks",
			Payload: map[string]any{"banks": banks},
		}
	}
	return segmentRequest{}
}

// extractExternalId pulls the SAP-assigned identifier out of a
// primary-record response, trying the spellings SAP has been seen to use.
func extractExternalId(body map[string]any) string {
	for _, key := range []string{"businessPartner", "BusinessPartner", "partnerId", "id"} {
		switch t := body[key].(type) {
		case string:
			if strings.TrimSpace(t) != "" {
				return strings.TrimSpace(t)
			}
		case float64:
			if t > 0 {
				return strconv.FormatFloat(t, 'f', -1, 64)
			}
		case json.Number:
			return t.String()
		}
	}
	return ""
}

// incomingPartner is the internal shape mapped from one foreign SAP payload.
// Field names on the wire vary between SAP releases, so mapping is tolerant.
type incomingPartner struct {
	InternalId   string
	SequentialId int
	SapId        string
	LegalName    string
	TradeName    string
	Document     string
	Nature       models.PartnerNature
	Email        string
	Phone        string
	TaxRegime    string
	Segments     []incomingSegment
}

type incomingSegment struct {
	Segment models.SyncSegment
	Status  models.SegmentStatus
}

type rawSapPartner struct {
	InternalId  string          `json:"internal_id"`
	InternalId2 string          `json:"internalId"`
	PartnerId   json.Number     `json:"partnerId"`
	PartnerId2  json.Number     `json:"partner_id"`
	SapId       string          `json:"businessPartner"`
	SapId2      string          `json:"business_partner"`
	SapId3      string          `json:"sap_id"`
	LegalName   string          `json:"legalName"`
	LegalName2  string          `json:"legal_name"`
	LegalName3  string          `json:"name1"`
	TradeName   string          `json:"tradeName"`
	TradeName2  string          `json:"trade_name"`
	TradeName3  string          `json:"name2"`
	Document    string          `json:"document"`
	Document2   string          `json:"taxNumber"`
	Document3   string          `json:"tax_number"`
	Nature      string          `json:"nature"`
	Nature2     string          `json:"relationship"`
	Email       string          `json:"email"`
	Email2      string          `json:"emailAddress"`
	Phone       string          `json:"phone"`
	Phone2      string          `json:"phoneNumber"`
	TaxRegime   string          `json:"taxRegime"`
	TaxRegime2  string          `json:"tax_regime"`
	Segments    []rawSapSegment `json:"segments"`
}

type rawSapSegment struct {
	Segment string `json:"segment"`
	Name    string `json:"name"`
	Status  string `json:"status"`
}

// mapSapPartner maps one foreign payload into the internal shape: tolerant
// field spellings, strict allow-list on enum values, digits-only document,
// segment list de-duplicated and sorted by segment name.
func mapSapPartner(raw json.RawMessage) (incomingPartner, error) {
	var parsed rawSapPartner
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return incomingPartner{}, utils.NewExternalError("invalid sap partner payload", err)
	}

	out := incomingPartner{
		InternalId: utils.FirstNonEmpty(parsed.InternalId, parsed.InternalId2),
		SapId:      utils.FirstNonEmpty(parsed.SapId, parsed.SapId2, parsed.SapId3),
		LegalName:  utils.FirstNonEmpty(parsed.LegalName, parsed.LegalName2, parsed.LegalName3),
		TradeName:  utils.FirstNonEmpty(parsed.TradeName, parsed.TradeName2, parsed.TradeName3),
		Document:   utils.DigitsOnly(utils.FirstNonEmpty(parsed.Document, parsed.Document2, parsed.Document3)),
		Email:      utils.FirstNonEmpty(parsed.Email, parsed.Email2),
		Phone:      utils.FirstNonEmpty(parsed.Phone, parsed.Phone2),
		TaxRegime:  utils.FirstNonEmpty(parsed.TaxRegime, parsed.TaxRegime2),
	}

	seq := utils.FirstNonEmpty(parsed.PartnerId.String(), parsed.PartnerId2.String())
	if n, err := strconv.Atoi(seq); err == nil && n > 0 {
		out.SequentialId = n
	}

	// Only accepted nature values survive; anything else keeps the stored
	// value untouched.
	nature := strings.ToLower(utils.FirstNonEmpty(parsed.Nature, parsed.Nature2))
	if models.ValidPartnerNature(nature) {
		out.Nature = models.PartnerNature(nature)
	}

	out.Segments = sanitizeSegments(parsed.Segments)
	return out, nil
}

func sanitizeSegments(raw []rawSapSegment) []incomingSegment {
	seen := make(map[models.SyncSegment]bool)
	var out []incomingSegment
	for _, entry := range raw {
		name := utils.FirstNonEmpty(entry.Segment, entry.Name)
		segment, ok := models.ParseSegment(strings.ToLower(strings.TrimSpace(name)))
		if !ok || seen[segment] {
			continue
		}
		status := models.SegmentStatus(strings.ToLower(strings.TrimSpace(entry.Status)))
		switch status {
		case models.SegmentStatusPending, models.SegmentStatusProcessing,
			models.SegmentStatusSuccess, models.SegmentStatusError:
		default:
			continue
		}
		seen[segment] = true
		out = append(out, incomingSegment{Segment: segment, Status: status})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Segment < out[j].Segment })
	return out
}
