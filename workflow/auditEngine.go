package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mmdatafocus/partners_backend/config"
	"github.com/mmdatafocus/partners_backend/models"
	"github.com/mmdatafocus/partners_backend/utils"
	"github.com/sirupsen/logrus"
)

type auditChangeRequestStore interface {
	MostRecentForPartner(ctx context.Context, partnerID string, limit int) ([]*models.ChangeRequest, error)
}

// changeRequestLookback bounds how far back the fallback comparison scans.
const changeRequestLookback = 10

// AuditComparison is the outcome of comparing one partner against a
// reference.
type AuditComparison struct {
	Result       models.AuditResult
	Differences  []models.FieldDifference
	ExternalData json.RawMessage
	Message      string
}

// AuditEngine decides whether a partner's stored data matches a trustworthy
// reference. The public registry is the preferred reference for legal
// entities; recent change requests are the fallback.
type AuditEngine struct {
	registry       RegistryClient
	changeRequests auditChangeRequestStore
	logger         *logrus.Logger
}

func NewAuditEngine(registry RegistryClient, changeRequests auditChangeRequestStore) *AuditEngine {
	return &AuditEngine{
		registry:       registry,
		changeRequests: changeRequests,
		logger:         config.GetLogger(),
	}
}

func (e *AuditEngine) Compare(ctx context.Context, partner *models.Partner) AuditComparison {
	var warnings []string

	referenceFound := false
	var external json.RawMessage

	if partner.IsLegalEntity() {
		snapshot, err := e.registry.LookupByDocument(ctx, partner.Document)
		if err != nil {
			// Fetch failures degrade into warnings, never abort the audit.
			warnings = append(warnings, fmt.Sprintf("registry lookup failed: %s", err.Error()))
			e.logger.WithFields(logrus.Fields{
				"module":  "workflow",
				"partner": partner.ID,
			}).Warn(err.Error())
		} else {
			referenceFound = true
			external = snapshot.Raw
			if diffs := compareRegistry(partner, snapshot); len(diffs) > 0 {
				return AuditComparison{
					Result:       models.AuditResultInconsistent,
					Differences:  diffs,
					ExternalData: external,
					Message:      withWarnings(fmt.Sprintf("external registry comparison found %d difference(s)", len(diffs)), warnings),
				}
			}
		}
	}

	// Change-request fallback: first recent request carrying a non-empty
	// change list wins.
	if diffs, id := e.changeRequestDifferences(ctx, partner); len(diffs) > 0 {
		return AuditComparison{
			Result:       models.AuditResultInconsistent,
			Differences:  diffs,
			ExternalData: external,
			Message:      withWarnings(fmt.Sprintf("change request %d reports %d pending difference(s)", id, len(diffs)), warnings),
		}
	}

	if !referenceFound {
		return AuditComparison{
			Result:  models.AuditResultError,
			Message: withWarnings("no comparison reference available for this partner", warnings),
		}
	}
	return AuditComparison{
		Result:       models.AuditResultOk,
		ExternalData: external,
		Message:      withWarnings("stored data matches the available reference", warnings),
	}
}

func withWarnings(message string, warnings []string) string {
	if len(warnings) == 0 {
		return message
	}
	return message + "; " + strings.Join(warnings, "; ")
}

func (e *AuditEngine) changeRequestDifferences(ctx context.Context, partner *models.Partner) ([]models.FieldDifference, int) {
	requests, err := e.changeRequests.MostRecentForPartner(ctx, partner.ID, changeRequestLookback)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"module":  "workflow",
			"partner": partner.ID,
		}).Warn(err.Error())
		return nil, 0
	}
	for _, request := range requests {
		fields := request.Fields()
		if len(fields) == 0 {
			continue
		}
		diffs := make([]models.FieldDifference, 0, len(fields))
		for _, f := range fields {
			diffs = append(diffs, models.FieldDifference{
				Field:    f.Field,
				Label:    f.Label,
				Before:   f.PreviousValue,
				After:    f.NewValue,
				Source:   models.DiffSourceChangeRequest,
				Metadata: map[string]string{"change_request_id": fmt.Sprintf("%d", request.ID)},
			})
		}
		return diffs, request.ID
	}
	return nil, 0
}

// normalization kinds for the registry field catalog.
type fieldNorm int

const (
	normText fieldNorm = iota
	normDigits
	normLower
)

func normalize(kind fieldNorm, v string) string {
	switch kind {
	case normDigits:
		return utils.DigitsOnly(v)
	case normLower:
		return strings.ToLower(strings.TrimSpace(v))
	default:
		return utils.NormalizeText(v)
	}
}

// compareRegistry walks the fixed field catalog. Empty registry values are
// not mismatches: absence in the registry proves nothing.
func compareRegistry(partner *models.Partner, snapshot *RegistrySnapshot) []models.FieldDifference {
	address := partner.PrimaryAddress()

	type mapping struct {
		field  string
		label  string
		norm   fieldNorm
		stored string
		remote string
	}
	catalog := []mapping{
		{"documento", "CNPJ", normDigits, partner.Document, snapshot.Document},
		{"nome_legal", "Razão Social", normText, partner.LegalName, snapshot.LegalName},
		{"nome_fantasia", "Nome Fantasia", normText, partner.TradeName, snapshot.TradeName},
		{"regime_tributario", "Regime Tributário", normText, partner.TaxRegime, snapshot.TaxRegime},
		{"email", "E-mail", normLower, partner.Email, snapshot.Email},
		{"telefone", "Telefone", normDigits, partner.Phone, snapshot.Phone},
		{"inscricao_estadual", "Inscrição Estadual", normDigits, partner.StateTaxId, snapshot.StateTaxId},
		{"suframa", "SUFRAMA", normDigits, partner.Suframa, snapshot.Suframa},
	}
	if address != nil {
		catalog = append(catalog,
			mapping{"endereco.cep", "CEP", normDigits, address.Cep, snapshot.Cep},
			mapping{"endereco.logradouro", "Logradouro", normText, address.Street, snapshot.Street},
			mapping{"endereco.municipio", "Município", normText, address.City, snapshot.City},
			mapping{"endereco.uf", "UF", normText, address.State, snapshot.State},
		)
	}

	var diffs []models.FieldDifference
	for _, m := range catalog {
		remote := normalize(m.norm, m.remote)
		if remote == "" {
			continue
		}
		if normalize(m.norm, m.stored) == remote {
			continue
		}
		diffs = append(diffs, models.FieldDifference{
			Field:    m.field,
			Label:    m.label,
			Before:   m.stored,
			After:    m.remote,
			Source:   models.DiffSourceExternal,
			Metadata: map[string]string{"registry": "cnpj"},
		})
	}
	return diffs
}
