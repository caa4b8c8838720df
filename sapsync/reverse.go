package sapsync

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/partners_backend/config"
	"github.com/mmdatafocus/partners_backend/models"
	"github.com/mmdatafocus/partners_backend/utils"
	"github.com/sirupsen/logrus"
)

type reversePartnerStore interface {
	Get(ctx context.Context, id string) (*models.Partner, error)
	FindBySequentialId(ctx context.Context, sequentialId int) (*models.Partner, error)
	FindBySapId(ctx context.Context, sapId string) (*models.Partner, error)
	FindByDocument(ctx context.Context, document string) (*models.Partner, error)
	UpdateFields(ctx context.Context, id string, fields map[string]any) error
}

type reverseAuditStore interface {
	CreateJob(ctx context.Context, job *models.AuditJob) error
	UpdateJob(ctx context.Context, id int, fields map[string]any) error
	AppendLog(ctx context.Context, entry *models.AuditLog) error
}

type reverseSegmentStore interface {
	Save(ctx context.Context, state *models.PartnerSegmentState) error
}

// ReverseSyncSummary reports what one ingestion run did.
type ReverseSyncSummary struct {
	Pages   int    `json:"pages"`
	Seen    int    `json:"seen"`
	Updated int    `json:"updated"`
	Skipped int    `json:"skipped"`
	Errors  int    `json:"errors"`
	JobId   *int   `json:"job_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// ReverseSync pages through SAP's partner listing and pulls changes made on
// the SAP side back into the local store. A run creates at most one audit
// job, lazily on the first actual update, so quiet runs leave no residue.
type ReverseSync struct {
	cfg      Config
	lister   Lister
	partners reversePartnerStore
	segments reverseSegmentStore
	audits   reverseAuditStore
	logger   *logrus.Logger
}

func NewReverseSync(cfg Config, lister Lister, partners reversePartnerStore, segments reverseSegmentStore, audits reverseAuditStore) *ReverseSync {
	return &ReverseSync{
		cfg:      cfg,
		lister:   lister,
		partners: partners,
		segments: segments,
		audits:   audits,
		logger:   config.GetLogger(),
	}
}

func (r *ReverseSync) Run(ctx context.Context) ReverseSyncSummary {
	if !r.cfg.Enabled {
		return ReverseSyncSummary{Message: "sap sync disabled; reverse sync skipped"}
	}
	if !r.cfg.Configured() {
		return ReverseSyncSummary{Message: "sap connection settings are missing; reverse sync skipped"}
	}

	var updatedAfter *string
	if r.cfg.UpdatedAfter != nil {
		v := r.cfg.UpdatedAfter.UTC().Format(time.RFC3339)
		updatedAfter = &v
	}

	summary := ReverseSyncSummary{}
	var job *models.AuditJob
	var touched []string

	pageSize := r.cfg.EffectivePageSize()
	page := 1
	for {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout())
		result, err := r.lister.ListPartners(callCtx, page, pageSize, updatedAfter)
		cancel()
		if err != nil {
			summary.Errors++
			summary.Message = err.Error()
			r.logger.WithFields(logrus.Fields{
				"module": "sapsync",
				"page":   page,
			}).Error(err.Error())
			break
		}
		summary.Pages++

		for _, raw := range result.Items {
			summary.Seen++
			updated, err := r.ingestOne(ctx, raw, &job, &touched)
			if err != nil {
				// One bad payload never aborts the run.
				summary.Errors++
				r.logger.WithFields(logrus.Fields{
					"module": "sapsync",
					"page":   page,
				}).Error(err.Error())
				continue
			}
			if updated {
				summary.Updated++
			} else {
				summary.Skipped++
			}
		}

		// Pagination signals in priority order: explicit next page, then an
		// explicit has-more flag, then the declining page-size heuristic.
		if result.NextPage != nil {
			if *result.NextPage <= page {
				break
			}
			page = *result.NextPage
			continue
		}
		if result.HasMore != nil {
			if !*result.HasMore {
				break
			}
			page++
			continue
		}
		if len(result.Items) < pageSize {
			break
		}
		page++
	}

	if job != nil {
		now := time.Now()
		fields := map[string]any{
			"status":           models.AuditJobStatusCompleted,
			"finished_at":      &now,
			"partner_ids_json": models.EncodePartnerIds(touched),
		}
		if err := r.audits.UpdateJob(ctx, job.ID, fields); err != nil {
			r.logger.WithFields(logrus.Fields{"module": "sapsync", "job": job.ID}).Error(err.Error())
		}
		summary.JobId = &job.ID
	}
	return summary
}

// ingestOne maps one foreign payload, locates the stored partner and, when
// material differences exist, persists them and logs the change.
func (r *ReverseSync) ingestOne(ctx context.Context, raw []byte, job **models.AuditJob, touched *[]string) (bool, error) {
	incoming, err := mapSapPartner(raw)
	if err != nil {
		return false, err
	}

	partner := r.locate(ctx, incoming)
	if partner == nil {
		return false, nil
	}

	diffs, updates := diffIncoming(partner, incoming)
	segmentChanges := r.applySegmentStatuses(ctx, partner, incoming.Segments, &diffs)
	if len(updates) == 0 && !segmentChanges {
		return false, nil
	}

	if *job == nil {
		now := time.Now()
		created := &models.AuditJob{
			Scope:       models.AuditScopeBatch,
			Status:      models.AuditJobStatusRunning,
			TriggeredBy: "reverse_sync",
			StartedAt:   &now,
		}
		if err := r.audits.CreateJob(ctx, created); err != nil {
			return false, err
		}
		*job = created
	}
	*touched = append(*touched, partner.ID)

	if len(updates) > 0 {
		if err := r.partners.UpdateFields(ctx, partner.ID, updates); err != nil {
			return false, err
		}
	}

	entry := &models.AuditLog{
		JobId:            (*job).ID,
		PartnerID:        partner.ID,
		Result:           models.AuditResultInconsistent,
		DifferencesJSON:  models.EncodeDifferences(diffs),
		ExternalDataJSON: raw,
		Message:          fmt.Sprintf("partner updated from external system (%d field(s))", len(diffs)),
	}
	if err := r.audits.AppendLog(ctx, entry); err != nil {
		return false, err
	}
	return true, nil
}

// locate tries the incoming identifiers in priority order: internal id,
// sequential id, SAP id, then normalized document.
func (r *ReverseSync) locate(ctx context.Context, incoming incomingPartner) *models.Partner {
	if incoming.InternalId != "" {
		if p, err := r.partners.Get(ctx, incoming.InternalId); err == nil && p != nil {
			return p
		}
	}
	if incoming.SequentialId > 0 {
		if p, err := r.partners.FindBySequentialId(ctx, incoming.SequentialId); err == nil && p != nil {
			return p
		}
	}
	if incoming.SapId != "" {
		if p, err := r.partners.FindBySapId(ctx, incoming.SapId); err == nil && p != nil {
			return p
		}
	}
	if incoming.Document != "" {
		if p, err := r.partners.FindByDocument(ctx, incoming.Document); err == nil && p != nil {
			return p
		}
	}
	return nil
}

// diffIncoming compares the mapped payload against the stored partner and
// returns the differences plus the sparse column update to apply. Empty
// incoming values never overwrite stored ones.
func diffIncoming(partner *models.Partner, incoming incomingPartner) ([]models.FieldDifference, map[string]any) {
	type candidate struct {
		field  string
		label  string
		before any
		after  any
	}
	candidates := []candidate{
		{"legal_name", "Razão Social", partner.LegalName, incoming.LegalName},
		{"trade_name", "Nome Fantasia", partner.TradeName, incoming.TradeName},
		{"email", "E-mail", partner.Email, incoming.Email},
		{"phone", "Telefone", partner.Phone, incoming.Phone},
		{"tax_regime", "Regime Tributário", partner.TaxRegime, incoming.TaxRegime},
		{"sap_id", "Código SAP", partner.SapId, incoming.SapId},
	}
	if incoming.Nature != "" {
		candidates = append(candidates, candidate{"nature", "Natureza", string(partner.Nature), string(incoming.Nature)})
	}

	var diffs []models.FieldDifference
	updates := map[string]any{}
	for _, c := range candidates {
		after, ok := c.after.(string)
		if ok && after == "" {
			continue
		}
		if utils.NormalizedEqual(c.before, c.after) {
			continue
		}
		diffs = append(diffs, models.FieldDifference{
			Field:    c.field,
			Label:    c.label,
			Before:   c.before,
			After:    c.after,
			Source:   models.DiffSourceExternal,
			Metadata: map[string]string{"system": "sap"},
		})
		updates[c.field] = c.after
	}
	return diffs, updates
}

// applySegmentStatuses persists segment statuses reported by SAP when they
// diverge from the stored ones, recording each change as a difference.
func (r *ReverseSync) applySegmentStatuses(ctx context.Context, partner *models.Partner, segments []incomingSegment, diffs *[]models.FieldDifference) bool {
	if len(segments) == 0 || len(partner.SegmentStates) == 0 {
		return false
	}
	index := stateIndex(partner)
	changed := false
	for _, seg := range segments {
		state, ok := index[seg.Segment]
		if !ok || state.Status == seg.Status {
			continue
		}
		// The diff is only recorded once the new status is durably saved;
		// the audit log must never report a change that was not persisted.
		before := state.Status
		state.Status = seg.Status
		if err := r.segments.Save(ctx, state); err != nil {
			state.Status = before
			r.logger.WithFields(logrus.Fields{
				"module":  "sapsync",
				"partner": partner.ID,
				"segment": string(seg.Segment),
			}).Error(err.Error())
			continue
		}
		*diffs = append(*diffs, models.FieldDifference{
			Field:    fmt.Sprintf("segments.%s.status", seg.Segment),
			Label:    fmt.Sprintf("Status do segmento %s", seg.Segment),
			Before:   string(before),
			After:    string(seg.Status),
			Source:   models.DiffSourceExternal,
			Metadata: map[string]string{"system": "sap"},
		})
		changed = true
	}
	return changed
}
