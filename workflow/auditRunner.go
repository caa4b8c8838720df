package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/partners_backend/config"
	"github.com/mmdatafocus/partners_backend/models"
	"github.com/mmdatafocus/partners_backend/utils"
	"github.com/sirupsen/logrus"
)

type auditPartnerStore interface {
	Get(ctx context.Context, id string) (*models.Partner, error)
}

type auditJobStore interface {
	CreateJob(ctx context.Context, job *models.AuditJob) error
	GetJob(ctx context.Context, id int) (*models.AuditJob, error)
	UpdateJob(ctx context.Context, id int, fields map[string]any) error
	AppendLog(ctx context.Context, entry *models.AuditLog) error
}

// AuditRunner executes queued audit jobs: one comparison and one log row
// per partner, sequentially, crash-tolerant per partner.
type AuditRunner struct {
	engine   *AuditEngine
	partners auditPartnerStore
	audits   auditJobStore
	logger   *logrus.Logger
}

func NewAuditRunner(engine *AuditEngine, partners auditPartnerStore, audits auditJobStore) *AuditRunner {
	return &AuditRunner{
		engine:   engine,
		partners: partners,
		audits:   audits,
		logger:   config.GetLogger(),
	}
}

func NewDefaultAuditRunner() *AuditRunner {
	engine := NewAuditEngine(NewRegistryClient(), models.ChangeRequestStore{})
	return NewAuditRunner(engine, models.PartnerStore{}, models.AuditStore{})
}

// CreateJob queues a new audit job over the given partner ids. Scope is
// individual for a single id, batch otherwise.
func (r *AuditRunner) CreateJob(ctx context.Context, partnerIds []string, triggeredBy string) (*models.AuditJob, error) {
	ids := models.DecodePartnerIds(models.EncodePartnerIds(partnerIds))
	if len(ids) == 0 {
		return nil, utils.NewValidationError("at least one partner id is required")
	}
	scope := models.AuditScopeBatch
	if len(ids) == 1 {
		scope = models.AuditScopeIndividual
	}
	job := &models.AuditJob{
		Scope:          scope,
		Status:         models.AuditJobStatusQueued,
		PartnerIdsJSON: models.EncodePartnerIds(ids),
		TriggeredBy:    triggeredBy,
	}
	if err := r.audits.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Process runs one queued job to completion. Per-partner failures are
// downgraded to error log rows; only a failure escaping the loop marks the
// whole job error.
func (r *AuditRunner) Process(ctx context.Context, jobId int) error {
	job, err := r.audits.GetJob(ctx, jobId)
	if err != nil {
		return err
	}
	if job.Status != models.AuditJobStatusQueued {
		return utils.NewValidationError("audit job %d is %s, not queued", jobId, job.Status)
	}

	now := time.Now()
	if err := r.audits.UpdateJob(ctx, jobId, map[string]any{
		"status":     models.AuditJobStatusRunning,
		"started_at": &now,
	}); err != nil {
		return err
	}

	runErr := r.iterate(ctx, job)

	finished := time.Now()
	fields := map[string]any{
		"status":      models.AuditJobStatusCompleted,
		"finished_at": &finished,
	}
	if runErr != nil {
		fields["status"] = models.AuditJobStatusError
		fields["error_message"] = runErr.Error()
	}
	if err := r.audits.UpdateJob(ctx, jobId, fields); err != nil {
		return err
	}
	return runErr
}

func (r *AuditRunner) iterate(ctx context.Context, job *models.AuditJob) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("audit job %d panicked: %v", job.ID, rec)
		}
	}()

	for _, partnerID := range models.DecodePartnerIds(job.PartnerIdsJSON) {
		entry := r.auditOne(ctx, job.ID, partnerID)
		if appendErr := r.audits.AppendLog(ctx, entry); appendErr != nil {
			return appendErr
		}
	}
	return nil
}

// auditOne never returns an error: anything that goes wrong for one
// partner becomes that partner's error row.
func (r *AuditRunner) auditOne(ctx context.Context, jobId int, partnerID string) (entry *models.AuditLog) {
	entry = &models.AuditLog{JobId: jobId, PartnerID: partnerID}
	defer func() {
		if rec := recover(); rec != nil {
			entry.Result = models.AuditResultError
			entry.Message = fmt.Sprintf("audit panicked: %v", rec)
		}
	}()

	partner, err := r.partners.Get(ctx, partnerID)
	if err != nil {
		entry.Result = models.AuditResultError
		entry.Message = err.Error()
		r.logger.WithFields(logrus.Fields{
			"module":  "workflow",
			"job":     jobId,
			"partner": partnerID,
		}).Error(err.Error())
		return entry
	}

	comparison := r.engine.Compare(ctx, partner)
	entry.Result = comparison.Result
	entry.DifferencesJSON = models.EncodeDifferences(comparison.Differences)
	entry.ExternalDataJSON = comparison.ExternalData
	entry.Message = comparison.Message
	return entry
}
