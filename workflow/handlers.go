package workflow

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/partners_backend/models"
	"github.com/mmdatafocus/partners_backend/models/reports"
	"github.com/mmdatafocus/partners_backend/utils"
)

func respondError(c *gin.Context, err error) {
	c.JSON(utils.ErrorStatus(err), gin.H{"error": err.Error()})
}

// resolvePartner accepts any identifier the API exposes, tried in priority
// order: internal id, sequential id, SAP id, document number.
func resolvePartner(c *gin.Context) (*models.Partner, error) {
	ctx := c.Request.Context()
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return nil, utils.NewValidationError("partner id is required")
	}

	if partner, err := models.GetPartner(ctx, id); err == nil {
		return partner, nil
	}
	if seq, err := strconv.Atoi(id); err == nil {
		if partner, err := models.FindPartnerBySequentialId(ctx, seq); err == nil {
			return partner, nil
		}
	}
	if partner, err := models.FindPartnerBySapId(ctx, id); err == nil {
		return partner, nil
	}
	if doc := utils.DigitsOnly(id); doc != "" {
		if partner, err := models.FindPartnerByDocument(ctx, doc); err == nil {
			return partner, nil
		}
	}
	return nil, utils.NewNotFoundError("partner %s not found", id)
}

func CreatePartnerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewPartner
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
			return
		}
		partner, err := models.CreatePartner(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, partner)
	}
}

func GetPartnerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		partner, err := resolvePartner(c)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, partner)
	}
}

func ListPartnersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if v := c.Query("stage"); v != "" && !models.ValidApprovalStage(v) {
			respondError(c, utils.NewValidationError("unknown approval stage %q", v))
			return
		}
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
		filter := models.PartnerFilter{
			Status:   models.PartnerStatus(c.Query("status")),
			Stage:    models.ApprovalStage(c.Query("stage")),
			Nature:   models.PartnerNature(c.Query("nature")),
			Document: c.Query("document"),
			Search:   c.Query("search"),
			Page:     page,
			PageSize: pageSize,
		}
		partners, total, err := models.ListPartners(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": partners, "total": total, "page": page})
	}
}

func GetApprovalHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		partner, err := resolvePartner(c)
		if err != nil {
			respondError(c, err)
			return
		}
		history, err := models.GetApprovalHistory(c.Request.Context(), partner.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": history})
	}
}

func SubmitHandler(w *ApprovalWorkflow) gin.HandlerFunc {
	return func(c *gin.Context) {
		partner, err := resolvePartner(c)
		if err != nil {
			respondError(c, err)
			return
		}
		ctx := c.Request.Context()
		result, err := w.Submit(ctx, partner.ID, ActorFromContext(ctx))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

type stageActionRequest struct {
	Stage  string `json:"stage" binding:"required"`
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

func ApproveStageHandler(w *ApprovalWorkflow) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req stageActionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "stage is required"})
			return
		}
		partner, err := resolvePartner(c)
		if err != nil {
			respondError(c, err)
			return
		}
		ctx := c.Request.Context()
		result, err := w.ApproveStage(ctx, partner.ID, models.ApprovalStage(req.Stage), ActorFromContext(ctx), req.Notes)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func RejectStageHandler(w *ApprovalWorkflow) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req stageActionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "stage is required"})
			return
		}
		partner, err := resolvePartner(c)
		if err != nil {
			respondError(c, err)
			return
		}
		ctx := c.Request.Context()
		result, err := w.RejectStage(ctx, partner.ID, models.ApprovalStage(req.Stage), ActorFromContext(ctx), req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func RetryIntegrationHandler(w *ApprovalWorkflow) gin.HandlerFunc {
	return func(c *gin.Context) {
		partner, err := resolvePartner(c)
		if err != nil {
			respondError(c, err)
			return
		}
		result, err := w.RetrySapIntegration(c.Request.Context(), partner.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func TriggerSegmentHandler(w *ApprovalWorkflow) gin.HandlerFunc {
	return func(c *gin.Context) {
		partner, err := resolvePartner(c)
		if err != nil {
			respondError(c, err)
			return
		}
		result, err := w.TriggerSegment(c.Request.Context(), partner.ID, c.Param("segment"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

type triggerAuditRequest struct {
	PartnerIds []string `json:"partner_ids" binding:"required"`
}

// TriggerAuditHandler queues an audit job and processes it in the same
// request; the response carries the finished job and its log rows.
func TriggerAuditHandler(r *AuditRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req triggerAuditRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "partner_ids is required"})
			return
		}
		ctx := c.Request.Context()
		triggeredBy := "api"
		if name, ok := utils.GetUserNameFromContext(ctx); ok && name != "" {
			triggeredBy = name
		}

		job, err := r.CreateJob(ctx, req.PartnerIds, triggeredBy)
		if err != nil {
			respondError(c, err)
			return
		}
		if err := r.Process(ctx, job.ID); err != nil {
			respondError(c, err)
			return
		}
		finished, err := models.GetAuditJob(ctx, job.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		logs, err := models.ListAuditLogs(ctx, job.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"job": finished, "logs": logs})
	}
}

func GetAuditJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		jobId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
			return
		}
		ctx := c.Request.Context()
		job, err := models.GetAuditJob(ctx, jobId)
		if err != nil {
			respondError(c, err)
			return
		}
		logs, err := models.ListAuditLogs(ctx, jobId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"job": job, "logs": logs})
	}
}

func ExportAuditJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		jobId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
			return
		}
		ctx := c.Request.Context()
		if _, err := models.GetAuditJob(ctx, jobId); err != nil {
			respondError(c, err)
			return
		}
		if err := reports.ExportAuditLogExcel(ctx, c.Writer, jobId); err != nil {
			respondError(c, err)
			return
		}
	}
}

type createChangeRequestBody struct {
	RequestType string                      `json:"request_type"`
	Motivo      string                      `json:"motivo" binding:"required"`
	Origin      string                      `json:"origin"`
	Fields      []models.ChangeRequestField `json:"fields"`
}

// CreateChangeRequestHandler records a proposed edit. Externally originated
// requests also leave a registered audit job behind, so the reconciliation
// ledger shows where the proposal came from without the runner picking it
// up.
func CreateChangeRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body createChangeRequestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "motivo is required"})
			return
		}
		partner, err := resolvePartner(c)
		if err != nil {
			respondError(c, err)
			return
		}

		ctx := c.Request.Context()
		cr, err := models.CreateChangeRequest(ctx, &models.NewChangeRequest{
			PartnerID:   partner.ID,
			RequestType: models.ChangeRequestType(body.RequestType),
			Motivo:      body.Motivo,
			Origin:      models.ChangeRequestOrigin(body.Origin),
			Fields:      body.Fields,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		if cr.Origin == models.ChangeRequestOriginExternal {
			job := &models.AuditJob{
				Scope:          models.AuditScopeIndividual,
				Status:         models.AuditJobStatusRegistered,
				PartnerIdsJSON: models.EncodePartnerIds([]string{partner.ID}),
				TriggeredBy:    "change_request",
			}
			if err := models.CreateAuditJob(ctx, job); err != nil {
				respondError(c, err)
				return
			}
		}
		c.JSON(http.StatusCreated, cr)
	}
}

func ListChangeRequestsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		partner, err := resolvePartner(c)
		if err != nil {
			respondError(c, err)
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
		requests, err := models.MostRecentChangeRequests(c.Request.Context(), partner.ID, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": requests})
	}
}
