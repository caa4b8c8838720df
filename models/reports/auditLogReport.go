package reports

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mmdatafocus/partners_backend/models"
	"github.com/mmdatafocus/partners_backend/utils"
	"github.com/xuri/excelize/v2"
)

type auditLogRow struct {
	PartnerName string
	Document    string
	Result      models.AuditResult
	Differences []models.FieldDifference
	Message     string
	CreatedAt   string
}

func getAuditLogReport(ctx context.Context, jobId int) ([]auditLogRow, error) {
	logs, err := models.ListAuditLogs(ctx, jobId)
	if err != nil {
		return nil, err
	}

	rows := make([]auditLogRow, 0, len(logs))
	for _, entry := range logs {
		row := auditLogRow{
			Result:      entry.Result,
			Differences: entry.Differences(),
			Message:     entry.Message,
			CreatedAt:   entry.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		if partner, err := models.GetPartner(ctx, entry.PartnerID); err == nil {
			row.PartnerName = partner.LegalName
			row.Document = partner.Document
		} else {
			row.PartnerName = entry.PartnerID
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func describeDifferences(diffs []models.FieldDifference) string {
	parts := make([]string, 0, len(diffs))
	for _, d := range diffs {
		parts = append(parts, fmt.Sprintf("%s: %v -> %v (%s)", d.Label, d.Before, d.After, d.Source))
	}
	return strings.Join(parts, "; ")
}

// ExportAuditLogExcel writes the audit job's per-partner outcomes as an
// XLSX attachment.
func ExportAuditLogExcel(ctx context.Context, w http.ResponseWriter, jobId int) error {
	rows, err := getAuditLogReport(ctx, jobId)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	if _, err := f.NewSheet("Sheet1"); err != nil {
		return err
	}

	// Add headers
	f.SetCellValue("Sheet1", "A1", "Partner")
	f.SetCellValue("Sheet1", "B1", "Document")
	f.SetCellValue("Sheet1", "C1", "Result")
	f.SetCellValue("Sheet1", "D1", "Differences")
	f.SetCellValue("Sheet1", "E1", "Message")
	f.SetCellValue("Sheet1", "F1", "CheckedAt")

	// Add data
	for i, row := range rows {
		f.SetCellValue("Sheet1", "A"+fmt.Sprint(i+2), row.PartnerName)
		f.SetCellValue("Sheet1", "B"+fmt.Sprint(i+2), row.Document)
		f.SetCellValue("Sheet1", "C"+fmt.Sprint(i+2), string(row.Result))
		f.SetCellValue("Sheet1", "D"+fmt.Sprint(i+2), describeDifferences(row.Differences))
		f.SetCellValue("Sheet1", "E"+fmt.Sprint(i+2), row.Message)
		f.SetCellValue("Sheet1", "F"+fmt.Sprint(i+2), row.CreatedAt)
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=audit-job-%d.xlsx", jobId))
	if err := f.Write(w); err != nil {
		return utils.NewExternalError("failed to write excel file", err)
	}
	return nil
}
