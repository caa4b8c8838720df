package models

import (
	"log"

	"github.com/mmdatafocus/partners_backend/config"
)

func MigrateTable() {
	db := config.GetDB()
	err := db.AutoMigrate(
		&Partner{},
		&PartnerAddress{},
		&PartnerBank{},
		&PartnerCarrier{},
		&SupplierProfile{},
		&SalesProfile{},
		&CreditProfile{},
		&PartnerSegmentState{},
		&ApprovalHistoryEntry{},
		&AuditJob{},
		&AuditLog{},
		&ChangeRequest{},
	)
	if err != nil {
		log.Printf("auto migrate failed: %v", err)
	}
}
