package messages

import (
	"time"
)

const TopicExportCompleted = "export.completed"

// ExportCompleted публикуется после подтверждённой передачи файла (upload или локальное сохранение).
type ExportCompleted struct {
	BatchID           string    `json:"batch_id"`
	Filename          string    `json:"filename"`
	DeliveryPartnerID string    `json:"delivery_partner_id"`
	Channel           string    `json:"channel"`
	Station           string    `json:"station"`
	RecordCount       int       `json:"record_count"`
	Codes             []string  `json:"codes"`
	CompletedAt       time.Time `json:"completed_at"`
}
