package models

import "time"

// Статусы записи. Новая запись всегда VALID.
const (
	RecordStatusValid      = "VALID"
	RecordStatusNonValid   = "NON_VALID"
	RecordStatusRedirected = "REDIRECTED"
)

// TrackingRecord: одно событие сканирования отправления.
type TrackingRecord struct {
	ID                string `json:"id"`
	ShipmentIDDVS     string `json:"shipmentIdDvs"`
	ShipmentIDPartner string `json:"shipmentIdPartner"`
	RawCode           string `json:"rawCode"`
	ScannedAt         string `json:"scannedAt"`
	Status            string `json:"status"`
	CapturedBy        string `json:"capturedBy"`
	DeliveryPartnerID string `json:"deliveryPartnerId"`
}

// ParsedBarcode: поля штрихкода после структурной проверки.
type ParsedBarcode struct {
	Code              string `json:"code"`
	ShipmentID        string `json:"shipmentId"`
	FeederID          string `json:"feederId"`
	DeliveryPartnerID string `json:"deliveryPartnerId"`
	DropLocationID    string `json:"dropLocationId"`
	ProductCode       string `json:"productCode"`
}

// Export channels.
const (
	ExportChannelUpload        = "upload"
	ExportChannelLocalDownload = "local_download"
)

// ExportEntry: строка журнала выгрузок.
type ExportEntry struct {
	BatchID           string    `json:"batchId"`
	Filename          string    `json:"filename"`
	DeliveryPartnerID string    `json:"deliveryPartnerId"`
	Channel           string    `json:"channel"`
	Station           string    `json:"station"`
	RecordCount       int       `json:"recordCount"`
	Codes             []string  `json:"codes,omitempty"`
	CompletedAt       time.Time `json:"completedAt"`
	CreatedAt         time.Time `json:"createdAt"`
}
