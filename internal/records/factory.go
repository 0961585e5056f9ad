package records

import (
	"strconv"
	"time"

	"github.com/BearBump/TrackIntake/internal/barcode"
	"github.com/BearBump/TrackIntake/internal/models"
)

// ScannedAtLayout: формат scannedAt: секунды, без смещения часового пояса.
const ScannedAtLayout = "2006-01-02 15:04:05"

// Factory builds records for one capture station.
type Factory struct {
	station             string
	includeDropLocation bool
	loc                 *time.Location
}

func NewFactory(station string) *Factory {
	return &Factory{station: station, loc: time.UTC}
}

// WithDropLocation appends the drop-location digit to the partner id ("ZUP + ABL").
func (f *Factory) WithDropLocation(include bool) *Factory {
	f.includeDropLocation = include
	return f
}

func (f *Factory) WithLocation(loc *time.Location) *Factory {
	if loc != nil {
		f.loc = loc
	}
	return f
}

func (f *Factory) Station() string { return f.station }

// PartnerID returns the export grouping id for a parsed code.
func (f *Factory) PartnerID(p models.ParsedBarcode) string {
	if f.includeDropLocation {
		return p.DeliveryPartnerID + p.DropLocationID
	}
	return p.DeliveryPartnerID
}

// FromParsed builds the record that would be appended to a store holding sequenceLength records.
func (f *Factory) FromParsed(p models.ParsedBarcode, sequenceLength int, now time.Time) models.TrackingRecord {
	return models.TrackingRecord{
		ID: strconv.Itoa(sequenceLength + 1),
		// Обе Sendungs-ID сейчас совпадают (смещение 4..20).
		ShipmentIDDVS:     p.ShipmentID,
		ShipmentIDPartner: p.ShipmentID,
		RawCode:           p.Code,
		ScannedAt:         now.In(f.loc).Format(ScannedAtLayout),
		Status:            models.RecordStatusValid,
		CapturedBy:        f.station,
		DeliveryPartnerID: f.PartnerID(p),
	}
}

// Create validates code and builds a record from it.
func (f *Factory) Create(code string, sequenceLength int, now time.Time) (models.TrackingRecord, error) {
	p, err := barcode.Validate(code)
	if err != nil {
		return models.TrackingRecord{}, err
	}
	return f.FromParsed(p, sequenceLength, now), nil
}
