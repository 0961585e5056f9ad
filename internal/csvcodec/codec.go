package csvcodec

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/BearBump/TrackIntake/internal/models"
	"github.com/pkg/errors"
)

const (
	Delimiter = ";"
	BOM       = "\uFEFF"
)

// Header: фиксированный внешний контракт: порядок колонок менять нельзя.
var Header = []string{
	"UPOC_ZUP",
	"SendungsID_dvs",
	"DATAMATRIX_dvs",
	"EncodingDateTime",
	"shortStatus",
	"ZUPID_Erfasser",
	"ZUPID_Zusteller",
}

func quote(s string) string { return `"` + s + `"` }

func row(r models.TrackingRecord) string {
	return strings.Join([]string{
		r.ShipmentIDPartner,
		r.ShipmentIDDVS,
		r.RawCode,
		r.ScannedAt,
		quote(r.Status),
		quote(r.CapturedBy),
		quote(r.DeliveryPartnerID),
	}, Delimiter)
}

// Encode renders the header plus one row per record, joined by "\n" without a trailing newline.
func Encode(recs []models.TrackingRecord) string {
	lines := make([]string, 0, len(recs)+1)
	lines = append(lines, strings.Join(Header, Delimiter))
	for _, r := range recs {
		lines = append(lines, row(r))
	}
	return strings.Join(lines, "\n")
}

// Document is Encode prefixed with a UTF-8 BOM, the bytes handed to upload and download.
func Document(recs []models.TrackingRecord) []byte {
	return []byte(BOM + Encode(recs))
}

// Decode parses a document produced by Encode or Document. Record ids are assigned 1..N.
func Decode(r io.Reader) ([]models.TrackingRecord, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read csv")
	}
	text := strings.TrimPrefix(string(b), BOM)

	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = ';'
	cr.FieldsPerRecord = len(Header)

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "parse csv")
	}
	if len(rows) == 0 {
		return nil, errors.New("csv is empty")
	}
	for i, h := range Header {
		if rows[0][i] != h {
			return nil, errors.Errorf("unexpected header %q at column %d", rows[0][i], i+1)
		}
	}

	out := make([]models.TrackingRecord, 0, len(rows)-1)
	for i, f := range rows[1:] {
		out = append(out, models.TrackingRecord{
			ID:                strconv.Itoa(i + 1),
			ShipmentIDPartner: f[0],
			ShipmentIDDVS:     f[1],
			RawCode:           f[2],
			ScannedAt:         f[3],
			Status:            f[4],
			CapturedBy:        f[5],
			DeliveryPartnerID: f[6],
		})
	}
	return out, nil
}
