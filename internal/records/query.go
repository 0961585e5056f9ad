package records

import (
	"sort"
	"strconv"
	"strings"

	"github.com/BearBump/TrackIntake/internal/models"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// Sort keys accepted by Query (json names of TrackingRecord).
const (
	SortID                = "id"
	SortShipmentIDDVS     = "shipmentIdDvs"
	SortShipmentIDPartner = "shipmentIdPartner"
	SortRawCode           = "rawCode"
	SortScannedAt         = "scannedAt"
	SortStatus            = "status"
	SortCapturedBy        = "capturedBy"
	SortDeliveryPartnerID = "deliveryPartnerId"
)

type ListOptions struct {
	SortKey string
	Desc    bool
	Search  string
	Page    int
	PerPage int
}

type Page struct {
	Items      []models.TrackingRecord `json:"items"`
	Total      int                     `json:"total"`
	Page       int                     `json:"page"`
	PerPage    int                     `json:"perPage"`
	TotalPages int                     `json:"totalPages"`
}

func fieldValue(r models.TrackingRecord, key string) (string, bool) {
	switch key {
	case SortID:
		return r.ID, true
	case SortShipmentIDDVS:
		return r.ShipmentIDDVS, true
	case SortShipmentIDPartner:
		return r.ShipmentIDPartner, true
	case SortRawCode:
		return r.RawCode, true
	case SortScannedAt:
		return r.ScannedAt, true
	case SortStatus:
		return r.Status, true
	case SortCapturedBy:
		return r.CapturedBy, true
	case SortDeliveryPartnerID:
		return r.DeliveryPartnerID, true
	}
	return "", false
}

func allValues(r models.TrackingRecord) []string {
	return []string{r.ID, r.ShipmentIDDVS, r.ShipmentIDPartner, r.RawCode, r.ScannedAt, r.Status, r.CapturedBy, r.DeliveryPartnerID}
}

func matches(r models.TrackingRecord, q string) bool {
	for _, v := range allValues(r) {
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	return false
}

func less(a, b models.TrackingRecord, key string) bool {
	if key == SortID {
		ai, aerr := strconv.Atoi(a.ID)
		bi, berr := strconv.Atoi(b.ID)
		if aerr == nil && berr == nil {
			return ai < bi
		}
	}
	av, _ := fieldValue(a, key)
	bv, _ := fieldValue(b, key)
	return av < bv
}

// Query filters, sorts and paginates a snapshot. Unknown sort keys keep insertion order.
func (s *Store) Query(opts ListOptions) Page {
	return QueryRecords(s.Snapshot(), opts)
}

func QueryRecords(recs []models.TrackingRecord, opts ListOptions) Page {
	if q := strings.ToLower(strings.TrimSpace(opts.Search)); q != "" {
		filtered := recs[:0:0]
		for _, r := range recs {
			if matches(r, q) {
				filtered = append(filtered, r)
			}
		}
		recs = filtered
	}

	if _, ok := fieldValue(models.TrackingRecord{}, opts.SortKey); ok {
		sorted := make([]models.TrackingRecord, len(recs))
		copy(sorted, recs)
		sort.SliceStable(sorted, func(i, j int) bool {
			if opts.Desc {
				return less(sorted[j], sorted[i], opts.SortKey)
			}
			return less(sorted[i], sorted[j], opts.SortKey)
		})
		recs = sorted
	}

	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	page := opts.Page
	if page <= 0 {
		page = 1
	}

	total := len(recs)
	totalPages := (total + perPage - 1) / perPage
	start := (page - 1) * perPage
	items := []models.TrackingRecord{}
	if start < total {
		end := start + perPage
		if end > total {
			end = total
		}
		items = append(items, recs[start:end]...)
	}

	return Page{
		Items:      items,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}
}
