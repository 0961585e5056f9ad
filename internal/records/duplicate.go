package records

import (
	"strings"

	"github.com/BearBump/TrackIntake/internal/barcode"
	"github.com/BearBump/TrackIntake/internal/models"
	"github.com/pkg/errors"
)

var ErrDuplicate = errors.New("Dieser Barcode wurde bereits gescannt.")

// IsDuplicate reports whether incoming is already in existing.
// A code containing "DVS" more than once is a concatenated multi-label scan and always counts as a duplicate.
func IsDuplicate(incoming string, existing []models.TrackingRecord) bool {
	code := strings.TrimSpace(incoming)
	if strings.Count(code, barcode.Prefix) > 1 {
		return true
	}
	for _, r := range existing {
		if r.RawCode == code {
			return true
		}
	}
	return false
}
