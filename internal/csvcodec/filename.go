package csvcodec

import "time"

const (
	FilenameTimeLayout = "200601021504"
	FilenameSuffix     = "_Trackingdaten_dvs.csv"
)

// Filename builds "<YYYYMMDDHHmm>_<partner>_Trackingdaten_dvs.csv".
func Filename(at time.Time, deliveryPartnerID string) string {
	return at.Format(FilenameTimeLayout) + "_" + deliveryPartnerID + FilenameSuffix
}
