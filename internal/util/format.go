package util

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatBytes renders a byte count the way operators expect in pipeline
// logs: binary units, with one decimal place when the value is below 10
// of its unit and none otherwise.
func FormatBytes(n int64) string {
	return humanize.IBytes(uint64(n))
}

// FormatDuration renders a duration as "1h 12m", "3m 40s", or "45s"
// depending on magnitude.
func FormatDuration(d time.Duration) string {
	secs := d.Seconds()
	switch {
	case secs < 60:
		return fmt.Sprintf("%.0fs", secs)
	case secs < 3600:
		m := int(secs) / 60
		s := int(secs) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		h := int(secs) / 3600
		m := (int(secs) % 3600) / 60
		return fmt.Sprintf("%dh %dm", h, m)
	}
}
