package progress

import (
	"fmt"
	"math"
	"time"
)

// estimateETA extrapolates the remaining time from the elapsed time and the
// completed fraction. It returns "" while there is nothing to extrapolate.
func estimateETA(elapsed time.Duration, fraction float64) string {
	if elapsed <= 0 || fraction <= 0 {
		return ""
	}
	if fraction >= 1 {
		return "0m"
	}
	remaining := elapsed.Seconds() * (1 - fraction) / fraction
	return formatETASeconds(remaining)
}

func formatETASeconds(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	secs := int64(math.Round(seconds))
	if secs < 60 {
		return "<1m"
	}
	minutes := secs / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	hours := minutes / 60
	remMinutes := minutes % 60
	if hours < 24 {
		if remMinutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh %dm", hours, remMinutes)
	}
	days := hours / 24
	remHours := hours % 24
	if remHours == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd %dh", days, remHours)
}
