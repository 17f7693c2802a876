package monitor

import (
	"fmt"
	"math"
	"time"
)

const (
	minutesPerDay   = 1440
	minutesPerMonth = 43200
	minutesPerYear  = 525600
)

// DistanceInWords renders a duration the way helpdesk operators read it in
// alerts: "less than a minute", "10 minutes", "about 24 hours", "3 days",
// "over 2 years". Leap days are not accounted for.
func DistanceInWords(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	minutes := int(math.Round(d.Minutes()))

	switch {
	case minutes < 1:
		return "less than a minute"
	case minutes == 1:
		return "1 minute"
	case minutes < 45:
		return fmt.Sprintf("%d minutes", minutes)
	case minutes < 90:
		return "about 1 hour"
	case minutes < minutesPerDay:
		return fmt.Sprintf("about %d hours", roundDiv(minutes, 60))
	case minutes < 2520:
		return "1 day"
	case minutes < minutesPerMonth:
		return fmt.Sprintf("%d days", roundDiv(minutes, minutesPerDay))
	case minutes < 2*minutesPerMonth:
		return "about 1 month"
	case minutes < minutesPerYear:
		return fmt.Sprintf("%d months", roundDiv(minutes, minutesPerMonth))
	}

	years := minutes / minutesPerYear
	remainder := minutes % minutesPerYear
	switch {
	case remainder < minutesPerYear/4:
		return plural("about", years, "year")
	case remainder < minutesPerYear*3/4:
		return plural("over", years, "year")
	default:
		return plural("almost", years+1, "year")
	}
}

func roundDiv(n, d int) int {
	return int(math.Round(float64(n) / float64(d)))
}

func plural(prefix string, n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%s 1 %s", prefix, unit)
	}
	return fmt.Sprintf("%s %d %ss", prefix, n, unit)
}
