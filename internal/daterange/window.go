// Package daterange turns the date-range selector into concrete calendar dates.
package daterange

import (
	"fmt"
	"time"

	"search-agent/internal/apperrors"
	"search-agent/internal/models"
)

const (
	Last7Days  = "last_7_days"
	Last28Days = "last_28_days"
	Last30Days = "last_30_days"
	Last90Days = "last_90_days"
	Custom     = "custom"
)

var windowDays = map[string]int{
	Last7Days:  7,
	Last28Days: 28,
	Last30Days: 30,
	Last90Days: 90,
}

// Windows lists the selectable windows in display order.
func Windows() []string {
	return []string{Last7Days, Last28Days, Last30Days, Last90Days, Custom}
}

// Resolve returns the start and end dates for window relative to today.
// Custom windows pass start and end through after checking they parse.
func Resolve(window string, today time.Time, start, end string) (string, string, error) {
	if window == Custom {
		if start == "" || end == "" {
			return "", "", apperrors.New(apperrors.KindValidation, "daterange.resolve",
				"custom window requires start_date and end_date")
		}
		if err := ValidateRange(start, end); err != nil {
			return "", "", err
		}
		return start, end, nil
	}

	days, ok := windowDays[window]
	if !ok {
		return "", "", apperrors.New(apperrors.KindValidation, "daterange.resolve",
			fmt.Sprintf("unknown date window %q", window))
	}

	endDate := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	startDate := endDate.AddDate(0, 0, -days)
	return startDate.Format(models.DateLayout), endDate.Format(models.DateLayout), nil
}

// ValidateRange checks both dates are calendar dates and start <= end.
func ValidateRange(start, end string) error {
	startDate, err := time.Parse(models.DateLayout, start)
	if err != nil {
		return apperrors.Wrapf(apperrors.KindValidation, "daterange.validate", err,
			"invalid start date %q, use YYYY-MM-DD", start)
	}
	endDate, err := time.Parse(models.DateLayout, end)
	if err != nil {
		return apperrors.Wrapf(apperrors.KindValidation, "daterange.validate", err,
			"invalid end date %q, use YYYY-MM-DD", end)
	}
	if startDate.After(endDate) {
		return apperrors.New(apperrors.KindValidation, "daterange.validate",
			fmt.Sprintf("start date %s is after end date %s", start, end))
	}
	return nil
}
