// Package presentation maps a presentation mode to the fields a chart plots.
package presentation

import (
	"fmt"

	"search-agent/internal/apperrors"
	"search-agent/internal/models"
)

var modes = []models.PresentationMode{
	models.PresentationTable,
	models.PresentationBarByClicks,
	models.PresentationLineByPosition,
	models.PresentationLineByCTR,
}

var specs = map[models.PresentationMode]models.PresentationSpec{
	models.PresentationTable: {
		Mark:    "table",
		Title:   "Search queries",
		Tooltip: []string{"query", "clicks", "impressions", "ctr", "position"},
	},
	models.PresentationBarByClicks: {
		Mark:    "bar",
		Title:   "Clicks by query",
		X:       "query",
		Y:       "clicks",
		XTitle:  "Query",
		YTitle:  "Clicks",
		Tooltip: []string{"query", "clicks"},
	},
	models.PresentationLineByPosition: {
		Mark:    "line",
		Title:   "Average position by query",
		X:       "query",
		Y:       "position",
		XTitle:  "Query",
		YTitle:  "Average position",
		Tooltip: []string{"query", "position"},
	},
	models.PresentationLineByCTR: {
		Mark:    "line",
		Title:   "CTR by query",
		X:       "query",
		Y:       "ctr",
		XTitle:  "Query",
		YTitle:  "CTR (%)",
		Tooltip: []string{"query", "ctr"},
	},
}

// Modes lists every presentation mode in selector order.
func Modes() []models.PresentationMode {
	out := make([]models.PresentationMode, len(modes))
	copy(out, modes)
	return out
}

// Select returns the presentation descriptor for mode. An empty mode selects the table.
func Select(mode models.PresentationMode) (models.PresentationSpec, error) {
	if mode == "" {
		mode = models.PresentationTable
	}
	spec, ok := specs[mode]
	if !ok {
		return models.PresentationSpec{}, apperrors.New(apperrors.KindValidation, "presentation.select",
			fmt.Sprintf("unknown presentation mode %q", mode))
	}
	spec.Mode = mode
	spec.Tooltip = append([]string(nil), spec.Tooltip...)
	return spec, nil
}
