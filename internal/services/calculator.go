package services

import (
	"math"

	"search-agent/internal/models"
)

type Calculator struct{}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// Summarize aggregates a record set. CTR is recomputed from the totals and
// position is weighted by impressions, falling back to a plain mean when no
// record has impressions.
func (c *Calculator) Summarize(records []models.NormalizedRecord) models.Summary {
	summary := models.Summary{Records: len(records)}
	if len(records) == 0 {
		return summary
	}

	weightedPosition := 0.0
	positionSum := 0.0

	for _, record := range records {
		summary.TotalClicks += record.Clicks
		summary.TotalImpressions += record.Impressions
		weightedPosition += record.Position * float64(record.Impressions)
		positionSum += record.Position
	}

	summary.OverallCTR = c.round(c.safeDivide(float64(summary.TotalClicks), float64(summary.TotalImpressions))*100, 2)

	if summary.TotalImpressions > 0 {
		summary.AveragePosition = c.round(c.safeDivide(weightedPosition, float64(summary.TotalImpressions)), 1)
	} else {
		summary.AveragePosition = c.round(c.safeDivide(positionSum, float64(len(records))), 1)
	}

	return summary
}

// TopN returns the first n records; n <= 0 returns everything.
func (c *Calculator) TopN(records []models.NormalizedRecord, n int) []models.NormalizedRecord {
	if n <= 0 || n >= len(records) {
		out := make([]models.NormalizedRecord, len(records))
		copy(out, records)
		return out
	}
	out := make([]models.NormalizedRecord, n)
	copy(out, records[:n])
	return out
}

func (c *Calculator) safeDivide(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	result := numerator / denominator
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0
	}
	return result
}

func (c *Calculator) round(value float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(value*factor) / factor
}
