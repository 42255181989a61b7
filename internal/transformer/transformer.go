package transformer

import (
	"math"

	"search-agent/internal/models"
)

// Field names used in quality reports.
const (
	FieldQuery       = "query"
	FieldClicks      = "clicks"
	FieldImpressions = "impressions"
	FieldCTR         = "ctr"
	FieldPosition    = "position"
)

type Transformer struct{}

func New() *Transformer {
	return &Transformer{}
}

// NormalizeRows maps raw rows to records one-for-one, keeping order. It never fails.
func (t *Transformer) NormalizeRows(rows []models.AnalyticsRow) []models.NormalizedRecord {
	normalized := make([]models.NormalizedRecord, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, t.normalizeRow(row, nil))
	}
	return normalized
}

// QualityReport counts the fields that had to be defaulted or clamped while normalizing.
func (t *Transformer) QualityReport(rows []models.AnalyticsRow) models.QualityReport {
	report := models.QualityReport{
		TotalRows:     len(rows),
		MissingFields: make(map[string]int),
		ClampedFields: make(map[string]int),
	}

	for _, row := range rows {
		quality := &rowQuality{}
		t.normalizeRow(row, quality)
		if len(quality.missing) == 0 && len(quality.clamped) == 0 {
			report.CompleteRows++
		}
		for _, field := range quality.missing {
			report.MissingFields[field]++
		}
		for _, field := range quality.clamped {
			report.ClampedFields[field]++
		}
	}

	return report
}

type rowQuality struct {
	missing []string
	clamped []string
}

func (q *rowQuality) markMissing(field string) {
	if q != nil {
		q.missing = append(q.missing, field)
	}
}

func (q *rowQuality) markClamped(field string) {
	if q != nil {
		q.clamped = append(q.clamped, field)
	}
}

func (t *Transformer) normalizeRow(row models.AnalyticsRow, quality *rowQuality) models.NormalizedRecord {
	return models.NormalizedRecord{
		Query:       t.validateQuery(row.Keys, quality),
		Clicks:      t.validateCount(row.Clicks, FieldClicks, quality),
		Impressions: t.validateCount(row.Impressions, FieldImpressions, quality),
		CTR:         t.validateCTR(row.CTR, quality),
		Position:    t.validatePosition(row.Position, quality),
	}
}

func (t *Transformer) validateQuery(keys []string, quality *rowQuality) string {
	if len(keys) == 0 {
		quality.markMissing(FieldQuery)
		return ""
	}
	return keys[0]
}

func (t *Transformer) validateCount(value *float64, field string, quality *rowQuality) int64 {
	if value == nil || math.IsNaN(*value) {
		quality.markMissing(field)
		return 0
	}
	if *value < 0 || math.IsInf(*value, 0) {
		quality.markClamped(field)
		return 0
	}
	rounded := math.Round(*value)
	if rounded >= math.MaxInt64 {
		quality.markClamped(field)
		return math.MaxInt64
	}
	return int64(rounded)
}

// validateCTR converts a 0-1 ratio into a percentage with two decimals.
func (t *Transformer) validateCTR(ratio *float64, quality *rowQuality) float64 {
	if ratio == nil || math.IsNaN(*ratio) {
		quality.markMissing(FieldCTR)
		return 0
	}
	pct := roundTo(*ratio*100, 2)
	if pct < 0 {
		quality.markClamped(FieldCTR)
		return 0
	}
	if pct > 100 {
		quality.markClamped(FieldCTR)
		return 100
	}
	return pct
}

func (t *Transformer) validatePosition(position *float64, quality *rowQuality) float64 {
	if position == nil || math.IsNaN(*position) {
		quality.markMissing(FieldPosition)
		return 0
	}
	if *position < 0 || math.IsInf(*position, 0) {
		quality.markClamped(FieldPosition)
		return 0
	}
	return roundTo(*position, 1)
}

func roundTo(value float64, decimals int) float64 {
	if math.IsInf(value, 0) {
		return value
	}
	factor := math.Pow(10, float64(decimals))
	return math.Round(value*factor) / factor
}
