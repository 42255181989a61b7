package models

import (
	"time"
)

// DateLayout is the calendar date format used by the Search Analytics API.
const DateLayout = "2006-01-02"

// QueryFunctionName is the single function the language model may call.
const QueryFunctionName = "get_search_console_ctr"

// Resolution modes
type ResolveMode string

const (
	ModeDirect   ResolveMode = "direct"
	ModeAssisted ResolveMode = "assisted"
)

// Presentation modes
type PresentationMode string

const (
	PresentationTable          PresentationMode = "table"
	PresentationBarByClicks    PresentationMode = "bar-by-clicks"
	PresentationLineByPosition PresentationMode = "line-by-position"
	PresentationLineByCTR      PresentationMode = "line-by-ctr"
)

// Pipeline outcome statuses
type OutcomeStatus string

const (
	StatusOK    OutcomeStatus = "ok"
	StatusEmpty OutcomeStatus = "empty"
	StatusInfo  OutcomeStatus = "info"
	StatusError OutcomeStatus = "error"
)

// AnalyticsQueryRequest is a validated Search Analytics query.
type AnalyticsQueryRequest struct {
	SiteURL     string `json:"site_url"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	QueryFilter string `json:"query_filter,omitempty"`
}

// AnalyticsRow is one raw row from the analytics service. Absent fields are nil.
type AnalyticsRow struct {
	Keys        []string `json:"keys,omitempty"`
	Clicks      *float64 `json:"clicks,omitempty"`
	Impressions *float64 `json:"impressions,omitempty"`
	CTR         *float64 `json:"ctr,omitempty"`
	Position    *float64 `json:"position,omitempty"`
}

// NormalizedRecord is the uniform tabular shape handed to the presenter.
type NormalizedRecord struct {
	Query       string  `json:"query"`
	Clicks      int64   `json:"clicks"`
	Impressions int64   `json:"impressions"`
	CTR         float64 `json:"ctr"`
	Position    float64 `json:"position"`
}

// FunctionCallDirective is the function call selected by the language model.
// Arguments is the raw JSON text the model produced.
type FunctionCallDirective struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// DirectiveArguments mirrors the declared function parameters. Every field is optional.
type DirectiveArguments struct {
	SiteURL     *string `json:"site_url,omitempty"`
	StartDate   *string `json:"start_date,omitempty"`
	EndDate     *string `json:"end_date,omitempty"`
	QueryFilter *string `json:"query_filter,omitempty"`
}

// Data Quality Tracking
type QualityReport struct {
	TotalRows     int            `json:"total_rows"`
	CompleteRows  int            `json:"complete_rows"`
	MissingFields map[string]int `json:"missing_fields"`
	ClampedFields map[string]int `json:"clamped_fields"`
}

// Result summary
type Summary struct {
	Records          int     `json:"records"`
	TotalClicks      int64   `json:"total_clicks"`
	TotalImpressions int64   `json:"total_impressions"`
	OverallCTR       float64 `json:"overall_ctr"`
	AveragePosition  float64 `json:"average_position"`
}

// PresentationSpec tells the presenter which fields to plot.
type PresentationSpec struct {
	Mode    PresentationMode `json:"mode"`
	Mark    string           `json:"mark"`
	Title   string           `json:"title"`
	X       string           `json:"x,omitempty"`
	Y       string           `json:"y,omitempty"`
	XTitle  string           `json:"x_title,omitempty"`
	YTitle  string           `json:"y_title,omitempty"`
	Tooltip []string         `json:"tooltip"`
}

// Outcome is the user-visible result of one pipeline invocation.
type Outcome struct {
	ID           string                 `json:"result_id,omitempty"`
	Status       OutcomeStatus          `json:"status"`
	Message      string                 `json:"message,omitempty"`
	ErrorKind    string                 `json:"error_kind,omitempty"`
	Mode         ResolveMode            `json:"mode"`
	Request      *AnalyticsQueryRequest `json:"request,omitempty"`
	Records      []NormalizedRecord     `json:"-"`
	Displayed    []NormalizedRecord     `json:"records,omitempty"`
	TotalRecords int                    `json:"total_records"`
	Presentation *PresentationSpec      `json:"presentation,omitempty"`
	Summary      *Summary               `json:"summary,omitempty"`
	Quality      *QualityReport         `json:"quality,omitempty"`
	ExportURL    string                 `json:"export_url,omitempty"`
	CompletedAt  time.Time              `json:"completed_at"`
}

// Exportable reports whether a CSV export should be offered.
func (o *Outcome) Exportable() bool {
	return o.Status == StatusOK && len(o.Records) > 0
}

// API request/response structures
type QueryRequest struct {
	Question     string `json:"question"`
	SiteURL      string `json:"site_url"`
	Window       string `json:"window"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	Presentation string `json:"presentation"`
	DisplayLimit int    `json:"display_limit"`
}

type OptionsResponse struct {
	PresentationModes []PresentationMode `json:"presentation_modes"`
	Windows           []string           `json:"windows"`
	DisplayLimits     []int              `json:"display_limits"`
	DefaultSiteURL    string             `json:"default_site_url"`
	DefaultWindow     string             `json:"default_window"`
}
