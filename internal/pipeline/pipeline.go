// Package pipeline runs one question through resolve, query, normalize and present.
package pipeline

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"search-agent/internal/analytics"
	"search-agent/internal/apperrors"
	"search-agent/internal/daterange"
	"search-agent/internal/llm"
	"search-agent/internal/metrics"
	"search-agent/internal/models"
	"search-agent/internal/presentation"
	"search-agent/internal/resolver"
	"search-agent/internal/services"
	"search-agent/internal/transformer"
)

// NoDataMessage is shown when the analytics service returns zero rows.
const NoDataMessage = "no data found"

// Credentials are supplied per invocation and never stored.
type Credentials struct {
	AnalyticsToken           string
	AnalyticsCredentialsJSON []byte
	LLMAPIKey                string
}

func (c Credentials) hasAnalytics() bool {
	return strings.TrimSpace(c.AnalyticsToken) != "" || len(c.AnalyticsCredentialsJSON) > 0
}

type Invocation struct {
	Question     string
	Site         string
	Window       string
	StartDate    string
	EndDate      string
	Mode         models.ResolveMode
	Presentation models.PresentationMode
	DisplayLimit int
	RowLimit     int
	Credentials  Credentials
}

// Querier is the analytics side of an invocation.
type Querier interface {
	Query(ctx context.Context, req *models.AnalyticsQueryRequest, rowLimit int) ([]models.AnalyticsRow, error)
}

type CallerFactory func(ctx context.Context, apiKey string) (resolver.FunctionCaller, error)

type QuerierFactory func(ctx context.Context, creds Credentials) (Querier, error)

// Factories build the external service handles for one invocation.
type Factories struct {
	NewCaller  CallerFactory
	NewQuerier QuerierFactory
}

// ServiceOptions configure the default factories.
type ServiceOptions struct {
	LLMBaseURL        string
	LLMModel          string
	LLMTimeout        time.Duration
	AnalyticsEndpoint string
	AnalyticsTimeout  time.Duration
	RowLimit          int
	HTTPClient        *http.Client
}

// DefaultFactories wire the OpenAI and Search Console clients.
func DefaultFactories(opts ServiceOptions, logger *logrus.Logger) Factories {
	return Factories{
		NewCaller: func(ctx context.Context, apiKey string) (resolver.FunctionCaller, error) {
			return llm.NewOpenAIClient(llm.Options{
				APIKey:     apiKey,
				BaseURL:    opts.LLMBaseURL,
				Model:      opts.LLMModel,
				Timeout:    opts.LLMTimeout,
				HTTPClient: opts.HTTPClient,
			}, logger)
		},
		NewQuerier: func(ctx context.Context, creds Credentials) (Querier, error) {
			return analytics.New(ctx, analytics.Options{
				AccessToken:     creds.AnalyticsToken,
				CredentialsJSON: creds.AnalyticsCredentialsJSON,
				Endpoint:        opts.AnalyticsEndpoint,
				Timeout:         opts.AnalyticsTimeout,
				RowLimit:        opts.RowLimit,
				HTTPClient:      opts.HTTPClient,
			}, logger)
		},
	}
}

type Pipeline struct {
	factories     Factories
	transformer   *transformer.Transformer
	calculator    *services.Calculator
	defaultWindow string
	now           func() time.Time
	logger        *logrus.Logger
}

func New(factories Factories, defaultWindow string, logger *logrus.Logger) *Pipeline {
	if defaultWindow == "" {
		defaultWindow = daterange.Last30Days
	}
	return &Pipeline{
		factories:     factories,
		transformer:   transformer.New(),
		calculator:    services.NewCalculator(),
		defaultWindow: defaultWindow,
		now:           time.Now,
		logger:        logger,
	}
}

// Run executes one invocation. Every failure becomes an error outcome; Run never panics on bad input.
func (p *Pipeline) Run(ctx context.Context, inv Invocation) *models.Outcome {
	start := time.Now()
	if inv.Mode == "" {
		inv.Mode = models.ModeDirect
	}

	log := p.logger.WithFields(logrus.Fields{
		"mode":         inv.Mode,
		"presentation": inv.Presentation,
	})

	outcome, err := p.run(ctx, inv, log)
	if err != nil {
		kind := apperrors.KindOf(err)
		var appErr *apperrors.Error
		retryable := errors.As(err, &appErr) && appErr.Retryable()
		log.WithError(err).WithFields(logrus.Fields{
			"error_kind": kind,
			"retryable":  retryable,
		}).Warn("Invocation failed")
		metrics.InvocationErrors.WithLabelValues(string(inv.Mode), string(kind)).Inc()
		outcome = &models.Outcome{
			Status:    models.StatusError,
			Message:   apperrors.UserMessage(err),
			ErrorKind: string(kind),
		}
	}

	outcome.Mode = inv.Mode
	outcome.CompletedAt = p.now().UTC()

	metrics.InvocationsTotal.WithLabelValues(string(inv.Mode), string(outcome.Status)).Inc()
	metrics.InvocationDuration.WithLabelValues(string(inv.Mode)).Observe(time.Since(start).Seconds())

	log.WithFields(logrus.Fields{
		"status":      outcome.Status,
		"records":     outcome.TotalRecords,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Invocation completed")

	return outcome
}

// selectWindow treats explicit dates without a window as custom. Dates only
// belong to the custom window.
func (p *Pipeline) selectWindow(inv Invocation) (string, error) {
	hasDates := strings.TrimSpace(inv.StartDate) != "" || strings.TrimSpace(inv.EndDate) != ""
	switch {
	case inv.Window == "" && hasDates:
		return daterange.Custom, nil
	case inv.Window == "":
		return p.defaultWindow, nil
	case hasDates && inv.Window != daterange.Custom:
		return "", apperrors.New(apperrors.KindValidation, "pipeline.window",
			"start and end dates require the "+daterange.Custom+" window, got "+inv.Window)
	}
	return inv.Window, nil
}

func (p *Pipeline) run(ctx context.Context, inv Invocation, log *logrus.Entry) (*models.Outcome, error) {
	if inv.Mode != models.ModeDirect && inv.Mode != models.ModeAssisted {
		return nil, apperrors.New(apperrors.KindValidation, "pipeline.run", "mode must be direct or assisted")
	}
	if inv.DisplayLimit < 0 {
		return nil, apperrors.New(apperrors.KindValidation, "pipeline.run", "display limit must not be negative")
	}
	if _, err := presentation.Select(inv.Presentation); err != nil {
		return nil, err
	}

	if !inv.Credentials.hasAnalytics() {
		return nil, apperrors.New(apperrors.KindCredential, "pipeline.credentials", "analytics access token is required")
	}
	if inv.Mode == models.ModeAssisted && strings.TrimSpace(inv.Credentials.LLMAPIKey) == "" {
		return nil, apperrors.New(apperrors.KindCredential, "pipeline.credentials", "language model API key is required in assisted mode")
	}

	window, err := p.selectWindow(inv)
	if err != nil {
		return nil, err
	}
	startDate, endDate, err := daterange.Resolve(window, p.now(), inv.StartDate, inv.EndDate)
	if err != nil {
		return nil, err
	}

	// Resolve
	var caller resolver.FunctionCaller
	if inv.Mode == models.ModeAssisted {
		caller, err = p.factories.NewCaller(ctx, inv.Credentials.LLMAPIKey)
		if err != nil {
			return nil, err
		}
	}
	res, err := resolver.New(caller, p.logger)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnknown, "pipeline.resolve", err)
	}

	resolveStart := time.Now()
	resolution, err := res.Resolve(ctx, resolver.ResolveInput{
		Question:     inv.Question,
		DefaultSite:  strings.TrimSpace(inv.Site),
		DefaultStart: startDate,
		DefaultEnd:   endDate,
		Mode:         inv.Mode,
	})
	if inv.Mode == models.ModeAssisted {
		metrics.ObserveCall("llm", resultLabel(err), resolveStart)
	}
	if err != nil {
		return nil, err
	}
	if resolution.Request == nil {
		log.Info("Model answered with text, analytics not queried")
		return &models.Outcome{Status: models.StatusInfo, Message: resolution.Message}, nil
	}
	req := resolution.Request

	// Query
	querier, err := p.factories.NewQuerier(ctx, inv.Credentials)
	if err != nil {
		return nil, err
	}
	queryStart := time.Now()
	rows, err := querier.Query(ctx, req, inv.RowLimit)
	metrics.ObserveCall("analytics", resultLabel(err), queryStart)
	if err != nil {
		return nil, err
	}
	metrics.RowsReturned.Observe(float64(len(rows)))

	if len(rows) == 0 {
		return &models.Outcome{Status: models.StatusEmpty, Message: NoDataMessage, Request: req}, nil
	}

	// Normalize
	records := p.transformer.NormalizeRows(rows)
	quality := p.transformer.QualityReport(rows)
	p.recordQuality(log, quality)

	// Present
	spec, err := presentation.Select(inv.Presentation)
	if err != nil {
		return nil, err
	}
	summary := p.calculator.Summarize(records)

	return &models.Outcome{
		Status:       models.StatusOK,
		Request:      req,
		Records:      records,
		Displayed:    p.calculator.TopN(records, inv.DisplayLimit),
		TotalRecords: len(records),
		Presentation: &spec,
		Summary:      &summary,
		Quality:      &quality,
	}, nil
}

func (p *Pipeline) recordQuality(log *logrus.Entry, quality models.QualityReport) {
	for field, count := range quality.MissingFields {
		metrics.DefaultedFields.WithLabelValues(field, "missing").Add(float64(count))
	}
	for field, count := range quality.ClampedFields {
		metrics.DefaultedFields.WithLabelValues(field, "clamped").Add(float64(count))
	}
	if quality.CompleteRows < quality.TotalRows {
		log.WithFields(logrus.Fields{
			"total_rows":     quality.TotalRows,
			"complete_rows":  quality.CompleteRows,
			"missing_fields": quality.MissingFields,
			"clamped_fields": quality.ClampedFields,
		}).Warn("Data quality issues detected")
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperrors.KindOf(err))
}
