package pipeline

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"search-agent/internal/apperrors"
	"search-agent/internal/llm"
	"search-agent/internal/models"
	"search-agent/internal/resolver"
)

type fakeCaller struct {
	completion *llm.Completion
	err        error
}

func (f *fakeCaller) CallFunction(ctx context.Context, prompt string, fn llm.FunctionSpec) (*llm.Completion, error) {
	return f.completion, f.err
}

type fakeQuerier struct {
	rows     []models.AnalyticsRow
	err      error
	calls    int
	request  *models.AnalyticsQueryRequest
	rowLimit int
}

func (f *fakeQuerier) Query(ctx context.Context, req *models.AnalyticsQueryRequest, rowLimit int) ([]models.AnalyticsRow, error) {
	f.calls++
	f.request = req
	f.rowLimit = rowLimit
	return f.rows, f.err
}

type harness struct {
	pipeline    *Pipeline
	caller      *fakeCaller
	querier     *fakeQuerier
	callerKeys  []string
	querierMade int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	h := &harness{caller: &fakeCaller{}, querier: &fakeQuerier{}}
	factories := Factories{
		NewCaller: func(ctx context.Context, apiKey string) (resolver.FunctionCaller, error) {
			h.callerKeys = append(h.callerKeys, apiKey)
			return h.caller, nil
		},
		NewQuerier: func(ctx context.Context, creds Credentials) (Querier, error) {
			h.querierMade++
			return h.querier, nil
		},
	}
	h.pipeline = New(factories, "", logger)
	h.pipeline.now = func() time.Time { return time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC) }
	return h
}

func f(v float64) *float64 { return &v }

func row(query string, clicks, impressions, ctr, position float64) models.AnalyticsRow {
	return models.AnalyticsRow{Keys: []string{query}, Clicks: f(clicks), Impressions: f(impressions), CTR: f(ctr), Position: f(position)}
}

func directInvocation() Invocation {
	return Invocation{
		Site:        "https://example.com/",
		Window:      "custom",
		StartDate:   "2024-01-01",
		EndDate:     "2024-01-31",
		Mode:        models.ModeDirect,
		Credentials: Credentials{AnalyticsToken: "token"},
	}
}

func TestRun_DirectSuccess(t *testing.T) {
	h := newHarness(t)
	h.querier.rows = []models.AnalyticsRow{
		row("python tutorial", 40, 2000, 0.02, 8.333),
		row("go tutorial", 10, 1000, 0.01, 4),
		row("rust tutorial", 5, 0, 0, 20),
	}

	inv := directInvocation()
	inv.Presentation = models.PresentationBarByClicks
	inv.DisplayLimit = 2
	inv.RowLimit = 100

	outcome := h.pipeline.Run(context.Background(), inv)

	require.Equal(t, models.StatusOK, outcome.Status, outcome.Message)
	assert.Equal(t, models.ModeDirect, outcome.Mode)
	assert.Equal(t, &models.AnalyticsQueryRequest{SiteURL: "https://example.com/", StartDate: "2024-01-01", EndDate: "2024-01-31"}, outcome.Request)
	assert.Equal(t, 100, h.querier.rowLimit)
	assert.Empty(t, h.callerKeys, "direct mode never builds a model client")

	require.Len(t, outcome.Records, 3)
	assert.Equal(t, models.NormalizedRecord{Query: "python tutorial", Clicks: 40, Impressions: 2000, CTR: 2.00, Position: 8.3}, outcome.Records[0])
	assert.Len(t, outcome.Displayed, 2)
	assert.Equal(t, 3, outcome.TotalRecords)
	assert.True(t, outcome.Exportable())

	require.NotNil(t, outcome.Presentation)
	assert.Equal(t, "bar", outcome.Presentation.Mark)
	assert.Equal(t, "clicks", outcome.Presentation.Y)

	require.NotNil(t, outcome.Summary)
	assert.Equal(t, int64(55), outcome.Summary.TotalClicks)
	assert.Equal(t, int64(3000), outcome.Summary.TotalImpressions)
	assert.Equal(t, 1.83, outcome.Summary.OverallCTR)

	require.NotNil(t, outcome.Quality)
	assert.Equal(t, 3, outcome.Quality.TotalRows)
	assert.Equal(t, time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC), outcome.CompletedAt)
}

func TestRun_DefaultWindow(t *testing.T) {
	h := newHarness(t)
	h.querier.rows = []models.AnalyticsRow{row("a", 1, 1, 1, 1)}

	inv := directInvocation()
	inv.Window = ""
	inv.StartDate, inv.EndDate = "", ""

	outcome := h.pipeline.Run(context.Background(), inv)
	require.Equal(t, models.StatusOK, outcome.Status, outcome.Message)
	assert.Equal(t, "2024-02-14", h.querier.request.StartDate)
	assert.Equal(t, "2024-03-15", h.querier.request.EndDate)
}

func TestRun_DatesWithoutWindowAreCustom(t *testing.T) {
	h := newHarness(t)
	h.querier.rows = []models.AnalyticsRow{row("a", 1, 1, 1, 1)}

	inv := directInvocation()
	inv.Window = ""

	outcome := h.pipeline.Run(context.Background(), inv)
	require.Equal(t, models.StatusOK, outcome.Status, outcome.Message)
	assert.Equal(t, "2024-01-01", h.querier.request.StartDate)
	assert.Equal(t, "2024-01-31", h.querier.request.EndDate)
}

func TestRun_HalfDateRangeWithoutWindow(t *testing.T) {
	h := newHarness(t)

	inv := directInvocation()
	inv.Window = ""
	inv.EndDate = ""

	outcome := h.pipeline.Run(context.Background(), inv)
	assert.Equal(t, models.StatusError, outcome.Status)
	assert.Equal(t, string(apperrors.KindValidation), outcome.ErrorKind)
	assert.Zero(t, h.querier.calls)
}

func TestRun_ZeroRowsIsEmpty(t *testing.T) {
	h := newHarness(t)

	outcome := h.pipeline.Run(context.Background(), directInvocation())

	assert.Equal(t, models.StatusEmpty, outcome.Status)
	assert.Equal(t, NoDataMessage, outcome.Message)
	assert.Empty(t, outcome.Records)
	assert.False(t, outcome.Exportable())
	assert.Equal(t, 1, h.querier.calls)
}

func TestRun_AssistedFreeTextSkipsAnalytics(t *testing.T) {
	h := newHarness(t)
	h.caller.completion = &llm.Completion{Text: "I only know about search performance."}

	inv := directInvocation()
	inv.Mode = models.ModeAssisted
	inv.Question = "What's the weather?"
	inv.Credentials.LLMAPIKey = "sk-test"

	outcome := h.pipeline.Run(context.Background(), inv)

	assert.Equal(t, models.StatusInfo, outcome.Status)
	assert.Equal(t, "I only know about search performance.", outcome.Message)
	assert.Equal(t, []string{"sk-test"}, h.callerKeys)
	assert.Zero(t, h.querierMade)
	assert.Zero(t, h.querier.calls)
}

func TestRun_AssistedDirective(t *testing.T) {
	h := newHarness(t)
	h.caller.completion = &llm.Completion{Directive: &models.FunctionCallDirective{
		Name:      models.QueryFunctionName,
		Arguments: `{"site_url":"https://example.com/","query_filter":"python"}`,
	}}
	h.querier.rows = []models.AnalyticsRow{row("python tutorial", 40, 2000, 0.02, 8.333)}

	inv := directInvocation()
	inv.Mode = models.ModeAssisted
	inv.Question = "How do python queries perform?"
	inv.Credentials.LLMAPIKey = "sk-test"

	outcome := h.pipeline.Run(context.Background(), inv)

	require.Equal(t, models.StatusOK, outcome.Status, outcome.Message)
	assert.Equal(t, "python", h.querier.request.QueryFilter)
	assert.Equal(t, "2024-01-01", h.querier.request.StartDate)
	assert.Equal(t, "2024-01-31", h.querier.request.EndDate)
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(h *harness, inv *Invocation)
		kind   apperrors.Kind
	}{
		{
			name:   "missing analytics token",
			mutate: func(h *harness, inv *Invocation) { inv.Credentials.AnalyticsToken = "" },
			kind:   apperrors.KindCredential,
		},
		{
			name: "assisted without model key",
			mutate: func(h *harness, inv *Invocation) {
				inv.Mode = models.ModeAssisted
				inv.Question = "top queries"
			},
			kind: apperrors.KindCredential,
		},
		{
			name:   "unknown presentation",
			mutate: func(h *harness, inv *Invocation) { inv.Presentation = "pie" },
			kind:   apperrors.KindValidation,
		},
		{
			name:   "unknown mode",
			mutate: func(h *harness, inv *Invocation) { inv.Mode = "auto" },
			kind:   apperrors.KindValidation,
		},
		{
			name:   "reversed dates",
			mutate: func(h *harness, inv *Invocation) { inv.StartDate, inv.EndDate = "2024-02-01", "2024-01-01" },
			kind:   apperrors.KindValidation,
		},
		{
			name:   "bad site",
			mutate: func(h *harness, inv *Invocation) { inv.Site = "example.com" },
			kind:   apperrors.KindValidation,
		},
		{
			name:   "dates with a named window",
			mutate: func(h *harness, inv *Invocation) { inv.Window = "last_7_days" },
			kind:   apperrors.KindValidation,
		},
		{
			name:   "negative display limit",
			mutate: func(h *harness, inv *Invocation) { inv.DisplayLimit = -1 },
			kind:   apperrors.KindValidation,
		},
		{
			name: "analytics auth failure",
			mutate: func(h *harness, inv *Invocation) {
				h.querier.err = apperrors.New(apperrors.KindAuth, "analytics.query", "401")
			},
			kind: apperrors.KindAuth,
		},
		{
			name: "analytics quota",
			mutate: func(h *harness, inv *Invocation) {
				h.querier.err = apperrors.New(apperrors.KindQuota, "analytics.query", "429")
			},
			kind: apperrors.KindQuota,
		},
		{
			name: "malformed directive",
			mutate: func(h *harness, inv *Invocation) {
				inv.Mode = models.ModeAssisted
				inv.Question = "top queries"
				inv.Credentials.LLMAPIKey = "sk-test"
				h.caller.completion = &llm.Completion{Directive: &models.FunctionCallDirective{
					Name:      models.QueryFunctionName,
					Arguments: `{"site_url": `,
				}}
			},
			kind: apperrors.KindDirective,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.querier.rows = []models.AnalyticsRow{row("a", 1, 1, 1, 1)}
			inv := directInvocation()
			tt.mutate(h, &inv)

			outcome := h.pipeline.Run(context.Background(), inv)

			assert.Equal(t, models.StatusError, outcome.Status)
			assert.Equal(t, string(tt.kind), outcome.ErrorKind)
			assert.NotEmpty(t, outcome.Message)
			assert.Nil(t, outcome.Records)
			assert.False(t, outcome.Exportable())
		})
	}
}

func TestRun_LogsWhetherFailureIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "network", err: apperrors.New(apperrors.KindNetwork, "analytics.query", "connection reset"), retryable: true},
		{name: "quota", err: apperrors.New(apperrors.KindQuota, "analytics.query", "429"), retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			logger, hook := logtest.NewNullLogger()
			h.pipeline.logger = logger
			h.querier.err = tt.err

			h.pipeline.Run(context.Background(), directInvocation())

			var failed *logrus.Entry
			for _, entry := range hook.AllEntries() {
				if entry.Message == "Invocation failed" {
					failed = entry
				}
			}
			require.NotNil(t, failed)
			assert.Equal(t, tt.retryable, failed.Data["retryable"])
		})
	}
}

func TestRun_CredentialErrorsHappenBeforeAnyCall(t *testing.T) {
	h := newHarness(t)
	inv := directInvocation()
	inv.Credentials = Credentials{}

	h.pipeline.Run(context.Background(), inv)

	assert.Zero(t, h.querierMade)
	assert.Empty(t, h.callerKeys)
}

func TestRun_ServiceAccountCredentialsAccepted(t *testing.T) {
	h := newHarness(t)
	h.querier.rows = []models.AnalyticsRow{row("a", 1, 1, 1, 1)}
	inv := directInvocation()
	inv.Credentials = Credentials{AnalyticsCredentialsJSON: []byte(`{"type":"service_account"}`)}

	outcome := h.pipeline.Run(context.Background(), inv)
	assert.Equal(t, models.StatusOK, outcome.Status, outcome.Message)
}
