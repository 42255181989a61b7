package resolver

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"search-agent/internal/apperrors"
	"search-agent/internal/llm"
	"search-agent/internal/models"
)

// fakeCaller records the prompt and returns a canned completion.
type fakeCaller struct {
	completion *llm.Completion
	err        error
	calls      int
	prompt     string
	fn         llm.FunctionSpec
}

func (f *fakeCaller) CallFunction(ctx context.Context, prompt string, fn llm.FunctionSpec) (*llm.Completion, error) {
	f.calls++
	f.prompt = prompt
	f.fn = fn
	return f.completion, f.err
}

func directive(args string) *llm.Completion {
	return &llm.Completion{Directive: &models.FunctionCallDirective{
		Name:      models.QueryFunctionName,
		Arguments: args,
	}}
}

func newResolver(t *testing.T, caller FunctionCaller) *Resolver {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	r, err := New(caller, logger)
	require.NoError(t, err)
	return r
}

func defaults(mode models.ResolveMode) ResolveInput {
	return ResolveInput{
		Question:     "Which queries bring the most clicks?",
		DefaultSite:  "https://example.com/",
		DefaultStart: "2024-01-01",
		DefaultEnd:   "2024-01-31",
		Mode:         mode,
	}
}

func TestResolve_DirectReturnsRequestUnchanged(t *testing.T) {
	caller := &fakeCaller{}
	r := newResolver(t, caller)

	cases := []ResolveInput{
		defaults(models.ModeDirect),
		{DefaultSite: "sc-domain:example.org", DefaultStart: "2023-12-31", DefaultEnd: "2023-12-31", Mode: models.ModeDirect},
		{DefaultSite: "http://shop.example.net/blog/", DefaultStart: "2020-02-29", DefaultEnd: "2024-02-29", Mode: models.ModeDirect},
	}

	for _, in := range cases {
		res, err := r.Resolve(context.Background(), in)
		require.NoError(t, err)
		require.NotNil(t, res.Request)
		assert.Equal(t, models.AnalyticsQueryRequest{
			SiteURL:   in.DefaultSite,
			StartDate: in.DefaultStart,
			EndDate:   in.DefaultEnd,
		}, *res.Request)
		assert.Empty(t, res.Message)
	}
	assert.Zero(t, caller.calls, "direct mode must not call the model")
}

func TestResolve_DirectValidation(t *testing.T) {
	r := newResolver(t, nil)

	tests := []struct {
		name string
		in   ResolveInput
	}{
		{"start after end", ResolveInput{DefaultSite: "https://a.com", DefaultStart: "2024-02-01", DefaultEnd: "2024-01-01", Mode: models.ModeDirect}},
		{"bad date", ResolveInput{DefaultSite: "https://a.com", DefaultStart: "2024-13-01", DefaultEnd: "2024-12-01", Mode: models.ModeDirect}},
		{"empty site", ResolveInput{DefaultSite: "", DefaultStart: "2024-01-01", DefaultEnd: "2024-01-02", Mode: models.ModeDirect}},
		{"site without scheme", ResolveInput{DefaultSite: "example.com", DefaultStart: "2024-01-01", DefaultEnd: "2024-01-02", Mode: models.ModeDirect}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrValidation))
		})
	}
}

func TestResolve_AssistedUsesDirectiveArguments(t *testing.T) {
	caller := &fakeCaller{completion: directive(`{"site_url":"sc-domain:example.com","start_date":"2024-02-01","end_date":"2024-02-10","query_filter":"python"}`)}
	r := newResolver(t, caller)

	res, err := r.Resolve(context.Background(), defaults(models.ModeAssisted))
	require.NoError(t, err)

	assert.Equal(t, models.AnalyticsQueryRequest{
		SiteURL:     "sc-domain:example.com",
		StartDate:   "2024-02-01",
		EndDate:     "2024-02-10",
		QueryFilter: "python",
	}, *res.Request)

	assert.Equal(t, 1, caller.calls)
	assert.Equal(t, models.QueryFunctionName, caller.fn.Name)
	assert.Contains(t, caller.prompt, "https://example.com/")
	assert.Contains(t, caller.prompt, "2024-01-01 to 2024-01-31")
	assert.Contains(t, caller.prompt, "Which queries bring the most clicks?")
}

func TestResolve_AssistedBackfillsMissingArguments(t *testing.T) {
	caller := &fakeCaller{completion: directive(`{"site_url":"https://other.com/"}`)}
	r := newResolver(t, caller)

	res, err := r.Resolve(context.Background(), defaults(models.ModeAssisted))
	require.NoError(t, err)

	assert.Equal(t, "https://other.com/", res.Request.SiteURL)
	assert.Equal(t, "2024-01-01", res.Request.StartDate)
	assert.Equal(t, "2024-01-31", res.Request.EndDate)
	assert.Empty(t, res.Request.QueryFilter, "filter is never backfilled")
}

func TestResolve_AssistedBlankAndNullArguments(t *testing.T) {
	for _, args := range []string{"", "{}", `{"site_url":null,"query_filter":null}`, `{"start_date":"  "}`} {
		caller := &fakeCaller{completion: directive(args)}
		r := newResolver(t, caller)

		res, err := r.Resolve(context.Background(), defaults(models.ModeAssisted))
		require.NoError(t, err, args)
		assert.Equal(t, models.AnalyticsQueryRequest{
			SiteURL:   "https://example.com/",
			StartDate: "2024-01-01",
			EndDate:   "2024-01-31",
		}, *res.Request, args)
	}
}

func TestResolve_AssistedFreeTextIsInformational(t *testing.T) {
	caller := &fakeCaller{completion: &llm.Completion{Text: "Please ask about your search data."}}
	r := newResolver(t, caller)

	res, err := r.Resolve(context.Background(), defaults(models.ModeAssisted))
	require.NoError(t, err)
	assert.Nil(t, res.Request)
	assert.Equal(t, "Please ask about your search data.", res.Message)
}

func TestResolve_AssistedEmptyReply(t *testing.T) {
	caller := &fakeCaller{completion: &llm.Completion{}}
	r := newResolver(t, caller)

	res, err := r.Resolve(context.Background(), defaults(models.ModeAssisted))
	require.NoError(t, err)
	assert.Equal(t, NoDirectiveMessage, res.Message)
}

func TestResolve_AssistedMalformedDirective(t *testing.T) {
	tests := []struct {
		name string
		args string
	}{
		{"not json", `{"site_url": "https://a.com"`},
		{"python literal", `{'site_url': 'https://a.com'}`},
		{"wrong type", `{"start_date": 20240101}`},
		{"unknown argument", `{"site_url":"https://a.com","__import__":"os"}`},
		{"array", `["https://a.com"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResolver(t, &fakeCaller{completion: directive(tt.args)})
			_, err := r.Resolve(context.Background(), defaults(models.ModeAssisted))
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrDirective), err.Error())
		})
	}
}

func TestResolve_AssistedUnknownFunction(t *testing.T) {
	caller := &fakeCaller{completion: &llm.Completion{Directive: &models.FunctionCallDirective{Name: "delete_site", Arguments: "{}"}}}
	r := newResolver(t, caller)

	_, err := r.Resolve(context.Background(), defaults(models.ModeAssisted))
	assert.True(t, errors.Is(err, apperrors.ErrDirective))
}

func TestResolve_AssistedInvalidDatesFromModel(t *testing.T) {
	caller := &fakeCaller{completion: directive(`{"start_date":"2024-03-01","end_date":"2024-02-01"}`)}
	r := newResolver(t, caller)

	_, err := r.Resolve(context.Background(), defaults(models.ModeAssisted))
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestResolve_AssistedPropagatesCallerErrors(t *testing.T) {
	caller := &fakeCaller{err: apperrors.New(apperrors.KindQuota, "llm.call", "429")}
	r := newResolver(t, caller)

	_, err := r.Resolve(context.Background(), defaults(models.ModeAssisted))
	assert.True(t, errors.Is(err, apperrors.ErrQuota))
}

func TestResolve_AssistedWithoutModel(t *testing.T) {
	r := newResolver(t, nil)

	_, err := r.Resolve(context.Background(), defaults(models.ModeAssisted))
	assert.True(t, errors.Is(err, apperrors.ErrCredential))
}

func TestResolve_AssistedEmptyQuestion(t *testing.T) {
	caller := &fakeCaller{}
	r := newResolver(t, caller)
	in := defaults(models.ModeAssisted)
	in.Question = "   "

	_, err := r.Resolve(context.Background(), in)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
	assert.Zero(t, caller.calls)
}

func TestResolve_UnknownMode(t *testing.T) {
	r := newResolver(t, nil)
	in := defaults("magic")

	_, err := r.Resolve(context.Background(), in)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestValidateSite(t *testing.T) {
	valid := []string{"https://example.com", "http://example.com/path/", "sc-domain:example.com"}
	invalid := []string{"", "example.com", "ftp://example.com", "sc-domain:", "sc-domain:nodot", "https://"}

	for _, site := range valid {
		assert.NoError(t, ValidateSite(site), site)
	}
	for _, site := range invalid {
		assert.Error(t, ValidateSite(site), site)
	}
}

func TestNew_SharesCompiledSchema(t *testing.T) {
	first := newResolver(t, nil)
	second := newResolver(t, &fakeCaller{})

	require.NotNil(t, first.argsSchema)
	assert.Same(t, first.argsSchema, second.argsSchema)
}
