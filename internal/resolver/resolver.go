package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/xeipuuv/gojsonschema"

	"search-agent/internal/apperrors"
	"search-agent/internal/daterange"
	"search-agent/internal/llm"
	"search-agent/internal/models"
)

const promptTemplate = `You translate questions about Google Search Console performance into a call to %s.
Default property: %s
Default date range: %s to %s (YYYY-MM-DD).
Keep the defaults unless the question names another property or period.
Set query_filter only when the question is about search queries containing specific words.

Question: %s`

// NoDirectiveMessage is shown when the model answers with neither a call nor text.
const NoDirectiveMessage = "The model could not map this question to a search performance query."

// FunctionCaller is the language-model side of assisted resolution.
type FunctionCaller interface {
	CallFunction(ctx context.Context, prompt string, fn llm.FunctionSpec) (*llm.Completion, error)
}

type ResolveInput struct {
	Question     string
	DefaultSite  string
	DefaultStart string
	DefaultEnd   string
	Mode         models.ResolveMode
}

// Resolution carries either a request to run or a message to show, never both.
type Resolution struct {
	Request *models.AnalyticsQueryRequest
	Message string
}

type Resolver struct {
	caller     FunctionCaller
	argsSchema *gojsonschema.Schema
	logger     *logrus.Logger
}

var (
	compileOnce    sync.Once
	compiledSchema *gojsonschema.Schema
	compileErr     error
)

// directiveSchema compiles the argument schema on first use and shares it afterwards.
func directiveSchema() (*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiledSchema, compileErr = gojsonschema.NewSchema(gojsonschema.NewGoLoader(argumentsSchema()))
	})
	return compiledSchema, compileErr
}

// New builds a resolver. caller may be nil when only direct mode is used.
func New(caller FunctionCaller, logger *logrus.Logger) (*Resolver, error) {
	schema, err := directiveSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile directive schema: %w", err)
	}
	return &Resolver{
		caller:     caller,
		argsSchema: schema,
		logger:     logger,
	}, nil
}

// QueryFunction is the function declaration sent to the model.
func QueryFunction() llm.FunctionSpec {
	return llm.FunctionSpec{
		Name:        models.QueryFunctionName,
		Description: "Fetches clicks, impressions, CTR and average position per search query for a Search Console property",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"site_url": map[string]any{
					"type":        "string",
					"description": "Search Console property, e.g. https://example.com/ or sc-domain:example.com",
				},
				"start_date": map[string]any{
					"type":        "string",
					"description": "First day of the period, YYYY-MM-DD",
				},
				"end_date": map[string]any{
					"type":        "string",
					"description": "Last day of the period, YYYY-MM-DD",
				},
				"query_filter": map[string]any{
					"type":        "string",
					"description": "Only include search queries containing this text",
				},
			},
			"required": []string{"site_url", "start_date", "end_date"},
		},
	}
}

// argumentsSchema is what a returned directive must satisfy. Every argument
// may be missing or null since missing ones are backfilled.
func argumentsSchema() map[string]interface{} {
	optionalString := map[string]interface{}{"type": []string{"string", "null"}}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"site_url":     optionalString,
			"start_date":   optionalString,
			"end_date":     optionalString,
			"query_filter": optionalString,
		},
		"additionalProperties": false,
	}
}

func (r *Resolver) Resolve(ctx context.Context, in ResolveInput) (*Resolution, error) {
	switch in.Mode {
	case models.ModeDirect:
		return r.resolveDirect(in)
	case models.ModeAssisted:
		return r.resolveAssisted(ctx, in)
	default:
		return nil, apperrors.New(apperrors.KindValidation, "resolver.resolve",
			fmt.Sprintf("unknown resolve mode %q", in.Mode))
	}
}

func (r *Resolver) resolveDirect(in ResolveInput) (*Resolution, error) {
	req := &models.AnalyticsQueryRequest{
		SiteURL:   in.DefaultSite,
		StartDate: in.DefaultStart,
		EndDate:   in.DefaultEnd,
	}
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	return &Resolution{Request: req}, nil
}

func (r *Resolver) resolveAssisted(ctx context.Context, in ResolveInput) (*Resolution, error) {
	if r.caller == nil {
		return nil, apperrors.New(apperrors.KindCredential, "resolver.assisted", "language model is not configured")
	}
	if strings.TrimSpace(in.Question) == "" {
		return nil, apperrors.New(apperrors.KindValidation, "resolver.assisted", "question is empty")
	}

	prompt := fmt.Sprintf(promptTemplate, models.QueryFunctionName,
		in.DefaultSite, in.DefaultStart, in.DefaultEnd, strings.TrimSpace(in.Question))

	completion, err := r.caller.CallFunction(ctx, prompt, QueryFunction())
	if err != nil {
		return nil, err
	}

	if completion.Directive == nil {
		message := completion.Text
		if strings.TrimSpace(message) == "" {
			message = NoDirectiveMessage
		}
		r.logger.WithField("chars", len(message)).Info("Model replied without a function call")
		return &Resolution{Message: message}, nil
	}

	directive := completion.Directive
	if directive.Name != models.QueryFunctionName {
		return nil, apperrors.New(apperrors.KindDirective, "resolver.assisted",
			fmt.Sprintf("model called unknown function %q", directive.Name))
	}

	args, err := r.ParseArguments(directive.Arguments)
	if err != nil {
		r.logger.WithError(err).Warn("Rejected malformed directive")
		return nil, err
	}

	req := Backfill(args, in)
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"site_url":   req.SiteURL,
		"start_date": req.StartDate,
		"end_date":   req.EndDate,
		"has_filter": req.QueryFilter != "",
	}).Info("Resolved directive")

	return &Resolution{Request: req}, nil
}

// ParseArguments decodes raw directive arguments after checking them against the schema.
// Blank arguments count as an empty object.
func (r *Resolver) ParseArguments(raw string) (models.DirectiveArguments, error) {
	var args models.DirectiveArguments

	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}

	result, err := r.argsSchema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return args, apperrors.Wrapf(apperrors.KindDirective, "resolver.parse", err, "arguments are not valid JSON")
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return args, apperrors.New(apperrors.KindDirective, "resolver.parse",
			fmt.Sprintf("arguments do not match schema: %s", strings.Join(errs, "; ")))
	}

	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return args, apperrors.Wrapf(apperrors.KindDirective, "resolver.parse", err, "arguments could not be decoded")
	}
	return args, nil
}

// Backfill fills missing site and dates from the caller defaults. The query
// filter is never backfilled.
func Backfill(args models.DirectiveArguments, in ResolveInput) *models.AnalyticsQueryRequest {
	return &models.AnalyticsQueryRequest{
		SiteURL:     orDefault(args.SiteURL, in.DefaultSite),
		StartDate:   orDefault(args.StartDate, in.DefaultStart),
		EndDate:     orDefault(args.EndDate, in.DefaultEnd),
		QueryFilter: orDefault(args.QueryFilter, ""),
	}
}

func orDefault(value *string, fallback string) string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return fallback
	}
	return strings.TrimSpace(*value)
}

// ValidateRequest enforces the request invariants: a usable site and an ordered date range.
func ValidateRequest(req *models.AnalyticsQueryRequest) error {
	if req == nil {
		return apperrors.New(apperrors.KindValidation, "resolver.validate", "request is missing")
	}
	if err := ValidateSite(req.SiteURL); err != nil {
		return err
	}
	return daterange.ValidateRange(req.StartDate, req.EndDate)
}

// ValidateSite accepts http(s) URL properties and sc-domain: domain properties.
func ValidateSite(site string) error {
	site = strings.TrimSpace(site)
	if site == "" {
		return apperrors.New(apperrors.KindValidation, "resolver.validate", "site is empty")
	}

	if domain, ok := strings.CutPrefix(site, "sc-domain:"); ok {
		if domain == "" || strings.ContainsAny(domain, "/ ") || !strings.Contains(domain, ".") {
			return apperrors.New(apperrors.KindValidation, "resolver.validate",
				fmt.Sprintf("invalid domain property %q", site))
		}
		return nil
	}

	u, err := url.Parse(site)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperrors.New(apperrors.KindValidation, "resolver.validate",
			fmt.Sprintf("site %q must be an http(s) URL or sc-domain: property", site))
	}
	return nil
}
