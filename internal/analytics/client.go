// Package analytics queries the Search Console Search Analytics API.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/searchconsole/v1"

	"search-agent/internal/apperrors"
	"search-agent/internal/models"
)

// DefaultRowLimit is used when neither the caller nor the config sets one.
const DefaultRowLimit = 50

const dimensionQuery = "query"

type Options struct {
	// AccessToken is a ready OAuth bearer token. It wins over CredentialsJSON.
	AccessToken     string
	CredentialsJSON []byte
	Endpoint        string
	Timeout         time.Duration
	RowLimit        int
	// HTTPClient supplies the base transport. Authorization is layered on top.
	HTTPClient *http.Client
}

type Client struct {
	service  *searchconsole.Service
	timeout  time.Duration
	rowLimit int
	logger   *logrus.Logger
}

// New builds a client bound to one set of credentials.
func New(ctx context.Context, opts Options, logger *logrus.Logger) (*Client, error) {
	source, err := tokenSource(ctx, opts)
	if err != nil {
		return nil, err
	}

	base := opts.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	authed := &http.Client{
		Transport: &oauth2.Transport{Source: source, Base: transport},
		Timeout:   base.Timeout,
	}

	clientOpts := []option.ClientOption{option.WithHTTPClient(authed)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	service, err := searchconsole.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.KindCredential, "analytics.new", err, "failed to create Search Console service")
	}

	rowLimit := opts.RowLimit
	if rowLimit <= 0 {
		rowLimit = DefaultRowLimit
	}

	return &Client{
		service:  service,
		timeout:  opts.Timeout,
		rowLimit: rowLimit,
		logger:   logger,
	}, nil
}

func tokenSource(ctx context.Context, opts Options) (oauth2.TokenSource, error) {
	if token := strings.TrimSpace(opts.AccessToken); token != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}), nil
	}
	if len(opts.CredentialsJSON) > 0 {
		creds, err := google.CredentialsFromJSON(ctx, opts.CredentialsJSON, searchconsole.WebmastersReadonlyScope)
		if err != nil {
			return nil, apperrors.Wrapf(apperrors.KindCredential, "analytics.new", err, "service account credentials are invalid")
		}
		return creds.TokenSource, nil
	}
	return nil, apperrors.New(apperrors.KindCredential, "analytics.new", "analytics access token is missing")
}

// Query fetches per-query rows for req. rowLimit overrides the client limit when positive.
// Zero rows is not an error.
func (c *Client) Query(ctx context.Context, req *models.AnalyticsQueryRequest, rowLimit int) ([]models.AnalyticsRow, error) {
	if req == nil {
		return nil, apperrors.New(apperrors.KindValidation, "analytics.query", "request is missing")
	}
	if rowLimit <= 0 {
		rowLimit = c.rowLimit
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body := BuildRequest(req, rowLimit)

	start := time.Now()
	resp, err := c.service.Searchanalytics.Query(req.SiteURL, body).Context(ctx).Do()
	if err != nil {
		c.logger.WithError(err).WithField("site_url", req.SiteURL).Warn("Search Analytics query failed")
		return nil, classify(err)
	}

	rows := make([]models.AnalyticsRow, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		if row == nil {
			rows = append(rows, models.AnalyticsRow{})
			continue
		}
		rows = append(rows, convertRow(row))
	}

	c.logger.WithFields(logrus.Fields{
		"site_url":    req.SiteURL,
		"start_date":  req.StartDate,
		"end_date":    req.EndDate,
		"rows":        len(rows),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Search Analytics query finished")

	return rows, nil
}

// BuildRequest maps a validated request onto the API body.
func BuildRequest(req *models.AnalyticsQueryRequest, rowLimit int) *searchconsole.SearchAnalyticsQueryRequest {
	body := &searchconsole.SearchAnalyticsQueryRequest{
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Dimensions: []string{dimensionQuery},
		RowLimit:   int64(rowLimit),
	}
	if req.QueryFilter != "" {
		body.DimensionFilterGroups = []*searchconsole.ApiDimensionFilterGroup{{
			Filters: []*searchconsole.ApiDimensionFilter{{
				Dimension:  dimensionQuery,
				Operator:   "contains",
				Expression: req.QueryFilter,
			}},
		}}
	}
	return body
}

func convertRow(row *searchconsole.ApiDataRow) models.AnalyticsRow {
	clicks, impressions, ctr, position := row.Clicks, row.Impressions, row.Ctr, row.Position
	return models.AnalyticsRow{
		Keys:        row.Keys,
		Clicks:      &clicks,
		Impressions: &impressions,
		CTR:         &ctr,
		Position:    &position,
	}
}

func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests || hasReason(apiErr, "rateLimitExceeded", "quotaExceeded", "userRateLimitExceeded", "dailyLimitExceeded"):
			return apperrors.Wrapf(apperrors.KindQuota, "analytics.query", err, "Search Console quota exceeded")
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return apperrors.Wrapf(apperrors.KindAuth, "analytics.query", err, "Search Console rejected the credentials (%d)", apiErr.Code)
		case apiErr.Code >= 500:
			return apperrors.Wrapf(apperrors.KindNetwork, "analytics.query", err, "Search Console unavailable (%d)", apiErr.Code)
		default:
			return apperrors.Wrapf(apperrors.KindValidation, "analytics.query", err, "Search Console rejected the query: %s", apiErr.Message)
		}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return apperrors.Wrapf(apperrors.KindMalformedResponse, "analytics.query", err, "Search Console response could not be decoded")
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.Wrapf(apperrors.KindNetwork, "analytics.query", err, "Search Console request timed out")
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return apperrors.Wrapf(apperrors.KindAuth, "analytics.query", err, "failed to obtain an access token")
	}

	return apperrors.Wrapf(apperrors.KindNetwork, "analytics.query", err, "Search Console unreachable")
}

func hasReason(apiErr *googleapi.Error, reasons ...string) bool {
	for _, item := range apiErr.Errors {
		for _, reason := range reasons {
			if item.Reason == reason {
				return true
			}
		}
	}
	return false
}
