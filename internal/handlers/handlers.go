package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"search-agent/internal/config"
	"search-agent/internal/daterange"
	"search-agent/internal/export"
	"search-agent/internal/models"
	"search-agent/internal/pipeline"
	"search-agent/internal/presentation"
	"search-agent/internal/storage"
)

const (
	HeaderAnalyticsToken = "X-Analytics-Token"
	HeaderLLMAPIKey      = "X-LLM-API-Key"
)

// DisplayLimits are the choices offered by the top-N selector. 0 shows every record.
var DisplayLimits = []int{10, 20, 50, 100, 0}

// Runner executes one pipeline invocation.
type Runner interface {
	Run(ctx context.Context, inv pipeline.Invocation) *models.Outcome
}

type Handler struct {
	config   *config.Config
	runner   Runner
	store    storage.ResultStore
	exporter *export.Exporter
	fallback pipeline.Credentials
	logger   *logrus.Logger
}

// New builds the HTTP handlers. fallback credentials are used when a request carries none.
func New(cfg *config.Config, runner Runner, store storage.ResultStore, exporter *export.Exporter,
	fallback pipeline.Credentials, logger *logrus.Logger) *Handler {
	return &Handler{
		config:   cfg,
		runner:   runner,
		store:    store,
		exporter: exporter,
		fallback: fallback,
		logger:   logger,
	}
}

// Register mounts every route on router.
func (h *Handler) Register(router gin.IRouter) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/readyz", h.ReadinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.GET("/options", h.GetOptions)
	api.POST("/query/direct", h.QueryDirect)
	api.POST("/query/assisted", h.QueryAssisted)
	api.GET("/results/:id", h.GetResult)
	api.GET("/results/:id/export.csv", h.ExportCSV)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"service":   "search-agent",
	})
}

func (h *Handler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.WithError(err).Warn("Result store not reachable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"message": "Result store not reachable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *Handler) GetOptions(c *gin.Context) {
	c.JSON(http.StatusOK, models.OptionsResponse{
		PresentationModes: presentation.Modes(),
		Windows:           daterange.Windows(),
		DisplayLimits:     DisplayLimits,
		DefaultSiteURL:    h.config.DefaultSiteURL,
		DefaultWindow:     h.config.DefaultWindow,
	})
}

func (h *Handler) QueryDirect(c *gin.Context) {
	h.query(c, models.ModeDirect)
}

func (h *Handler) QueryAssisted(c *gin.Context) {
	h.query(c, models.ModeAssisted)
}

func (h *Handler) query(c *gin.Context, mode models.ResolveMode) {
	var req models.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	site := strings.TrimSpace(req.SiteURL)
	if site == "" {
		site = h.config.DefaultSiteURL
	}

	outcome := h.runner.Run(c.Request.Context(), pipeline.Invocation{
		Question:     req.Question,
		Site:         site,
		Window:       req.Window,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		Mode:         mode,
		Presentation: models.PresentationMode(req.Presentation),
		DisplayLimit: req.DisplayLimit,
		RowLimit:     h.config.AnalyticsRowLimit,
		Credentials:  h.credentials(c),
	})

	if outcome.Exportable() {
		id, err := h.store.Save(c.Request.Context(), outcome)
		if err != nil {
			h.logger.WithError(err).WithField("request_id", RequestIDFrom(c)).Warn("Failed to store result, export disabled")
		} else {
			outcome.ID = id
			outcome.ExportURL = fmt.Sprintf("/api/results/%s/export.csv", id)
		}
	}

	c.JSON(http.StatusOK, outcome)
}

// credentials prefers request headers over configured ones. Headers are never logged.
func (h *Handler) credentials(c *gin.Context) pipeline.Credentials {
	creds := h.fallback
	if token := strings.TrimSpace(c.GetHeader(HeaderAnalyticsToken)); token != "" {
		creds.AnalyticsToken = token
		creds.AnalyticsCredentialsJSON = nil
	}
	if key := strings.TrimSpace(c.GetHeader(HeaderLLMAPIKey)); key != "" {
		creds.LLMAPIKey = key
	}
	return creds
}

func (h *Handler) GetResult(c *gin.Context) {
	outcome, ok := h.loadResult(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (h *Handler) ExportCSV(c *gin.Context) {
	outcome, ok := h.loadResult(c)
	if !ok {
		return
	}

	body, signature, err := h.exporter.Encode(outcome.Records)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export data"})
		return
	}

	if signature != "" {
		c.Header(export.SignatureHeader, signature)
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename(outcome)))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", body)
}

func (h *Handler) loadResult(c *gin.Context) (*models.Outcome, bool) {
	outcome, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Result not found or expired"})
		return nil, false
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to load result")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load result"})
		return nil, false
	}
	return outcome, true
}

func filename(outcome *models.Outcome) string {
	if outcome.Request == nil {
		return "search-console.csv"
	}
	return fmt.Sprintf("search-console-%s-%s.csv", outcome.Request.StartDate, outcome.Request.EndDate)
}
