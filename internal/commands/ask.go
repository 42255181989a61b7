package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"search-agent/internal/export"
	"search-agent/internal/models"
	"search-agent/internal/pipeline"
)

func AskAction(c *cli.Context) error {
	app, err := Bootstrap()
	if err != nil {
		return err
	}

	mode := models.ModeDirect
	if c.Bool("assisted") {
		mode = models.ModeAssisted
	}

	creds := app.Fallback
	if token := c.String("analytics-token"); token != "" {
		creds.AnalyticsToken = token
		creds.AnalyticsCredentialsJSON = nil
	}
	if key := c.String("llm-key"); key != "" {
		creds.LLMAPIKey = key
	}

	site := c.String("site")
	if site == "" {
		site = app.Config.DefaultSiteURL
	}

	outcome := app.Pipeline.Run(c.Context, pipeline.Invocation{
		Question:     strings.Join(c.Args().Slice(), " "),
		Site:         site,
		Window:       c.String("window"),
		StartDate:    c.String("start"),
		EndDate:      c.String("end"),
		Mode:         mode,
		Presentation: models.PresentationMode(c.String("presentation")),
		DisplayLimit: c.Int("limit"),
		RowLimit:     app.Config.AnalyticsRowLimit,
		Credentials:  creds,
	})

	out := c.App.Writer
	if err := PrintOutcome(out, outcome); err != nil {
		return err
	}

	if path := c.String("csv"); path != "" && outcome.Exportable() {
		if err := writeCSVFile(app.Exporter, path, outcome.Records); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nwrote %d records to %s\n", len(outcome.Records), path)
	}
	return nil
}

// PrintOutcome renders an outcome for a terminal. Non-ok outcomes print their message only.
func PrintOutcome(w io.Writer, outcome *models.Outcome) error {
	switch outcome.Status {
	case models.StatusOK:
	case models.StatusError:
		_, err := fmt.Fprintf(w, "error (%s): %s\n", outcome.ErrorKind, outcome.Message)
		return err
	default:
		_, err := fmt.Fprintln(w, outcome.Message)
		return err
	}

	if req := outcome.Request; req != nil {
		fmt.Fprintf(w, "%s  %s..%s", req.SiteURL, req.StartDate, req.EndDate)
		if req.QueryFilter != "" {
			fmt.Fprintf(w, "  query contains %q", req.QueryFilter)
		}
		fmt.Fprintln(w)
	}
	if outcome.Presentation != nil {
		fmt.Fprintf(w, "%s\n\n", outcome.Presentation.Title)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, strings.Join(export.Header, "\t")+"\t")
	for _, r := range outcome.Displayed {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%.1f\t\n", r.Query, r.Clicks, r.Impressions, r.CTR, r.Position)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if s := outcome.Summary; s != nil {
		fmt.Fprintf(w, "\nshowing %d of %d records, clicks %d, impressions %d, ctr %.2f%%, avg position %.1f\n",
			len(outcome.Displayed), outcome.TotalRecords, s.TotalClicks, s.TotalImpressions, s.OverallCTR, s.AveragePosition)
	}
	return nil
}

func writeCSVFile(exporter *export.Exporter, path string, records []models.NormalizedRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv file: %w", err)
	}
	if err := exporter.WriteCSV(file, records); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
