package main

import (
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"search-agent/internal/commands"
	"search-agent/internal/daterange"
)

func main() {
	app := &cli.App{
		Name:  "search-agent",
		Usage: "ask questions about Search Console performance in plain language",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: commands.ServeAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "port", Usage: "listen port, overrides PORT"},
				},
			},
			{
				Name:      "ask",
				Usage:     "run one query and print the result",
				ArgsUsage: "[question]",
				Action:    commands.AskAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "site", Usage: "Search Console property, e.g. https://example.com/ or sc-domain:example.com"},
					&cli.StringFlag{Name: "window", Usage: "date window: " + strings.Join(daterange.Windows(), ", ")},
					&cli.StringFlag{Name: "start", Usage: "start date for the custom window (YYYY-MM-DD)"},
					&cli.StringFlag{Name: "end", Usage: "end date for the custom window (YYYY-MM-DD)"},
					&cli.BoolFlag{Name: "assisted", Usage: "let the language model turn the question into a query"},
					&cli.StringFlag{Name: "presentation", Value: "table", Usage: "table, bar-by-clicks, line-by-position or line-by-ctr"},
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "records to print, 0 for all"},
					&cli.StringFlag{Name: "csv", Usage: "also write every record to this CSV file"},
					&cli.StringFlag{Name: "analytics-token", EnvVars: []string{"ANALYTICS_ACCESS_TOKEN"}, Usage: "OAuth access token for Search Console"},
					&cli.StringFlag{Name: "llm-key", EnvVars: []string{"OPENAI_API_KEY"}, Usage: "language model API key"},
				},
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
