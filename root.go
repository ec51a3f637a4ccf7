package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command of the harvester.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "email-harvester",
		Short: "Collect email addresses from websites and Google Maps listings",
		Long: `email-harvester fetches web pages, optionally renders them in headless Chrome,
and collects every email address it finds.

Targets come from a single URL, a file of URLs (.txt, .csv, .xlsx, .docx),
or a sheet of Google Maps listings whose business websites are resolved first.
Results are written as .csv, .xlsx or .json.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "", "Configuration file path (default: ./config.yaml)")
	cmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().String("log-type", "text", "Log format: text or json")

	cmd.AddCommand(NewScrapeCmd())
	cmd.AddCommand(NewBatchCmd())
	cmd.AddCommand(NewMapsCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}
