package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL    string
	outputFormat string
	timeout      time.Duration
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "forecastctl",
		Short:         "Query the SLA forecast engine",
		Long:          `Inspect service SLA forecasts, breach risk and mitigation recommendations served by the forecast engine.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if outputFormat != "text" && outputFormat != "json" {
				return fmt.Errorf("output must be text or json, got %q", outputFormat)
			}
			return nil
		},
	}

	defaultURL := os.Getenv("SLA_FORECAST_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultURL, "Forecast engine base URL")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(newServicesCmd(), newOutlookCmd(), newForecastCmd(), newHistoryCmd())
	return rootCmd
}

func client() *apiClient {
	return newAPIClient(serverURL, timeout)
}
