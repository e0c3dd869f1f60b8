package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-forecast/internal/models"
	"github.com/miradorstack/mirador-forecast/internal/patterns"
	"github.com/miradorstack/mirador-forecast/internal/repo"
)

func newServicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List monitored services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := client().services(cmd.Context())
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return writeJSON(cmd.OutOrStdout(), svcs)
			}
			renderServices(cmd.OutOrStdout(), svcs)
			return nil
		},
	}
}

func newOutlookCmd() *cobra.Command {
	var params outlookParams
	cmd := &cobra.Command{
		Use:   "outlook <service-id>",
		Short: "Show forecast, breach risk and recommendations for a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outlook, err := client().outlook(cmd.Context(), args[0], params)
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return writeJSON(cmd.OutOrStdout(), outlook)
			}
			renderOutlook(cmd.OutOrStdout(), outlook)
			return nil
		},
	}
	cmd.Flags().IntVar(&params.horizon, "horizon", 0, "Forecast horizon in days (engine default when 0)")
	cmd.Flags().Float64Var(&params.decay, "decay", 0, "Daily confidence decay rate (engine default when 0)")
	cmd.Flags().BoolVar(&params.alerts, "alerts", true, "Include the breach alert text")
	return cmd
}

func newForecastCmd() *cobra.Command {
	var (
		horizon int
		decay   float64
		metric  string
	)
	cmd := &cobra.Command{
		Use:   "forecast <service-id>",
		Short: "Forecast one metric series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := models.ParseMetric(metric)
			if err != nil {
				return err
			}
			forecast, err := client().forecast(cmd.Context(), args[0], m, horizon, decay)
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return writeJSON(cmd.OutOrStdout(), forecast)
			}
			renderForecast(cmd.OutOrStdout(), forecast)
			return nil
		},
	}
	cmd.Flags().IntVar(&horizon, "horizon", 0, "Forecast horizon in days")
	cmd.Flags().Float64Var(&decay, "decay", 0, "Daily confidence decay rate")
	cmd.Flags().StringVar(&metric, "metric", "sla_percent", "Metric: sla_percent, response_time")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var (
		dsn   string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history <service-id>",
		Short: "List persisted assessments from PostgreSQL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				return fmt.Errorf("--dsn or SLA_FORECAST_POSTGRES_DSN is required")
			}
			history, err := repo.NewPostgresHistory(dsn)
			if err != nil {
				return err
			}
			defer history.Close()

			records, err := history.ListAssessments(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			outlooks := make([]models.ServiceOutlook, 0, len(records))
			for _, rec := range records {
				outlooks = append(outlooks, rec.Outlook)
			}
			drivers, err := patterns.NewMiner(nil, nil).Mine(cmd.Context(), args[0], outlooks)
			if err != nil {
				return err
			}

			if outputFormat == "json" {
				return writeJSON(cmd.OutOrStdout(), historyOutput{Assessments: records, Drivers: drivers})
			}
			renderHistory(cmd.OutOrStdout(), args[0], records)
			renderDrivers(cmd.OutOrStdout(), drivers)
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", os.Getenv("SLA_FORECAST_POSTGRES_DSN"), "PostgreSQL connection string")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of assessments to show")
	return cmd
}

type historyOutput struct {
	Assessments []repo.AssessmentRecord `json:"assessments"`
	Drivers     []models.DriverPattern  `json:"drivers"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderServices(w io.Writer, svcs []models.Service) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSLA TARGET\tRISK FACTORS")
	for _, svc := range svcs {
		fmt.Fprintf(tw, "%s\t%s\t%.1f%%\t%d\n", svc.ID, svc.Name, svc.SLATarget, len(svc.RiskFactors))
	}
	tw.Flush()
}

func renderForecast(w io.Writer, f models.Forecast) {
	fmt.Fprintf(w, "%s %s forecast, %d day horizon\n", f.ServiceID, f.Metric, f.HorizonDays)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tPREDICTED\tCONFIDENCE")
	for _, p := range f.Points {
		fmt.Fprintf(tw, "+%d\t%.2f\t%.0f%%\n", p.OffsetDays, p.PredictedValue, p.Confidence*100)
	}
	tw.Flush()
}

func renderOutlook(w io.Writer, o models.ServiceOutlook) {
	fmt.Fprintf(w, "%s (%s), target %.1f%%\n", o.Service.Name, o.Service.ID, o.Service.SLATarget)
	fmt.Fprintf(w, "Risk tier:         %s\n", o.Assessment.Tier)
	fmt.Fprintf(w, "Breach likelihood: %d%%\n", o.Assessment.BreachProbabilityPct)
	if o.Assessment.HasBreach() {
		fmt.Fprintf(w, "First breach:      day +%d\n", o.Assessment.FirstBreachOffsetDays)
	} else {
		fmt.Fprintln(w, "First breach:      none forecast")
	}
	fmt.Fprintf(w, "Confidence:        %.0f%% (%s)\n", o.Insights.HeadlineConfidence*100, o.Insights.ConfidenceBand)
	if o.Insights.Alert != "" {
		fmt.Fprintf(w, "ALERT: %s\n", o.Insights.Alert)
	}

	flagged := 0
	for _, a := range o.Anomalies {
		if a.IsAnomaly {
			flagged++
		}
	}
	fmt.Fprintf(w, "Response-time anomalies: %d of %d samples\n", flagged, len(o.Anomalies))

	fmt.Fprintln(w)
	renderForecast(w, o.Forecast)

	for _, bucket := range []struct {
		title string
		recs  []models.Recommendation
	}{
		{"Immediate actions", o.Recommendations.Immediate},
		{"Short-term actions", o.Recommendations.ShortTerm},
		{"Strategic actions", o.Recommendations.Strategic},
	} {
		if len(bucket.recs) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", bucket.title)
		for _, rec := range bucket.recs {
			fmt.Fprintf(w, "  - %s [%s]\n", rec.Text, rec.SourceFactor.Name)
		}
	}
}

func renderHistory(w io.Writer, serviceID string, records []repo.AssessmentRecord) {
	if len(records) == 0 {
		fmt.Fprintf(w, "no assessments recorded for %s\n", serviceID)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EVALUATED\tTIER\tBREACH %\tFIRST BREACH\tANOMALIES")
	for _, rec := range records {
		first := "-"
		if rec.FirstBreachOffsetDays != models.NoBreach {
			first = fmt.Sprintf("+%d", rec.FirstBreachOffsetDays)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\n",
			rec.EvaluatedAt.Format("2006-01-02 15:04"), rec.Tier, rec.BreachProbabilityPct, first, rec.AnomalyCount)
	}
	tw.Flush()
}

func renderDrivers(w io.Writer, drivers []models.DriverPattern) {
	if len(drivers) == 0 {
		return
	}
	fmt.Fprintln(w, "\nRecurring risk drivers:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FACTOR\tPREVALENCE\tELEVATED\tMEAN IMPACT")
	for _, d := range drivers {
		fmt.Fprintf(tw, "%s\t%.0f%%\t%.0f%%\t%.2f\n", d.Factor, d.Prevalence*100, d.ElevatedShare*100, d.MeanImpact)
	}
	tw.Flush()
}
