package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jpequegn/benchflow-eval/internal/analyzer"
	"github.com/jpequegn/benchflow-eval/internal/storage"
)

// trendCmd represents the trend command.
var trendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Show whether a model variant's pass rate is improving, degrading, or stable",
	Long: `Trend fits a line through a model variant's historical pass-rate (or average
score) across completed runs and flags anomalous runs via z-score.

Example:
  benchflow-eval trend --store runs.db --variant gpt-5 --metric pass-rate`,
	RunE: showTrend,
}

func init() {
	rootCmd.AddCommand(trendCmd)

	trendCmd.Flags().String("store", "", "sqlite database path holding run history (required)")
	trendCmd.Flags().String("variant", "", "variant id to analyze (required)")
	trendCmd.Flags().String("metric", "pass-rate", "metric to analyze: pass-rate or avg-score")
	trendCmd.Flags().Int("min-points", 3, "minimum historical runs required to fit a trend")
	trendCmd.Flags().Float64("z-threshold", 2.0, "z-score magnitude above which a run is flagged anomalous")

	_ = trendCmd.MarkFlagRequired("store")
	_ = trendCmd.MarkFlagRequired("variant")
}

func showTrend(cmd *cobra.Command, args []string) error {
	storePath, _ := cmd.Flags().GetString("store")
	variantID, _ := cmd.Flags().GetString("variant")
	metricName, _ := cmd.Flags().GetString("metric")
	minPoints, _ := cmd.Flags().GetInt("min-points")
	zThreshold, _ := cmd.Flags().GetFloat64("z-threshold")

	var metric analyzer.Metric
	switch metricName {
	case "pass-rate":
		metric = analyzer.MetricPassRate
	case "avg-score":
		metric = analyzer.MetricAvgScore
	default:
		return fmt.Errorf("unknown metric %q (must be pass-rate or avg-score)", metricName)
	}

	st, err := storage.NewSQLiteStorage(storePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if err := st.Init(); err != nil {
		return err
	}

	history, err := st.History(variantID, 0)
	if err != nil {
		return fmt.Errorf("load history for %s: %w", variantID, err)
	}
	if len(history) == 0 {
		return fmt.Errorf("no history for variant %q", variantID)
	}

	a := analyzer.NewBasicTrendAnalyzer()
	trend, err := a.CalculateTrend(variantID, history, minPoints, metric)
	if err != nil {
		return fmt.Errorf("calculate trend: %w", err)
	}
	anomalies := a.DetectAnomalies(variantID, history, zThreshold, metric)

	slog.Info("Trend computed", "variant", variantID, "direction", trend.Direction, "slope", trend.Slope, "anomalies", len(anomalies))

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "===============================================\n")
	fmt.Fprintf(os.Stderr, "  Trend: %s (%s)\n", variantID, metricName)
	fmt.Fprintf(os.Stderr, "===============================================\n")
	fmt.Fprintf(os.Stderr, "Direction:      %s\n", trend.Direction)
	fmt.Fprintf(os.Stderr, "Slope:          %.4f/day\n", trend.Slope)
	fmt.Fprintf(os.Stderr, "R-squared:      %.3f\n", trend.RSquared)
	fmt.Fprintf(os.Stderr, "Change:         %.1f -> %.1f (%.1f%%)\n", trend.StartValue, trend.EndValue, trend.ChangePercent)
	fmt.Fprintf(os.Stderr, "Data points:    %d over %d days\n", trend.DataPoints, trend.PeriodDays)

	if len(anomalies) > 0 {
		fmt.Fprintf(os.Stderr, "\nAnomalies:\n")
		for _, an := range anomalies {
			direction := "spike"
			if an.IsDrop {
				direction = "drop"
			}
			fmt.Fprintf(os.Stderr, "  • %s: %s value=%.1f z=%.2f severity=%s\n",
				an.Timestamp.Format("2006-01-02"), direction, an.Value, an.ZScore, an.Severity)
		}
	}
	fmt.Fprintf(os.Stderr, "===============================================\n\n")

	return nil
}
