package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jpequegn/benchflow-eval/internal/comparator"
	"github.com/jpequegn/benchflow-eval/internal/storage"
)

// compareMetric names which per-run field to build a Series from.
type compareMetric string

const (
	compareMetricCost     compareMetric = "cost"
	compareMetricTokens   compareMetric = "tokens"
	compareMetricPassRate compareMetric = "pass-rate"
)

// compareCmd represents the compare command.
var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare two model variants' run history",
	Long: `Compare reports whether a cost, token, or pass-rate difference between two
model variants is likely to be noise, using each variant's history of
completed runs against the same task set.

Example:
  benchflow-eval compare --store runs.db --a gpt-5 --b claude-opus --metric cost`,
	RunE: compareVariants,
}

func init() {
	rootCmd.AddCommand(compareCmd)

	compareCmd.Flags().String("store", "", "sqlite database path holding run history (required)")
	compareCmd.Flags().String("a", "", "first variant id (required)")
	compareCmd.Flags().String("b", "", "second variant id (required)")
	compareCmd.Flags().String("metric", string(compareMetricCost), "metric to compare: cost, tokens, or pass-rate")
	compareCmd.Flags().Int("limit", 0, "max historical runs per variant to consider (0 = all)")
	compareCmd.Flags().Float64("confidence", 0.95, "statistical confidence level (e.g. 0.95 for 95%)")

	_ = compareCmd.MarkFlagRequired("store")
	_ = compareCmd.MarkFlagRequired("a")
	_ = compareCmd.MarkFlagRequired("b")
}

func compareVariants(cmd *cobra.Command, args []string) error {
	storePath, _ := cmd.Flags().GetString("store")
	variantA, _ := cmd.Flags().GetString("a")
	variantB, _ := cmd.Flags().GetString("b")
	metric, _ := cmd.Flags().GetString("metric")
	limit, _ := cmd.Flags().GetInt("limit")
	confidence, _ := cmd.Flags().GetFloat64("confidence")

	if confidence <= 0 || confidence >= 1 {
		return fmt.Errorf("confidence level must be between 0 and 1 (e.g., 0.95 for 95%%)")
	}

	st, err := storage.NewSQLiteStorage(storePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if err := st.Init(); err != nil {
		return err
	}

	historyA, err := st.History(variantA, limit)
	if err != nil {
		return fmt.Errorf("load history for %s: %w", variantA, err)
	}
	historyB, err := st.History(variantB, limit)
	if err != nil {
		return fmt.Errorf("load history for %s: %w", variantB, err)
	}
	if len(historyA) == 0 || len(historyB) == 0 {
		return fmt.Errorf("insufficient history: %s has %d runs, %s has %d runs", variantA, len(historyA), variantB, len(historyB))
	}

	extract, err := metricExtractor(compareMetric(metric))
	if err != nil {
		return err
	}

	seriesA := comparator.Series{VariantID: variantA, Values: extractSeries(historyA, extract)}
	seriesB := comparator.Series{VariantID: variantB, Values: extractSeries(historyB, extract)}

	comp := comparator.NewBasicComparator()
	comp.ConfidenceLevel = confidence
	result := comp.Compare(seriesA, seriesB)

	slog.Info("Compared variants", "a", variantA, "b", variantB, "metric", metric,
		"deltaPercent", result.DeltaPercent, "effectSize", result.EffectSize, "significant", result.IsSignificant)

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "===============================================\n")
	fmt.Fprintf(os.Stderr, "  Comparison: %s vs %s (%s)\n", variantA, variantB, metric)
	fmt.Fprintf(os.Stderr, "===============================================\n")
	fmt.Fprintf(os.Stderr, "Delta:          %.2f%%\n", result.DeltaPercent)
	fmt.Fprintf(os.Stderr, "Effect size:    %.3f (Cohen's d)\n", result.EffectSize)
	fmt.Fprintf(os.Stderr, "P-value:        %.4f\n", result.PValue)
	fmt.Fprintf(os.Stderr, "Significant:    %v (at %.0f%% confidence)\n", result.IsSignificant, confidence*100)
	fmt.Fprintf(os.Stderr, "===============================================\n\n")

	return nil
}

func metricExtractor(metric compareMetric) (func(storage.ModelStatPoint) float64, error) {
	switch metric {
	case compareMetricCost:
		return func(p storage.ModelStatPoint) float64 { return p.TotalCost }, nil
	case compareMetricTokens:
		return func(p storage.ModelStatPoint) float64 { return float64(p.TotalTokens) }, nil
	case compareMetricPassRate:
		return func(p storage.ModelStatPoint) float64 { return p.PassRate }, nil
	default:
		return nil, fmt.Errorf("unknown metric %q (must be cost, tokens, or pass-rate)", metric)
	}
}

func extractSeries(history []storage.ModelStatPoint, extract func(storage.ModelStatPoint) float64) []float64 {
	values := make([]float64, len(history))
	for i, p := range history {
		values[i] = extract(p)
	}
	return values
}
