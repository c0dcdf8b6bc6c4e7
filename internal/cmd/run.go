package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jpequegn/benchflow-eval/internal/compilequeue"
	"github.com/jpequegn/benchflow-eval/internal/container"
	"github.com/jpequegn/benchflow-eval/internal/eventstream"
	"github.com/jpequegn/benchflow-eval/internal/llmadapter"
	"github.com/jpequegn/benchflow-eval/internal/llmpool"
	"github.com/jpequegn/benchflow-eval/internal/model"
	"github.com/jpequegn/benchflow-eval/internal/orchestrator"
	"github.com/jpequegn/benchflow-eval/internal/storage"
	"github.com/jpequegn/benchflow-eval/internal/taskexec"
)

// runCmd represents the run command.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run model variants against a set of tasks",
	Long: `Run evaluates every configured model variant against every task manifest,
streaming progress to stderr and writing the aggregated result set as JSON.

Example:
  benchflow-eval run --tasks tasks/add.json,tasks/sort.json --output result.json
  benchflow-eval run --config benchflow-eval.yaml --retry-transient`,
	RunE: runEvaluation,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSlice("tasks", nil, "task manifest JSON files to evaluate")
	runCmd.Flags().IntP("concurrency", "p", 0, "global concurrency cap across all (task, variant) pairs")
	runCmd.Flags().Int("attempt-limit", 0, "fallback attempt limit for tasks that don't set their own")
	runCmd.Flags().Duration("compile-deadline", 0, "per-job compile/test deadline (0 = no deadline)")
	runCmd.Flags().StringP("output", "o", "", "result JSON output path (default: stdout)")
	runCmd.Flags().Bool("retry-transient", false, "after the run, automatically retry transient failures once")
	runCmd.Flags().String("store", "", "sqlite database path to persist this run's history (empty disables persistence)")
}

func runEvaluation(cmd *cobra.Command, args []string) error {
	taskPaths, _ := cmd.Flags().GetStringSlice("tasks")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	attemptLimit, _ := cmd.Flags().GetInt("attempt-limit")
	compileDeadline, _ := cmd.Flags().GetDuration("compile-deadline")
	outputPath, _ := cmd.Flags().GetString("output")
	retryTransient, _ := cmd.Flags().GetBool("retry-transient")
	storePath, _ := cmd.Flags().GetString("store")

	if len(taskPaths) == 0 {
		return fmt.Errorf("no tasks given (use --tasks)")
	}

	tasks, err := LoadTaskManifests(taskPaths)
	if err != nil {
		return err
	}

	var rawVariants []map[string]any
	if err := viper.UnmarshalKey("variants", &rawVariants); err != nil {
		return fmt.Errorf("failed to unmarshal variants: %w", err)
	}
	variants, err := LoadModelVariants(rawVariants)
	if err != nil {
		return err
	}

	slog.Info("Loaded configuration", "tasks", len(tasks), "variants", len(variants))

	registry := llmpool.NewAdapterRegistry()
	seen := make(map[string]bool)
	for _, v := range variants {
		if seen[v.Provider] {
			continue
		}
		seen[v.Provider] = true
		registry.Register(v.Provider, llmadapter.NewMockAdapter(v.Provider))
	}

	provider := container.NewMockProvider()
	materializer := taskexec.NewDirMaterializer("")

	orch := orchestrator.New(registry, provider, materializer, orchestrator.Config{
		GlobalConcurrency: concurrency,
		AttemptLimit:      attemptLimit,
		CompileDeadline:   compileDeadline,
		Container:         container.Config{Name: "benchflow-eval"},
		ProgressInterval:  2 * time.Second,
	})
	defer orch.Close()

	sub := orch.Subscribe(64)
	done := make(chan struct{})
	go streamProgress(sub, done)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := fmt.Sprintf("run-%d", time.Now().UnixNano())
	harnessManifest := []byte("benchflow-eval-harness-v1")

	startTime := time.Now()
	result, err := orch.Run(ctx, runID, tasks, variants, harnessManifest)
	duration := time.Since(startTime)
	sub.Close()
	<-done

	if err != nil {
		var critical *compilequeue.CriticalError
		if errors.As(err, &critical) {
			return &ExitCodeError{Code: 1, Err: fmt.Errorf("critical infrastructure failure: %w", err)}
		}
		if errors.Is(err, context.Canceled) {
			return &ExitCodeError{Code: 2, Err: fmt.Errorf("run cancelled")}
		}
		return err
	}

	if retryTransient {
		retried := false
		result, err = orch.RetryLoop(ctx, runID, result, tasksByID(tasks), variantsByID(variants), func(candidates []orchestrator.RetryCandidate) bool {
			if retried {
				return false
			}
			retried = true
			slog.Info("Retrying transient failures", "count", len(candidates))
			return true
		})
		if err != nil {
			return fmt.Errorf("retry loop: %w", err)
		}
	}

	printSummary(result, duration)

	if storePath != "" {
		if err := persistRun(storePath, result, duration); err != nil {
			slog.Error("Failed to persist run history", "error", err)
		}
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, out, 0o644); err != nil {
			return fmt.Errorf("write output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Result written to: %s\n", outputPath)
	} else {
		fmt.Println(string(out))
	}

	return nil
}

func tasksByID(tasks []model.TaskManifest) map[string]model.TaskManifest {
	out := make(map[string]model.TaskManifest, len(tasks))
	for _, t := range tasks {
		out[t.ID] = t
	}
	return out
}

func variantsByID(variants []model.ModelVariant) map[string]model.ModelVariant {
	out := make(map[string]model.ModelVariant, len(variants))
	for _, v := range variants {
		out[v.VariantID] = v
	}
	return out
}

func streamProgress(sub *eventstream.Subscription, done chan<- struct{}) {
	defer close(done)
	for ev := range sub.Events {
		switch ev.Kind {
		case eventstream.KindTaskStarted:
			slog.Debug("Task started", "task", ev.TaskID, "variants", ev.Variants)
		case eventstream.KindTaskCompleted:
			slog.Info("Task completed", "task", ev.TaskID, "winner", ev.Comparison.Winner)
		case eventstream.KindProgress:
			slog.Info("Progress",
				"completed", ev.Completed,
				"total", ev.Total,
				"active_llm_calls", ev.ActiveLLMCalls,
				"compile_queue_length", ev.CompileQueueLength,
				"eta_ms", ev.ETAMillis)
		case eventstream.KindError:
			slog.Warn("Error event", "task", ev.TaskID, "variant", ev.VariantID, "error", ev.Err)
		}
	}
}

func persistRun(storePath string, result *orchestrator.RunResult, duration time.Duration) error {
	st, err := storage.NewSQLiteStorage(storePath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Init(); err != nil {
		return err
	}

	now := time.Now()
	modelStats := make([]storage.ModelStatPoint, 0, len(result.ModelStats))
	for _, ms := range result.ModelStats {
		total := ms.TasksPassed + ms.TasksFailed
		passRate := 0.0
		if total > 0 {
			passRate = float64(ms.TasksPassed) / float64(total) * 100
		}
		modelStats = append(modelStats, storage.ModelStatPoint{
			VariantID:   ms.VariantID,
			Timestamp:   now,
			PassRate:    passRate,
			AvgScore:    ms.AvgScore,
			AvgAttempts: ms.AvgAttempts,
			TotalTokens: ms.TotalTokens.PromptTokens + ms.TotalTokens.CompletionTokens,
			TotalCost:   ms.TotalCost,
		})
	}

	overallPassRate := 0.0
	if result.Global != nil {
		overallPassRate = result.Global.OverallPassRate
	}

	return st.SaveRun(storage.StoredRun{
		RunID:           result.RunID,
		TaskSetHash:     result.TaskSetHash,
		Timestamp:       now,
		Duration:        duration,
		OverallPassRate: overallPassRate,
		TotalTokens:     totalTokens(result),
		TotalCost:       totalCost(result),
		ModelStats:      modelStats,
	})
}

func totalTokens(result *orchestrator.RunResult) int {
	if result.Global == nil {
		return 0
	}
	return result.Global.TotalTokens.PromptTokens + result.Global.TotalTokens.CompletionTokens
}

func totalCost(result *orchestrator.RunResult) float64 {
	if result.Global == nil {
		return 0
	}
	return result.Global.TotalCost
}

func printSummary(result *orchestrator.RunResult, duration time.Duration) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "===============================================\n")
	fmt.Fprintf(os.Stderr, "  Run Summary\n")
	fmt.Fprintf(os.Stderr, "===============================================\n")
	fmt.Fprintf(os.Stderr, "Task set hash: %s\n", result.TaskSetHash)
	fmt.Fprintf(os.Stderr, "Tasks x Variants: %d results\n", len(result.Results))
	fmt.Fprintf(os.Stderr, "Duration: %v\n", duration.Round(time.Millisecond))
	if result.Global != nil {
		fmt.Fprintf(os.Stderr, "Overall pass rate: %.1f%%\n", result.Global.OverallPassRate)
		fmt.Fprintf(os.Stderr, "Total cost: $%.4f\n", result.Global.TotalCost)
	}
	for _, ms := range result.ModelStats {
		fmt.Fprintf(os.Stderr, "  %-20s passed=%d failed=%d avgScore=%.1f avgAttempts=%.1f\n",
			ms.VariantID, ms.TasksPassed, ms.TasksFailed, ms.AvgScore, ms.AvgAttempts)
	}
	fmt.Fprintf(os.Stderr, "===============================================\n\n")
}
