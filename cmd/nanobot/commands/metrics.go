// Package commands – metrics.go
// Usage reports over the local JSONL event log.
package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/hkuds/nanobot/pkg/nanobot/metrics"
)

func newMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "View usage metrics",
	}
	cmd.AddCommand(
		newMetricsSummaryCmd(),
		newMetricsToolsCmd(),
		newMetricsSessionsCmd(),
		newMetricsModelsCmd(),
		newMetricsResetCmd(),
	)
	return cmd
}

func openCollector() *metrics.Collector {
	return metrics.NewCollector(metricsDir(), true)
}

func newMetricsSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show an overall usage summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			hours, _ := cmd.Flags().GetFloat64("hours")
			report := metrics.Summary(openCollector(), hours)

			fmt.Printf("%s Usage (last %.0fh)\n\n", logo, hours)
			fmt.Printf("  Sessions:      %d  (%.1f%% success, %.1f avg iterations)\n",
				report.TotalSessions, report.SuccessRate, report.AvgIterations)
			fmt.Printf("  LLM calls:     %d\n", report.TotalLLMCalls)
			fmt.Printf("  Tool calls:    %d  (%.1f%% success)\n",
				report.TotalToolCalls, report.ToolSuccessRate)
			fmt.Printf("  Tokens:        %d  (%d prompt / %d completion)\n",
				report.TotalTokens, report.TotalPromptTokens, report.TotalComplTokens)
			if report.TotalSessions > 0 {
				fmt.Printf("  Per session:   %d tokens\n", report.AvgTokensPerRun)
			}
			if report.TokensPerSuccess > 0 {
				fmt.Printf("  Per success:   %d tokens\n", report.TokensPerSuccess)
			}
			return nil
		},
	}
	cmd.Flags().Float64("hours", 24, "time window in hours")
	return cmd
}

func newMetricsToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Show per-tool statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			hours, _ := cmd.Flags().GetFloat64("hours")
			rows := metrics.ToolStats(openCollector(), hours)
			if len(rows) == 0 {
				fmt.Println("No tool calls recorded.")
				return nil
			}

			fmt.Printf("%-20s %8s %9s %12s %10s %10s\n",
				"TOOL", "CALLS", "SUCCESS", "AVG LATENCY", "AVG IN", "AVG OUT")
			for _, row := range rows {
				fmt.Printf("%-20s %8d %8.1f%% %9d ms %10d %10d\n",
					row.Tool, row.Calls, row.SuccessRate, row.AvgLatencyMS,
					row.AvgInputSize, row.AvgOutputSize)
				for msg, count := range row.TopErrors {
					fmt.Printf("    %dx %s\n", count, msg)
				}
			}
			return nil
		},
	}
	cmd.Flags().Float64("hours", 24, "time window in hours")
	return cmd
}

func newMetricsSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Show recent sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			last, _ := cmd.Flags().GetInt("last")
			rows := metrics.RecentSessions(openCollector(), last)
			if len(rows) == 0 {
				fmt.Println("No sessions recorded.")
				return nil
			}

			fmt.Printf("%-20s %-17s %3s %6s %6s %8s %s\n",
				"SESSION", "STARTED", "OK", "ITERS", "TOOLS", "TOKENS", "TOOLS USED")
			for _, row := range rows {
				status := "✓"
				if !row.Success {
					status = "✗"
				}
				fmt.Printf("%-20s %-17s %3s %6d %6d %8d %s\n",
					row.SessionID, shortTS(row.StartedAt), status, row.Iterations,
					row.ToolCalls, row.TotalTokens, strings.Join(row.ToolsUsed, ","))
				if row.FailureReason != "" {
					fmt.Printf("    reason: %s\n", row.FailureReason)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntP("last", "n", 20, "number of sessions to show")
	return cmd
}

func newMetricsModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Compare token usage across models",
		RunE: func(cmd *cobra.Command, _ []string) error {
			hours, _ := cmd.Flags().GetFloat64("hours")
			rows := metrics.ModelStats(openCollector(), hours)
			if len(rows) == 0 {
				fmt.Println("No sessions recorded.")
				return nil
			}

			fmt.Printf("%-32s %9s %9s %10s %12s %12s\n",
				"MODEL", "SESSIONS", "SUCCESS", "TOKENS", "PER SESSION", "PER SUCCESS")
			for _, row := range rows {
				fmt.Printf("%-32s %9d %8.1f%% %10d %12d %12d\n",
					row.Model, row.Sessions, row.SuccessRate, row.TotalTokens,
					row.TokensPerSession, row.TokensPerSuccess)
			}
			return nil
		},
	}
	cmd.Flags().Float64("hours", 168, "time window in hours")
	return cmd
}

func newMetricsResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all recorded metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				prompt := huh.NewConfirm().
					Title("Delete all recorded metrics?").
					Value(&yes)
				if err := prompt.Run(); err != nil {
					return err
				}
			}
			if !yes {
				return nil
			}
			if err := openCollector().Reset(); err != nil {
				return err
			}
			fmt.Println("✓ Metrics cleared")
			return nil
		},
	}
	cmd.Flags().Bool("yes", false, "skip confirmation")
	return cmd
}

func shortTS(ts string) string {
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t.Local().Format("2006-01-02 15:04")
	}
	if len(ts) > 16 {
		return ts[:16]
	}
	return ts
}
