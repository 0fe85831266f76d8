// Package commands – cron.go
// Scheduled job management. Mutating commands operate on the store
// directly; the running gateway reloads nothing, so restart it after
// changes or let the agent use its cron tool instead.
package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/hkuds/nanobot/pkg/nanobot/bus"
	"github.com/hkuds/nanobot/pkg/nanobot/cron"
)

func newCronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Manage scheduled tasks",
	}
	cmd.AddCommand(
		newCronAddCmd(),
		newCronListCmd(),
		newCronRemoveCmd(),
		newCronEnableCmd(),
		newCronDisableCmd(),
		newCronRunCmd(),
	)
	return cmd
}

func openCronService() (*cron.Service, error) {
	return cron.NewService(cron.NewStore(cronStorePath()), nil)
}

func newCronAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a scheduled job",
		Long: `Add a scheduled job. Exactly one of --every, --cron, or --at is required.

Examples:
  nanobot cron add -n standup -m "Remind me about standup" --cron "0 9 * * 1-5" --deliver --channel telegram --to 12345
  nanobot cron add -n water -m "Drink water" --every 3600
  nanobot cron add -n launch -m "It's launch day" --at 2026-09-01T09:00:00Z`,
		RunE: runCronAdd,
	}
	cmd.Flags().StringP("name", "n", "", "job name (required)")
	cmd.Flags().StringP("message", "m", "", "message for the agent (required)")
	cmd.Flags().Int64P("every", "e", 0, "run every N seconds")
	cmd.Flags().StringP("cron", "c", "", "cron expression (e.g. '0 9 * * *')")
	cmd.Flags().String("at", "", "run once at time (RFC 3339)")
	cmd.Flags().BoolP("deliver", "d", false, "deliver the response to a channel")
	cmd.Flags().String("to", "", "recipient chat id for delivery")
	cmd.Flags().String("channel", "", "channel for delivery (telegram, whatsapp)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func runCronAdd(cmd *cobra.Command, _ []string) error {
	name, _ := cmd.Flags().GetString("name")
	message, _ := cmd.Flags().GetString("message")
	everyS, _ := cmd.Flags().GetInt64("every")
	cronExpr, _ := cmd.Flags().GetString("cron")
	at, _ := cmd.Flags().GetString("at")

	var sched cron.Schedule
	switch {
	case everyS > 0:
		sched = cron.Schedule{Kind: cron.KindEvery, EveryMS: everyS * 1000}
	case cronExpr != "":
		sched = cron.Schedule{Kind: cron.KindCron, CronExpr: cronExpr}
	case at != "":
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return fmt.Errorf("invalid --at time %q: %w", at, err)
		}
		sched = cron.Schedule{Kind: cron.KindAt, AtMS: t.UnixMilli()}
	default:
		return fmt.Errorf("one of --every, --cron, or --at is required")
	}

	deliver, _ := cmd.Flags().GetBool("deliver")
	to, _ := cmd.Flags().GetString("to")
	channel, _ := cmd.Flags().GetString("channel")

	service, err := openCronService()
	if err != nil {
		return err
	}
	job, err := service.Add(name, sched, cron.Payload{
		Message: message,
		Channel: channel,
		To:      to,
		Deliver: deliver,
	})
	if err != nil {
		return err
	}
	fmt.Printf("✓ Added job '%s' (%s)\n", job.Name, job.ID)
	return nil
}

func newCronListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, _ := cmd.Flags().GetBool("all")
			service, err := openCronService()
			if err != nil {
				return err
			}
			jobs := service.List(all)
			if len(jobs) == 0 {
				fmt.Println("No scheduled jobs.")
				return nil
			}

			fmt.Printf("%-10s %-20s %-20s %-10s %s\n", "ID", "NAME", "SCHEDULE", "STATE", "NEXT RUN")
			for _, job := range jobs {
				fmt.Printf("%-10s %-20s %-20s %-10s %s\n",
					job.ID, job.Name, describeSchedule(job.Schedule), job.State, describeNextRun(job))
			}
			return nil
		},
	}
	cmd.Flags().BoolP("all", "a", false, "include disabled jobs")
	return cmd
}

func describeSchedule(sched cron.Schedule) string {
	switch sched.Kind {
	case cron.KindEvery:
		return fmt.Sprintf("every %ds", sched.EveryMS/1000)
	case cron.KindCron:
		return sched.CronExpr
	case cron.KindAt:
		return "one-time"
	}
	return "?"
}

func describeNextRun(job *cron.Job) string {
	if job.NextRunMS == 0 {
		return "-"
	}
	return time.UnixMilli(job.NextRunMS).Format("2006-01-02 15:04")
}

func newCronRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			service, err := openCronService()
			if err != nil {
				return err
			}
			job, ok := service.Get(args[0])
			if !ok {
				return fmt.Errorf("no job %q", args[0])
			}

			var confirmed bool
			prompt := huh.NewConfirm().
				Title(fmt.Sprintf("Remove job '%s' (%s)?", job.Name, job.ID)).
				Value(&confirmed)
			if err := prompt.Run(); err != nil {
				return err
			}
			if !confirmed {
				return nil
			}
			if err := service.Remove(args[0]); err != nil {
				return err
			}
			fmt.Printf("✓ Removed job %s\n", args[0])
			return nil
		},
	}
}

func newCronEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <id>",
		Short: "Enable a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			service, err := openCronService()
			if err != nil {
				return err
			}
			if err := service.Enable(args[0]); err != nil {
				return err
			}
			fmt.Printf("✓ Job %s enabled\n", args[0])
			return nil
		},
	}
}

func newCronDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <id>",
		Short: "Disable a job without removing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			service, err := openCronService()
			if err != nil {
				return err
			}
			if err := service.Disable(args[0]); err != nil {
				return err
			}
			fmt.Printf("✓ Job %s disabled\n", args[0])
			return nil
		},
	}
}

func newCronRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <id>",
		Short: "Run a job immediately through the agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			setupLogging(cmd, cfg)

			provider, _, err := buildProvider(cfg)
			if err != nil {
				return err
			}

			service, err := openCronService()
			if err != nil {
				return err
			}

			b := bus.New()
			defer b.Close()
			loop := buildLoop(cfg, b, provider, service)
			service.SetHandler(func(jobCtx context.Context, job *cron.Job) (string, error) {
				response, err := loop.ProcessDirect(jobCtx, job.Payload.Message,
					fmt.Sprintf("cron:%s", job.ID), "cli", "direct")
				if err == nil && response != "" {
					fmt.Println(response)
				}
				return response, err
			})

			force, _ := cmd.Flags().GetBool("force")
			if err := service.RunNow(cmd.Context(), args[0], force); err != nil {
				return err
			}
			fmt.Println("✓ Job executed")
			return nil
		},
	}
	cmd.Flags().BoolP("force", "f", false, "run even if paused or disabled")
	return cmd
}
