package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"skillhost/pkg/cron"
)

func newCronCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Manage scheduled jobs and one-shot deliveries",
	}
	cmd.AddCommand(newCronListCommand())
	cmd.AddCommand(newCronAddCommand())
	cmd.AddCommand(newCronRemoveCommand())
	cmd.AddCommand(newCronEnableCommand(true))
	cmd.AddCommand(newCronEnableCommand(false))
	return cmd
}

func openCronService() (*cron.CronService, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return cron.NewCronService(cronStorePath(cfg), nil), nil
}

func newCronListCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, err := openCronService()
			if err != nil {
				return err
			}

			jobs := cs.ListJobs(all)
			if len(jobs) == 0 {
				fmt.Println("No scheduled jobs.")
				return nil
			}

			fmt.Println("\nScheduled Jobs:")
			fmt.Println("----------------")
			for _, job := range jobs {
				fmt.Printf("  %s (%s)\n", job.Name, job.ID)
				fmt.Printf("    Schedule: %s\n", describeSchedule(job))
				fmt.Printf("    Status: %s\n", describeStatus(job))
				if job.State.NextRunAtMS != nil {
					fmt.Printf("    Next run: %s\n", time.UnixMilli(*job.State.NextRunAtMS).Format("2006-01-02 15:04"))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include disabled and completed jobs")
	return cmd
}

func describeSchedule(job *cron.CronJob) string {
	switch job.Schedule.Kind {
	case cron.KindEvery:
		if job.Schedule.EveryMS != nil {
			return fmt.Sprintf("every %ds", *job.Schedule.EveryMS/1000)
		}
	case cron.KindCron:
		return job.Schedule.Expr
	case cron.KindAt:
		if job.Schedule.AtMS != nil {
			return "once at " + time.UnixMilli(*job.Schedule.AtMS).Format("2006-01-02 15:04")
		}
	}
	return "unknown"
}

func describeStatus(job *cron.CronJob) string {
	if job.OneShot() && job.State.Status != "" {
		return string(job.State.Status)
	}
	if !job.Enabled {
		return "disabled"
	}
	return "enabled"
}

func newCronAddCommand() *cobra.Command {
	var (
		name     string
		message  string
		everySec int64
		cronExpr string
		atTime   string
		deliver  bool
		channel  string
		to       string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a scheduled job or one-shot delivery",
		Example: `  skillhost cron add -n morning -c "0 9 * * *" -m "check the work queue depth"
  skillhost cron add -n reminder --at "2026-09-01T09:00:00Z" -m "renew the certificate" --deliver --channel discord --to 12345`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, err := openCronService()
			if err != nil {
				return err
			}

			var schedule cron.CronSchedule
			switch {
			case atTime != "":
				at, err := time.Parse(time.RFC3339, atTime)
				if err != nil {
					return fmt.Errorf("parse --at time: %w", err)
				}
				atMS := at.UnixMilli()
				schedule = cron.CronSchedule{Kind: cron.KindAt, AtMS: &atMS}
			case everySec > 0:
				everyMS := everySec * 1000
				schedule = cron.CronSchedule{Kind: cron.KindEvery, EveryMS: &everyMS}
			case cronExpr != "":
				schedule = cron.CronSchedule{Kind: cron.KindCron, Expr: cronExpr}
			default:
				return fmt.Errorf("one of --at, --every, or --cron is required")
			}

			job, err := cs.AddJob(name, schedule, message, deliver, channel, to)
			if err != nil {
				return fmt.Errorf("add job: %w", err)
			}
			fmt.Printf("✓ Added job '%s' (%s)\n", job.Name, job.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Job name")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Request routed through skills when the job fires")
	cmd.Flags().Int64VarP(&everySec, "every", "e", 0, "Run every N seconds")
	cmd.Flags().StringVarP(&cronExpr, "cron", "c", "", "Cron expression (e.g. '0 9 * * *')")
	cmd.Flags().StringVar(&atTime, "at", "", "One-shot fire time (RFC3339)")
	cmd.Flags().BoolVar(&deliver, "deliver", false, "Deliver the response to a channel")
	cmd.Flags().StringVar(&channel, "channel", "", "Delivery channel")
	cmd.Flags().StringVar(&to, "to", "", "Delivery recipient")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("message")
	return cmd
}

func newCronRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job_id>",
		Short: "Cancel a job (pending one-shots are kept for audit)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, err := openCronService()
			if err != nil {
				return err
			}
			if !cs.RemoveJob(args[0]) {
				return fmt.Errorf("job %s not found", args[0])
			}
			fmt.Printf("✓ Removed job %s\n", args[0])
			return nil
		},
	}
}

func newCronEnableCommand(enable bool) *cobra.Command {
	use, short := "enable <job_id>", "Enable a job"
	if !enable {
		use, short = "disable <job_id>", "Disable a job"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, err := openCronService()
			if err != nil {
				return err
			}
			job := cs.EnableJob(args[0], enable)
			if job == nil {
				return fmt.Errorf("job %s not found", args[0])
			}
			state := "enabled"
			if !enable {
				state = "disabled"
			}
			fmt.Printf("✓ Job '%s' %s\n", job.Name, state)
			return nil
		},
	}
}
